package netaio

import "testing"

func TestRegistryPersistentDispatchByURIBeforeType(t *testing.T) {
	r := NewRegistry()
	called := ""
	r.AddHandler(RequestURI, "", func(msg Message) (*Message, error) {
		called = "type"
		return nil, nil
	})
	r.AddHandler(RequestURI, "/specific", func(msg Message) (*Message, error) {
		called = "uri"
		return nil, nil
	})

	fn, ok := r.Resolve(RequestURI, "/specific")
	if !ok {
		t.Fatal("expected a handler")
	}
	fn(Message{})
	if called != "uri" {
		t.Errorf("called = %q, want %q", called, "uri")
	}

	fn, ok = r.Resolve(RequestURI, "/other")
	if !ok {
		t.Fatal("expected a handler")
	}
	fn(Message{})
	if called != "type" {
		t.Errorf("called = %q, want %q", called, "type")
	}
}

func TestRegistryEphemeralTakesPrecedenceAndIsConsumed(t *testing.T) {
	r := NewRegistry()
	r.AddHandler(RespondURI, "/x", func(msg Message) (*Message, error) {
		t.Fatal("persistent handler should not run while ephemeral exists")
		return nil, nil
	})
	ranEphemeral := false
	r.AddEphemeralHandler(RespondURI, "/x", func(msg Message) (*Message, error) {
		ranEphemeral = true
		return nil, nil
	})

	fn, ok := r.Resolve(RespondURI, "/x")
	if !ok {
		t.Fatal("expected ephemeral handler")
	}
	if _, err := fn(Message{}); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !ranEphemeral {
		t.Error("ephemeral handler did not run")
	}

	// Second resolve should fall through to the persistent handler,
	// proving the ephemeral entry was removed.
	fn, ok = r.Resolve(RespondURI, "/x")
	if !ok {
		t.Fatal("expected persistent handler after ephemeral consumed")
	}
	if _, err := fn(Message{}); err != nil {
		t.Fatalf("handler error: %v", err)
	}
}

func TestRegistryResolveNotFound(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Resolve(RequestURI, "/missing"); ok {
		t.Error("expected no handler for unregistered route")
	}
}
