package netaio

import "fmt"

// SecurityConfig names the up-to-four plugins a node applies around
// every message: an inner pair scoped to the handler/call, and an
// outer pair scoped to the node as a whole. Any field left nil
// behaves as a no-op, so a node that only wants outer-layer security
// can leave the inner plugins unset.
type SecurityConfig struct {
	InnerAuth   AuthPlugin
	InnerCipher CipherPlugin
	OuterAuth   AuthPlugin
	OuterCipher CipherPlugin
}

func (c SecurityConfig) innerAuth() AuthPlugin {
	if c.InnerAuth == nil {
		return NoOpAuthPlugin{}
	}
	return c.InnerAuth
}

func (c SecurityConfig) innerCipher() CipherPlugin {
	if c.InnerCipher == nil {
		return NoOpCipherPlugin{}
	}
	return c.InnerCipher
}

func (c SecurityConfig) outerAuth() AuthPlugin {
	if c.OuterAuth == nil {
		return NoOpAuthPlugin{}
	}
	return c.OuterAuth
}

func (c SecurityConfig) outerCipher() CipherPlugin {
	if c.OuterCipher == nil {
		return NoOpCipherPlugin{}
	}
	return c.OuterCipher
}

// PrepareOutbound runs the fixed send-side security pipeline over
// msg: inner cipher, then inner auth, then outer cipher, then outer
// auth. The order matters: inner layers protect the payload a
// specific handler call cares about, and the outer layer then wraps
// the whole thing for the link between nodes.
func PrepareOutbound(cfg SecurityConfig, msg Message) (Message, error) {
	msg, err := cfg.innerCipher().Encrypt(msg)
	if err != nil {
		return Message{}, fmt.Errorf("inner cipher: %w", err)
	}
	innerFields, err := cfg.innerAuth().Make(msg)
	if err != nil {
		return Message{}, fmt.Errorf("inner auth: %w", err)
	}
	msg, err = msg.WithAuthFields(innerFields)
	if err != nil {
		return Message{}, err
	}

	msg, err = cfg.outerCipher().Encrypt(msg)
	if err != nil {
		return Message{}, fmt.Errorf("outer cipher: %w", err)
	}
	outerFields, err := cfg.outerAuth().Make(msg)
	if err != nil {
		return Message{}, fmt.Errorf("outer auth: %w", err)
	}
	return msg.WithAuthFields(outerFields)
}

// DecryptOuter checks and strips the outer security layer from an
// inbound message: outer auth first (so a forged or replayed frame is
// rejected before any decryption work happens), then outer decrypt.
// The result's Body.URI is the real routing URI whenever an outer
// cipher is configured — a caller that needs to branch on message
// type or URI before handing the message to DispatchInner (server.go's
// built-in SUBSCRIBE_URI/PUBLISH_URI/DISCONNECT handling, which acts
// on the connection rather than through the handler registry) must
// call DecryptOuter first rather than inspecting the raw wire message.
func DecryptOuter(cfg SecurityConfig, msg Message) (Message, error) {
	ok, err := cfg.outerAuth().Check(msg)
	if err != nil {
		return Message{}, fmt.Errorf("outer auth: %w", err)
	}
	if !ok {
		return Message{}, cfg.outerAuth().Error()
	}
	return cfg.outerCipher().Decrypt(msg)
}

// DispatchInner resolves a handler for an already outer-decrypted msg,
// checks and strips inner security, invokes the handler, and — if it
// produced a response — runs the response back through PrepareOutbound
// before returning it. It returns a nil *Message with a nil error when
// the handler ran but chose not to reply.
//
// If the resolved route was registered with WithHandlerAuth or
// WithHandlerCipher, that plugin replaces cfg's inner auth/cipher for
// this dispatch and for preparing its response, so one route can run
// under stricter or different inner security than the rest of the node.
func DispatchInner(cfg SecurityConfig, registry *Registry, msg Message) (*Message, error) {
	entry, found := registry.ResolveEntry(msg.Header.MessageType, msg.Body.URI)
	if !found {
		return nil, ErrNotFound
	}

	auth := cfg.innerAuth()
	if entry.Auth != nil {
		auth = entry.Auth
	}
	cipher := cfg.innerCipher()
	if entry.Cipher != nil {
		cipher = entry.Cipher
	}

	ok, err := auth.Check(msg)
	if err != nil {
		return nil, fmt.Errorf("inner auth: %w", err)
	}
	if !ok {
		return nil, auth.Error()
	}

	msg, err = cipher.Decrypt(msg)
	if err != nil {
		return nil, fmt.Errorf("inner cipher: %w", err)
	}

	resp, err := entry.Fn(msg)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, nil
	}

	respCfg := cfg
	respCfg.InnerAuth = auth
	respCfg.InnerCipher = cipher
	out, err := PrepareOutbound(respCfg, *resp)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ProcessInbound runs the fixed receive-side security pipeline over a
// raw inbound msg: DecryptOuter followed by DispatchInner. Most
// callers that don't need to inspect the message between the two
// stages should use this directly.
func ProcessInbound(cfg SecurityConfig, registry *Registry, msg Message) (*Message, error) {
	msg, err := DecryptOuter(cfg, msg)
	if err != nil {
		return nil, err
	}
	return DispatchInner(cfg, registry, msg)
}
