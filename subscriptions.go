package netaio

import (
	"sync"

	"golang.org/x/sync/errgroup"
)

// Subscriber is anything a node can push a message to, such as a TCP
// server's connection handle. Key must be stable and
// unique per subscriber for the lifetime of the subscription so it
// can be removed by value.
type Subscriber interface {
	Send(msg Message) error
	Key() string
}

// SubscriptionTable maps URIs to the set of subscribers currently
// listening on them. Subscribe/Unsubscribe are cheap map operations
// under a single mutex; Broadcast and Notify take a snapshot of the
// subscriber set before fanning out so a subscriber added or removed
// mid-broadcast can't corrupt the in-flight iteration.
type SubscriptionTable struct {
	mu   sync.RWMutex
	subs map[string]map[string]Subscriber
}

// NewSubscriptionTable returns an empty table.
func NewSubscriptionTable() *SubscriptionTable {
	return &SubscriptionTable{subs: make(map[string]map[string]Subscriber)}
}

// Subscribe adds sub to uri's subscriber set.
func (t *SubscriptionTable) Subscribe(uri string, sub Subscriber) {
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.subs[uri]
	if !ok {
		set = make(map[string]Subscriber)
		t.subs[uri] = set
	}
	set[sub.Key()] = sub
}

// Unsubscribe removes one subscriber from one uri.
func (t *SubscriptionTable) Unsubscribe(uri, key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.subs[uri]
	if !ok {
		return
	}
	delete(set, key)
	if len(set) == 0 {
		delete(t.subs, uri)
	}
}

// UnsubscribeAll removes a subscriber from every uri it's subscribed
// to. Call this when a connection closes.
func (t *SubscriptionTable) UnsubscribeAll(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for uri, set := range t.subs {
		delete(set, key)
		if len(set) == 0 {
			delete(t.subs, uri)
		}
	}
}

// Count returns the total number of (uri, subscriber) pairs currently
// held, for exposing as a gauge.
func (t *SubscriptionTable) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	total := 0
	for _, set := range t.subs {
		total += len(set)
	}
	return total
}

func (t *SubscriptionTable) snapshot(uri string) []Subscriber {
	t.mu.RLock()
	defer t.mu.RUnlock()
	set, ok := t.subs[uri]
	if !ok {
		return nil
	}
	out := make([]Subscriber, 0, len(set))
	for _, sub := range set {
		out = append(out, sub)
	}
	return out
}

// Broadcast concurrently sends msg to every current subscriber of
// uri. Subscribers whose Send fails are unsubscribed from uri so a
// dead connection doesn't keep absorbing future broadcasts; Broadcast
// itself never fails outright on a single subscriber's error.
func (t *SubscriptionTable) Broadcast(uri string, msg Message) {
	subs := t.snapshot(uri)
	if len(subs) == 0 {
		return
	}
	var g errgroup.Group
	var failedMu sync.Mutex
	var failed []string
	for _, sub := range subs {
		sub := sub
		g.Go(func() error {
			if err := sub.Send(msg); err != nil {
				failedMu.Lock()
				failed = append(failed, sub.Key())
				failedMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	if len(failed) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.subs[uri]
	if !ok {
		return
	}
	for _, key := range failed {
		delete(set, key)
	}
	if len(set) == 0 {
		delete(t.subs, uri)
	}
}

// Notify sends msg to exactly the subscribers named by keys, ignoring
// keys with no matching subscriber. Unlike Broadcast it doesn't prune
// failed sends, since the caller supplied the recipient list directly
// rather than asking for "everyone subscribed".
func (t *SubscriptionTable) Notify(uri string, keys []string, msg Message) error {
	t.mu.RLock()
	set, ok := t.subs[uri]
	var targets []Subscriber
	if ok {
		for _, key := range keys {
			if sub, present := set[key]; present {
				targets = append(targets, sub)
			}
		}
	}
	t.mu.RUnlock()

	var g errgroup.Group
	for _, sub := range targets {
		sub := sub
		g.Go(func() error { return sub.Send(msg) })
	}
	return g.Wait()
}
