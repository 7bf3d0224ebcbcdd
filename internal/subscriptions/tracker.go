// Package subscriptions tracks which instrument keys each caller asked for,
// independent of whether data has arrived yet. Keys are reference-counted
// across callers so one caller's unsubscribe cannot tear down an instrument
// another caller still wants.
package subscriptions

import (
	"sort"
	"sync"
)

type Tracker struct {
	mu      sync.Mutex
	byToken map[string]map[string]struct{}
	refs    map[string]int
}

func NewTracker() *Tracker {
	return &Tracker{
		byToken: make(map[string]map[string]struct{}),
		refs:    make(map[string]int),
	}
}

// Subscribe records the keys under the token and returns the keys that
// gained their first reference anywhere. Re-subscribing a key the token
// already tracks changes nothing.
func (t *Tracker) Subscribe(token string, keys []string) (first []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.byToken[token]
	if !ok {
		set = make(map[string]struct{})
		t.byToken[token] = set
	}
	for _, k := range keys {
		if _, tracked := set[k]; tracked {
			continue
		}
		set[k] = struct{}{}
		t.refs[k]++
		if t.refs[k] == 1 {
			first = append(first, k)
		}
	}
	return first
}

// Unsubscribe drops the keys from the token's set and returns the keys whose
// reference count reached zero.
func (t *Tracker) Unsubscribe(token string, keys []string) (released []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	set := t.byToken[token]
	for _, k := range keys {
		if _, tracked := set[k]; !tracked {
			continue
		}
		delete(set, k)
		released = t.unref(k, released)
	}
	if len(set) == 0 {
		delete(t.byToken, token)
	}
	return released
}

// Clear removes everything the token tracks, returning the fully released
// keys. Called when a session ends.
func (t *Tracker) Clear(token string) (released []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k := range t.byToken[token] {
		released = t.unref(k, released)
	}
	delete(t.byToken, token)
	sort.Strings(released)
	return released
}

func (t *Tracker) unref(key string, released []string) []string {
	t.refs[key]--
	if t.refs[key] <= 0 {
		delete(t.refs, key)
		released = append(released, key)
	}
	return released
}

// Keys returns the token's tracked keys, sorted for stable output.
func (t *Tracker) Keys(token string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	set := t.byToken[token]
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Tracks reports whether this token tracks the key.
func (t *Tracker) Tracks(token, key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.byToken[token][key]
	return ok
}

// IsTracked reports whether any caller still wants the key. The feed
// ingestion path uses this to drop late ticks for unsubscribed instruments.
func (t *Tracker) IsTracked(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.refs[key] > 0
}
