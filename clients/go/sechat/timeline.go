package sechat

import (
	"sort"
	"strings"
)

// Timeline is a viewer's reconciled message list. It is not safe for
// concurrent use; a Session confines it to one goroutine.
//
// Invariants after every Apply:
//   - at most one entry per id;
//   - at most one entry per idempotency key, and a committed entry always
//     beats an optimistic one for the same key;
//   - messages without a key are deduplicated by id only.
type Timeline struct {
	byID  map[string]Message
	byKey map[string]string // key -> id of the entry holding it
}

// NewTimeline returns an empty timeline.
func NewTimeline() *Timeline {
	return &Timeline{
		byID:  make(map[string]Message),
		byKey: make(map[string]string),
	}
}

// Apply merges incoming messages in order. Malformed rows (no id or no
// timestamp) are dropped.
func (t *Timeline) Apply(incoming ...Message) {
	for _, m := range incoming {
		if !m.valid() {
			continue
		}
		t.apply(m)
	}
}

func (t *Timeline) apply(m Message) {
	// Same id: the later-processed row replaces the earlier one.
	if old, ok := t.byID[m.ID]; ok {
		t.remove(old)
	}

	key := m.Key()
	if key == "" {
		t.byID[m.ID] = m
		return
	}

	holderID, ok := t.byKey[key]
	if !ok {
		t.insert(m, key)
		return
	}

	holder := t.byID[holderID]
	switch mo, ho := IsOptimistic(m), IsOptimistic(holder); {
	case ho && !mo:
		// Committed row replaces the placeholder.
		t.remove(holder)
		t.insert(m, key)
	case !ho && mo:
		// Placeholder arriving after its commit is discarded.
	default:
		// Two rows of one kind share a key: keep the canonically earlier one.
		if before(m, holder) {
			t.remove(holder)
			t.insert(m, key)
		}
	}
}

func (t *Timeline) insert(m Message, key string) {
	t.byID[m.ID] = m
	t.byKey[key] = m.ID
}

func (t *Timeline) remove(m Message) {
	delete(t.byID, m.ID)
	if key := m.Key(); key != "" && t.byKey[key] == m.ID {
		delete(t.byKey, key)
	}
}

// Messages returns the entries in canonical order.
func (t *Timeline) Messages() []Message {
	out := make([]Message, 0, len(t.byID))
	for _, m := range t.byID {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return before(out[i], out[j]) })
	return out
}

// Lookup returns the entry currently holding an idempotency key.
func (t *Timeline) Lookup(key string) (Message, bool) {
	id, ok := t.byKey[strings.ToLower(key)]
	if !ok {
		return Message{}, false
	}
	return t.byID[id], true
}

// Len returns the number of entries.
func (t *Timeline) Len() int {
	return len(t.byID)
}

// Merge reconciles two message lists into one canonical list. It is
// idempotent and, for immutable committed rows, order independent:
// Merge(a, b) and Merge(b, a) hold the same messages.
func Merge(existing, incoming []Message) []Message {
	t := NewTimeline()
	t.Apply(existing...)
	t.Apply(incoming...)
	return t.Messages()
}
