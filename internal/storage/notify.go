package storage

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// notifier fans change events out to in-process subscribers
type notifier struct {
	mu   sync.RWMutex
	next int
	subs map[Collection]map[int]func(ChangeEvent)
}

func newNotifier() *notifier {
	return &notifier{subs: make(map[Collection]map[int]func(ChangeEvent))}
}

func (n *notifier) subscribe(c Collection, fn func(ChangeEvent)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.subs[c] == nil {
		n.subs[c] = make(map[int]func(ChangeEvent))
	}
	id := n.next
	n.next++
	n.subs[c][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs[c], id)
			n.mu.Unlock()
		})
	}
}

func (n *notifier) publish(ev ChangeEvent) {
	n.mu.RLock()
	ids := make([]int, 0, len(n.subs[ev.Collection]))
	for id := range n.subs[ev.Collection] {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(ChangeEvent), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, n.subs[ev.Collection][id])
	}
	n.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// mergeFields applies a partial update to a JSON object
func mergeFields(data []byte, fields map[string]any) ([]byte, error) {
	doc := make(map[string]json.RawMessage)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to decode document: %w", err)
		}
	}
	for field, value := range fields {
		if value == nil {
			delete(doc, field)
			continue
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("failed to encode field %s: %w", field, err)
		}
		doc[field] = raw
	}
	return json.Marshal(doc)
}

// fieldEquals reports whether the document's top-level field is the string value
func fieldEquals(data []byte, field, value string) bool {
	doc := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &doc); err != nil {
		return false
	}
	raw, ok := doc[field]
	if !ok {
		return false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return false
	}
	return s == value
}
