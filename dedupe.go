package livia

import (
	"container/list"
	"sync"
)

// dedupeSet is a bounded LRU set of event keys. When the cap is exceeded the
// least-recently-seen key is evicted, so a just-seen event can never be
// re-admitted by an unrelated insertion.
type dedupeSet struct {
	mu    sync.Mutex
	cap   int
	order *list.List // front = most recent
	items map[string]*list.Element
}

func newDedupeSet(capacity int) *dedupeSet {
	if capacity <= 0 {
		capacity = 4096
	}
	return &dedupeSet{
		cap:   capacity,
		order: list.New(),
		items: make(map[string]*list.Element, capacity),
	}
}

// Seen records key and reports whether it was already present. Present keys
// are refreshed to most-recent.
func (d *dedupeSet) Seen(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.items[key]; ok {
		d.order.MoveToFront(el)
		return true
	}

	d.items[key] = d.order.PushFront(key)
	if d.order.Len() > d.cap {
		oldest := d.order.Back()
		d.order.Remove(oldest)
		delete(d.items, oldest.Value.(string))
	}
	return false
}

// Len returns the number of tracked keys.
func (d *dedupeSet) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.order.Len()
}

// dedupeKey builds the event identity used for at-most-once processing.
func dedupeKey(channel, ts, user string) string {
	return channel + "|" + ts + "|" + user
}
