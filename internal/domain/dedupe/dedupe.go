// Package dedupe remembers recently accepted intake events so a replayed
// event resolves to the submission it already created.
package dedupe

import (
	"container/list"
	"context"
	"sync"
)

// Deduper maps intake event keys to the submission they produced.
type Deduper interface {
	// Claim records key -> submissionID unless key is already known. It returns
	// the recorded submission id and whether key had been seen before.
	Claim(ctx context.Context, key, submissionID string) (string, bool)

	// Release forgets key, used when intake fails after the claim so the
	// event may be sent again.
	Release(ctx context.Context, key string)

	Size() int64
}

type entry struct {
	key          string
	submissionID string
}

// memoryDeduper is a bounded map with oldest-first eviction.
// maxSize <= 0 keeps every key.
type memoryDeduper struct {
	mu      sync.Mutex
	index   map[string]*list.Element
	order   *list.List // front is newest
	maxSize int
}

// NewMemoryDeduper creates an in-process Deduper.
func NewMemoryDeduper(opts ...Option) Deduper {
	d := &memoryDeduper{
		maxSize: 10000,
		index:   make(map[string]*list.Element),
		order:   list.New(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *memoryDeduper) Claim(ctx context.Context, key, submissionID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.index[key]; ok {
		return el.Value.(*entry).submissionID, true
	}
	if d.maxSize > 0 && d.order.Len() >= d.maxSize {
		oldest := d.order.Back()
		d.order.Remove(oldest)
		delete(d.index, oldest.Value.(*entry).key)
	}
	d.index[key] = d.order.PushFront(&entry{key: key, submissionID: submissionID})
	return submissionID, false
}

func (d *memoryDeduper) Release(ctx context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.index[key]; ok {
		d.order.Remove(el)
		delete(d.index, key)
	}
}

func (d *memoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(d.order.Len())
}
