// Package bloom tracks item IDs seen during a run.
//
// A Bloom filter answers the common "never seen" case without touching the
// exact set; the exact set settles the filter's false positives so that no
// new item is ever dropped.
package bloom

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// Filter records item IDs. It is safe for concurrent use.
type Filter struct {
	mu    sync.Mutex
	f     *bloom.BloomFilter
	exact map[string]struct{}
}

// NewFilter creates a Filter sized for n expected IDs with the given
// Bloom false positive rate.
func NewFilter(n uint, fpRate float64) *Filter {
	return &Filter{
		f:     bloom.NewWithEstimates(n, fpRate),
		exact: make(map[string]struct{}),
	}
}

// Add records id and reports whether it had not been seen before.
func (f *Filter) Add(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.f.TestAndAddString(id) {
		f.exact[id] = struct{}{}
		return true
	}
	if _, ok := f.exact[id]; ok {
		return false
	}
	f.exact[id] = struct{}{}
	return true
}

// Has reports whether id has been added.
func (f *Filter) Has(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.f.TestString(id) {
		return false
	}
	_, ok := f.exact[id]
	return ok
}

// Len returns the number of distinct IDs added.
func (f *Filter) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.exact)
}

// EstimatedCount returns the Bloom filter's estimate of distinct IDs.
func (f *Filter) EstimatedCount() uint {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint(f.f.ApproximatedSize())
}
