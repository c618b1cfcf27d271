package bloom_test

import (
	"fmt"
	"testing"

	"github.com/fwojciec/harvest/bloom"
	"github.com/stretchr/testify/assert"
)

func TestFilter_AddAndHas(t *testing.T) {
	t.Parallel()

	f := bloom.NewFilter(1000, 0.01)

	// ID not yet added should be absent
	assert.False(t, f.Has("item-1"))

	assert.True(t, f.Add("item-1"), "first add reports a new ID")

	assert.True(t, f.Has("item-1"))
	assert.False(t, f.Has("item-2"))
}

func TestFilter_AddReportsDuplicates(t *testing.T) {
	t.Parallel()

	f := bloom.NewFilter(1000, 0.01)

	assert.True(t, f.Add("item-1"))
	assert.False(t, f.Add("item-1"))
	assert.False(t, f.Add("item-1"))

	assert.Equal(t, 1, f.Len())
}

func TestFilter_EstimatedCount(t *testing.T) {
	t.Parallel()

	f := bloom.NewFilter(1000, 0.01)

	assert.Equal(t, uint(0), f.EstimatedCount())

	f.Add("a")
	f.Add("b")
	f.Add("c")

	count := f.EstimatedCount()
	assert.True(t, count >= 2 && count <= 4, "expected count near 3, got %d", count)
}

func TestFilter_NoFalseNewOrFalseDuplicate(t *testing.T) {
	t.Parallel()

	const numItems = 5000

	// A tiny filter saturates quickly, forcing the exact set to settle
	// Bloom false positives.
	f := bloom.NewFilter(10, 0.5)

	for i := range numItems {
		assert.True(t, f.Add(fmt.Sprintf("added-%d", i)))
	}
	for i := range numItems {
		assert.False(t, f.Has(fmt.Sprintf("absent-%d", i)))
	}
	assert.Equal(t, numItems, f.Len())
}
