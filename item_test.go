package harvest_test

import (
	"testing"

	"github.com/fwojciec/harvest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItem_Validate(t *testing.T) {
	t.Parallel()

	t.Run("requires ID", func(t *testing.T) {
		t.Parallel()

		err := (&harvest.Item{URL: "https://example.com/1"}).Validate()

		require.Error(t, err)
		assert.Equal(t, harvest.EINVALID, harvest.ErrorCode(err))
	})

	t.Run("accepts item with ID", func(t *testing.T) {
		t.Parallel()

		require.NoError(t, (&harvest.Item{ID: "1"}).Validate())
	})
}

func TestItem_Merge(t *testing.T) {
	t.Parallel()

	t.Run("joins listing and detail text with blank line", func(t *testing.T) {
		t.Parallel()

		item := &harvest.Item{ID: "1", Text: "Listing"}

		merged := item.Merge(&harvest.Detail{Text: "Detail"})

		assert.Equal(t, "Listing\n\nDetail", merged.Text)
		assert.Equal(t, "Listing", item.Text)
	})

	t.Run("prefers detail photos", func(t *testing.T) {
		t.Parallel()

		item := &harvest.Item{ID: "1", Photos: []string{"a.jpg"}}

		merged := item.Merge(&harvest.Detail{Photos: []string{"b.jpg", "c.jpg"}})

		assert.Equal(t, []string{"b.jpg", "c.jpg"}, merged.Photos)
	})

	t.Run("keeps listing photos when detail has none", func(t *testing.T) {
		t.Parallel()

		item := &harvest.Item{ID: "1", Text: "Listing", Photos: []string{"a.jpg"}}

		merged := item.Merge(&harvest.Detail{})

		assert.Equal(t, []string{"a.jpg"}, merged.Photos)
		assert.Equal(t, "Listing", merged.Text)
	})

	t.Run("copies item when detail is nil", func(t *testing.T) {
		t.Parallel()

		item := &harvest.Item{ID: "1", Text: "Listing"}

		merged := item.Merge(nil)

		assert.Equal(t, item, merged)
		assert.NotSame(t, item, merged)
	})
}

func TestParseSignal(t *testing.T) {
	t.Parallel()

	for input, want := range map[string]harvest.Signal{
		"none":   harvest.SignalNone,
		"resume": harvest.SignalNone,
		"pause":  harvest.SignalPause,
		" STOP ": harvest.SignalStop,
	} {
		got, err := harvest.ParseSignal(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	_, err := harvest.ParseSignal("explode")
	assert.Equal(t, harvest.EINVALID, harvest.ErrorCode(err))
}
