package sqlite

import (
	"fmt"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fwojciec/harvest"
)

// parseRFC3339 parses an RFC3339 timestamp, naming the field on failure.
// An empty value parses to the zero time.
func parseRFC3339(value, fieldName string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse %s: %w", fieldName, err)
	}
	return t, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// appendLimit appends a LIMIT clause to a query builder if limit > 0.
func appendLimit(query *strings.Builder, args *[]any, limit int) {
	if limit > 0 {
		query.WriteString(" LIMIT ?")
		*args = append(*args, limit)
	}
}

// contentHash fingerprints the delivered content of an item so a later
// run can tell whether a listing changed.
func contentHash(item *harvest.Item) string {
	d := xxhash.New()
	_, _ = d.WriteString(item.Text)
	for _, p := range item.Photos {
		_, _ = d.WriteString("\x00")
		_, _ = d.WriteString(p)
	}
	return fmt.Sprintf("%016x", d.Sum64())
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
