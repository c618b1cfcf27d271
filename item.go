package harvest

import (
	"context"
	"strings"
)

// Item represents one scraped record awaiting delivery.
type Item struct {
	ID     string            `json:"id"`
	URL    string            `json:"url"`
	Text   string            `json:"text"`
	Photos []string          `json:"photos"`
	Fields map[string]string `json:"fields,omitempty"`

	// Page is the listing page the item came from.
	Page int `json:"page"`
	// Position is the item's index within its page.
	Position int `json:"position"`
}

// Validate returns an error if the item contains invalid fields.
func (i *Item) Validate() error {
	if strings.TrimSpace(i.ID) == "" {
		return Errorf(EINVALID, "item ID required")
	}
	return nil
}

// Detail holds data fetched from an item's detail page.
type Detail struct {
	Text   string   `json:"text"`
	Photos []string `json:"photos"`
}

// Merge combines listing and detail data into the delivery format.
// Texts are joined with a blank line; detail photos replace listing photos
// when present. The receiver is not modified.
func (i *Item) Merge(d *Detail) *Item {
	out := *i
	if d == nil {
		return &out
	}

	var parts []string
	if i.Text != "" {
		parts = append(parts, i.Text)
	}
	if d.Text != "" {
		parts = append(parts, d.Text)
	}
	out.Text = strings.Join(parts, "\n\n")

	if len(d.Photos) > 0 {
		out.Photos = d.Photos
	}
	return &out
}

// ListingPage is one page of a paged listing.
type ListingPage struct {
	Items []*Item
	// Total is the number of items the source reports as available, if known.
	Total int
}

// Listing produces items page by page. Pages are 1-based.
// An empty page signals the end of the listing.
type Listing interface {
	FetchPage(ctx context.Context, page int) (*ListingPage, error)
}

// DetailFetcher retrieves additional data for a listed item.
type DetailFetcher interface {
	FetchDetail(ctx context.Context, item *Item) (*Detail, error)
}

// ItemStore persists items locally as a backup of what was delivered.
type ItemStore interface {
	Save(ctx context.Context, item *Item) error
	Load(ctx context.Context, id string) (*Item, error)
	Exists(ctx context.Context, id string) (bool, error)
	List(ctx context.Context) ([]string, error)
}
