package mock

import (
	"context"

	"github.com/fwojciec/harvest"
)

var _ harvest.Listing = (*Listing)(nil)

// Listing is a mock implementation of harvest.Listing.
type Listing struct {
	FetchPageFn func(ctx context.Context, page int) (*harvest.ListingPage, error)
}

func (l *Listing) FetchPage(ctx context.Context, page int) (*harvest.ListingPage, error) {
	return l.FetchPageFn(ctx, page)
}

var _ harvest.DetailFetcher = (*DetailFetcher)(nil)

// DetailFetcher is a mock implementation of harvest.DetailFetcher.
type DetailFetcher struct {
	FetchDetailFn func(ctx context.Context, item *harvest.Item) (*harvest.Detail, error)
}

func (f *DetailFetcher) FetchDetail(ctx context.Context, item *harvest.Item) (*harvest.Detail, error) {
	return f.FetchDetailFn(ctx, item)
}

var _ harvest.ItemStore = (*ItemStore)(nil)

// ItemStore is a mock implementation of harvest.ItemStore.
type ItemStore struct {
	SaveFn   func(ctx context.Context, item *harvest.Item) error
	LoadFn   func(ctx context.Context, id string) (*harvest.Item, error)
	ExistsFn func(ctx context.Context, id string) (bool, error)
	ListFn   func(ctx context.Context) ([]string, error)
}

func (s *ItemStore) Save(ctx context.Context, item *harvest.Item) error {
	return s.SaveFn(ctx, item)
}

func (s *ItemStore) Load(ctx context.Context, id string) (*harvest.Item, error) {
	return s.LoadFn(ctx, id)
}

func (s *ItemStore) Exists(ctx context.Context, id string) (bool, error) {
	return s.ExistsFn(ctx, id)
}

func (s *ItemStore) List(ctx context.Context) ([]string, error) {
	return s.ListFn(ctx)
}
