package goquery

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/fwojciec/harvest"
)

// Compile-time interface verification.
var _ harvest.DetailFetcher = (*DetailFetcher)(nil)

// DetailFetcher reads an item's detail page. Text and photos come from the
// profile's detail selectors when set; otherwise the page's main content is
// extracted and converted to text, and its lead image becomes the photo.
type DetailFetcher struct {
	Fetcher   harvest.Fetcher
	Profile   *Profile
	Extractor harvest.Extractor
	Converter harvest.Converter
}

// FetchDetail fetches item.URL and returns its detail data.
func (f *DetailFetcher) FetchDetail(ctx context.Context, item *harvest.Item) (*harvest.Detail, error) {
	if item.URL == "" {
		return nil, harvest.Errorf(harvest.EINVALID, "item %s has no detail URL", item.ID)
	}
	html, err := f.Fetcher.Fetch(ctx, item.URL)
	if err != nil {
		return nil, err
	}
	return f.parse(html, item.URL)
}

func (f *DetailFetcher) parse(html, pageURL string) (*harvest.Detail, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, harvest.Errorf(harvest.EINVALID, "invalid detail URL: %v", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, harvest.Errorf(harvest.EINVALID, "failed to parse HTML: %v", err)
	}

	var dp DetailProfile
	if f.Profile != nil {
		dp = f.Profile.Detail
	}

	detail := &harvest.Detail{
		Text:   strings.Join(dp.Text.values(doc.Selection), "\n"),
		Photos: resolveAll(base, dp.Photos.values(doc.Selection)),
	}
	if detail.Text != "" && len(detail.Photos) > 0 {
		return detail, nil
	}
	if f.Extractor == nil {
		return detail, nil
	}

	extracted, err := f.Extractor.Extract(html)
	if err != nil {
		return nil, err
	}
	if detail.Text == "" && extracted.ContentHTML != "" {
		text := extracted.ContentHTML
		if f.Converter != nil {
			if text, err = f.Converter.Convert(extracted.ContentHTML); err != nil {
				return nil, err
			}
		}
		detail.Text = strings.TrimSpace(text)
	}
	if len(detail.Photos) == 0 && extracted.Image != "" {
		detail.Photos = resolveAll(base, []string{extracted.Image})
	}
	return detail, nil
}
