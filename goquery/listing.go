package goquery

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/cespare/xxhash/v2"
	"github.com/fwojciec/harvest"
)

// Compile-time interface verification.
var _ harvest.Listing = (*Listing)(nil)

// Listing reads a paged HTML listing with a selector Profile.
type Listing struct {
	fetcher harvest.Fetcher
	baseURL *url.URL
	profile *Profile
}

// NewListing creates a Listing for the listing at rawURL.
func NewListing(fetcher harvest.Fetcher, rawURL string, profile *Profile) (*Listing, error) {
	base, err := url.Parse(rawURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, harvest.Errorf(harvest.EINVALID, "invalid listing URL %q", rawURL)
	}
	if profile == nil {
		return nil, harvest.Errorf(harvest.EINVALID, "listing profile required")
	}
	return &Listing{fetcher: fetcher, baseURL: base, profile: profile}, nil
}

// Host returns the listing host, used as the rate limiter key.
func (l *Listing) Host() string {
	return l.baseURL.Host
}

// PageURL returns the URL of the given 1-based page.
func (l *Listing) PageURL(page int) string {
	u := *l.baseURL
	q := u.Query()
	if page > 1 || q.Has(l.profile.PageParam) {
		q.Set(l.profile.PageParam, strconv.Itoa(page))
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// FetchPage fetches and parses one listing page.
func (l *Listing) FetchPage(ctx context.Context, page int) (*harvest.ListingPage, error) {
	pageURL := l.PageURL(page)
	html, err := l.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	return ParsePage(html, pageURL, l.profile)
}

// ParsePage extracts the items of one listing page using profile.
// Item URLs and photos are resolved against pageURL.
func ParsePage(html, pageURL string, profile *Profile) (*harvest.ListingPage, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, harvest.Errorf(harvest.EINVALID, "invalid page URL: %v", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, harvest.Errorf(harvest.EINVALID, "failed to parse HTML: %v", err)
	}

	lp := &harvest.ListingPage{}
	doc.Find(profile.Item).Each(func(_ int, sel *goquery.Selection) {
		if item := parseItem(sel, base, profile); item != nil {
			lp.Items = append(lp.Items, item)
		}
	})

	if !profile.Total.empty() {
		lp.Total = parseCount(profile.Total.value(doc.Selection))
	}
	return lp, nil
}

func parseItem(sel *goquery.Selection, base *url.URL, p *Profile) *harvest.Item {
	item := &harvest.Item{
		URL:    resolveURL(base, p.URL.value(sel)),
		Photos: resolveAll(base, p.Photos.values(sel)),
	}

	var parts []string
	for _, f := range p.Text {
		if v := f.value(sel); v != "" {
			parts = append(parts, v)
		}
	}
	item.Text = strings.Join(parts, "\n")

	if len(p.Fields) > 0 {
		item.Fields = make(map[string]string, len(p.Fields))
		for name, f := range p.Fields {
			if v := f.value(sel); v != "" {
				item.Fields[name] = v
			}
		}
	}

	item.ID = p.ID.value(sel)
	if item.ID == "" && item.URL != "" {
		item.ID = urlID(item.URL)
	}
	if item.ID == "" {
		return nil
	}
	return item
}

// urlID derives a stable item ID from its URL.
func urlID(u string) string {
	return fmt.Sprintf("%x", xxhash.Sum64String(u))
}

// parseCount reads the first integer in s, ignoring thousands separators.
func parseCount(s string) int {
	var digits strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case r == ',' || r == '.' || r == ' ':
			if digits.Len() == 0 {
				continue
			}
		default:
			if digits.Len() > 0 {
				n, _ := strconv.Atoi(digits.String())
				return n
			}
		}
	}
	n, _ := strconv.Atoi(digits.String())
	return n
}
