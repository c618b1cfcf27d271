// Package trafilatura extracts the description block of a detail page
// with go-trafilatura.
package trafilatura

import (
	"bytes"
	"html"
	"strings"

	"github.com/fwojciec/harvest"
	"github.com/markusmobius/go-trafilatura"
	nethtml "golang.org/x/net/html"
)

// Ensure Extractor implements harvest.Extractor at compile time.
var _ harvest.Extractor = (*Extractor)(nil)

// Extractor pulls the description and lead image out of a detail page.
// Seller comment threads are dropped; specification tables are kept
// unless WithoutTables is set.
type Extractor struct {
	opts trafilatura.Options
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithoutTables drops tables from the extracted content.
func WithoutTables() Option {
	return func(e *Extractor) {
		e.opts.ExcludeTables = true
	}
}

// NewExtractor creates a new Extractor.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{opts: trafilatura.Options{
		EnableFallback:  true,
		ExcludeComments: true,
	}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns the page title, description HTML and lead image. A page
// with no recognizable content body falls back to its meta description.
func (e *Extractor) Extract(rawHTML string) (*harvest.ExtractResult, error) {
	if strings.TrimSpace(rawHTML) == "" {
		return nil, harvest.Errorf(harvest.EINVALID, "empty HTML input")
	}

	result, err := trafilatura.Extract(strings.NewReader(rawHTML), e.opts)
	if err != nil {
		return nil, harvest.Errorf(harvest.EINVALID, "extract detail page: %v", err)
	}

	var content string
	if result.ContentNode != nil {
		var buf bytes.Buffer
		if err := nethtml.Render(&buf, result.ContentNode); err != nil {
			return nil, err
		}
		content = buf.String()
	}
	if strings.TrimSpace(result.ContentText) == "" && result.Metadata.Description != "" {
		content = "<p>" + html.EscapeString(result.Metadata.Description) + "</p>"
	}

	return &harvest.ExtractResult{
		Title:       result.Metadata.Title,
		ContentHTML: content,
		Image:       result.Metadata.Image,
	}, nil
}
