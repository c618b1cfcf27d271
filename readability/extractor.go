// Package readability extracts the description block of a detail page
// with go-readability.
package readability

import (
	"strings"

	"github.com/fwojciec/harvest"
	"github.com/go-shiori/go-readability"
)

// DefaultCharThreshold is the shortest text readability accepts as the
// main content before it relaxes its cleanup rules. Listing descriptions
// are a few sentences, far below the library's article-sized default.
const DefaultCharThreshold = 100

// Ensure Extractor implements harvest.Extractor at compile time.
var _ harvest.Extractor = (*Extractor)(nil)

// Extractor pulls the description and lead image out of a detail page.
// It is safe for concurrent use: every call parses with its own parser.
type Extractor struct {
	charThreshold int
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithCharThreshold sets the minimum content length, in characters.
// Defaults to DefaultCharThreshold if not specified.
func WithCharThreshold(n int) Option {
	return func(e *Extractor) {
		e.charThreshold = n
	}
}

// NewExtractor creates a new Extractor.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{charThreshold: DefaultCharThreshold}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns the page title, description HTML and lead image.
func (e *Extractor) Extract(rawHTML string) (*harvest.ExtractResult, error) {
	if strings.TrimSpace(rawHTML) == "" {
		return nil, harvest.Errorf(harvest.EINVALID, "empty HTML input")
	}

	parser := readability.NewParser()
	if e.charThreshold > 0 {
		parser.CharThresholds = e.charThreshold
	}
	article, err := parser.Parse(strings.NewReader(rawHTML), nil)
	if err != nil {
		return nil, harvest.Errorf(harvest.EINVALID, "parse detail page: %v", err)
	}

	return &harvest.ExtractResult{
		Title:       strings.TrimSpace(article.Title),
		ContentHTML: article.Content,
		Image:       article.Image,
	}, nil
}
