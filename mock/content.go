package mock

import "github.com/fwojciec/harvest"

// Detail page content pipeline: an Extractor isolates the description,
// a Converter turns it into delivered text.

var (
	_ harvest.Extractor = (*Extractor)(nil)
	_ harvest.Converter = (*Converter)(nil)
)

// Extractor is a mock implementation of harvest.Extractor.
type Extractor struct {
	ExtractFn func(html string) (*harvest.ExtractResult, error)
}

func (e *Extractor) Extract(html string) (*harvest.ExtractResult, error) {
	return e.ExtractFn(html)
}

// Converter is a mock implementation of harvest.Converter.
type Converter struct {
	ConvertFn func(html string) (string, error)
}

func (c *Converter) Convert(html string) (string, error) {
	return c.ConvertFn(html)
}
