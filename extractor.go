package harvest

// ExtractResult holds the extracted content from a detail page.
type ExtractResult struct {
	// Title is the page title extracted from metadata.
	Title string

	// ContentHTML is the main content as clean HTML.
	// Boilerplate (nav, footer, sidebar, ads) has been removed.
	ContentHTML string

	// Image is the lead image URL advertised by the page, if any.
	Image string
}

// Extractor extracts main content from HTML pages, removing boilerplate.
type Extractor interface {
	Extract(html string) (*ExtractResult, error)
}
