package harvest

// Converter converts clean HTML into the plain text delivered with an item.
type Converter interface {
	Convert(html string) (string, error)
}
