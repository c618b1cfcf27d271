// Package htmltomarkdown turns extracted detail HTML into the text
// delivered with an item.
package htmltomarkdown

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/fwojciec/harvest"
)

// Ensure Converter implements harvest.Converter at compile time.
var _ harvest.Converter = (*Converter)(nil)

// removed lists tags dropped from the text. Photos travel separately.
var removed = []string{"img", "picture", "svg", "video", "iframe", "form", "button"}

var blankRuns = regexp.MustCompile(`\n{3,}`)

// Converter renders detail HTML as Markdown text for the ingest API.
type Converter struct {
	conv   *converter.Converter
	maxLen int
}

// Option configures a Converter.
type Option func(*Converter)

// WithMaxLength cuts the text to at most n runes, at the last line or word
// break before the limit. Zero keeps the full text.
func WithMaxLength(n int) Option {
	return func(c *Converter) {
		c.maxLen = n
	}
}

// NewConverter creates a new Converter.
func NewConverter(opts ...Option) *Converter {
	c := &Converter{}
	for _, opt := range opts {
		opt(c)
	}

	c.conv = converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)
	for _, tag := range removed {
		c.conv.Register.TagType(tag, converter.TagTypeRemove, converter.PriorityStandard)
	}
	return c
}

// Convert returns html as Markdown with trailing spaces stripped and at
// most one blank line between blocks.
func (c *Converter) Convert(html string) (string, error) {
	if strings.TrimSpace(html) == "" {
		return "", harvest.Errorf(harvest.EINVALID, "empty HTML input")
	}

	md, err := c.conv.ConvertString(html)
	if err != nil {
		return "", err
	}

	lines := strings.Split(md, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	text := blankRuns.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return truncate(strings.TrimSpace(text), c.maxLen), nil
}

func truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	off := runeOffset(s, n)
	cut := s[:off]
	if next := s[off]; next != ' ' && next != '\n' {
		if i := strings.LastIndexAny(cut, "\n "); i > 0 {
			cut = cut[:i]
		}
	}
	return strings.TrimSpace(cut)
}

// runeOffset returns the byte offset of the n-th rune of s.
func runeOffset(s string, n int) int {
	for i := range s {
		if n == 0 {
			return i
		}
		n--
	}
	return len(s)
}
