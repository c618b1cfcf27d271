package goquery

import (
	"fmt"
	"os"
	"regexp"

	"github.com/fwojciec/harvest"
	"gopkg.in/yaml.v3"
)

// Field locates one value inside an item element.
//
// Selector is relative to the item element; an empty Selector means the
// element itself. Attr reads an attribute instead of the text. Pattern,
// when set, must contain one capture group applied to the raw value.
type Field struct {
	Selector string `yaml:"selector"`
	Attr     string `yaml:"attr"`
	Pattern  string `yaml:"pattern"`

	re *regexp.Regexp
}

// DetailProfile selects content on an item's detail page. Empty fields
// fall back to the configured harvest.Extractor.
type DetailProfile struct {
	Text   Field `yaml:"text"`
	Photos Field `yaml:"photos"`
}

// Profile describes how to read a paged listing with CSS selectors.
type Profile struct {
	Name string `yaml:"name"`

	// Item selects one element per listed item.
	Item string `yaml:"item"`

	ID     Field            `yaml:"id"`
	URL    Field            `yaml:"url"`
	Text   []Field          `yaml:"text"`
	Photos Field            `yaml:"photos"`
	Fields map[string]Field `yaml:"fields"`

	// Total selects the total item count reported by the page, if any.
	Total Field `yaml:"total"`

	// PageParam is the query parameter carrying the 1-based page number.
	PageParam string `yaml:"page_param"`

	Detail DetailProfile `yaml:"detail"`
}

// LoadProfile reads a YAML profile from path.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	return ParseProfile(data)
}

// ParseProfile decodes and validates a YAML profile.
func ParseProfile(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, harvest.Errorf(harvest.EINVALID, "invalid profile: %v", err)
	}
	if err := p.compile(); err != nil {
		return nil, err
	}
	return &p, nil
}

// compile validates the profile and prepares its patterns.
func (p *Profile) compile() error {
	if p.Item == "" {
		return harvest.Errorf(harvest.EINVALID, "profile %q: item selector required", p.Name)
	}
	if p.ID.empty() && p.URL.empty() {
		return harvest.Errorf(harvest.EINVALID, "profile %q: id or url field required", p.Name)
	}
	if p.PageParam == "" {
		p.PageParam = "page"
	}

	fields := []*Field{&p.ID, &p.URL, &p.Photos, &p.Total, &p.Detail.Text, &p.Detail.Photos}
	for i := range p.Text {
		fields = append(fields, &p.Text[i])
	}
	for name, f := range p.Fields {
		if err := f.compile(); err != nil {
			return harvest.Errorf(harvest.EINVALID, "profile %q field %q: %v", p.Name, name, err)
		}
		p.Fields[name] = f
	}
	for _, f := range fields {
		if err := f.compile(); err != nil {
			return harvest.Errorf(harvest.EINVALID, "profile %q: %v", p.Name, err)
		}
	}
	return nil
}

func (f *Field) compile() error {
	if f.Pattern == "" {
		return nil
	}
	re, err := regexp.Compile(f.Pattern)
	if err != nil {
		return fmt.Errorf("pattern %q: %w", f.Pattern, err)
	}
	if re.NumSubexp() < 1 {
		return fmt.Errorf("pattern %q: capture group required", f.Pattern)
	}
	f.re = re
	return nil
}

func (f Field) empty() bool {
	return f.Selector == "" && f.Attr == ""
}
