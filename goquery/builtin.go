package goquery

// Built-in profiles for common listing markup. Sites without matching markup
// need a YAML profile.

// ProductProfile reads schema.org Product microdata.
func ProductProfile() *Profile {
	p := &Profile{
		Name: "schema-product",
		Item: `[itemtype$="schema.org/Product"]`,
		ID:   Field{Selector: `[itemprop="sku"], [itemprop="productID"]`, Attr: "content"},
		URL:  Field{Selector: `a[itemprop="url"], a[href]`, Attr: "href"},
		Text: []Field{
			{Selector: `[itemprop="name"]`},
			{Selector: `[itemprop="description"]`},
		},
		Photos: Field{Selector: `img[itemprop="image"]`, Attr: "src"},
		Fields: map[string]Field{
			"price":    {Selector: `[itemprop="price"]`, Attr: "content"},
			"currency": {Selector: `[itemprop="priceCurrency"]`, Attr: "content"},
		},
	}
	mustCompile(p)
	return p
}

// ArticleProfile treats every <article> with a link as an item and is the
// default fallback.
func ArticleProfile() *Profile {
	p := &Profile{
		Name:   "article",
		Item:   "article:has(a[href])",
		URL:    Field{Selector: "a[href]", Attr: "href"},
		Text:   []Field{{Selector: "h1, h2, h3"}, {Selector: "p"}},
		Photos: Field{Selector: "img[src]", Attr: "src"},
	}
	mustCompile(p)
	return p
}

// DefaultRegistry returns a Registry holding the built-in profiles with
// ArticleProfile as fallback.
func DefaultRegistry() *Registry {
	r := NewRegistry(ArticleProfile())
	r.Register(ProductProfile())
	return r
}

func mustCompile(p *Profile) {
	if err := p.compile(); err != nil {
		panic(err)
	}
}
