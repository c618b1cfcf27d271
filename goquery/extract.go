package goquery

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// value reads the first match of f within sel.
func (f Field) value(sel *goquery.Selection) string {
	if f.empty() {
		return ""
	}
	target := sel
	if f.Selector != "" {
		target = sel.Find(f.Selector).First()
	}
	if target.Length() == 0 {
		return ""
	}
	return f.apply(read(target, f.Attr))
}

// values reads every match of f within sel, skipping empty values.
func (f Field) values(sel *goquery.Selection) []string {
	if f.empty() {
		return nil
	}
	target := sel
	if f.Selector != "" {
		target = sel.Find(f.Selector)
	}
	var out []string
	target.Each(func(_ int, s *goquery.Selection) {
		if v := f.apply(read(s, f.Attr)); v != "" {
			out = append(out, v)
		}
	})
	return out
}

func (f Field) apply(raw string) string {
	raw = strings.TrimSpace(raw)
	if f.re == nil || raw == "" {
		return raw
	}
	m := f.re.FindStringSubmatch(raw)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func read(sel *goquery.Selection, attr string) string {
	if attr == "" {
		return collapseSpace(sel.Text())
	}
	v, _ := sel.Attr(attr)
	return v
}

// collapseSpace joins whitespace runs into single spaces.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// resolveURL resolves a relative URL against a base URL.
// Returns empty string for unparseable or non-HTTP references.
// Fragments are stripped.
func resolveURL(base *url.URL, href string) string {
	if href == "" || isNonHTTPLink(href) {
		return ""
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(ref)
	resolved.Fragment = ""
	return resolved.String()
}

// resolveAll resolves hrefs against base, dropping invalid and duplicate URLs.
func resolveAll(base *url.URL, hrefs []string) []string {
	seen := make(map[string]bool, len(hrefs))
	var out []string
	for _, href := range hrefs {
		u := resolveURL(base, href)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

// isNonHTTPLink checks if a href is a non-HTTP link that should be skipped.
func isNonHTTPLink(href string) bool {
	href = strings.ToLower(strings.TrimSpace(href))
	return strings.HasPrefix(href, "javascript:") ||
		strings.HasPrefix(href, "mailto:") ||
		strings.HasPrefix(href, "tel:") ||
		strings.HasPrefix(href, "data:")
}
