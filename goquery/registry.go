package goquery

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/fwojciec/harvest"
)

// Registry holds named listing profiles and picks one for a page when no
// profile is named. Detection counts item matches per profile and chooses
// the profile matching the most items, falling back to the fallback
// profile when none match.
type Registry struct {
	fallback *Profile
	profiles map[string]*Profile
}

// NewRegistry creates a Registry with the given fallback profile.
// The fallback is also registered under its own name.
func NewRegistry(fallback *Profile) *Registry {
	r := &Registry{
		fallback: fallback,
		profiles: make(map[string]*Profile),
	}
	if fallback != nil {
		r.Register(fallback)
	}
	return r
}

// Register adds a profile under its name, replacing any previous one.
func (r *Registry) Register(p *Profile) {
	r.profiles[p.Name] = p
}

// Get returns the profile with the given name.
func (r *Registry) Get(name string) (*Profile, error) {
	p, ok := r.profiles[name]
	if !ok {
		return nil, harvest.Errorf(harvest.ENOTFOUND, "profile %q not found", name)
	}
	return p, nil
}

// Resolve returns the named profile, or loads it from disk when name is
// a path to a YAML file.
func (r *Registry) Resolve(name string) (*Profile, error) {
	if p, ok := r.profiles[name]; ok {
		return p, nil
	}
	ext := filepath.Ext(name)
	if ext != ".yaml" && ext != ".yml" {
		return nil, harvest.Errorf(harvest.ENOTFOUND, "profile %q not found", name)
	}
	p, err := LoadProfile(name)
	if err != nil {
		return nil, err
	}
	if p.Name == "" {
		p.Name = strings.TrimSuffix(filepath.Base(name), ext)
	}
	return p, nil
}

// LoadDir registers every *.yaml and *.yml profile in dir.
func (r *Registry) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		p, err := LoadProfile(filepath.Join(dir, e.Name()))
		if err != nil {
			return err
		}
		if p.Name == "" {
			p.Name = strings.TrimSuffix(e.Name(), ext)
		}
		r.Register(p)
	}
	return nil
}

// Detect returns the registered profile whose item selector matches the
// most elements in html. Ties go to the name sorted first.
func (r *Registry) Detect(html string) *Profile {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return r.fallback
	}

	var best *Profile
	bestCount := 0
	for _, name := range r.List() {
		p := r.profiles[name]
		if n := doc.Find(p.Item).Length(); n > bestCount {
			best, bestCount = p, n
		}
	}
	if best == nil {
		return r.fallback
	}
	return best
}

// List returns the registered profile names in sorted order.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
