// Package fs provides file-based backup storage for scraped items.
package fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fwojciec/harvest"
)

// Ensure ItemStore implements harvest.ItemStore at compile time.
var _ harvest.ItemStore = (*ItemStore)(nil)

// ItemStore keeps one JSON file per item under baseDir/source.
// Files are written to a temporary name and renamed into place, so a
// reader never sees a partial item.
type ItemStore struct {
	dir string
	now func() time.Time
}

// NewItemStore creates an ItemStore for source rooted at baseDir.
func NewItemStore(baseDir, source string) *ItemStore {
	return &ItemStore{
		dir: filepath.Join(baseDir, source),
		now: time.Now,
	}
}

// Dir returns the directory holding the source's items.
func (s *ItemStore) Dir() string {
	return s.dir
}

// record is the on-disk form of an item.
type record struct {
	*harvest.Item
	SavedAt time.Time `json:"savedAt"`
}

// FileName converts an item ID to the file name it is stored under.
// Path separators and other characters unsafe in file names become '_',
// and a leading dot is escaped so the file is never hidden.
func FileName(id string) string {
	safe := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', 0:
			return '_'
		}
		return r
	}, id)
	if safe == "" || strings.HasPrefix(safe, ".") {
		safe = "_" + safe
	}
	return safe + ".json"
}

func (s *ItemStore) path(id string) string {
	return filepath.Join(s.dir, FileName(id))
}

// Save writes item, replacing any earlier copy with the same ID.
func (s *ItemStore) Save(ctx context.Context, item *harvest.Item) error {
	if item.ID == "" {
		return harvest.Errorf(harvest.EINVALID, "item ID required")
	}
	data, err := json.MarshalIndent(record{Item: item, SavedAt: s.now().UTC()}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode item %s: %w", item.ID, err)
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, ".item-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), s.path(item.ID)); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

// Load reads the item with id. Returns ENOTFOUND if it was never saved.
func (s *ItemStore) Load(ctx context.Context, id string) (*harvest.Item, error) {
	data, err := os.ReadFile(s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, harvest.Errorf(harvest.ENOTFOUND, "item %s not found", id)
	}
	if err != nil {
		return nil, err
	}

	rec := record{Item: &harvest.Item{}}
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode item %s: %w", id, err)
	}
	return rec.Item, nil
}

// Exists reports whether an item with id has been saved.
func (s *ItemStore) Exists(ctx context.Context, id string) (bool, error) {
	_, err := os.Stat(s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

// List returns the stored file names without extension, sorted.
// They equal item IDs unless an ID contained unsafe characters.
func (s *ItemStore) List(ctx context.Context) ([]string, error) {
	entries, err := s.entries()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, strings.TrimSuffix(e.Name(), ".json"))
	}
	slices.Sort(ids)
	return ids, nil
}

// StoreStats summarizes a source's backup directory.
type StoreStats struct {
	Items int
	Bytes int64
	// Newest is the modification time of the most recently saved item.
	Newest time.Time
}

// Stats summarizes the stored items.
func (s *ItemStore) Stats(ctx context.Context) (StoreStats, error) {
	entries, err := s.entries()
	if err != nil {
		return StoreStats{}, err
	}
	var st StoreStats
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			return StoreStats{}, err
		}
		st.Items++
		st.Bytes += info.Size()
		if info.ModTime().After(st.Newest) {
			st.Newest = info.ModTime()
		}
	}
	return st, nil
}

// Clear removes every stored item of the source.
func (s *ItemStore) Clear(ctx context.Context) error {
	return os.RemoveAll(s.dir)
}

// entries returns the item files, skipping temporaries. A missing
// directory has no entries.
func (s *ItemStore) entries() ([]os.DirEntry, error) {
	all, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var files []os.DirEntry
	for _, e := range all {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		files = append(files, e)
	}
	return files, nil
}
