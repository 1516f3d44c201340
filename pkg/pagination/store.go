package pagination

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// PageStore persists raw page bodies as numbered artifacts in one directory.
type PageStore struct {
	dir    string
	prefix string
}

// PageFile is one saved page artifact.
type PageFile struct {
	Number int
	Path   string
}

// NewPageStore returns a store writing <dir>/<prefix><n>.json.
func NewPageStore(dir, prefix string) *PageStore {
	return &PageStore{dir: dir, prefix: prefix}
}

// Dir returns the artifact directory.
func (s *PageStore) Dir() string {
	return s.dir
}

// PathFor returns the artifact path of page n.
func (s *PageStore) PathFor(n int) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s%d.json", s.prefix, n))
}

// Save writes page n. The body is written to a temporary file and renamed so
// a crash never leaves a truncated artifact behind.
func (s *PageStore) Save(n int, body []byte) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create page dir: %w", err)
	}

	path := s.PathFor(n)
	tmp, err := os.CreateTemp(s.dir, ".page-*")
	if err != nil {
		return "", fmt.Errorf("create temp page: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write page %d: %w", n, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("sync page %d: %w", n, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close page %d: %w", n, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("rename page %d: %w", n, err)
	}

	return path, nil
}

// List returns the saved artifacts sorted by page number. Files that do not
// match <prefix><n>.json are ignored. A missing directory lists as empty.
func (s *PageStore) List() ([]PageFile, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read page dir: %w", err)
	}

	var pages []PageFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		n, ok := s.pageNumber(entry.Name())
		if !ok {
			continue
		}
		pages = append(pages, PageFile{Number: n, Path: filepath.Join(s.dir, entry.Name())})
	}

	sort.Slice(pages, func(i, j int) bool {
		return pages[i].Number < pages[j].Number
	})
	return pages, nil
}

// Clear removes every saved artifact so a fresh run does not merge pages
// left over from a longer previous listing.
func (s *PageStore) Clear() error {
	pages, err := s.List()
	if err != nil {
		return err
	}
	for _, p := range pages {
		if err := os.Remove(p.Path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", p.Path, err)
		}
	}
	return nil
}

func (s *PageStore) pageNumber(name string) (int, bool) {
	if !strings.HasPrefix(name, s.prefix) || !strings.HasSuffix(name, ".json") {
		return 0, false
	}
	digits := strings.TrimSuffix(strings.TrimPrefix(name, s.prefix), ".json")
	n, err := strconv.Atoi(digits)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
