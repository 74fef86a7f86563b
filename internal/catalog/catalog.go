// Package catalog manages the job-description files that make up the entity
// catalog. Each jobs/<name>.txt file is one entry; its title is derived from
// the filename. Readers take an immutable Snapshot; every write or reload
// builds a new snapshot and swaps it in.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/hurttlocker/intake/internal/logger"
	"github.com/hurttlocker/intake/internal/normalization"
)

var (
	ErrEntryExists   = errors.New("a job with this title already exists")
	ErrEntryNotFound = errors.New("job file not found")
	ErrInvalidEntry  = errors.New("invalid job entry")
)

// PreviewLength is the number of characters kept in list previews.
const PreviewLength = 200

// Entry is one job in the catalog.
type Entry struct {
	Filename    string `json:"filename"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Snapshot is an immutable view of the catalog.
type Snapshot struct {
	entries  []Entry
	folded   []string
	byFile   map[string]int
	LoadedAt time.Time
}

func newSnapshot(entries []Entry) *Snapshot {
	s := &Snapshot{
		entries:  entries,
		folded:   make([]string, len(entries)),
		byFile:   make(map[string]int, len(entries)),
		LoadedAt: time.Now().UTC(),
	}
	for i, e := range entries {
		s.folded[i] = normalization.Fold(e.Title)
		s.byFile[e.Filename] = i
	}
	return s
}

// Len returns the number of entries.
func (s *Snapshot) Len() int { return len(s.entries) }

// Titles returns entry titles in catalog order.
func (s *Snapshot) Titles() []string {
	out := make([]string, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Title
	}
	return out
}

// Entries returns a copy of the entries in catalog order.
func (s *Snapshot) Entries() []Entry {
	return append([]Entry(nil), s.entries...)
}

// Get returns the entry stored under filename.
func (s *Snapshot) Get(filename string) (Entry, bool) {
	i, ok := s.byFile[filename]
	if !ok {
		return Entry{}, false
	}
	return s.entries[i], true
}

// Description returns the description for a title, located through the
// title's normalized filename.
func (s *Snapshot) Description(title string) (string, bool) {
	e, ok := s.Get(Filename(title))
	if !ok || strings.TrimSpace(e.Description) == "" {
		return "", false
	}
	return e.Description, true
}

// Catalog is a directory of job description files.
type Catalog struct {
	dir  string
	log  *logger.Logger
	snap atomic.Pointer[Snapshot]
	// mu serializes writers; readers never take it.
	mu sync.Mutex
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithLogger sets the catalog logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Catalog) { c.log = l }
}

// Open loads the catalog from dir. A missing directory is an empty catalog;
// it is created on the first write.
func Open(dir string, opts ...Option) (*Catalog, error) {
	c := &Catalog{dir: dir, log: logger.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Dir returns the catalog directory.
func (c *Catalog) Dir() string { return c.dir }

// Snapshot returns the current snapshot.
func (c *Catalog) Snapshot() *Snapshot { return c.snap.Load() }

// Reload rebuilds the snapshot from disk and swaps it in.
func (c *Catalog) Reload() error {
	entries, err := readDir(c.dir)
	if err != nil {
		return err
	}
	c.snap.Store(newSnapshot(entries))
	c.log.Debug("catalog loaded", "dir", c.dir, "entries", len(entries))
	return nil
}

func readDir(dir string) ([]Entry, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.txt"))
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	sort.Strings(matches)

	entries := make([]Entry, 0, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		name := filepath.Base(path)
		entries = append(entries, Entry{
			Filename:    name,
			Title:       TitleFromFilename(name),
			Description: string(data),
		})
	}
	return entries, nil
}

// List returns every entry with its description cut to PreviewLength
// characters followed by "...".
func (c *Catalog) List() []Entry {
	entries := c.Snapshot().Entries()
	for i := range entries {
		entries[i].Description = preview(entries[i].Description)
	}
	return entries
}

func preview(s string) string {
	if utf8.RuneCountInString(s) <= PreviewLength {
		return s
	}
	return string([]rune(s)[:PreviewLength]) + "..."
}

// Get returns the full entry stored under filename.
func (c *Catalog) Get(filename string) (Entry, error) {
	if err := validFilename(filename); err != nil {
		return Entry{}, err
	}
	e, ok := c.Snapshot().Get(filename)
	if !ok {
		return Entry{}, ErrEntryNotFound
	}
	return e, nil
}

// Create writes a new entry named after title.
func (c *Catalog) Create(title, description string) (Entry, error) {
	title = strings.TrimSpace(title)
	description = strings.TrimSpace(description)
	if title == "" || description == "" {
		return Entry{}, fmt.Errorf("%w: title and description are required", ErrInvalidEntry)
	}
	name := Filename(title)
	if name == ".txt" {
		return Entry{}, fmt.Errorf("%w: title %q has no usable characters", ErrInvalidEntry, title)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return Entry{}, fmt.Errorf("creating jobs dir: %w", err)
	}
	path := filepath.Join(c.dir, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return Entry{}, ErrEntryExists
		}
		return Entry{}, fmt.Errorf("creating %s: %w", name, err)
	}
	if _, err := f.WriteString(description); err != nil {
		f.Close()
		return Entry{}, fmt.Errorf("writing %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return Entry{}, fmt.Errorf("closing %s: %w", name, err)
	}
	if err := c.Reload(); err != nil {
		return Entry{}, err
	}
	c.log.Info("job created", "filename", name)
	return Entry{Filename: name, Title: TitleFromFilename(name), Description: description}, nil
}

// Update replaces the description of an existing entry.
func (c *Catalog) Update(filename, description string) (Entry, error) {
	if err := validFilename(filename); err != nil {
		return Entry{}, err
	}
	description = strings.TrimSpace(description)
	if description == "" {
		return Entry{}, fmt.Errorf("%w: description is required", ErrInvalidEntry)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	path := filepath.Join(c.dir, filename)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Entry{}, ErrEntryNotFound
		}
		return Entry{}, fmt.Errorf("stat %s: %w", filename, err)
	}
	if err := writeAtomic(path, []byte(description)); err != nil {
		return Entry{}, err
	}
	if err := c.Reload(); err != nil {
		return Entry{}, err
	}
	c.log.Info("job updated", "filename", filename)
	return Entry{Filename: filename, Title: TitleFromFilename(filename), Description: description}, nil
}

// Delete removes an entry.
func (c *Catalog) Delete(filename string) error {
	if err := validFilename(filename); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.Remove(filepath.Join(c.dir, filename)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrEntryNotFound
		}
		return fmt.Errorf("removing %s: %w", filename, err)
	}
	if err := c.Reload(); err != nil {
		return err
	}
	c.log.Info("job deleted", "filename", filename)
	return nil
}

// writeAtomic writes through a temp file so concurrent reloads never see a
// half-written description.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".job-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replacing %s: %w", filepath.Base(path), err)
	}
	return nil
}

func validFilename(name string) error {
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) ||
		strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".txt") {
		return fmt.Errorf("%w: bad filename %q", ErrInvalidEntry, name)
	}
	return nil
}

var separatorRun = regexp.MustCompile(`[_\-\s]+`)

// Filename derives the catalog filename for a title: accents stripped,
// lowercased, runs of spaces, dashes and underscores collapsed to one
// underscore, plus ".txt".
func Filename(title string) string {
	base := normalization.Fold(title)
	base = separatorRun.ReplaceAllString(base, "_")
	return strings.Trim(base, "_") + ".txt"
}

// TitleFromFilename turns "reclutador_cdmx_sur.txt" into
// "Reclutador - Cdmx Sur".
func TitleFromFilename(name string) string {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	title := cases.Title(language.Und).String(strings.ReplaceAll(stem, "_", " "))

	if strings.Contains(title, " Cdmx ") || strings.HasSuffix(title, " Cdmx") {
		if parts := strings.Split(title, " Cdmx "); len(parts) == 2 {
			return parts[0] + " - Cdmx " + parts[1]
		}
		return strings.ReplaceAll(title, " Cdmx", " - Cdmx")
	}
	return title
}
