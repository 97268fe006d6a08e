package record

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"unicode/utf8"

	"github.com/CamJohns/ddr-cmdln/internal/identifier"
)

// Errors returned by Store operations. Check with errors.Is.
var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrParse is returned when a document cannot be decoded.
	ErrParse = errors.New("document parse error")

	// ErrIO is returned when a document cannot be written.
	ErrIO = errors.New("document write error")
)

// Store loads and saves records. Loaded records are cached by path so
// that repeated loads during one run share state; pass force to bypass
// the cache.
type Store struct {
	mu     sync.Mutex
	cache  map[string]*Record
	paths  map[string][]string
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for debug output.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewStore creates an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		cache:  make(map[string]*Record),
		paths:  make(map[string][]string),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load returns the record stored at path, using the cache when possible.
func (s *Store) Load(path string) (*Record, error) {
	s.mu.Lock()
	if r, ok := s.cache[path]; ok {
		s.mu.Unlock()
		return r, nil
	}
	s.mu.Unlock()
	return s.LoadFresh(path)
}

// LoadFresh reads the record at path from disk, replacing any cached copy.
func (s *Store) LoadFresh(path string) (*Record, error) {
	id, _, err := identifier.FromPath(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrParse, path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: %s: invalid UTF-8 encoding", ErrParse, path)
	}

	r := New(id, path)
	if err := r.decode(data); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrParse, path, err)
	}

	s.mu.Lock()
	s.cache[path] = r
	s.mu.Unlock()

	s.logger.Debug("loaded record", "id", id.String(), "path", path)
	return r, nil
}

// Save writes the record to its path. The write is skipped when the
// encoded document is byte-identical to what was loaded; changed reports
// whether the file on disk was replaced.
func (s *Store) Save(r *Record) (changed bool, err error) {
	data, err := r.encode()
	if err != nil {
		return false, fmt.Errorf("%w: %s: encode: %v", ErrIO, r.Path, err)
	}
	if r.raw != nil && bytes.Equal(data, r.raw) {
		return false, nil
	}

	if err := writeAtomic(r.Path, data); err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrIO, r.Path, err)
	}
	r.raw = data

	s.logger.Debug("saved record", "id", r.ID.String(), "path", r.Path)
	return true, nil
}

// writeAtomic writes data to a temp file beside path and renames it into place.
func writeAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Chmod(0o644); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// Children loads the direct children of r: entities of a collection,
// segments and files of an entity, files of a segment. Children are kept
// on the record. With force, children are re-read from disk even if they
// were loaded before.
func (s *Store) Children(r *Record, force bool) ([]*Record, error) {
	if r.childrenLoaded && !force {
		return r.children, nil
	}

	paths, err := childPaths(r)
	if err != nil {
		return nil, err
	}

	children := make([]*Record, 0, len(paths))
	for _, p := range paths {
		var child *Record
		if force {
			child, err = s.LoadFresh(p)
		} else {
			child, err = s.Load(p)
		}
		if err != nil {
			return nil, fmt.Errorf("child of %s: %w", r.ID, err)
		}
		children = append(children, child)
	}

	r.children = children
	r.childrenLoaded = true
	return children, nil
}

// childPaths lists the document paths of r's direct children.
func childPaths(r *Record) ([]string, error) {
	if r.Model() == identifier.ModelFile {
		return nil, nil
	}

	filesDir := filepath.Join(filepath.Dir(r.Path), identifier.FilesDir)
	entries, err := os.ReadDir(filesDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", filesDir, err)
	}

	var paths []string
	for _, e := range entries {
		p := filepath.Join(filesDir, e.Name())
		if e.IsDir() {
			doc := filepath.Join(p, identifier.EntityDocument)
			if _, err := os.Stat(doc); err == nil {
				paths = append(paths, doc)
			}
			continue
		}
		if r.Model() == identifier.ModelCollection {
			continue
		}
		if filepath.Ext(e.Name()) == identifier.DocumentExt {
			paths = append(paths, p)
		}
	}

	sort.SliceStable(paths, func(i, j int) bool { return NaturalLess(paths[i], paths[j]) })
	return paths, nil
}
