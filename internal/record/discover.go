package record

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"unicode"

	"github.com/CamJohns/ddr-cmdln/internal/identifier"
)

// Discover lists metadata document paths below a collection directory in
// natural order. models restricts the result to the given model types
// (nil means all). Without recursive only the collection document and its
// entities are listed. Listings are cached per root; force re-reads the
// filesystem.
func (s *Store) Discover(root string, models []identifier.Model, recursive, force bool) ([]string, error) {
	key := fmt.Sprintf("%s|%t", root, recursive)

	s.mu.Lock()
	cached, ok := s.paths[key]
	s.mu.Unlock()

	var all []string
	if ok && !force {
		all = cached
	} else {
		var err error
		all, err = walkDocuments(root, recursive)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.paths[key] = all
		s.mu.Unlock()
	}

	if len(models) == 0 {
		return slices.Clone(all), nil
	}
	out := make([]string, 0, len(all))
	for _, p := range all {
		id, _, err := identifier.FromPath(p)
		if err != nil {
			continue
		}
		if slices.Contains(models, id.Model()) {
			out = append(out, p)
		}
	}
	return out, nil
}

func walkDocuments(root string, recursive bool) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, root)
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	var paths []string
	if !recursive {
		doc := filepath.Join(root, identifier.CollectionDocument)
		if _, err := os.Stat(doc); err == nil {
			paths = append(paths, doc)
		}
		matches, err := filepath.Glob(filepath.Join(root, identifier.FilesDir, "*", identifier.EntityDocument))
		if err != nil {
			return nil, err
		}
		paths = append(paths, matches...)
	} else {
		err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if p != root && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if isDocument(p) {
				paths = append(paths, p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", root, err)
		}
	}

	valid := paths[:0]
	for _, p := range paths {
		if _, _, err := identifier.FromPath(p); err == nil {
			valid = append(valid, p)
		}
	}
	sort.SliceStable(valid, func(i, j int) bool { return NaturalLess(valid[i], valid[j]) })
	return valid, nil
}

func isDocument(p string) bool {
	name := filepath.Base(p)
	if strings.Contains(name, ".tmp.") {
		return false
	}
	switch name {
	case identifier.CollectionDocument, identifier.EntityDocument:
		return true
	}
	return filepath.Ext(name) == identifier.DocumentExt &&
		filepath.Base(filepath.Dir(p)) == identifier.FilesDir
}

// NaturalLess orders strings so that embedded numbers compare by value:
// "ddr-test-123-2" sorts before "ddr-test-123-10".
func NaturalLess(a, b string) bool {
	for a != "" && b != "" {
		ra, rb := rune(a[0]), rune(b[0])
		if unicode.IsDigit(ra) && unicode.IsDigit(rb) {
			na, resta := leadingDigits(a)
			nb, restb := leadingDigits(b)
			ta, tb := strings.TrimLeft(na, "0"), strings.TrimLeft(nb, "0")
			if len(ta) != len(tb) {
				return len(ta) < len(tb)
			}
			if ta != tb {
				return ta < tb
			}
			if len(na) != len(nb) {
				return len(na) < len(nb)
			}
			a, b = resta, restb
			continue
		}
		if ra != rb {
			return ra < rb
		}
		a, b = a[1:], b[1:]
	}
	return len(a) < len(b)
}

func leadingDigits(s string) (digits, rest string) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return s[:i], s[i:]
}
