// Package identifier parses DDR object identifiers and maps them to
// document locations inside a collection repository.
//
// An identifier encodes the model type and the full hierarchy of an object:
//
//	ddr-test-123                      collection
//	ddr-test-123-1                    entity
//	ddr-test-123-1-2                  segment
//	ddr-test-123-1-master-a1b2c3d4e5  file (role + sha1 prefix)
//
// Documents are laid out below a base directory as:
//
//	{base}/ddr-test-123/collection.json
//	{base}/ddr-test-123/files/ddr-test-123-1/entity.json
//	{base}/ddr-test-123/files/ddr-test-123-1/files/ddr-test-123-1-2/entity.json
//	{base}/ddr-test-123/files/ddr-test-123-1/files/ddr-test-123-1-master-a1b2c3d4e5.json
package identifier

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Model is the type of object an identifier names.
type Model string

const (
	ModelCollection Model = "collection"
	ModelEntity     Model = "entity"
	ModelSegment    Model = "segment"
	ModelFile       Model = "file"
)

// String returns the string representation of the model
func (m Model) String() string {
	return string(m)
}

// Valid reports whether m is one of the known models.
func (m Model) Valid() bool {
	switch m {
	case ModelCollection, ModelEntity, ModelSegment, ModelFile:
		return true
	}
	return false
}

// ParseModel converts a model name to a Model.
func ParseModel(s string) (Model, error) {
	m := Model(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: unknown model %q", ErrInvalid, s)
	}
	return m, nil
}

// Document and directory names used by the repository layout.
const (
	CollectionDocument = "collection.json"
	EntityDocument     = "entity.json"
	FilesDir           = "files"
	DocumentExt        = ".json"
)

// FileRoles lists the roles a file identifier may carry.
var FileRoles = []string{"master", "mezzanine", "transcript", "gloss", "preservation"}

// ErrInvalid is returned for strings that are not valid identifiers.
var ErrInvalid = errors.New("invalid identifier")

var (
	namePattern = regexp.MustCompile(`^[a-z0-9]+$`)
	sha1Pattern = regexp.MustCompile(`^[0-9a-f]{1,40}$`)
)

// Parts holds the decoded components of an identifier.
// Unused numeric components are zero.
type Parts struct {
	Repo string
	Org  string
	CID  int
	EID  int
	SID  int
	Role string
	SHA1 string
}

// Identifier is an immutable, parsed object identifier.
type Identifier struct {
	id    string
	model Model
	parts Parts
}

// Parse decodes an identifier string.
func Parse(id string) (Identifier, error) {
	id = strings.TrimSpace(id)
	tokens := strings.Split(id, "-")
	if len(tokens) < 3 {
		return Identifier{}, fmt.Errorf("%w: %q", ErrInvalid, id)
	}

	var p Parts
	p.Repo, p.Org = tokens[0], tokens[1]
	if !namePattern.MatchString(p.Repo) || !namePattern.MatchString(p.Org) {
		return Identifier{}, fmt.Errorf("%w: %q: bad repo or org", ErrInvalid, id)
	}

	cid, err := parsePositive(tokens[2])
	if err != nil {
		return Identifier{}, fmt.Errorf("%w: %q: collection number: %v", ErrInvalid, id, err)
	}
	p.CID = cid

	rest := tokens[3:]
	roleAt := -1
	for i, tok := range rest {
		if isRole(tok) {
			roleAt = i
			break
		}
	}

	numeric := rest
	if roleAt >= 0 {
		numeric = rest[:roleAt]
		tail := rest[roleAt+1:]
		if len(numeric) == 0 || len(tail) != 1 || !sha1Pattern.MatchString(tail[0]) {
			return Identifier{}, fmt.Errorf("%w: %q: bad file identifier", ErrInvalid, id)
		}
		p.Role = rest[roleAt]
		p.SHA1 = tail[0]
	}

	if len(numeric) > 2 {
		return Identifier{}, fmt.Errorf("%w: %q: too many components", ErrInvalid, id)
	}
	nums := make([]int, len(numeric))
	for i, tok := range numeric {
		n, err := parsePositive(tok)
		if err != nil {
			return Identifier{}, fmt.Errorf("%w: %q: %v", ErrInvalid, id, err)
		}
		nums[i] = n
	}
	if len(nums) > 0 {
		p.EID = nums[0]
	}
	if len(nums) > 1 {
		p.SID = nums[1]
	}

	var model Model
	switch {
	case p.Role != "":
		model = ModelFile
	case len(nums) == 0:
		model = ModelCollection
	case len(nums) == 1:
		model = ModelEntity
	default:
		model = ModelSegment
	}

	return Identifier{id: id, model: model, parts: p}, nil
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(id string) Identifier {
	i, err := Parse(id)
	if err != nil {
		panic(err)
	}
	return i
}

func parsePositive(tok string) (int, error) {
	n, err := strconv.Atoi(tok)
	if err != nil || n <= 0 || strconv.Itoa(n) != tok {
		return 0, fmt.Errorf("%q is not a positive integer", tok)
	}
	return n, nil
}

func isRole(tok string) bool {
	for _, r := range FileRoles {
		if tok == r {
			return true
		}
	}
	return false
}

// String returns the identifier text.
func (i Identifier) String() string { return i.id }

// Model returns the object model named by the identifier.
func (i Identifier) Model() Model { return i.model }

// Parts returns the decoded components.
func (i Identifier) Parts() Parts { return i.parts }

// IsZero reports whether i is the zero Identifier.
func (i Identifier) IsZero() bool { return i.id == "" }

// CollectionID returns the identifier of the collection containing i.
func (i Identifier) CollectionID() string {
	p := i.parts
	return fmt.Sprintf("%s-%s-%d", p.Repo, p.Org, p.CID)
}

func (i Identifier) entityID() string {
	return fmt.Sprintf("%s-%d", i.CollectionID(), i.parts.EID)
}

func (i Identifier) segmentID() string {
	return fmt.Sprintf("%s-%d", i.entityID(), i.parts.SID)
}

// Parent returns the identifier of the containing object.
// Collections have no parent and return false.
func (i Identifier) Parent() (Identifier, bool) {
	var parent string
	switch i.model {
	case ModelCollection:
		return Identifier{}, false
	case ModelEntity:
		parent = i.CollectionID()
	case ModelSegment:
		parent = i.entityID()
	case ModelFile:
		if i.parts.SID > 0 {
			parent = i.segmentID()
		} else {
			parent = i.entityID()
		}
	default:
		return Identifier{}, false
	}
	return MustParse(parent), true
}

// RelDir returns the object's directory relative to the base directory.
// For files this is the directory of the parent entity or segment.
func (i Identifier) RelDir() string {
	cid := i.CollectionID()
	switch i.model {
	case ModelCollection:
		return cid
	case ModelEntity:
		return filepath.Join(cid, FilesDir, i.id)
	case ModelSegment:
		return filepath.Join(cid, FilesDir, i.entityID(), FilesDir, i.id)
	case ModelFile:
		parent, _ := i.Parent()
		return parent.RelDir()
	}
	return ""
}

// RelPath returns the document path relative to the base directory.
func (i Identifier) RelPath() string {
	switch i.model {
	case ModelCollection:
		return filepath.Join(i.RelDir(), CollectionDocument)
	case ModelEntity, ModelSegment:
		return filepath.Join(i.RelDir(), EntityDocument)
	case ModelFile:
		return filepath.Join(i.RelDir(), FilesDir, i.id+DocumentExt)
	}
	return ""
}

// PathAbs returns the absolute document path below base.
func (i Identifier) PathAbs(base string) string {
	return filepath.Join(base, i.RelPath())
}

// FromPath resolves a document path to its identifier and base directory.
func FromPath(path string) (Identifier, string, error) {
	clean := filepath.Clean(path)
	name := filepath.Base(clean)

	var id string
	switch name {
	case CollectionDocument, EntityDocument:
		id = filepath.Base(filepath.Dir(clean))
	default:
		if filepath.Ext(name) != DocumentExt {
			return Identifier{}, "", fmt.Errorf("%w: %s is not a metadata document", ErrInvalid, path)
		}
		id = strings.TrimSuffix(name, DocumentExt)
	}

	i, err := Parse(id)
	if err != nil {
		return Identifier{}, "", err
	}

	rel := i.RelPath()
	if !strings.HasSuffix(clean, string(filepath.Separator)+rel) && clean != rel {
		return Identifier{}, "", fmt.Errorf("%w: %s does not match layout of %s", ErrInvalid, path, i)
	}
	base := strings.TrimSuffix(strings.TrimSuffix(clean, rel), string(filepath.Separator))
	if base == "" && filepath.IsAbs(clean) {
		base = string(filepath.Separator)
	}
	return i, base, nil
}
