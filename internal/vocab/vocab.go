// Package vocab repairs controlled-vocabulary topic values.
//
// Topics arrive in several historical shapes:
//
//	"Journalism [120]"                   bracket-id text
//	"term:Journalism|id:120"             labelled text
//	{"term": "Journalism", "id": "120"}  object (id may be a number)
//
// Repair normalises all of them to a list of objects.
package vocab

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ErrMalformed is returned when a topics value has an unsupported shape.
var ErrMalformed = errors.New("malformed topics value")

// Topic is one controlled-vocabulary reference.
type Topic struct {
	Term string `json:"term"`
	ID   string `json:"id"`
}

// String renders the topic in bracket-id form.
func (t Topic) String() string {
	if t.Term == "" {
		return t.ID
	}
	return fmt.Sprintf("%s [%s]", t.Term, t.ID)
}

// Topics is an ordered topic list.
type Topics []Topic

// IDs returns the topic ids in order.
func (ts Topics) IDs() []string {
	ids := make([]string, len(ts))
	for i, t := range ts {
		ids[i] = t.ID
	}
	return ids
}

var (
	bracketID  = regexp.MustCompile(`^(.+?)\s*\[(\d+)\]$`)
	whitespace = regexp.MustCompile(`\s+`)
)

// Vocabulary maps topic ids to canonical terms.
type Vocabulary map[string]string

// vocabFile is the layout of a vocabulary terms document.
type vocabFile struct {
	ID    string      `json:"id"`
	Terms []vocabTerm `json:"terms"`
}

type vocabTerm struct {
	ID    json.RawMessage `json:"id"`
	Title string          `json:"title"`
	Term  string          `json:"term"`
}

// LoadVocabulary reads a vocabulary terms document
// ({"id": "topics", "terms": [{"id": ..., "title": ...}]}).
func LoadVocabulary(path string) (Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read vocabulary: %w", err)
	}

	var f vocabFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse vocabulary %s: %w", path, err)
	}

	v := make(Vocabulary, len(f.Terms))
	for _, t := range f.Terms {
		term := t.Title
		if term == "" {
			term = t.Term
		}
		id := idString(t.ID)
		if id == "" {
			continue
		}
		v[id] = cleanTerm(term)
	}
	return v, nil
}

// Repairer normalises topic values, optionally against a vocabulary.
// A Repairer is safe for concurrent use.
type Repairer struct {
	vocab Vocabulary
}

// NewRepairer creates a Repairer. v may be nil.
func NewRepairer(v Vocabulary) *Repairer {
	return &Repairer{vocab: v}
}

// Repair parses a raw topics value and returns the cleaned list:
// terms are NFC-normalised with whitespace collapsed, replaced by the
// canonical vocabulary term when the id is known, entries without an id
// are dropped, and only the first occurrence of each id is kept.
func (r *Repairer) Repair(raw json.RawMessage) (Topics, error) {
	items, err := splitItems(raw)
	if err != nil {
		return nil, err
	}

	out := make(Topics, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		t, ok, err := parseItem(item)
		if err != nil {
			return nil, err
		}
		if !ok || t.ID == "" || seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		if canonical, ok := r.vocab[t.ID]; ok && canonical != "" {
			t.Term = canonical
		}
		out = append(out, t)
	}
	return out, nil
}

// RepairRaw is Repair followed by encoding. changed reports whether the
// encoded value differs from raw as JSON data; key order and whitespace
// do not count.
func (r *Repairer) RepairRaw(raw json.RawMessage) (json.RawMessage, bool, error) {
	topics, err := r.Repair(raw)
	if err != nil {
		return nil, false, err
	}
	out, err := json.Marshal(topics)
	if err != nil {
		return nil, false, err
	}

	before, err1 := canonical(raw)
	after, err2 := canonical(out)
	if err1 != nil || err2 != nil {
		return out, true, nil
	}
	return out, !bytes.Equal(before, after), nil
}

// canonical re-encodes a JSON value with sorted object keys.
func canonical(raw []byte) ([]byte, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

// splitItems turns the raw value into a list of items. A bare string is
// split on semicolons.
func splitItems(raw json.RawMessage) ([]json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	switch raw[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return items, nil
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		var items []json.RawMessage
		for _, part := range strings.Split(s, ";") {
			b, _ := json.Marshal(strings.TrimSpace(part))
			items = append(items, b)
		}
		return items, nil
	case '{':
		return []json.RawMessage{raw}, nil
	}
	return nil, fmt.Errorf("%w: unexpected %q", ErrMalformed, raw[:1])
}

func parseItem(item json.RawMessage) (Topic, bool, error) {
	item = bytes.TrimSpace(item)
	if len(item) == 0 {
		return Topic{}, false, nil
	}

	switch item[0] {
	case '"':
		var s string
		if err := json.Unmarshal(item, &s); err != nil {
			return Topic{}, false, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		t, ok := ParseText(s)
		return t, ok, nil
	case '{':
		var obj struct {
			Term string          `json:"term"`
			ID   json.RawMessage `json:"id"`
		}
		if err := json.Unmarshal(item, &obj); err != nil {
			return Topic{}, false, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return Topic{Term: cleanTerm(obj.Term), ID: idString(obj.ID)}, true, nil
	case 'n':
		return Topic{}, false, nil
	default:
		// bare numeric id
		var n json.Number
		if err := json.Unmarshal(item, &n); err != nil {
			return Topic{}, false, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return Topic{ID: n.String()}, true, nil
	}
}

// ParseText parses the text forms of a topic. A string of digits is
// taken as an id with no term.
func ParseText(s string) (Topic, bool) {
	s = cleanTerm(s)
	if s == "" {
		return Topic{}, false
	}
	if m := bracketID.FindStringSubmatch(s); m != nil {
		return Topic{Term: cleanTerm(m[1]), ID: m[2]}, true
	}
	if strings.Contains(s, "|") && strings.Contains(s, ":") {
		var t Topic
		for _, field := range strings.Split(s, "|") {
			k, v, ok := strings.Cut(field, ":")
			if !ok {
				continue
			}
			switch strings.TrimSpace(k) {
			case "term":
				t.Term = cleanTerm(v)
			case "id":
				t.ID = strings.TrimSpace(v)
			}
		}
		return t, t.ID != ""
	}
	if _, err := strconv.Atoi(s); err == nil {
		return Topic{ID: s}, true
	}
	return Topic{}, false
}

// idString accepts an id encoded as a JSON string or number.
func idString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func cleanTerm(s string) string {
	s = norm.NFC.String(s)
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}
