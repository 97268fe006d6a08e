// Package record loads, saves and enumerates DDR metadata documents.
//
// A Record is the in-memory form of one JSON document in a collection
// repository. Fields the pipeline mutates have explicit slots; every
// other field is carried through untouched so that a load/save round
// trip never drops data.
package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/CamJohns/ddr-cmdln/internal/identifier"
)

// Field names of the explicit slots.
const (
	FieldCreated = "record_created"
	FieldTopics  = "topics"
	FieldID      = "id"
)

// metadataKey marks the leading app and commit metadata element of a
// list-form document.
const metadataKey = "application"

// DatetimeFormat is the timestamp layout used by DDR documents.
const DatetimeFormat = "2006-01-02T15:04:05"

// Schema lists which optional slots a model exposes.
type Schema struct {
	Created bool
	Topics  bool
}

var schemas = map[identifier.Model]Schema{
	identifier.ModelCollection: {Created: true},
	identifier.ModelEntity:     {Created: true, Topics: true},
	identifier.ModelSegment:    {Created: true, Topics: true},
	identifier.ModelFile:       {},
}

// entry is one element of a list-form document: a field name, or an
// element carried through verbatim.
type entry struct {
	name string
	raw  json.RawMessage
}

// SchemaFor returns the slot schema for a model.
func SchemaFor(m identifier.Model) Schema {
	return schemas[m]
}

// Record is one metadata document.
type Record struct {
	ID   identifier.Identifier
	Path string

	// Parent names the containing object. Lookup only.
	Parent identifier.Identifier

	created       *time.Time
	createdLayout string
	createdRaw    json.RawMessage
	topics        json.RawMessage

	fields  map[string]json.RawMessage
	entries []entry
	list    bool
	raw     []byte

	children       []*Record
	childrenLoaded bool
}

// New creates an empty record for id at path.
func New(id identifier.Identifier, path string) *Record {
	r := &Record{
		ID:     id,
		Path:   path,
		fields: map[string]json.RawMessage{},
	}
	if p, ok := id.Parent(); ok {
		r.Parent = p
	}
	return r
}

// Model returns the record's model type.
func (r *Record) Model() identifier.Model {
	return r.ID.Model()
}

// Schema returns the slot schema of the record's model.
func (r *Record) Schema() Schema {
	return SchemaFor(r.Model())
}

// HasCreatedSlot reports whether the model exposes record_created.
func (r *Record) HasCreatedSlot() bool {
	return r.Schema().Created
}

// Created returns the record_created value, or nil when unset.
func (r *Record) Created() *time.Time {
	if r.created == nil {
		return nil
	}
	t := *r.created
	return &t
}

// SetCreated replaces record_created. It returns false and leaves the
// record untouched when the model has no creation slot.
func (r *Record) SetCreated(t time.Time) bool {
	if !r.HasCreatedSlot() {
		return false
	}
	r.created = &t
	return true
}

// HasTopics reports whether the model exposes topics and the document carries them.
func (r *Record) HasTopics() bool {
	return r.Schema().Topics && r.topics != nil
}

// Topics returns the raw topics value.
func (r *Record) Topics() json.RawMessage {
	return r.topics
}

// SetTopics replaces the topics value. It returns false when the model
// has no topics slot.
func (r *Record) SetTopics(raw json.RawMessage) bool {
	if !r.Schema().Topics {
		return false
	}
	r.topics = raw
	return true
}

// Field returns a field that has no explicit slot.
func (r *Record) Field(name string) (json.RawMessage, bool) {
	v, ok := r.fields[name]
	return v, ok
}

// SetField sets a field that has no explicit slot.
func (r *Record) SetField(name string, value json.RawMessage) {
	r.fields[name] = value
}

// Children returns the children loaded by Store.Children, if any.
func (r *Record) Children() []*Record {
	return r.children
}

// ChildrenLoaded reports whether children have been loaded.
func (r *Record) ChildrenLoaded() bool {
	return r.childrenLoaded
}

// decode populates the record from document bytes. Two shapes are
// accepted: a flat object, and the list form written by the DDR
// editor, where each field is a one-key object and a leading object
// carrying "application" holds app and commit metadata.
func (r *Record) decode(data []byte) error {
	var (
		fields  map[string]json.RawMessage
		entries []entry
		err     error
	)
	if t := bytes.TrimSpace(data); len(t) > 0 && t[0] == '[' {
		fields, entries, err = decodeList(t)
	} else {
		fields = map[string]json.RawMessage{}
		err = json.Unmarshal(data, &fields)
	}
	if err != nil {
		return err
	}

	schema := r.Schema()
	if schema.Created {
		if v, ok := fields[FieldCreated]; ok {
			delete(fields, FieldCreated)
			t, layout, err := parseTime(v)
			if err != nil {
				return fmt.Errorf("%s: %w", FieldCreated, err)
			}
			r.created = t
			r.createdLayout = layout
			if t == nil {
				r.createdRaw = v
			}
		}
	}
	if schema.Topics {
		if v, ok := fields[FieldTopics]; ok {
			delete(fields, FieldTopics)
			r.topics = v
		}
	}

	r.fields = fields
	r.entries = entries
	r.list = entries != nil
	r.raw = data
	return nil
}

// decodeList splits a list-form document into field values and the
// element order. Elements that are not one-key field objects are kept
// verbatim.
func decodeList(data []byte) (map[string]json.RawMessage, []entry, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, nil, err
	}

	fields := map[string]json.RawMessage{}
	entries := make([]entry, 0, len(items))
	for n, item := range items {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(item, &obj); err != nil || len(obj) != 1 {
			entries = append(entries, entry{raw: item})
			continue
		}
		if _, meta := obj[metadataKey]; meta && n == 0 {
			entries = append(entries, entry{raw: item})
			continue
		}
		for name, v := range obj {
			if _, dup := fields[name]; !dup {
				entries = append(entries, entry{name: name})
			}
			fields[name] = v
		}
	}
	return fields, entries, nil
}

// values returns every field of the record, slots included.
func (r *Record) values() (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(r.fields)+3)
	for k, v := range r.fields {
		out[k] = v
	}
	if r.created != nil {
		layout := r.createdLayout
		if layout == "" {
			layout = DatetimeFormat
		}
		v, err := json.Marshal(r.created.Format(layout))
		if err != nil {
			return nil, err
		}
		out[FieldCreated] = v
	} else if r.createdRaw != nil {
		out[FieldCreated] = r.createdRaw
	}
	if r.topics != nil {
		out[FieldTopics] = r.topics
	}
	if _, ok := out[FieldID]; !ok && r.Model() != identifier.ModelFile {
		v, _ := json.Marshal(r.ID.String())
		out[FieldID] = v
	}
	return out, nil
}

// order lists field names in document order. Fields the document did
// not carry follow in sorted order.
func (r *Record) order(out map[string]json.RawMessage) []string {
	names := make([]string, 0, len(out))
	seen := make(map[string]bool, len(out))
	for _, e := range r.entries {
		if _, ok := out[e.name]; ok && e.name != "" && !seen[e.name] {
			seen[e.name] = true
			names = append(names, e.name)
		}
	}
	var rest []string
	for k := range out {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}

// FieldNames returns the names of every field, slots included, in
// document order.
func (r *Record) FieldNames() ([]string, error) {
	out, err := r.values()
	if err != nil {
		return nil, err
	}
	return r.order(out), nil
}

// Value returns any field, slots included.
func (r *Record) Value(name string) (json.RawMessage, bool) {
	out, err := r.values()
	if err != nil {
		return nil, false
	}
	v, ok := out[name]
	return v, ok
}

// encode renders the record as an indented JSON document in the shape
// it was loaded in.
func (r *Record) encode() ([]byte, error) {
	out, err := r.values()
	if err != nil {
		return nil, err
	}
	if r.list {
		return r.encodeList(out)
	}

	var buf bytes.Buffer
	buf.WriteString("{\n")
	keys := make([]string, 0, len(out))
	for k := range out {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for n, k := range keys {
		var val bytes.Buffer
		if err := json.Indent(&val, out[k], "  ", "  "); err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		name, _ := json.Marshal(k)
		buf.WriteString("  ")
		buf.Write(name)
		buf.WriteString(": ")
		buf.Write(val.Bytes())
		if n < len(keys)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	buf.WriteString("}\n")
	return buf.Bytes(), nil
}

func (r *Record) encodeList(out map[string]json.RawMessage) ([]byte, error) {
	// passthrough elements keep their position relative to fields
	items := make([][]byte, 0, len(r.entries)+len(out))
	written := make(map[string]bool, len(out))
	for _, e := range r.entries {
		if e.name == "" {
			items = append(items, e.raw)
			continue
		}
		v, ok := out[e.name]
		if !ok || written[e.name] {
			continue
		}
		written[e.name] = true
		items = append(items, fieldItem(e.name, v))
	}
	for _, name := range r.order(out) {
		if !written[name] {
			items = append(items, fieldItem(name, out[name]))
		}
	}

	compact := append([]byte{'['}, bytes.Join(items, []byte{','})...)
	compact = append(compact, ']')
	var buf bytes.Buffer
	if err := json.Indent(&buf, compact, "", "  "); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func fieldItem(name string, v json.RawMessage) []byte {
	key, _ := json.Marshal(name)
	item := append([]byte{'{'}, key...)
	item = append(item, ':')
	item = append(item, v...)
	return append(item, '}')
}

// parseTime decodes a timestamp value, remembering which layout it used.
// A JSON null or empty string is an unset slot.
func parseTime(v json.RawMessage) (*time.Time, string, error) {
	if bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		return nil, "", nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return nil, "", fmt.Errorf("expected string timestamp: %w", err)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, "", nil
	}
	for _, layout := range []string{DatetimeFormat, time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			if layout == time.RFC3339Nano {
				layout = time.RFC3339
			}
			return &t, layout, nil
		}
	}
	return nil, "", fmt.Errorf("unrecognised timestamp %q", s)
}
