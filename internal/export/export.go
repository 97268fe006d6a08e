// Package export writes the metadata documents of one model to CSV.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/CamJohns/ddr-cmdln/internal/identifier"
	"github.com/CamJohns/ddr-cmdln/internal/record"
)

// IDColumn is always the first column.
const IDColumn = "id"

// Skipped names a document that could not be loaded.
type Skipped struct {
	Path  string
	Error string
}

// Result describes a finished export.
type Result struct {
	Model   identifier.Model
	Columns []string
	Rows    int
	Skipped []Skipped
}

// Write exports every document of model below the collection directory
// root, in natural order. Columns are the identifier followed by the
// union of field names in the order they are first seen. Documents that
// fail to load are skipped and listed in the result.
func Write(w io.Writer, store *record.Store, root string, model identifier.Model, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if !model.Valid() {
		return nil, fmt.Errorf("unknown model %q", model)
	}

	paths, err := store.Discover(root, []identifier.Model{model}, true, true)
	if err != nil {
		return nil, err
	}

	res := &Result{Model: model, Columns: []string{IDColumn}}
	seen := map[string]bool{IDColumn: true}
	records := make([]*record.Record, 0, len(paths))
	for n, p := range paths {
		rec, err := store.Load(p)
		if err == nil {
			var names []string
			names, err = rec.FieldNames()
			for _, name := range names {
				if !seen[name] {
					seen[name] = true
					res.Columns = append(res.Columns, name)
				}
			}
		}
		if err != nil {
			logger.Warn("skipping document", "path", p, "error", err)
			res.Skipped = append(res.Skipped, Skipped{Path: p, Error: err.Error()})
			continue
		}
		logger.Debug("exporting document", "n", n+1, "of", len(paths), "id", rec.ID.String())
		records = append(records, rec)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(res.Columns); err != nil {
		return nil, err
	}
	row := make([]string, len(res.Columns))
	for _, rec := range records {
		row[0] = rec.ID.String()
		for i, name := range res.Columns[1:] {
			v, _ := rec.Value(name)
			row[i+1] = Cell(v)
		}
		if err := cw.Write(row); err != nil {
			return nil, err
		}
		res.Rows++
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, err
	}
	return res, nil
}

// Cell renders a field value for CSV: strings unquoted, null and
// missing values empty, anything else as compact JSON.
func Cell(v json.RawMessage) string {
	v = bytes.TrimSpace(v)
	if len(v) == 0 || bytes.Equal(v, []byte("null")) {
		return ""
	}
	if v[0] == '"' {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			return s
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, v); err != nil {
		return string(v)
	}
	return buf.String()
}
