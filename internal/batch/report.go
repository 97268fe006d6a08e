package batch

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// CSVHeader is the first row written by WriteCSV.
var CSVHeader = []string{"collection", "id", "model", "status", "elapsed_ms", "error"}

// WriteCSV writes one row per object result.
func WriteCSV(w io.Writer, r *Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, c := range r.Collections {
		for _, o := range c.Objects {
			status := "ok"
			if !o.OK {
				status = "failed:" + string(o.Kind)
			} else if o.Changed {
				status = "updated"
			}
			row := []string{
				c.Collection,
				o.ID,
				o.Model,
				status,
				strconv.FormatFloat(float64(o.Elapsed.Microseconds())/1000, 'f', 3, 64),
				o.Error,
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// WriteJSON writes the result as indented JSON.
func WriteJSON(w io.Writer, r *Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
