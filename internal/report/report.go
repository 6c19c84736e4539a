// Package report renders per-target aggregates as console text and exports
// them as JSON, CSV or XLSX.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/tract-apportion/internal/apportion"
)

// Report is the aggregate table of one run.
type Report struct {
	RunID  string   `json:"run_id,omitempty"`
	Fields []string `json:"fields"`
	Rows   []Row    `json:"rows"`
}

// Row holds one target's sums, ordered like Report.Fields.
type Row struct {
	ID     string    `json:"id"`
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

// New builds a report from aggregates. Fields missing from an aggregate
// report 0.
func New(runID string, fields []string, aggs []apportion.TargetAggregate) *Report {
	r := &Report{RunID: runID, Fields: append([]string(nil), fields...), Rows: make([]Row, len(aggs))}
	for i, a := range aggs {
		vals := make([]float64, len(fields))
		for j, f := range fields {
			vals[j] = a.Values[f]
		}
		r.Rows[i] = Row{ID: a.Target.ID, Name: a.Target.Name, Values: vals}
	}
	return r
}

var printer = message.NewPrinter(language.English)

// FormatCount rounds v to the nearest integer, ties to even, and groups
// thousands: 1234.6 becomes "1,235", 1234.5 becomes "1,234".
func FormatCount(v float64) string {
	return printer.Sprintf("%d", int64(math.RoundToEven(v)))
}

// WriteText prints each target followed by its fields:
//
//	Location: Springfield (ID: 5):
//	  Population Est CrYr: 1,234
func (r *Report) WriteText(w io.Writer) error {
	for _, row := range r.Rows {
		if _, err := fmt.Fprintf(w, "Location: %s (ID: %s):\n", row.Name, row.ID); err != nil {
			return eris.Wrap(err, "report: write text")
		}
		for j, f := range r.Fields {
			if _, err := fmt.Fprintf(w, "  %s: %s\n", f, FormatCount(row.Values[j])); err != nil {
				return eris.Wrap(err, "report: write text")
			}
		}
	}
	return nil
}

// WriteJSON writes the report as an indented JSON document.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(r), "report: encode json")
}

func (r *Report) header() []string {
	return append([]string{"id", "name"}, r.Fields...)
}

// WriteCSV writes a header row then one row per target.
func (r *Report) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(r.header()); err != nil {
		return eris.Wrap(err, "report: write csv header")
	}
	for _, row := range r.Rows {
		rec := make([]string, 0, len(row.Values)+2)
		rec = append(rec, row.ID, row.Name)
		for _, v := range row.Values {
			rec = append(rec, strconv.FormatFloat(v, 'f', -1, 64))
		}
		if err := cw.Write(rec); err != nil {
			return eris.Wrap(err, "report: write csv row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "report: flush csv")
}

// SaveXLSX writes the report to a single-sheet workbook.
func (r *Report) SaveXLSX(path string) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("aggregates")
	if err != nil {
		return eris.Wrap(err, "report: add sheet")
	}

	head := sheet.AddRow()
	for _, h := range r.header() {
		head.AddCell().SetString(h)
	}
	for _, row := range r.Rows {
		xr := sheet.AddRow()
		xr.AddCell().SetString(row.ID)
		xr.AddCell().SetString(row.Name)
		for _, v := range row.Values {
			xr.AddCell().SetFloat(v)
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "report: save %s", path)
	}
	return nil
}

// Export writes the report to path, choosing the format from the extension
// (.json, .csv, .xlsx or .txt).
func (r *Report) Export(path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".xlsx" {
		return r.SaveXLSX(path)
	}

	var write func(io.Writer) error
	switch ext {
	case ".json":
		write = r.WriteJSON
	case ".csv":
		write = r.WriteCSV
	case ".txt":
		write = r.WriteText
	default:
		return eris.Errorf("report: unsupported export type %q (want .json, .csv, .xlsx or .txt)", path)
	}

	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "report: create %s", path)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	return eris.Wrapf(f.Close(), "report: close %s", path)
}
