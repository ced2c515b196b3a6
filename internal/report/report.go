// Package report renders quality statistics as a text table, JSON or an
// XLSX workbook.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/keying-qc/internal/model"
)

// Formats supported by Write.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatXLSX  = "xlsx"
)

// SheetName is the worksheet the XLSX export writes to.
const SheetName = "Quality Stats"

var header = []string{
	"DATE", "LEVEL", "TYPE", "THRESHOLD", "ERRORS", "KEYING", "SAMPLE", "RATE", "PASSED", "FC_VERSIONS", "TH_VERSIONS",
}

// Write renders rows in format.
func Write(w io.Writer, format string, rows []model.StatRow) error {
	switch format {
	case FormatTable, "":
		return Table(w, rows)
	case FormatJSON:
		return JSON(w, rows)
	case FormatXLSX:
		return XLSX(w, rows)
	}
	return eris.Errorf("report: unknown format %q", format)
}

// Table writes rows as aligned text columns.
func Table(out io.Writer, rows []model.StatRow) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for i, h := range header {
		sep := "\t"
		if i == len(header)-1 {
			sep = "\n"
		}
		_, _ = fmt.Fprint(w, h+sep)
	}
	for _, r := range rows {
		cells := cells(r)
		for i, c := range cells {
			sep := "\t"
			if i == len(cells)-1 {
				sep = "\n"
			}
			_, _ = fmt.Fprint(w, c+sep)
		}
	}
	return eris.Wrap(w.Flush(), "report: flush table")
}

// JSON writes rows as an indented JSON array.
func JSON(w io.Writer, rows []model.StatRow) error {
	if rows == nil {
		rows = []model.StatRow{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(rows), "report: encode json")
}

// XLSX writes rows to a single-sheet workbook. Numeric columns are written as
// numbers.
func XLSX(w io.Writer, rows []model.StatRow) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetName)
	if err != nil {
		return eris.Wrap(err, "report: add sheet")
	}

	hr := sheet.AddRow()
	for _, h := range header {
		hr.AddCell().SetString(h)
	}

	for _, r := range rows {
		row := sheet.AddRow()
		row.AddCell().SetString(r.ImportedDate)
		row.AddCell().SetString(string(r.ReportLevel))
		row.AddCell().SetString(r.ThresholdType)
		if r.ThresholdValue != nil {
			row.AddCell().SetFloat(*r.ThresholdValue)
		} else {
			row.AddCell().SetString("")
		}
		row.AddCell().SetInt(r.TotalError)
		row.AddCell().SetInt(r.TotalKeying)
		row.AddCell().SetInt(r.TotalSample)
		row.AddCell().SetFloat(r.ErrorRate)
		row.AddCell().SetString(passed(r.Passed))
		row.AddCell().SetString(joinInts(r.FieldConfigVersions))
		row.AddCell().SetString(joinInts(r.ThresholdVersions))
	}

	return eris.Wrap(f.Write(w), "report: write xlsx")
}

func cells(r model.StatRow) []string {
	threshold := ""
	if r.ThresholdValue != nil {
		threshold = strconv.FormatFloat(*r.ThresholdValue, 'f', -1, 64)
	}
	return []string{
		r.ImportedDate,
		string(r.ReportLevel),
		r.ThresholdType,
		threshold,
		strconv.Itoa(r.TotalError),
		strconv.Itoa(r.TotalKeying),
		strconv.Itoa(r.TotalSample),
		strconv.FormatFloat(r.ErrorRate, 'f', 2, 64),
		passed(r.Passed),
		joinInts(r.FieldConfigVersions),
		joinInts(r.ThresholdVersions),
	}
}

func passed(p *bool) string {
	switch {
	case p == nil:
		return "-"
	case *p:
		return "yes"
	default:
		return "no"
	}
}

func joinInts(vs []int) string {
	s := ""
	for i, v := range vs {
		if i > 0 {
			s += ","
		}
		s += strconv.Itoa(v)
	}
	return s
}
