package series

import (
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"
)

// DateLayout is the canonical date format for inputs and outputs.
const DateLayout = "2006-01-02"

var dateLayouts = []string{
	DateLayout,
	"2006-01-02 15:04:05",
	time.RFC3339,
	"01/02/2006",
	"2006/01/02",
}

// Table is a raw tabular input: a header row and string cells.
type Table struct {
	Source string
	Header []string
	Rows   [][]string
}

// LoadTable reads a CSV or XLSX file. The extension selects the format; for
// workbooks the first sheet is used.
func LoadTable(ctx context.Context, path string) (*Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		rows, err = readWorkbook(path)
	default:
		rows, err = readCSV(path)
	}
	if err != nil {
		return nil, &DataAlignmentError{Series: path, Reason: "cannot read input", Err: err}
	}
	if len(rows) == 0 {
		return nil, &DataAlignmentError{Series: path, Reason: "input is empty"}
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.TrimSpace(h)
	}

	log.Debug().Str("path", path).Int("rows", len(rows)-1).Strs("columns", header).Msg("Loaded input table")
	return &Table{Source: path, Header: header, Rows: rows[1:]}, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	return r.ReadAll()
}

func readWorkbook(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	return f.GetRows(sheets[0])
}

func (t *Table) columnIndex(name string) (int, error) {
	for i, h := range t.Header {
		if strings.EqualFold(h, name) {
			return i, nil
		}
	}
	return -1, &DataAlignmentError{Series: t.Source, Column: name, Reason: "required column absent"}
}

// HasColumn reports whether the header names the column.
func (t *Table) HasColumn(name string) bool {
	_, err := t.columnIndex(name)
	return err == nil
}

// Series extracts a numeric column keyed by the date column. Blank and
// NA-style cells become NaN.
func (t *Table) Series(name, dateCol, valueCol string) (TimeSeries, error) {
	di, err := t.columnIndex(dateCol)
	if err != nil {
		return TimeSeries{}, err
	}
	vi, err := t.columnIndex(valueCol)
	if err != nil {
		return TimeSeries{}, err
	}

	dates := make([]time.Time, 0, len(t.Rows))
	values := make([]float64, 0, len(t.Rows))
	for n, row := range t.Rows {
		if di >= len(row) || strings.TrimSpace(row[di]) == "" {
			continue
		}
		d, err := ParseDate(row[di])
		if err != nil {
			return TimeSeries{}, &DataAlignmentError{Series: t.Source, Column: dateCol, Reason: fmt.Sprintf("row %d", n+2), Err: err}
		}
		v := math.NaN()
		if vi < len(row) {
			if v, err = parseCell(row[vi]); err != nil {
				return TimeSeries{}, &DataAlignmentError{Series: t.Source, Column: valueCol, Reason: fmt.Sprintf("row %d", n+2), Err: err}
			}
		}
		dates = append(dates, d)
		values = append(values, v)
	}
	return FromSlices(name, dates, values)
}

// Labels extracts a categorical column keyed by the date column.
func (t *Table) Labels(name, dateCol, labelCol string) (Labels, error) {
	di, err := t.columnIndex(dateCol)
	if err != nil {
		return Labels{}, err
	}
	li, err := t.columnIndex(labelCol)
	if err != nil {
		return Labels{}, err
	}

	pts := make([]Point, 0, len(t.Rows))
	byDate := make(map[int64]string, len(t.Rows))
	for n, row := range t.Rows {
		if di >= len(row) || strings.TrimSpace(row[di]) == "" {
			continue
		}
		d, err := ParseDate(row[di])
		if err != nil {
			return Labels{}, &DataAlignmentError{Series: t.Source, Column: dateCol, Reason: fmt.Sprintf("row %d", n+2), Err: err}
		}
		label := ""
		if li < len(row) {
			label = strings.TrimSpace(row[li])
		}
		pts = append(pts, Point{Date: d})
		byDate[d.UnixNano()] = label
	}

	ts, err := FromSlices(name, pointDates(pts), make([]float64, len(pts)))
	if err != nil {
		return Labels{}, err
	}
	out := Labels{Name: name, Dates: ts.Dates(), Values: make([]string, ts.Len())}
	for i, d := range out.Dates {
		out.Values[i] = byDate[d.UnixNano()]
	}
	return out, nil
}

func pointDates(pts []Point) []time.Time {
	out := make([]time.Time, len(pts))
	for i, p := range pts {
		out[i] = p.Date
	}
	return out
}

// ParseDate accepts the common date layouts found in exported market data.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return d.UTC().Truncate(24 * time.Hour), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

func parseCell(s string) (float64, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "na", "n/a", "nan", "null", "#n/a":
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}
