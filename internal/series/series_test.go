package series

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func day(i int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
}

func TestNewRejectsUnorderedDates(t *testing.T) {
	_, err := New("px", []Point{{Date: day(1), Value: 1}, {Date: day(1), Value: 2}})
	var dae *DataAlignmentError
	require.True(t, errors.As(err, &dae))
	assert.Equal(t, "px", dae.Series)
}

func TestForwardFillRespectsMaxGap(t *testing.T) {
	nan := math.NaN()
	s, err := FromSlices("x", []time.Time{day(0), day(1), day(2), day(3), day(4), day(5), day(6)},
		[]float64{1, nan, 2, nan, nan, nan, 3})
	require.NoError(t, err)

	filled := s.ForwardFill(2).Values()
	assert.Equal(t, 1.0, filled[1])
	// the three-day gap is wider than the policy and stays missing
	assert.True(t, math.IsNaN(filled[3]))
	assert.True(t, math.IsNaN(filled[5]))
	assert.Equal(t, 3.0, filled[6])

	// original is untouched
	assert.True(t, math.IsNaN(s.Values()[1]))
}

func TestAlignOuterJoinAndIntersect(t *testing.T) {
	a, _ := FromSlices("a", []time.Time{day(0), day(1), day(2)}, []float64{1, 2, 3})
	b, _ := FromSlices("b", []time.Time{day(1), day(2), day(3)}, []float64{10, 20, 30})

	f, err := Align(a, b)
	require.NoError(t, err)
	require.Equal(t, 4, f.Len())

	colB, err := f.Column("b")
	require.NoError(t, err)
	assert.True(t, math.IsNaN(colB[0]))

	r, err := f.Intersect("a", "b")
	require.NoError(t, err)
	assert.Equal(t, []time.Time{day(1), day(2)}, r.Dates)

	_, err = f.Column("c")
	var dae *DataAlignmentError
	require.True(t, errors.As(err, &dae))
	assert.Equal(t, "c", dae.Column)
}

func TestIntersectNoOverlap(t *testing.T) {
	a, _ := FromSlices("a", []time.Time{day(0)}, []float64{1})
	b, _ := FromSlices("b", []time.Time{day(5)}, []float64{2})
	f, err := Align(a, b)
	require.NoError(t, err)

	_, err = f.Intersect("a", "b")
	var dae *DataAlignmentError
	require.True(t, errors.As(err, &dae))
	assert.Contains(t, dae.Error(), "no overlapping dates")
}

func TestLoadTableCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "market.csv")
	body := "Date,Price,Credit\n2024-01-03,101,NA\n2024-01-02,100,450\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	tbl, err := LoadTable(context.Background(), path)
	require.NoError(t, err)

	px, err := tbl.Series("price", "date", "price")
	require.NoError(t, err)
	assert.Equal(t, []float64{100, 101}, px.Values())
	assert.Equal(t, day(1), px.Points[0].Date)

	cr, err := tbl.Series("credit", "Date", "Credit")
	require.NoError(t, err)
	assert.True(t, math.IsNaN(cr.Values()[1]))

	_, err = tbl.Series("vix", "Date", "VIX")
	var dae *DataAlignmentError
	require.True(t, errors.As(err, &dae))
}

func TestLoadTableXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sleeve.xlsx")
	wb := excelize.NewFile()
	require.NoError(t, wb.SetCellValue("Sheet1", "A1", "date"))
	require.NoError(t, wb.SetCellValue("Sheet1", "B1", "position"))
	require.NoError(t, wb.SetCellValue("Sheet1", "A2", "2024-01-02"))
	require.NoError(t, wb.SetCellValue("Sheet1", "B2", "0.5"))
	require.NoError(t, wb.SetCellValue("Sheet1", "A3", "2024-01-03"))
	require.NoError(t, wb.SetCellValue("Sheet1", "B3", "-1"))
	require.NoError(t, wb.SaveAs(path))
	require.NoError(t, wb.Close())

	tbl, err := LoadTable(context.Background(), path)
	require.NoError(t, err)

	pos, err := tbl.Series("trend", "date", "position")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, -1}, pos.Values())
}

func TestLabels(t *testing.T) {
	tbl := &Table{
		Source: "chop",
		Header: []string{"date", "chop_regime"},
		Rows:   [][]string{{"2024-01-03", "HIGH_CHOP"}, {"2024-01-02", "NORMAL"}},
	}
	l, err := tbl.Labels("chop", "date", "chop_regime")
	require.NoError(t, err)
	assert.Equal(t, []string{"NORMAL", "HIGH_CHOP"}, l.Values)

	v, ok := l.At(day(2))
	assert.True(t, ok)
	assert.Equal(t, "HIGH_CHOP", v)
	_, ok = l.At(day(9))
	assert.False(t, ok)
}
