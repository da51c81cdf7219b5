package datasets

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Table is a dense float32 matrix with named columns, addressed by 0-based
// row position. Tables are read-only once built; Row hands out views into
// the backing buffer, so callers must not write through them.
type Table struct {
	columns []string
	rows    int
	cols    int
	data    []float32
}

// NewTable wraps a row-major buffer. len(data) must be a multiple of
// len(columns).
func NewTable(columns []string, data []float32) (*Table, error) {
	if len(columns) == 0 {
		return nil, errors.Wrap(ErrConfig, "table needs at least one column")
	}
	if len(data)%len(columns) != 0 {
		return nil, errors.Wrapf(ErrConfig, "%d values do not fill %d columns", len(data), len(columns))
	}
	return &Table{
		columns: append([]string(nil), columns...),
		rows:    len(data) / len(columns),
		cols:    len(columns),
		data:    data,
	}, nil
}

// TableFromRows copies rows into a new Table. Column names default to
// c0, c1, ... when columns is nil.
func TableFromRows(columns []string, rows [][]float32) (*Table, error) {
	if columns == nil && len(rows) > 0 {
		columns = defaultColumns(len(rows[0]))
	}
	width := len(columns)
	data := make([]float32, 0, len(rows)*width)
	for i, r := range rows {
		if len(r) != width {
			return nil, errors.Wrapf(ErrConfig, "row %d has %d values, expected %d", i, len(r), width)
		}
		data = append(data, r...)
	}
	return NewTable(columns, data)
}

// Rows is the number of rows.
func (t *Table) Rows() int { return t.rows }

// Cols is the number of columns.
func (t *Table) Cols() int { return t.cols }

// Columns returns a copy of the column names.
func (t *Table) Columns() []string { return append([]string(nil), t.columns...) }

// Row returns a view of row i.
func (t *Table) Row(i int) []float32 {
	return t.data[i*t.cols : (i+1)*t.cols]
}

// At returns the value at row i, column j.
func (t *Table) At(i, j int) float32 {
	return t.data[i*t.cols+j]
}

// LoadTableCSV reads a numeric CSV with a header row into a Table.
func LoadTableCSV(path string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		return nil, errors.Wrapf(err, "read header of %s", path)
	}
	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = strings.TrimSpace(h)
	}

	var data []float32
	for row := 0; ; row++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "%s: row %d", path, row)
		}
		for j, field := range record {
			v, err := parseValue(field)
			if err != nil {
				return nil, errors.Wrapf(err, "%s: row %d column %q", path, row, columns[j])
			}
			data = append(data, v)
		}
	}
	return NewTable(columns, data)
}

func parseValue(s string) (float32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty value")
	}
	v, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return 0, err
	}
	return float32(v), nil
}

func defaultColumns(n int) []string {
	cols := make([]string, n)
	for i := range cols {
		cols[i] = "c" + strconv.Itoa(i)
	}
	return cols
}
