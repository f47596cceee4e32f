package dataset

import (
	"fmt"
	"strings"

	"github.com/synaptica-ai/automl/pkg/common/apperrors"
)

// Table is an ordered set of equally sized columns.
type Table struct {
	columns []*Column
	index   map[string]int
	rows    int
}

func NewTable(columns ...*Column) (*Table, error) {
	t := &Table{index: make(map[string]int, len(columns))}
	for i, col := range columns {
		if _, dup := t.index[col.Name]; dup {
			return nil, apperrors.BadRequest("duplicate column %q", col.Name)
		}
		if i == 0 {
			t.rows = col.Len()
		} else if col.Len() != t.rows {
			return nil, apperrors.BadRequest("column %q has %d rows, expected %d", col.Name, col.Len(), t.rows)
		}
		t.index[col.Name] = i
		t.columns = append(t.columns, col)
	}
	return t, nil
}

func (t *Table) Rows() int {
	return t.rows
}

func (t *Table) Width() int {
	return len(t.columns)
}

func (t *Table) Empty() bool {
	return t.rows == 0 || len(t.columns) == 0
}

func (t *Table) Columns() []*Column {
	return t.columns
}

func (t *Table) Names() []string {
	names := make([]string, len(t.columns))
	for i, col := range t.columns {
		names[i] = col.Name
	}
	return names
}

func (t *Table) Column(name string) (*Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.columns[i], true
}

func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Drop returns a table without the named columns. Columns are shared, not copied.
func (t *Table) Drop(names ...string) *Table {
	skip := make(map[string]struct{}, len(names))
	for _, n := range names {
		skip[n] = struct{}{}
	}
	kept := make([]*Column, 0, len(t.columns))
	for _, col := range t.columns {
		if _, ok := skip[col.Name]; !ok {
			kept = append(kept, col)
		}
	}
	out, _ := NewTable(kept...)
	if len(kept) == 0 {
		out.rows = t.rows
	}
	return out
}

// Select returns the named columns in the requested order.
func (t *Table) Select(names []string) (*Table, error) {
	cols := make([]*Column, 0, len(names))
	for _, n := range names {
		col, ok := t.Column(n)
		if !ok {
			return nil, apperrors.BadRequest("column %q not found in dataset", n)
		}
		cols = append(cols, col)
	}
	return NewTable(cols...)
}

// Take returns a copy holding only the given rows, in the given order.
func (t *Table) Take(rows []int) *Table {
	cols := make([]*Column, len(t.columns))
	for i, col := range t.columns {
		cols[i] = col.take(rows)
	}
	out, _ := NewTable(cols...)
	out.rows = len(rows)
	return out
}

func (t *Table) Head(n int) *Table {
	if n > t.rows {
		n = t.rows
	}
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	return t.Take(rows)
}

func (t *Table) Clone() *Table {
	cols := make([]*Column, len(t.columns))
	for i, col := range t.columns {
		cols[i] = col.Clone()
	}
	out, _ := NewTable(cols...)
	out.rows = t.rows
	return out
}

// Row returns the i-th row keyed by column name; missing cells are nil.
func (t *Table) Row(i int) map[string]interface{} {
	row := make(map[string]interface{}, len(t.columns))
	for _, col := range t.columns {
		row[col.Name] = col.Value(i)
	}
	return row
}

// Records returns every row as a map, in row order.
func (t *Table) Records() []map[string]interface{} {
	out := make([]map[string]interface{}, t.rows)
	for i := range out {
		out[i] = t.Row(i)
	}
	return out
}

// RowKey renders a full row for duplicate detection.
func (t *Table) RowKey(i int) string {
	var b strings.Builder
	for j, col := range t.columns {
		if j > 0 {
			b.WriteByte('\x1f')
		}
		b.WriteString(col.Key(i))
	}
	return b.String()
}

func (t *Table) String() string {
	return fmt.Sprintf("Table(%d rows x %d columns)", t.rows, len(t.columns))
}

// With returns a table where col replaces the column of the same name, or is
// appended when no such column exists.
func (t *Table) With(col *Column) (*Table, error) {
	cols := append([]*Column(nil), t.columns...)
	if i, ok := t.index[col.Name]; ok {
		cols[i] = col
	} else {
		cols = append(cols, col)
	}
	return NewTable(cols...)
}
