package dataset

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/synaptica-ai/automl/pkg/common/apperrors"
)

const MaxPreviewRows = 1000

type ColumnInfo struct {
	Name         string      `json:"name"`
	DType        string      `json:"dtype"`
	UniqueCount  int         `json:"unique_count"`
	MissingCount int         `json:"missing_count"`
	ExampleValue interface{} `json:"example_value"`
}

type Info struct {
	FileID        string         `json:"file_id"`
	Columns       []ColumnInfo   `json:"columns"`
	Shape         map[string]int `json:"shape"`
	DTypesSummary map[string]int `json:"dtypes_summary"`
}

type Preview struct {
	FileID      string                   `json:"file_id"`
	Columns     []string                 `json:"columns"`
	Data        []map[string]interface{} `json:"data"`
	TotalRows   int                      `json:"total_rows"`
	PreviewRows int                      `json:"preview_rows"`
}

// Field names a raw column and its kind.
type Field struct {
	Name    string      `json:"name"`
	DType   string      `json:"dtype"`
	Example interface{} `json:"example"`
	Kind    Kind        `json:"-"`
}

// SchemaOf describes the named columns of t, taking the first non-missing
// cell of each as its example.
func SchemaOf(t *Table, names []string) ([]Field, error) {
	fields := make([]Field, 0, len(names))
	for _, name := range names {
		col, ok := t.Column(name)
		if !ok {
			return nil, apperrors.BadRequest("column '%s' not found in dataset", name)
		}
		field := Field{Name: name, DType: col.Kind.String(), Kind: col.Kind}
		for i := 0; i < col.Len(); i++ {
			if !col.IsMissing(i) {
				field.Example = col.Value(i)
				break
			}
		}
		fields = append(fields, field)
	}
	return fields, nil
}

func Describe(id string, t *Table) Info {
	info := Info{
		FileID:        id,
		Shape:         map[string]int{"rows": t.Rows(), "columns": t.Width()},
		DTypesSummary: make(map[string]int),
	}
	for _, col := range t.Columns() {
		var example interface{}
		if t.Rows() > 0 {
			example = col.Value(0)
		}
		info.Columns = append(info.Columns, ColumnInfo{
			Name:         col.Name,
			DType:        col.Kind.String(),
			UniqueCount:  col.Unique(),
			MissingCount: col.MissingCount(),
			ExampleValue: example,
		})
		info.DTypesSummary[col.Kind.String()]++
	}
	return info
}

func MakePreview(id string, t *Table, rows int) Preview {
	if rows <= 0 || rows > MaxPreviewRows {
		rows = MaxPreviewRows
	}
	head := t.Head(rows)
	return Preview{
		FileID:      id,
		Columns:     t.Names(),
		Data:        head.Records(),
		TotalRows:   t.Rows(),
		PreviewRows: head.Rows(),
	}
}

// RowTable builds a single-row table over the given fields from loosely typed
// inputs. Fields absent from values become missing cells and are reported.
func RowTable(fields []Field, values map[string]interface{}) (*Table, []string, error) {
	var missing []string
	columns := make([]*Column, 0, len(fields))
	for _, f := range fields {
		raw, ok := values[f.Name]
		if !ok || raw == nil {
			missing = append(missing, f.Name)
		}
		switch f.Kind {
		case KindNumeric:
			v := math.NaN()
			if ok && raw != nil {
				parsed, err := toFloat(raw)
				if err != nil {
					return nil, nil, apperrors.BadRequest("feature %q: %w", f.Name, err)
				}
				v = parsed
			}
			columns = append(columns, NewNumeric(f.Name, []float64{v}))
		default:
			label, present := "", false
			if ok && raw != nil {
				label, present = toLabel(raw), true
				if IsMissingToken(label) {
					label, present = "", false
				}
			}
			col := NewCategorical(f.Name, []string{label}, []bool{present})
			col.Kind = f.Kind
			columns = append(columns, col)
		}
	}
	table, err := NewTable(columns...)
	if err != nil {
		return nil, nil, err
	}
	if len(columns) == 0 {
		table.rows = 1
	}
	return table, missing, nil
}

func toFloat(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case json.Number:
		return v.Float64()
	case string:
		if IsMissingToken(v) {
			return math.NaN(), nil
		}
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	default:
		return 0, fmt.Errorf("unsupported type %T", value)
	}
}

func toLabel(value interface{}) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
