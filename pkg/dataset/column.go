package dataset

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/montanaflynn/stats"
)

type Kind int

const (
	KindNumeric Kind = iota
	KindCategorical
	KindTemporal
)

func (k Kind) String() string {
	switch k {
	case KindNumeric:
		return "numeric"
	case KindTemporal:
		return "temporal"
	default:
		return "categorical"
	}
}

// ParseKind is the inverse of Kind.String; unknown names read as categorical.
func ParseKind(dtype string) Kind {
	switch strings.ToLower(dtype) {
	case "numeric":
		return KindNumeric
	case "temporal":
		return KindTemporal
	default:
		return KindCategorical
	}
}

var missingTokens = map[string]struct{}{
	"": {}, "NA": {}, "N/A": {}, "NaN": {}, "nan": {}, "null": {}, "NULL": {}, "None": {},
}

var temporalLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// IsMissingToken reports whether a raw cell should be read as a missing value.
func IsMissingToken(raw string) bool {
	_, ok := missingTokens[strings.TrimSpace(raw)]
	return ok
}

// Column holds one named column. Numeric columns use Numbers with NaN marking a
// missing cell; categorical and temporal columns use Labels with Present as the mask.
type Column struct {
	Name    string
	Kind    Kind
	Numbers []float64
	Labels  []string
	Present []bool
}

func NewNumeric(name string, values []float64) *Column {
	return &Column{Name: name, Kind: KindNumeric, Numbers: values}
}

// NewCategorical builds a categorical column. A nil present mask marks every cell present.
func NewCategorical(name string, values []string, present []bool) *Column {
	if present == nil {
		present = make([]bool, len(values))
		for i := range present {
			present[i] = true
		}
	}
	return &Column{Name: name, Kind: KindCategorical, Labels: values, Present: present}
}

// ParseColumn infers the column kind from raw text cells.
func ParseColumn(name string, raw []string) *Column {
	numeric, temporal := true, true
	seen := 0
	for _, cell := range raw {
		if IsMissingToken(cell) {
			continue
		}
		seen++
		value := strings.TrimSpace(cell)
		if numeric {
			if _, err := strconv.ParseFloat(value, 64); err != nil {
				numeric = false
			}
		}
		if temporal && !isTemporal(value) {
			temporal = false
		}
		if !numeric && !temporal {
			break
		}
	}

	if numeric {
		values := make([]float64, len(raw))
		for i, cell := range raw {
			if IsMissingToken(cell) {
				values[i] = math.NaN()
				continue
			}
			values[i], _ = strconv.ParseFloat(strings.TrimSpace(cell), 64)
		}
		return NewNumeric(name, values)
	}

	labels := make([]string, len(raw))
	present := make([]bool, len(raw))
	for i, cell := range raw {
		if IsMissingToken(cell) {
			continue
		}
		labels[i] = strings.TrimSpace(cell)
		present[i] = true
	}
	col := NewCategorical(name, labels, present)
	if temporal && seen > 0 {
		col.Kind = KindTemporal
	}
	return col
}

func isTemporal(value string) bool {
	for _, layout := range temporalLayouts {
		if _, err := time.Parse(layout, value); err == nil {
			return true
		}
	}
	return false
}

func (c *Column) Len() int {
	if c.Kind == KindNumeric {
		return len(c.Numbers)
	}
	return len(c.Labels)
}

func (c *Column) IsMissing(i int) bool {
	if c.Kind == KindNumeric {
		return math.IsNaN(c.Numbers[i])
	}
	return !c.Present[i]
}

// Value returns the cell as a float64 or string, or nil when missing.
func (c *Column) Value(i int) interface{} {
	if c.IsMissing(i) {
		return nil
	}
	if c.Kind == KindNumeric {
		return c.Numbers[i]
	}
	return c.Labels[i]
}

// Key renders a cell for hashing and counting; missing cells share one key.
func (c *Column) Key(i int) string {
	if c.IsMissing(i) {
		return "\x00"
	}
	if c.Kind == KindNumeric {
		return strconv.FormatFloat(c.Numbers[i], 'g', -1, 64)
	}
	return c.Labels[i]
}

func (c *Column) MissingCount() int {
	n := 0
	for i := 0; i < c.Len(); i++ {
		if c.IsMissing(i) {
			n++
		}
	}
	return n
}

// Unique counts distinct non-missing values.
func (c *Column) Unique() int {
	seen := make(map[string]struct{})
	for i := 0; i < c.Len(); i++ {
		if !c.IsMissing(i) {
			seen[c.Key(i)] = struct{}{}
		}
	}
	return len(seen)
}

// Observed returns the non-missing numeric values in row order.
func (c *Column) Observed() []float64 {
	out := make([]float64, 0, len(c.Numbers))
	for _, v := range c.Numbers {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// ValueCounts counts non-missing values by key.
func (c *Column) ValueCounts() map[string]int {
	counts := make(map[string]int)
	for i := 0; i < c.Len(); i++ {
		if !c.IsMissing(i) {
			counts[c.Key(i)]++
		}
	}
	return counts
}

func (c *Column) Clone() *Column {
	out := &Column{Name: c.Name, Kind: c.Kind}
	if c.Numbers != nil {
		out.Numbers = append([]float64(nil), c.Numbers...)
	}
	if c.Labels != nil {
		out.Labels = append([]string(nil), c.Labels...)
		out.Present = append([]bool(nil), c.Present...)
	}
	return out
}

func (c *Column) take(rows []int) *Column {
	out := &Column{Name: c.Name, Kind: c.Kind}
	if c.Kind == KindNumeric {
		out.Numbers = make([]float64, len(rows))
		for i, r := range rows {
			out.Numbers[i] = c.Numbers[r]
		}
		return out
	}
	out.Labels = make([]string, len(rows))
	out.Present = make([]bool, len(rows))
	for i, r := range rows {
		out.Labels[i] = c.Labels[r]
		out.Present[i] = c.Present[r]
	}
	return out
}

// IQRBounds returns Q1-factor*IQR and Q3+factor*IQR over the observed values.
// ok is false when fewer than two values are observed or the IQR is zero.
func (c *Column) IQRBounds(factor float64) (lower, upper float64, ok bool) {
	observed := c.Observed()
	if len(observed) < 2 {
		return 0, 0, false
	}
	q, err := stats.Quartile(observed)
	if err != nil {
		return 0, 0, false
	}
	iqr := q.Q3 - q.Q1
	if iqr == 0 {
		return 0, 0, false
	}
	return q.Q1 - factor*iqr, q.Q3 + factor*iqr, true
}

// Mode returns the most frequent non-missing key; ties go to the smallest key.
func (c *Column) Mode() (string, bool) {
	best, bestCount := "", 0
	for key, n := range c.ValueCounts() {
		if n > bestCount || (n == bestCount && key < best) {
			best, bestCount = key, n
		}
	}
	return best, bestCount > 0
}
