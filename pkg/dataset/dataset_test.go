package dataset

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synaptica-ai/automl/pkg/common/apperrors"
)

const sampleCSV = "\ufeffage,city,joined,score\n" +
	"34,Paris,2021-01-04,1.5\n" +
	"NA,Berlin,2021-02-11,2.5\n" +
	"51,,2021-03-09,NaN\n" +
	"\n" +
	"28,Paris,2021-04-22,4\n"

func TestReadCSVInfersKinds(t *testing.T) {
	table, err := ReadCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	assert.Equal(t, 4, table.Rows())
	assert.Equal(t, []string{"age", "city", "joined", "score"}, table.Names())

	age, ok := table.Column("age")
	require.True(t, ok)
	assert.Equal(t, KindNumeric, age.Kind)
	assert.True(t, age.IsMissing(1))
	assert.Equal(t, 1, age.MissingCount())

	city, _ := table.Column("city")
	assert.Equal(t, KindCategorical, city.Kind)
	assert.Nil(t, city.Value(2))
	assert.Equal(t, map[string]int{"Paris": 2, "Berlin": 1}, city.ValueCounts())

	joined, _ := table.Column("joined")
	assert.Equal(t, KindTemporal, joined.Kind)

	score, _ := table.Column("score")
	assert.True(t, math.IsNaN(score.Numbers[2]))
}

func TestReadCSVRejectsRaggedRows(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("a,b\n1,2\n3\n"))
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindBadRequest))
}

func TestTableOps(t *testing.T) {
	table, err := NewTable(
		NewNumeric("x", []float64{1, 2, 3}),
		NewCategorical("y", []string{"a", "b", "a"}, nil),
	)
	require.NoError(t, err)

	dropped := table.Drop("y")
	assert.Equal(t, []string{"x"}, dropped.Names())
	assert.Equal(t, 3, table.Drop("x", "y").Rows())

	taken := table.Take([]int{2, 0})
	assert.Equal(t, []interface{}{3.0, 1.0}, []interface{}{taken.Row(0)["x"], taken.Row(1)["x"]})
	assert.Equal(t, table.RowKey(0), table.RowKey(0))
	assert.NotEqual(t, table.RowKey(0), table.RowKey(2))

	_, err = table.Select([]string{"x", "missing"})
	assert.True(t, apperrors.Is(err, apperrors.KindBadRequest))

	_, err = NewTable(NewNumeric("x", []float64{1}), NewNumeric("x", []float64{2}))
	assert.Error(t, err)

	replaced, err := table.With(NewNumeric("x", []float64{9, 9, 9}))
	require.NoError(t, err)
	assert.Equal(t, 9.0, replaced.Row(1)["x"])
	assert.Equal(t, 2.0, table.Row(1)["x"])
}

func TestDetectProblemType(t *testing.T) {
	seq := func(n, mod int) []float64 {
		out := make([]float64, n)
		for i := range out {
			out[i] = float64(i % mod)
		}
		return out
	}
	cases := []struct {
		name string
		col  *Column
		want ProblemType
	}{
		{"few distinct numeric", NewNumeric("t", seq(100, 3)), Classification},
		{"all distinct numeric", NewNumeric("t", seq(100, 100)), Regression},
		{"ratio at threshold", NewNumeric("t", seq(100, 20)), Regression},
		{"ratio below threshold", NewNumeric("t", seq(100, 19)), Classification},
		{"more than fifty distinct", NewNumeric("t", seq(1000, 51)), Regression},
		{"fifty distinct", NewNumeric("t", seq(1000, 50)), Classification},
		{"strings", NewCategorical("t", []string{"a", "b", "c", "d"}, nil), Classification},
		{"no target", nil, Clustering},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DetectFromColumn(tc.col))
		})
	}
}

func TestDetectProblemTypeIgnoresMissingValues(t *testing.T) {
	values := make([]float64, 100)
	for i := range values {
		values[i] = float64(i % 3)
		if i%2 == 0 {
			values[i] = math.NaN()
		}
	}
	table, err := NewTable(NewNumeric("target", values))
	require.NoError(t, err)

	pt, err := DetectProblemType(table, "target")
	require.NoError(t, err)
	assert.Equal(t, Classification, pt)

	pt, err = DetectProblemType(table, "")
	require.NoError(t, err)
	assert.Equal(t, Clustering, pt)

	_, err = DetectProblemType(table, "nope")
	assert.True(t, apperrors.Is(err, apperrors.KindBadRequest))
}

func TestParseProblemType(t *testing.T) {
	pt, err := ParseProblemType(" Regression ")
	require.NoError(t, err)
	assert.Equal(t, Regression, pt)
	assert.True(t, pt.Supervised())

	_, err = ParseProblemType("ranking")
	assert.True(t, apperrors.Is(err, apperrors.KindBadRequest))
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	table, _ := NewTable(NewNumeric("x", []float64{1}))

	require.NoError(t, store.Put(ctx, &Entry{ID: "a", Table: table}))
	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Same(t, table, got.Table)

	entries, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	require.NoError(t, store.Delete(ctx, "a"))
	_, err = store.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrDatasetNotFound)
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
}

func TestDescribeAndPreview(t *testing.T) {
	table, err := ReadCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	info := Describe("f1", table)
	assert.Equal(t, map[string]int{"rows": 4, "columns": 4}, info.Shape)
	assert.Equal(t, 2, info.DTypesSummary["numeric"])
	assert.Equal(t, "categorical", info.Columns[1].DType)
	assert.Equal(t, 1, info.Columns[1].MissingCount)

	preview := MakePreview("f1", table, 2)
	assert.Equal(t, 2, preview.PreviewRows)
	assert.Equal(t, 4, preview.TotalRows)
	assert.Len(t, preview.Data, 2)
}

func TestRowTable(t *testing.T) {
	fields := []Field{
		{Name: "age", Kind: KindNumeric},
		{Name: "city", Kind: KindCategorical},
		{Name: "income", Kind: KindNumeric},
	}
	table, missing, err := RowTable(fields, map[string]interface{}{"age": "41", "city": "Lyon"})
	require.NoError(t, err)
	assert.Equal(t, []string{"income"}, missing)
	assert.Equal(t, 1, table.Rows())
	assert.Equal(t, 41.0, table.Row(0)["age"])
	assert.Nil(t, table.Row(0)["income"])

	_, _, err = RowTable(fields, map[string]interface{}{"age": []int{1}})
	assert.True(t, apperrors.Is(err, apperrors.KindBadRequest))
}
