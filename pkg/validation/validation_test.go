package validation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synaptica-ai/automl/pkg/common/apperrors"
	"github.com/synaptica-ai/automl/pkg/dataset"
	"github.com/synaptica-ai/automl/pkg/dataset/datasettest"
)

func dirtyTable(t *testing.T) *dataset.Table {
	t.Helper()
	table, err := dataset.NewTable(
		dataset.NewNumeric("x", []float64{1, 2, 2, 3, 4, math.NaN(), 3, 2, 500, 5}),
		dataset.NewCategorical("c", []string{"a", "b", "b", "a", "", "a", "b", "b", "a", "b"},
			[]bool{true, true, true, true, false, true, true, true, true, true}),
		dataset.NewNumeric("y", []float64{0, 1, 1, 0, 1, 0, 1, 1, 0, 1}),
	)
	require.NoError(t, err)
	return table
}

func TestValidateDiagnostics(t *testing.T) {
	report, err := Validate(dirtyTable(t), "y")
	require.NoError(t, err)

	assert.Equal(t, [2]int{10, 3}, report.Basic.Shape)
	assert.Equal(t, 2, report.Basic.DuplicateRows)
	assert.Equal(t, 1, report.Missing.Columns["x"].MissingCount)
	assert.InDelta(t, 10.0, report.Missing.Columns["c"].MissingPercentage, 1e-9)
	assert.Equal(t, 2, report.Missing.TotalMissing)
	assert.Equal(t, 1, report.Outliers["x"].Count)
	assert.True(t, report.DataTypes["x"].IsNumeric)

	require.NotNil(t, report.Target)
	assert.Equal(t, 2, report.Target.UniqueValues)
	assert.Equal(t, ValueCount{Value: "1", Count: 6}, report.Target.TopValues[0])
	assert.True(t, report.IsValid)

	plan := report.CleaningPlan
	assert.True(t, plan.ChangesRequired)
	assert.True(t, plan.DropDuplicates)
	assert.Contains(t, plan.ImputeNumeric, "x")
	assert.Equal(t, "b", plan.ImputeCategorical["c"])
	assert.Contains(t, plan.CapOutliers, "x")
	assert.NotEmpty(t, report.Warnings)
}

func TestValidateUnknownTarget(t *testing.T) {
	_, err := Validate(dirtyTable(t), "missing")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindBadRequest))
}

func TestValidateEmptyAndAllMissingTarget(t *testing.T) {
	empty, err := dataset.NewTable()
	require.NoError(t, err)
	report, err := Validate(empty, "")
	require.NoError(t, err)
	assert.False(t, report.IsValid)

	table, err := dataset.NewTable(
		dataset.NewNumeric("x", []float64{1, 2, 3}),
		dataset.NewNumeric("y", []float64{math.NaN(), math.NaN(), math.NaN()}),
	)
	require.NoError(t, err)
	report, err = Validate(table, "y")
	require.NoError(t, err)
	assert.False(t, report.IsValid)
	assert.Contains(t, report.Warnings, "Target column 'y' has >50% missing values")
}

func TestApplyCleaning(t *testing.T) {
	table := dirtyTable(t)
	report, err := Validate(table, "y")
	require.NoError(t, err)

	cleaned, summary := ApplyCleaning(table, report.CleaningPlan)
	assert.Equal(t, 2, summary.MissingImputed)
	assert.GreaterOrEqual(t, summary.OutliersCapped, 1)
	assert.GreaterOrEqual(t, summary.DuplicatesRemoved, 2)
	assert.Equal(t, cleaned.Rows(), summary.RowsAfter)
	assert.Equal(t, 10, table.Rows(), "input table must not be modified")

	x, _ := cleaned.Column("x")
	assert.Zero(t, x.MissingCount())
	assert.Less(t, x.Numbers[len(x.Numbers)-1], 500.0)
}

func TestCleaningIsIdempotent(t *testing.T) {
	tables := map[string]*dataset.Table{
		"dirty":      dirtyTable(t),
		"gappy":      datasettest.WithGaps(datasettest.WithGaps(datasettest.Regression(200, 3), "a", 7), "grp", 5),
		"categories": datasettest.WithGaps(datasettest.Classification(150, 9), "color", 4),
	}
	for name, table := range tables {
		t.Run(name, func(t *testing.T) {
			first, err := Validate(table, "")
			require.NoError(t, err)
			cleaned, _ := ApplyCleaning(table, first.CleaningPlan)

			second, err := Validate(cleaned, "")
			require.NoError(t, err)
			assert.False(t, second.CleaningPlan.ChangesRequired)

			again, summary := ApplyCleaning(cleaned, second.CleaningPlan)
			assert.Equal(t, CleaningSummary{RowsBefore: cleaned.Rows(), RowsAfter: cleaned.Rows()}, summary)
			assert.Equal(t, cleaned.Records(), again.Records())
		})
	}
}
