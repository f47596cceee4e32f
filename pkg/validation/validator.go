package validation

import (
	"fmt"
	"sort"

	"github.com/montanaflynn/stats"

	"github.com/synaptica-ai/automl/pkg/common/apperrors"
	"github.com/synaptica-ai/automl/pkg/dataset"
)

// Validate computes data-quality diagnostics for the table. A non-empty target
// that is not a column of the table is a bad request.
func Validate(t *dataset.Table, target string) (*Report, error) {
	if target != "" && !t.Has(target) {
		return nil, apperrors.BadRequest("target column '%s' not found in dataset", target)
	}

	r := &Report{
		DataTypes: make(map[string]DTypeInfo, t.Width()),
		Outliers:  make(map[string]OutlierInfo),
		Warnings:  []string{},
	}
	r.Basic = BasicChecks{IsEmpty: t.Empty(), Shape: [2]int{t.Rows(), t.Width()}}
	if r.Basic.IsEmpty {
		r.Warnings = append(r.Warnings, "Dataset is empty")
	}
	r.Basic.DuplicateRows = len(duplicateRows(t))
	if r.Basic.DuplicateRows > 0 {
		r.Warnings = append(r.Warnings, fmt.Sprintf("Found %d duplicate rows", r.Basic.DuplicateRows))
	}

	r.Missing = MissingSummary{Columns: make(map[string]ColumnMissing, t.Width())}
	for _, col := range t.Columns() {
		r.DataTypes[col.Name] = DTypeInfo{
			DType:        col.Kind.String(),
			IsNumeric:    col.Kind == dataset.KindNumeric,
			UniqueValues: col.Unique(),
		}

		missing := col.MissingCount()
		pct := percent(missing, t.Rows())
		r.Missing.Columns[col.Name] = ColumnMissing{MissingCount: missing, MissingPercentage: pct}
		r.Missing.TotalMissing += missing
		if pct > 50 {
			r.Warnings = append(r.Warnings, fmt.Sprintf("Column '%s' has %.1f%% missing values", col.Name, pct))
		}

		if col.Kind == dataset.KindNumeric {
			if lower, upper, ok := col.IQRBounds(OutlierFactor); ok {
				r.Outliers[col.Name] = OutlierInfo{Count: countOutside(col.Numbers, lower, upper), Lower: lower, Upper: upper}
			}
		}
	}
	r.Missing.PercentageOverall = percent(r.Missing.TotalMissing, t.Rows()*t.Width())

	if target != "" {
		col, _ := t.Column(target)
		r.Target = describeTarget(col, t.Rows())
		if float64(r.Target.MissingValues) > 0.5*float64(t.Rows()) {
			r.Warnings = append(r.Warnings, fmt.Sprintf("Target column '%s' has >50%% missing values", target))
		}
	}

	r.IsValid = !r.Basic.IsEmpty && (r.Target == nil || r.Target.MissingValues < t.Rows())
	r.CleaningPlan = planCleaning(t, r)
	return r, nil
}

func describeTarget(col *dataset.Column, rows int) *TargetInfo {
	info := &TargetInfo{
		Name:          col.Name,
		Exists:        true,
		DType:         col.Kind.String(),
		UniqueValues:  col.Unique(),
		MissingValues: col.MissingCount(),
	}
	if rows > 0 {
		info.MissingRatio = float64(info.MissingValues) / float64(rows)
	}
	for value, n := range col.ValueCounts() {
		info.TopValues = append(info.TopValues, ValueCount{Value: value, Count: n})
	}
	sort.Slice(info.TopValues, func(i, j int) bool {
		a, b := info.TopValues[i], info.TopValues[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Value < b.Value
	})
	if len(info.TopValues) > topValueLimit {
		info.TopValues = info.TopValues[:topValueLimit]
	}
	return info
}

func planCleaning(t *dataset.Table, r *Report) CleaningPlan {
	plan := CleaningPlan{
		DropDuplicates:    r.Basic.DuplicateRows > 0,
		ImputeNumeric:     make(map[string]float64),
		ImputeCategorical: make(map[string]string),
		CapOutliers:       make(map[string]Bounds),
	}
	for _, col := range t.Columns() {
		if col.Kind == dataset.KindNumeric {
			if col.MissingCount() > 0 {
				if mean, err := stats.Mean(col.Observed()); err == nil {
					plan.ImputeNumeric[col.Name] = mean
				}
			}
			if info, ok := r.Outliers[col.Name]; ok && info.Count > 0 {
				plan.CapOutliers[col.Name] = Bounds{Lower: info.Lower, Upper: info.Upper}
			}
			continue
		}
		if col.MissingCount() > 0 {
			if mode, ok := col.Mode(); ok {
				plan.ImputeCategorical[col.Name] = mode
			}
		}
	}
	plan.ChangesRequired = plan.DropDuplicates || len(plan.ImputeNumeric) > 0 ||
		len(plan.ImputeCategorical) > 0 || len(plan.CapOutliers) > 0
	return plan
}

func duplicateRows(t *dataset.Table) []int {
	if t.Width() == 0 {
		return nil
	}
	seen := make(map[string]struct{}, t.Rows())
	var dups []int
	for i := 0; i < t.Rows(); i++ {
		key := t.RowKey(i)
		if _, ok := seen[key]; ok {
			dups = append(dups, i)
			continue
		}
		seen[key] = struct{}{}
	}
	return dups
}

func countOutside(values []float64, lower, upper float64) int {
	n := 0
	for _, v := range values {
		if v < lower || v > upper {
			n++
		}
	}
	return n
}

func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}
