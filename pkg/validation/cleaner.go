package validation

import (
	"math"

	"github.com/synaptica-ai/automl/pkg/dataset"
)

// maxCleaningPasses bounds the follow-up passes ApplyCleaning runs when a pass
// exposes new problems, such as rows that become duplicates after imputation.
const maxCleaningPasses = 5

// ApplyCleaning performs the plan on a copy of the table: imputation, outlier
// capping, then duplicate removal. It repeats with a fresh plan until the table
// needs no further changes, so cleaning a cleaned table is a no-op.
func ApplyCleaning(t *dataset.Table, plan CleaningPlan) (*dataset.Table, CleaningSummary) {
	summary := CleaningSummary{RowsBefore: t.Rows()}
	out := t
	for pass := 0; pass < maxCleaningPasses && plan.ChangesRequired; pass++ {
		out = applyOnce(out, plan, &summary)
		next, err := Validate(out, "")
		if err != nil {
			break
		}
		plan = next.CleaningPlan
	}
	summary.RowsAfter = out.Rows()
	return out, summary
}

func applyOnce(t *dataset.Table, plan CleaningPlan, summary *CleaningSummary) *dataset.Table {
	out := t.Clone()
	for _, col := range out.Columns() {
		if col.Kind == dataset.KindNumeric {
			fill, impute := plan.ImputeNumeric[col.Name]
			bounds, capOutliers := plan.CapOutliers[col.Name]
			for i, v := range col.Numbers {
				switch {
				case math.IsNaN(v):
					if impute {
						col.Numbers[i] = fill
						summary.MissingImputed++
					}
				case capOutliers && v < bounds.Lower:
					col.Numbers[i] = bounds.Lower
					summary.OutliersCapped++
				case capOutliers && v > bounds.Upper:
					col.Numbers[i] = bounds.Upper
					summary.OutliersCapped++
				}
			}
			continue
		}
		fill, ok := plan.ImputeCategorical[col.Name]
		if !ok {
			continue
		}
		for i := range col.Labels {
			if !col.Present[i] {
				col.Labels[i], col.Present[i] = fill, true
				summary.MissingImputed++
			}
		}
	}

	dups := duplicateRows(out)
	if len(dups) == 0 {
		return out
	}
	drop := make(map[int]struct{}, len(dups))
	for _, i := range dups {
		drop[i] = struct{}{}
	}
	keep := make([]int, 0, out.Rows()-len(dups))
	for i := 0; i < out.Rows(); i++ {
		if _, ok := drop[i]; !ok {
			keep = append(keep, i)
		}
	}
	summary.DuplicatesRemoved += len(dups)
	return out.Take(keep)
}
