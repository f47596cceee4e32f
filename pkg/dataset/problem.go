package dataset

import (
	"strings"

	"github.com/synaptica-ai/automl/pkg/common/apperrors"
)

type ProblemType string

const (
	Regression     ProblemType = "regression"
	Classification ProblemType = "classification"
	Clustering     ProblemType = "clustering"
)

// Classification thresholds for numeric targets. Fixed policy, not configuration.
const (
	classificationDistinctRatio = 0.2
	classificationMaxDistinct   = 50
)

func ParseProblemType(s string) (ProblemType, error) {
	switch pt := ProblemType(strings.ToLower(strings.TrimSpace(s))); pt {
	case Regression, Classification, Clustering:
		return pt, nil
	default:
		return "", apperrors.BadRequest("unknown problem type %q", s)
	}
}

func (p ProblemType) Supervised() bool {
	return p == Regression || p == Classification
}

// DetectProblemType classifies the task from the current contents of the target
// column. An empty target means clustering.
func DetectProblemType(t *Table, target string) (ProblemType, error) {
	if target == "" {
		return Clustering, nil
	}
	col, ok := t.Column(target)
	if !ok {
		return "", apperrors.BadRequest("target column '%s' not found in dataset", target)
	}
	return DetectFromColumn(col), nil
}

func DetectFromColumn(col *Column) ProblemType {
	if col == nil {
		return Clustering
	}
	if col.Kind != KindNumeric {
		return Classification
	}
	distinct := float64(col.Unique())
	if distinct < classificationDistinctRatio*float64(col.Len()) && distinct <= classificationMaxDistinct {
		return Classification
	}
	return Regression
}
