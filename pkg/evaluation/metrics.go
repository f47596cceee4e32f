package evaluation

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/synaptica-ai/automl/pkg/ml"
)

// Score is a metric value. Undefined scores (NaN, ±Inf) encode as JSON null.
type Score float64

func (s Score) MarshalJSON() ([]byte, error) {
	f := float64(s)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(f)
}

func (s Score) Defined() bool {
	return !math.IsNaN(float64(s)) && !math.IsInf(float64(s), 0)
}

type RegressionMetrics struct {
	MSE  Score `json:"mse"`
	RMSE Score `json:"rmse"`
	MAE  Score `json:"mae"`
	R2   Score `json:"r2"`
	MAPE Score `json:"mape"`
}

type ClassReport struct {
	Precision Score `json:"precision"`
	Recall    Score `json:"recall"`
	F1        Score `json:"f1-score"`
	Support   int   `json:"support"`
}

type ClassificationMetrics struct {
	Accuracy        Score                  `json:"accuracy"`
	Precision       Score                  `json:"precision"`
	Recall          Score                  `json:"recall"`
	F1              Score                  `json:"f1"`
	Labels          []string               `json:"labels"`
	ConfusionMatrix [][]int                `json:"confusion_matrix"`
	Report          map[string]ClassReport `json:"classification_report"`
}

// LabelName renders a class value for reports.
type LabelName func(float64) string

// NumericLabel prints the class value itself.
func NumericLabel(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func checkPair(yTrue, yPred []float64) error {
	if len(yTrue) == 0 {
		return ml.ErrEmptyInput
	}
	if len(yTrue) != len(yPred) {
		return fmt.Errorf("%w: %d targets but %d predictions", ml.ErrShapeMismatch, len(yTrue), len(yPred))
	}
	return nil
}

func MeanSquaredError(yTrue, yPred []float64) (float64, error) {
	if err := checkPair(yTrue, yPred); err != nil {
		return 0, err
	}
	var sum float64
	for i := range yTrue {
		d := yTrue[i] - yPred[i]
		sum += d * d
	}
	return sum / float64(len(yTrue)), nil
}

func Accuracy(yTrue, yPred []float64) (float64, error) {
	if err := checkPair(yTrue, yPred); err != nil {
		return 0, err
	}
	hits := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(yTrue)), nil
}

// Regression scores continuous predictions. MAPE is a percentage computed
// over the rows whose true value is non-zero, and NaN when there are none.
func Regression(yTrue, yPred []float64) (*RegressionMetrics, error) {
	mse, err := MeanSquaredError(yTrue, yPred)
	if err != nil {
		return nil, err
	}
	n := float64(len(yTrue))

	var mean float64
	for _, v := range yTrue {
		mean += v
	}
	mean /= n

	var absErr, ssRes, ssTot, pct float64
	nonZero := 0
	for i, v := range yTrue {
		d := v - yPred[i]
		absErr += math.Abs(d)
		ssRes += d * d
		ssTot += (v - mean) * (v - mean)
		if v != 0 {
			pct += math.Abs(d / v)
			nonZero++
		}
	}

	r2 := 1 - ssRes/ssTot
	if ssTot == 0 {
		r2 = 0
		if ssRes == 0 {
			r2 = 1
		}
	}
	mape := math.NaN()
	if nonZero > 0 {
		mape = pct / float64(nonZero) * 100
	}

	return &RegressionMetrics{
		MSE:  Score(mse),
		RMSE: Score(math.Sqrt(mse)),
		MAE:  Score(absErr / n),
		R2:   Score(r2),
		MAPE: Score(mape),
	}, nil
}

// Classification scores predicted classes. Labels cover every class seen in
// either slice, in ascending order, and index the confusion matrix (rows are
// true classes). Precision, recall and F1 are support-weighted, and a class
// with no predictions (or no support) contributes 0.
func Classification(yTrue, yPred []float64, name LabelName) (*ClassificationMetrics, error) {
	acc, err := Accuracy(yTrue, yPred)
	if err != nil {
		return nil, err
	}
	if name == nil {
		name = NumericLabel
	}

	classes := ml.Classes(append(append([]float64(nil), yTrue...), yPred...))
	k := len(classes)
	trueIdx := ml.ClassIndex(classes, yTrue)
	predIdx := ml.ClassIndex(classes, yPred)

	cm := make([][]int, k)
	for i := range cm {
		cm[i] = make([]int, k)
	}
	for i := range trueIdx {
		cm[trueIdx[i]][predIdx[i]]++
	}

	out := &ClassificationMetrics{
		Accuracy:        Score(acc),
		Labels:          make([]string, k),
		ConfusionMatrix: cm,
		Report:          make(map[string]ClassReport, k+2),
	}

	n := float64(len(yTrue))
	var macro, weighted [3]float64
	for c := 0; c < k; c++ {
		tp := cm[c][c]
		support, predicted := 0, 0
		for j := 0; j < k; j++ {
			support += cm[c][j]
			predicted += cm[j][c]
		}
		p := safeDiv(float64(tp), float64(predicted))
		r := safeDiv(float64(tp), float64(support))
		f := safeDiv(2*p*r, p+r)

		label := name(classes[c])
		out.Labels[c] = label
		out.Report[label] = ClassReport{Precision: Score(p), Recall: Score(r), F1: Score(f), Support: support}

		w := float64(support) / n
		for i, v := range [3]float64{p, r, f} {
			macro[i] += v / float64(k)
			weighted[i] += v * w
		}
	}

	out.Precision, out.Recall, out.F1 = Score(weighted[0]), Score(weighted[1]), Score(weighted[2])
	out.Report["macro avg"] = ClassReport{Precision: Score(macro[0]), Recall: Score(macro[1]), F1: Score(macro[2]), Support: len(yTrue)}
	out.Report["weighted avg"] = ClassReport{Precision: out.Precision, Recall: out.Recall, F1: out.F1, Support: len(yTrue)}
	return out, nil
}

func safeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

// Importance pairs a feature with its importance weight.
type Importance struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"importance"`
}

// TopImportances returns the k largest importances of m, keyed by feature
// name. It returns nil when m carries no importance vector or the vector does
// not line up with names.
func TopImportances(m *ml.Model, names []string, k int) map[string]float64 {
	ranked := RankImportances(m, names)
	if ranked == nil {
		return nil
	}
	if len(ranked) > k {
		ranked = ranked[:k]
	}
	out := make(map[string]float64, len(ranked))
	for _, imp := range ranked {
		out[imp.Feature] = imp.Value
	}
	return out
}

// RankImportances orders m's importances from largest to smallest; ties keep
// feature order.
func RankImportances(m *ml.Model, names []string) []Importance {
	if m == nil || len(m.Importances) == 0 || len(m.Importances) != len(names) {
		return nil
	}
	ranked := make([]Importance, len(names))
	for i, n := range names {
		ranked[i] = Importance{Feature: n, Value: m.Importances[i]}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Value > ranked[j].Value })
	return ranked
}
