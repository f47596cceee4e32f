package onnx

import (
	"errors"
	"fmt"
	"math"

	"github.com/synaptica-ai/automl/pkg/dataset"
	"github.com/synaptica-ai/automl/pkg/ml"
	"github.com/synaptica-ai/automl/pkg/ml/linear"
	"github.com/synaptica-ai/automl/pkg/preprocessing"
)

var ErrNoConverter = errors.New("no ONNX converter for model")

// Source is a fitted pipeline ready for conversion.
type Source struct {
	Name        string
	Plan        *preprocessing.Plan
	Schema      []dataset.Field
	RawFeatures []string
	Estimator   ml.Estimator
	// ClassLabels maps class codes to the original labels of a label-encoded
	// target. Nil keeps numeric class labels.
	ClassLabels []string
	Metadata    map[string]string
}

// Convert builds the ONNX graph of src: one input per raw feature, the
// preprocessing chain of every planned column concatenated into "features",
// then the model. Models without a converter fail with ErrNoConverter before
// anything is encoded.
func Convert(src Source) ([]byte, error) {
	if src.Plan == nil {
		return nil, errors.New("onnx: pipeline has no fitted plan")
	}
	g := &Graph{Name: src.Name}
	if g.Name == "" {
		g.Name = "automl_pipeline"
	}

	elems := declareInputs(g, src.Schema, src.RawFeatures)

	var blocks []string
	for _, s := range src.Plan.Numeric {
		blocks = append(blocks, numeric(g, s, elems[s.Column]))
	}
	for _, s := range src.Plan.Categorical {
		blocks = append(blocks, categorical(g, s, elems[s.Column]))
	}
	g.Node("Concat", "", blocks, []string{"features"}, IntAttr("axis", 1))

	if err := model(g, src); err != nil {
		return nil, err
	}
	m := &Model{Graph: g, Doc: "preprocessing plan and " + src.Name, Metadata: src.Metadata}
	return m.Marshal(), nil
}

// declareInputs adds a [N,1] input per raw feature: string tensors for
// categorical columns and float tensors otherwise. Without a schema every
// input is a numeric placeholder.
func declareInputs(g *Graph, schema []dataset.Field, raw []string) map[string]ElemType {
	kinds := make(map[string]dataset.Kind, len(schema))
	for _, f := range schema {
		kinds[f.Name] = dataset.ParseKind(f.DType)
	}
	names := raw
	if len(names) == 0 {
		for _, f := range schema {
			names = append(names, f.Name)
		}
	}
	elems := make(map[string]ElemType, len(names))
	for _, name := range names {
		elem := Float
		if k, ok := kinds[name]; ok && k != dataset.KindNumeric {
			elem = String
		}
		elems[name] = elem
		g.Input(name, elem, -1, 1)
	}
	return elems
}

func numeric(g *Graph, s preprocessing.NumericStep, elem ElemType) string {
	in := s.Column
	if elem == String {
		g.Node("Cast", "", []string{in}, []string{in + "_float"}, IntAttr("to", int64(Float)))
		in += "_float"
	}
	out := s.Column + "_imputed"
	g.Node("Imputer", MLDomain, []string{in}, []string{out},
		FloatsAttr("imputed_value_floats", []float64{s.Median}),
		FloatAttr("replaced_value_float", math.NaN()))

	if !math.IsInf(s.Lower, 0) {
		g.Constant(s.Column+"_lower", s.Lower)
		g.Node("Max", "", []string{out, s.Column + "_lower"}, []string{s.Column + "_floored"})
		out = s.Column + "_floored"
	}
	if !math.IsInf(s.Upper, 0) {
		g.Constant(s.Column+"_upper", s.Upper)
		g.Node("Min", "", []string{out, s.Column + "_upper"}, []string{s.Column + "_capped"})
		out = s.Column + "_capped"
	}

	g.Node("Scaler", MLDomain, []string{out}, []string{s.Column + "_scaled"},
		FloatsAttr("offset", []float64{s.Mean}),
		FloatsAttr("scale", []float64{1 / s.Scale}))
	return s.Column + "_scaled"
}

// categorical imputes the empty string with the mode, one-hot encodes the
// known categories and flattens the block to [N,K]. Unseen categories map to
// an all-zero row as in the plan.
func categorical(g *Graph, s preprocessing.CategoricalStep, elem ElemType) string {
	in := s.Column
	if elem != String {
		g.Node("Cast", "", []string{in}, []string{in + "_str"}, IntAttr("to", int64(String)))
		in += "_str"
	}
	keys := append(append([]string(nil), s.Categories...), "")
	values := append(append([]string(nil), s.Categories...), s.Mode)
	g.Node("LabelEncoder", MLDomain, []string{in}, []string{s.Column + "_imputed"},
		StringsAttr("keys_strings", keys),
		StringsAttr("values_strings", values),
		StringAttr("default_string", "__unseen__"))
	g.Node("OneHotEncoder", MLDomain, []string{s.Column + "_imputed"}, []string{s.Column + "_onehot"},
		StringsAttr("cats_strings", s.Categories),
		IntAttr("zeros", 1))
	g.Node("Flatten", "", []string{s.Column + "_onehot"}, []string{s.Column + "_encoded"}, IntAttr("axis", 1))
	return s.Column + "_encoded"
}

func model(g *Graph, src Source) error {
	switch est := src.Estimator.(type) {
	case *linear.LinearRegression:
		regressor(g, est.Weights)
	case *linear.Ridge:
		regressor(g, est.Weights)
	case *linear.Lasso:
		regressor(g, est.Weights)
	case *linear.LogisticRegression:
		return classifier(g, est, src.ClassLabels)
	default:
		return fmt.Errorf("%w: %T", ErrNoConverter, src.Estimator)
	}
	return nil
}

func regressor(g *Graph, w linear.Weights) {
	g.Node("LinearRegressor", MLDomain, []string{"features"}, []string{"variable"},
		FloatsAttr("coefficients", w.Coefficients),
		FloatsAttr("intercepts", []float64{w.Bias}),
		IntAttr("targets", 1))
	g.Output("variable", Float, -1, 1)
}

func classifier(g *Graph, m *linear.LogisticRegression, labels []string) error {
	if len(m.Weights) == 0 {
		return ml.ErrNotFitted
	}
	var coef, intercepts []float64
	for _, w := range m.Weights {
		coef = append(coef, w.Coefficients...)
		intercepts = append(intercepts, w.Bias)
	}
	attrs := []Attribute{
		FloatsAttr("coefficients", coef),
		FloatsAttr("intercepts", intercepts),
		StringAttr("post_transform", "SOFTMAX"),
		IntAttr("multi_class", 1),
	}

	labelElem := Int64
	if labels != nil {
		names := make([]string, len(m.Labels))
		for i, c := range m.Labels {
			code := int(c)
			if code < 0 || code >= len(labels) {
				return fmt.Errorf("onnx: class code %v has no label", c)
			}
			names[i] = labels[code]
		}
		attrs = append(attrs, StringsAttr("classlabels_strings", names))
		labelElem = String
	} else {
		ints := make([]int64, len(m.Labels))
		for i, c := range m.Labels {
			ints[i] = int64(c)
		}
		attrs = append(attrs, IntsAttr("classlabels_ints", ints))
	}

	g.Node("LinearClassifier", MLDomain, []string{"features"}, []string{"label", "probabilities"}, attrs...)
	g.Output("label", labelElem, -1)
	g.Output("probabilities", Float, -1, int64(len(m.Labels)))
	return nil
}
