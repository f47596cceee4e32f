// Package registry catalogs the algorithms available per problem type with
// their default hyperparameters.
package registry

import (
	"errors"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/synaptica-ai/automl/pkg/common/apperrors"
	"github.com/synaptica-ai/automl/pkg/dataset"
	"github.com/synaptica-ai/automl/pkg/ml"
	"github.com/synaptica-ai/automl/pkg/ml/bayes"
	"github.com/synaptica-ai/automl/pkg/ml/cluster"
	"github.com/synaptica-ai/automl/pkg/ml/linear"
	"github.com/synaptica-ai/automl/pkg/ml/neighbors"
	"github.com/synaptica-ai/automl/pkg/ml/tree"
)

var ErrAlgorithmNotFound = errors.New("algorithm not found")

// Factory builds an unfitted estimator from hyperparameters.
type Factory func(ml.Params) (ml.Estimator, error)

type Algorithm struct {
	Name        string
	Description string
	Defaults    ml.Params
	New         Factory
}

// Build instantiates the algorithm with its defaults overlaid by overrides.
func (a Algorithm) Build(overrides ml.Params) (ml.Estimator, error) {
	return a.New(a.Defaults.Merge(overrides))
}

// Description is the serializable view of an algorithm.
type Description struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Parameters  ml.Params `json:"parameters"`
}

// Registry is an immutable lookup from (problem type, name) to Algorithm.
type Registry struct {
	order  map[dataset.ProblemType][]string
	byName map[dataset.ProblemType]map[string]Algorithm
}

type Option func(*Registry)

// WithAlgorithm adds or replaces an algorithm for a problem type.
func WithAlgorithm(pt dataset.ProblemType, alg Algorithm) Option {
	return func(r *Registry) { r.add(pt, alg) }
}

// WithDefaults overlays default hyperparameters of registered algorithms.
// Unknown names are ignored.
func WithDefaults(overrides map[dataset.ProblemType]map[string]ml.Params) Option {
	return func(r *Registry) {
		for pt, algs := range overrides {
			for name, params := range algs {
				if alg, ok := r.byName[pt][name]; ok {
					alg.Defaults = alg.Defaults.Merge(params)
					r.byName[pt][name] = alg
				}
			}
		}
	}
}

func New(opts ...Option) *Registry {
	r := &Registry{
		order:  make(map[dataset.ProblemType][]string),
		byName: make(map[dataset.ProblemType]map[string]Algorithm),
	}
	for _, alg := range regressionAlgorithms() {
		r.add(dataset.Regression, alg)
	}
	for _, alg := range classificationAlgorithms() {
		r.add(dataset.Classification, alg)
	}
	for _, alg := range clusteringAlgorithms() {
		r.add(dataset.Clustering, alg)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) add(pt dataset.ProblemType, alg Algorithm) {
	if r.byName[pt] == nil {
		r.byName[pt] = make(map[string]Algorithm)
	}
	if _, exists := r.byName[pt][alg.Name]; !exists {
		r.order[pt] = append(r.order[pt], alg.Name)
	}
	if alg.Defaults == nil {
		alg.Defaults = ml.Params{}
	}
	r.byName[pt][alg.Name] = alg
}

// AlgorithmsFor returns every algorithm registered for pt by name.
func (r *Registry) AlgorithmsFor(pt dataset.ProblemType) map[string]Algorithm {
	out := make(map[string]Algorithm, len(r.byName[pt]))
	for name, alg := range r.byName[pt] {
		out[name] = alg
	}
	return out
}

// Names lists algorithm names for pt in registration order.
func (r *Registry) Names(pt dataset.ProblemType) []string {
	return append([]string(nil), r.order[pt]...)
}

func (r *Registry) Get(pt dataset.ProblemType, name string) (Algorithm, error) {
	alg, ok := r.byName[pt][name]
	if !ok {
		return Algorithm{}, apperrors.NotFound("algorithm '%s' for problem type '%s': %w", name, pt, ErrAlgorithmNotFound)
	}
	return alg, nil
}

func (r *Registry) Describe(pt dataset.ProblemType) []Description {
	out := make([]Description, 0, len(r.order[pt]))
	for _, name := range r.order[pt] {
		alg := r.byName[pt][name]
		out = append(out, Description{Name: name, Description: alg.Description, Parameters: alg.Defaults.Merge(nil)})
	}
	return out
}

// LoadDefaults reads default hyperparameter overrides from a YAML file keyed by
// problem type then algorithm name.
func LoadDefaults(path string) (Option, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc map[string]map[string]ml.Params
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, apperrors.BadRequest("registry defaults %s: %w", path, err)
	}
	overrides := make(map[dataset.ProblemType]map[string]ml.Params, len(doc))
	for key, algs := range doc {
		pt, err := dataset.ParseProblemType(key)
		if err != nil {
			return nil, err
		}
		overrides[pt] = algs
	}
	return WithDefaults(overrides), nil
}

func factory[T ml.Estimator](fn func(ml.Params) (T, error)) Factory {
	return func(p ml.Params) (ml.Estimator, error) {
		m, err := fn(p)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
}

func regressionAlgorithms() []Algorithm {
	return []Algorithm{
		{"LinearRegression", "Ordinary least squares linear regression", ml.Params{}, factory(linear.NewLinearRegression)},
		{"Ridge", "Linear regression with L2 regularization", ml.Params{"alpha": 1.0}, factory(linear.NewRidge)},
		{"Lasso", "Linear regression with L1 regularization", ml.Params{"alpha": 1.0}, factory(linear.NewLasso)},
		{"DecisionTreeRegressor", "Decision tree regressor", ml.Params{"max_depth": 5, "random_state": 42}, factory(tree.NewDecisionTreeRegressor)},
		{"RandomForestRegressor", "Random forest regressor", ml.Params{"n_estimators": 50, "max_depth": 12, "random_state": 42}, factory(tree.NewRandomForestRegressor)},
		{"GradientBoostingRegressor", "Gradient boosting regressor", ml.Params{"n_estimators": 100, "learning_rate": 0.1, "random_state": 42}, factory(tree.NewGradientBoostingRegressor)},
		{"KNeighborsRegressor", "K-nearest neighbors regressor", ml.Params{"n_neighbors": 5}, factory(neighbors.NewKNeighborsRegressor)},
	}
}

func classificationAlgorithms() []Algorithm {
	return []Algorithm{
		{"LogisticRegression", "Logistic regression classifier", ml.Params{"C": 1.0, "max_iter": 1000}, factory(linear.NewLogisticRegression)},
		{"KNeighborsClassifier", "K-nearest neighbors classifier", ml.Params{"n_neighbors": 5}, factory(neighbors.NewKNeighborsClassifier)},
		{"DecisionTreeClassifier", "Decision tree classifier", ml.Params{"max_depth": 5, "random_state": 42}, factory(tree.NewDecisionTreeClassifier)},
		{"RandomForestClassifier", "Random forest classifier", ml.Params{"n_estimators": 50, "max_depth": 12, "random_state": 42}, factory(tree.NewRandomForestClassifier)},
		{"GradientBoostingClassifier", "Gradient boosting classifier", ml.Params{"n_estimators": 100, "learning_rate": 0.1, "random_state": 42}, factory(tree.NewGradientBoostingClassifier)},
		{"GaussianNB", "Gaussian Naive Bayes", ml.Params{}, factory(bayes.NewGaussianNB)},
	}
}

func clusteringAlgorithms() []Algorithm {
	return []Algorithm{
		{"KMeans", "Partition-based clustering using centroids", ml.Params{"n_clusters": 3, "random_state": 42}, factory(cluster.NewKMeans)},
		{"MiniBatchKMeans", "Faster KMeans using mini-batches", ml.Params{"n_clusters": 3, "random_state": 42}, factory(cluster.NewMiniBatchKMeans)},
		{"AgglomerativeClustering", "Hierarchical bottom-up clustering", ml.Params{"n_clusters": 3}, factory(cluster.NewAgglomerativeClustering)},
		{"DBSCAN", "Density-based clustering with noise detection", ml.Params{"eps": 0.5, "min_samples": 5}, factory(cluster.NewDBSCAN)},
		{"GaussianMixture", "Probabilistic clustering using Gaussian distributions", ml.Params{"n_components": 3, "random_state": 42}, factory(cluster.NewGaussianMixture)},
	}
}
