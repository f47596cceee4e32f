package training

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/synaptica-ai/automl/pkg/common/apperrors"
	"github.com/synaptica-ai/automl/pkg/dataset"
	"github.com/synaptica-ai/automl/pkg/dataset/datasettest"
	"github.com/synaptica-ai/automl/pkg/evaluation"
	"github.com/synaptica-ai/automl/pkg/ml"
	"github.com/synaptica-ai/automl/pkg/registry"
	"github.com/synaptica-ai/automl/pkg/session"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	fail   bool
}

func (r *recordingSink) Publish(_ context.Context, _ Progress, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	if r.fail {
		return errors.New("sink down")
	}
	return nil
}

func (r *recordingSink) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func newService(t *testing.T, table *dataset.Table, sink EventSink) *Service {
	t.Helper()
	datasets := dataset.NewMemoryStore()
	require.NoError(t, datasets.Put(context.Background(), &dataset.Entry{
		ID: "ds", FileName: "data.csv", Table: table, UploadedAt: time.Now(),
	}))
	return NewService(datasets, session.NewMemoryStore(), registry.New(), NewProgressBoard(sink), 2)
}

func request(target string, algorithms ...string) session.Request {
	req := session.DefaultRequest(0.2, 42, 5)
	req.DatasetID = "ds"
	req.TargetColumn = target
	req.SelectedAlgorithms = algorithms
	return req
}

func TestKFoldCoversEveryRowOnce(t *testing.T) {
	folds, err := KFold(23, 5, 7)
	require.NoError(t, err)
	require.Len(t, folds, 5)

	seen := make(map[int]int)
	for i, f := range folds {
		if i < 3 {
			assert.Len(t, f, 5)
		} else {
			assert.Len(t, f, 4)
		}
		for _, r := range f {
			seen[r]++
		}
	}
	assert.Len(t, seen, 23)
	for _, c := range seen {
		assert.Equal(t, 1, c)
	}

	again, _ := KFold(23, 5, 7)
	assert.Equal(t, folds, again)
}

func TestStratifiedKFoldBalancesClasses(t *testing.T) {
	y := make([]float64, 30)
	for i := range y {
		y[i] = float64(i % 3)
	}
	folds, err := StratifiedKFold(y, 5, 1)
	require.NoError(t, err)

	for _, f := range folds {
		counts := make(map[float64]int)
		for _, r := range f {
			counts[y[r]]++
		}
		assert.Len(t, f, 6)
		for _, c := range counts {
			assert.Equal(t, 2, c)
		}
	}
}

func TestFoldErrors(t *testing.T) {
	_, err := KFold(3, 5, 0)
	assert.ErrorIs(t, err, ml.ErrInvalidParam)
	_, err = KFold(10, 1, 0)
	assert.ErrorIs(t, err, ml.ErrInvalidParam)
	_, err = StratifiedKFold([]float64{0, 0, 1, 1, 2, 2}, 3, 0)
	assert.ErrorIs(t, err, ml.ErrInvalidParam)
}

func TestCrossValidateScoresInFoldOrder(t *testing.T) {
	x := mat.NewDense(20, 1, nil)
	y := make([]float64, 20)
	for i := range y {
		x.Set(i, 0, float64(i))
		y[i] = 2*float64(i) + 1
	}
	folds, err := KFold(20, 4, 3)
	require.NoError(t, err)

	reg := registry.New()
	alg, err := reg.Get(dataset.Regression, "LinearRegression")
	require.NoError(t, err)
	build := func() (ml.Supervised, error) {
		est, err := alg.Build(nil)
		if err != nil {
			return nil, err
		}
		return est.(ml.Supervised), nil
	}

	scores, err := CrossValidate(context.Background(), build, x, y, folds, evaluation.MeanSquaredError)
	require.NoError(t, err)
	require.Len(t, scores, 4)
	for _, s := range scores {
		assert.InDelta(t, 0, s, 1e-9)
	}
}

func TestLogisticRegressionOnStringLabels(t *testing.T) {
	table := datasettest.Classification(100, 1)
	pt, err := dataset.DetectProblemType(table, "label")
	require.NoError(t, err)
	require.Equal(t, dataset.Classification, pt)

	svc := newService(t, table, nil)
	sess, err := svc.Run(context.Background(), request("label", "LogisticRegression"))
	require.NoError(t, err)

	require.Len(t, sess.Models, 1)
	assert.Equal(t, dataset.Classification, sess.ProblemType)
	assert.Equal(t, "LogisticRegression", sess.Results.BestModel)

	res, ok := sess.Results.Model("LogisticRegression")
	require.True(t, ok)
	acc := float64(res.Metrics.Accuracy)
	assert.GreaterOrEqual(t, acc, 0.0)
	assert.LessOrEqual(t, acc, 1.0)
	assert.ElementsMatch(t, []string{"setosa", "versicolor", "virginica"}, res.Metrics.Labels)
	assert.Len(t, res.CVScores, 5)
}

func TestRegressionWithZeroTargetsKeepsMetricsFinite(t *testing.T) {
	table := datasettest.Regression(100, 2)
	target, _ := table.Column("target")
	for i := 0; i < target.Len(); i += 5 {
		target.Numbers[i] = 0
	}
	pt, err := dataset.DetectProblemType(table, "target")
	require.NoError(t, err)
	require.Equal(t, dataset.Regression, pt)

	svc := newService(t, table, nil)
	sess, err := svc.Run(context.Background(), request("target", "LinearRegression", "RandomForestRegressor"))
	require.NoError(t, err)

	for _, name := range []string{"LinearRegression", "RandomForestRegressor"} {
		res, ok := sess.Results.Model(name)
		require.True(t, ok, name)
		assert.True(t, res.Metrics.R2.Defined(), name)
		assert.False(t, math.IsInf(float64(res.Metrics.MAPE), 0), name)
		for _, s := range res.CVScores {
			assert.GreaterOrEqual(t, s, 0.0, "cv mse is reported positive")
		}
	}
	if sess.Results.BestModel == "RandomForestRegressor" {
		assert.NotEmpty(t, sess.FeatureImportance)
	} else {
		assert.Nil(t, sess.FeatureImportance)
	}
}

func TestKMeansLabelsEveryRow(t *testing.T) {
	table := datasettest.Blobs(90, 3)
	svc := newService(t, table, nil)

	req := request("", "KMeans")
	req.Hyperparameters = map[string]ml.Params{"KMeans": {"n_clusters": 3}}
	sess, err := svc.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, dataset.Clustering, sess.ProblemType)
	require.Len(t, sess.Models, 1)
	assert.Len(t, sess.Models[0].Labels, table.Rows())
	assert.Len(t, sess.Records["KMeans"].CVScores, 1)
	assert.Equal(t, "KMeans", sess.Results.BestModel)
	assert.Nil(t, sess.FeatureImportance)
}

func TestTrainingIsDeterministic(t *testing.T) {
	table := datasettest.Classification(120, 4)
	algorithms := []string{"DecisionTreeClassifier", "RandomForestClassifier", "KNeighborsClassifier"}

	run := func() *session.Session {
		svc := newService(t, table, nil)
		sess, err := svc.Run(context.Background(), request("label", algorithms...))
		require.NoError(t, err)
		return sess
	}
	first, second := run(), run()

	for _, name := range algorithms {
		assert.Equal(t, first.Records[name].CVScores, second.Records[name].CVScores, name)
	}
	assert.Equal(t, first.Results.BestModel, second.Results.BestModel)
}

func TestBrokenAlgorithmIsSkipped(t *testing.T) {
	sink := &recordingSink{}
	svc := newService(t, datasettest.Regression(80, 5), sink)

	req := request("target", "LinearRegression", "Ridge", "Lasso")
	req.Hyperparameters = map[string]ml.Params{"Ridge": {"alpha": -1}}
	sess, err := svc.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, []string{"LinearRegression", "Lasso"}, sess.ModelNames())
	assert.Contains(t, []string{"LinearRegression", "Lasso"}, sess.Results.BestModel)

	p, err := svc.Progress(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, p.Status)
	assert.Equal(t, []string{"LinearRegression", "Lasso"}, p.CompletedModels)
	assert.Equal(t, []string{"Ridge"}, p.FailedModels)
	assert.Contains(t, sink.types(), EventModelFailed)
}

func TestAllAlgorithmsFailing(t *testing.T) {
	svc := newService(t, datasettest.Regression(50, 6), nil)

	req := request("target", "Ridge", "NoSuchModel")
	req.Hyperparameters = map[string]ml.Params{"Ridge": {"alpha": -1}}
	_, err := svc.Run(context.Background(), req)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindExternal))
	assert.ErrorIs(t, err, registry.ErrAlgorithmNotFound)
	assert.ErrorIs(t, err, ml.ErrInvalidParam)
}

func TestStartRunsInBackground(t *testing.T) {
	sink := &recordingSink{fail: true}
	svc := newService(t, datasettest.Classification(60, 7), sink)

	id, err := svc.Start(context.Background(), request("label", "GaussianNB", "DecisionTreeClassifier"))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	svc.Wait()

	p, err := svc.Progress(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, p.Status)
	assert.Equal(t, 2, p.TotalModels)
	assert.Empty(t, p.CurrentModel)
	assert.Equal(t, []string{
		EventStarted, EventModelCompleted, EventModelCompleted, EventCompleted,
	}, sink.types(), "sink failures do not stop training")

	sess, err := svc.Results(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, sess.Models, 2)
}

func TestStartReportsOnlyTrainingStatuses(t *testing.T) {
	svc := newService(t, datasettest.Classification(60, 4), nil)
	allowed := map[Status]bool{StatusTraining: true, StatusCompleted: true, StatusFailed: true}

	var ids []string
	for i := 0; i < 4; i++ {
		id, err := svc.Start(context.Background(), request("label", "GaussianNB", "KNeighborsClassifier"))
		require.NoError(t, err)
		ids = append(ids, id)

		p, err := svc.Progress(context.Background(), id)
		require.NoError(t, err)
		assert.True(t, allowed[p.Status], "status %q right after start", p.Status)
	}
	svc.Wait()

	for _, id := range ids {
		p, err := svc.Progress(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, p.Status)
	}
}

func TestStartValidatesRequest(t *testing.T) {
	svc := newService(t, datasettest.Classification(30, 8), nil)
	ctx := context.Background()

	_, err := svc.Start(ctx, request("missing", "GaussianNB"))
	assert.True(t, apperrors.Is(err, apperrors.KindBadRequest))

	req := request("label", "GaussianNB")
	req.DatasetID = "nope"
	_, err = svc.Start(ctx, req)
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))

	req = request("label", "GaussianNB")
	req.CVFolds = 11
	_, err = svc.Start(ctx, req)
	assert.True(t, apperrors.Is(err, apperrors.KindBadRequest))

	req = request("", "GaussianNB")
	req.ProblemType = dataset.Classification
	_, err = svc.Start(ctx, req)
	assert.True(t, apperrors.Is(err, apperrors.KindBadRequest))
}

func TestResultsOfFailedRun(t *testing.T) {
	svc := newService(t, datasettest.Regression(40, 9), nil)

	req := request("target", "Ridge")
	req.Hyperparameters = map[string]ml.Params{"Ridge": {"alpha": -1}}
	id, err := svc.Start(context.Background(), req)
	require.NoError(t, err)
	svc.Wait()

	p, err := svc.Progress(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, p.Status)
	assert.NotEmpty(t, p.Error)

	_, err = svc.Results(context.Background(), id)
	assert.True(t, apperrors.Is(err, apperrors.KindState))

	_, err = svc.Results(context.Background(), "unknown")
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
}

func TestProgressBoardSnapshotsAreIsolated(t *testing.T) {
	board := NewProgressBoard(nil)
	board.Register("s1", []string{"A", "B"})
	registered, err := board.Get("s1")
	require.NoError(t, err)
	assert.Equal(t, StatusTraining, registered.Status)
	assert.Empty(t, registered.CurrentModel)
	board.Start("s1")

	before, err := board.Get("s1")
	require.NoError(t, err)
	assert.Equal(t, "A", before.CurrentModel)

	board.ModelCompleted("s1", "A")
	after, _ := board.Get("s1")

	assert.Empty(t, before.CompletedModels)
	assert.Equal(t, []string{"A"}, after.CompletedModels)
	assert.Equal(t, "B", after.CurrentModel)
	assert.Len(t, after.Events, 2)

	_, err = board.Get("s2")
	assert.ErrorIs(t, err, ErrProgressNotFound)
}

func TestMultiSinkAggregatesFailures(t *testing.T) {
	ok, bad := &recordingSink{}, &recordingSink{fail: true}
	err := MultiSink{ok, bad, bad}.Publish(context.Background(), Progress{}, Event{Type: EventStarted})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 errors")
	assert.Len(t, ok.types(), 1)
}

func TestRedisProgressKeys(t *testing.T) {
	assert.Equal(t, "automl:progress:s1", NewRedisProgressSink(nil, "automl:progress", time.Hour).key("s1"))
	assert.Equal(t, "automl:progress:s1", NewRedisProgressSink(nil, "automl:progress:", time.Hour).key("s1"))
	assert.Equal(t, "s1", NewRedisProgressSink(nil, "", time.Hour).key("s1"))
}
