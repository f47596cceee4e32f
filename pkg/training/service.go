package training

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/synaptica-ai/automl/pkg/common/apperrors"
	"github.com/synaptica-ai/automl/pkg/common/logger"
	"github.com/synaptica-ai/automl/pkg/dataset"
	"github.com/synaptica-ai/automl/pkg/evaluation"
	"github.com/synaptica-ai/automl/pkg/observability/metrics"
	"github.com/synaptica-ai/automl/pkg/preprocessing"
	"github.com/synaptica-ai/automl/pkg/registry"
	"github.com/synaptica-ai/automl/pkg/session"
)

// StatusStarted is what Start reports while the run continues in the background.
const StatusStarted = "started"

// AuditLog records run lifecycle rows. Repository implements it.
type AuditLog interface {
	Create(ctx context.Context, run *RunModel) error
	UpdateStatus(ctx context.Context, runID uuid.UUID, status Status, bestModel string, metrics map[string]interface{}, errorMessage string) error
	SetTimestamps(ctx context.Context, runID uuid.UUID, startedAt, completedAt *time.Time) error
}

// ProgressSource answers progress polls for sessions this process does not
// track, such as runs started on another replica.
type ProgressSource interface {
	Load(ctx context.Context, id string) (Progress, error)
}

type Service struct {
	datasets  dataset.Store
	sessions  session.Store
	registry  *registry.Registry
	board     *ProgressBoard
	audit     AuditLog
	remote    ProgressSource
	workerSem chan struct{}
	running   sync.WaitGroup
}

type ServiceOption func(*Service)

func WithAudit(audit AuditLog) ServiceOption {
	return func(s *Service) { s.audit = audit }
}

func WithRemoteProgress(src ProgressSource) ServiceOption {
	return func(s *Service) { s.remote = src }
}

func NewService(datasets dataset.Store, sessions session.Store, reg *registry.Registry, board *ProgressBoard, maxWorkers int, opts ...ServiceOption) *Service {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	s := &Service{
		datasets:  datasets,
		sessions:  sessions,
		registry:  reg,
		board:     board,
		workerSem: make(chan struct{}, maxWorkers),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// job is a validated request bound to its dataset.
type job struct {
	id          string
	req         session.Request
	problemType dataset.ProblemType
	table       *dataset.Table
}

// Start validates req and trains in the background. It returns the new
// session id as soon as the run is registered; it waits for a worker slot
// in the background.
func (s *Service) Start(ctx context.Context, req session.Request) (string, error) {
	j, err := s.prepare(ctx, req)
	if err != nil {
		return "", err
	}
	s.running.Add(1)
	go func() {
		defer s.running.Done()
		s.workerSem <- struct{}{}
		defer func() { <-s.workerSem }()
		_, _ = s.execute(context.Background(), j)
	}()
	return j.id, nil
}

// Run trains synchronously and returns the stored session.
func (s *Service) Run(ctx context.Context, req session.Request) (*session.Session, error) {
	j, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, j)
}

// Wait blocks until every background run has finished.
func (s *Service) Wait() {
	s.running.Wait()
}

func (s *Service) Progress(ctx context.Context, id string) (Progress, error) {
	p, err := s.board.Get(id)
	if err == nil || s.remote == nil || !apperrors.Is(err, apperrors.KindNotFound) {
		return p, err
	}
	return s.remote.Load(ctx, id)
}

// Results returns the finished session. Runs still in flight or that failed
// report a state error instead.
func (s *Service) Results(ctx context.Context, id string) (*session.Session, error) {
	sess, err := s.sessions.Get(ctx, id)
	if err == nil {
		return sess, nil
	}
	p, perr := s.board.Get(id)
	if perr != nil {
		return nil, err
	}
	switch p.Status {
	case StatusFailed:
		return nil, apperrors.State("training session %s failed: %s", id, p.Error)
	case StatusTraining:
		return nil, apperrors.State("training session %s is still %s", id, p.Status)
	}
	return nil, err
}

func (s *Service) prepare(ctx context.Context, req session.Request) (*job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	entry, err := s.datasets.Get(ctx, req.DatasetID)
	if err != nil {
		return nil, err
	}

	pt := req.ProblemType
	if pt == "" {
		if pt, err = dataset.DetectProblemType(entry.Table, req.TargetColumn); err != nil {
			return nil, err
		}
	}
	if pt.Supervised() {
		if req.TargetColumn == "" {
			return nil, apperrors.BadRequest("target column is required for %s", pt)
		}
		if !entry.Table.Has(req.TargetColumn) {
			return nil, apperrors.BadRequest("Target column '%s' not found in dataset", req.TargetColumn)
		}
	} else {
		req.TargetColumn = ""
	}
	req.ProblemType = pt

	j := &job{id: uuid.New().String(), req: req, problemType: pt, table: entry.Table}
	s.board.Register(j.id, req.SelectedAlgorithms)
	s.auditCreate(ctx, j)
	metrics.TrainingStarted.WithLabelValues(string(pt)).Inc()
	return j, nil
}

func (s *Service) execute(ctx context.Context, j *job) (sess *session.Session, err error) {
	log := logger.ForSession(j.id).WithField("problem_type", j.problemType)
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.New(apperrors.KindInternal, "training panicked: %v", r)
		}
		if err != nil {
			s.failJob(j, log, err)
		}
	}()

	start := time.Now().UTC()
	s.board.Start(j.id)
	s.auditStatus(j, StatusTraining, "", nil, "")
	s.auditTimestamps(j, &start, nil)
	log.WithField("algorithms", j.req.SelectedAlgorithms).Info("Training started")

	transformer := preprocessing.NewTransformer(j.req.TargetColumn, j.problemType, preprocessing.Options{
		TestSize:         j.req.TestSize,
		RandomState:      j.req.RandomState,
		SelectedFeatures: j.req.SelectedFeatures,
	})
	out, err := transformer.FitTransform(j.table)
	if err != nil {
		return nil, fmt.Errorf("preprocessing: %w", err)
	}

	trainer := &Trainer{
		Registry:        s.registry,
		ProblemType:     j.problemType,
		CVFolds:         j.req.CVFolds,
		RandomState:     j.req.RandomState,
		Hyperparameters: j.req.Hyperparameters,
		OnModelTrained:  func(name string) { s.board.ModelCompleted(j.id, name) },
		Log:             log,
	}
	trained, err := trainer.Train(ctx, j.req.SelectedAlgorithms, out.XTrain, out.YTrain)
	if err != nil {
		return nil, err
	}
	for _, o := range trained.Outcomes {
		if o.Err != nil {
			s.board.ModelFailed(j.id, o.Name, o.Err)
		}
	}
	if err := trained.Err(); err != nil {
		return nil, err
	}

	sess = &session.Session{
		ID:          j.id,
		Request:     j.req,
		ProblemType: j.problemType,
		Transformer: transformer,
		Models:      trained.Models(),
		Records:     trained.Records,
		CreatedAt:   time.Now().UTC(),
	}
	if sess.FeatureNames, err = transformer.FeatureNames(); err != nil {
		return nil, err
	}

	xEval, yEval := out.XTest, out.YTest
	if j.problemType == dataset.Clustering {
		xEval, yEval = out.XTrain, nil
	}
	sess.Results = evaluation.Evaluate(j.problemType, sess.Models, xEval, yEval, trained.Records, evaluation.Options{LabelName: sess.LabelName()})
	if len(sess.Results.Models) == 0 {
		return nil, apperrors.External("no trained model could be evaluated")
	}

	if j.problemType != dataset.Clustering && sess.Results.BestModel != "" {
		best, _ := sess.Model(sess.Results.BestModel)
		sess.FeatureImportance = evaluation.TopImportances(best, sess.FeatureNames, evaluation.FeatureImportanceLimit)
	}

	if err := s.sessions.Put(ctx, sess); err != nil {
		return nil, err
	}
	s.board.Complete(j.id)
	s.auditStatus(j, StatusCompleted, sess.Results.BestModel, resultMetrics(sess.Results), "")
	completed := time.Now().UTC()
	s.auditTimestamps(j, nil, &completed)
	metrics.TrainingFinished.WithLabelValues(string(j.problemType), string(StatusCompleted)).Inc()

	log.WithFields(logrus.Fields{
		"best_model": sess.Results.BestModel,
		"models":     len(sess.Models),
	}).Info("Training completed")
	return sess, nil
}

func (s *Service) failJob(j *job, log *logrus.Entry, err error) {
	log.WithError(err).Error("Training session failed")
	s.board.Fail(j.id, err)
	s.auditStatus(j, StatusFailed, "", nil, err.Error())
	completed := time.Now().UTC()
	s.auditTimestamps(j, nil, &completed)
	metrics.TrainingFinished.WithLabelValues(string(j.problemType), string(StatusFailed)).Inc()
}

// resultMetrics flattens the evaluation into the audit row's JSON column.
func resultMetrics(res *evaluation.Result) map[string]interface{} {
	raw, err := json.Marshal(res)
	if err != nil {
		return nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func (s *Service) auditCreate(ctx context.Context, j *job) {
	if s.audit == nil {
		return
	}
	id, err := uuid.Parse(j.id)
	if err != nil {
		return
	}
	algorithms, _ := json.Marshal(j.req.SelectedAlgorithms)
	now := time.Now().UTC()
	run := &RunModel{
		ID:           id,
		DatasetID:    j.req.DatasetID,
		ProblemType:  string(j.problemType),
		TargetColumn: j.req.TargetColumn,
		Algorithms:   datatypes.JSON(algorithms),
		Config: datatypes.JSONMap{
			"test_size":         j.req.TestSize,
			"random_state":      j.req.RandomState,
			"cv_folds":          j.req.CVFolds,
			"selected_features": j.req.SelectedFeatures,
		},
		Status:    string(StatusTraining),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.audit.Create(ctx, run); err != nil {
		logger.ForSession(j.id).WithError(err).Error("failed to record training run")
	}
}

func (s *Service) auditStatus(j *job, status Status, bestModel string, scores map[string]interface{}, errMsg string) {
	if s.audit == nil {
		return
	}
	id, err := uuid.Parse(j.id)
	if err != nil {
		return
	}
	if err := s.audit.UpdateStatus(context.Background(), id, status, bestModel, scores, errMsg); err != nil {
		logger.ForSession(j.id).WithError(err).Errorf("failed to mark run %s", status)
	}
}

func (s *Service) auditTimestamps(j *job, startedAt, completedAt *time.Time) {
	if s.audit == nil {
		return
	}
	id, err := uuid.Parse(j.id)
	if err != nil {
		return
	}
	if err := s.audit.SetTimestamps(context.Background(), id, startedAt, completedAt); err != nil {
		logger.ForSession(j.id).WithError(err).Error("failed to set run timestamps")
	}
}
