package forecast

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dengueviewer/atlas-service/internal/domain"
	"github.com/dengueviewer/atlas-service/internal/observability"
)

// ridgeLambda is the regularization strength of the stock model.
const ridgeLambda = 1.0

// CaseSource provides the reshaped case table the model trains on.
type CaseSource interface {
	CaseTable(ctx context.Context, region string) (domain.CaseTable, error)
}

// Service trains the forecast model on first use and serves its metrics
// and graphs. Training failures are cached the same way region build
// failures are.
type Service struct {
	source  CaseSource
	region  string
	cutoff  int
	logger  *slog.Logger
	metrics *observability.Metrics

	once  sync.Once
	done  chan struct{}
	model *Model
	err   error
}

// NewService creates a Service training on the given region's case table.
func NewService(source CaseSource, region string, cutoffYear int, logger *slog.Logger, metrics *observability.Metrics) *Service {
	return &Service{
		source:  source,
		region:  region,
		cutoff:  cutoffYear,
		logger:  logger,
		metrics: metrics,
		done:    make(chan struct{}),
	}
}

// Metrics returns the trained model's held-out evaluation.
func (s *Service) Metrics(ctx context.Context) (ModelMetrics, error) {
	if err := s.ensure(ctx); err != nil {
		return ModelMetrics{}, err
	}
	return s.model.Metrics(), nil
}

// Graph returns the observed-versus-predicted series for one province.
func (s *Service) Graph(ctx context.Context, province string) (GraphSeries, error) {
	if err := s.ensure(ctx); err != nil {
		return GraphSeries{}, err
	}
	return s.model.Graph(province)
}

func (s *Service) ensure(ctx context.Context) error {
	s.once.Do(func() {
		go s.train()
	})

	select {
	case <-s.done:
		return s.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) train() {
	defer close(s.done)

	start := domain.Clock().Now()
	s.logger.Info("model training started", "region", s.region, "cutoff_year", s.cutoff)

	table, err := s.source.CaseTable(context.Background(), s.region)
	if err != nil {
		s.err = fmt.Errorf("load case table for model: %w", err)
		s.logger.Error("model training failed", "region", s.region, "error", s.err)
		return
	}

	rows := BuildFeatures(table)
	model, err := Train(rows, s.cutoff, NewRidge(ridgeLambda))
	elapsed := domain.Clock().Since(start)
	s.metrics.ModelTrainDuration.Observe(elapsed.Seconds())

	if err != nil {
		s.err = fmt.Errorf("train model: %w", err)
		s.logger.Error("model training failed", "region", s.region, "error", err, "elapsed", elapsed)
		return
	}

	s.model = model
	s.metrics.ModelReady.Set(1)
	eval := model.Metrics()
	s.logger.Info("model training finished",
		"region", s.region,
		"feature_rows", len(rows),
		"train_rows", eval.TrainRows,
		"test_rows", eval.TestRows,
		"rmse_model", eval.Global.RMSEModel,
		"rmse_base", eval.Global.RMSEBase,
		"elapsed", elapsed,
	)
}
