package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"returns-service/internal/models"
	"returns-service/internal/report"
	"returns-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReportGenerator writes the returns workbook
type ReportGenerator interface {
	Generate(ctx context.Context) (*report.Result, error)
	Path() string
}

// ReportService runs report generation and exposes the latest file
type ReportService struct {
	generator ReportGenerator
	publisher EventPublisher
	logger    *zap.Logger
}

// NewReportService creates a new report service. publisher may be nil.
func NewReportService(generator ReportGenerator, publisher EventPublisher) *ReportService {
	return &ReportService{
		generator: generator,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// Generate writes a fresh report from the current records
func (s *ReportService) Generate(ctx context.Context) (*report.Result, error) {
	ctx, span := util.StartSpan(ctx, "ReportService.Generate")
	defer span.End()

	start := time.Now()
	defer func() {
		util.ReportGenerationLatency.Observe(time.Since(start).Seconds())
	}()

	result, err := s.generator.Generate(ctx)
	if err != nil {
		if errors.Is(err, report.ErrEmptyDataset) {
			util.ReportsFailedTotal.WithLabelValues("empty").Inc()
			s.logger.Info("No records to report")
			return nil, err
		}
		util.ReportsFailedTotal.WithLabelValues("error").Inc()
		s.logger.Error("Failed to generate report", zap.Error(err))
		return nil, err
	}

	util.ReportsGeneratedTotal.Inc()

	if s.publisher != nil {
		event := &models.ReportGeneratedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeReportGenerated,
				Timestamp: result.GeneratedAt,
			},
			Path:         result.Path,
			TotalReturns: result.Summary.TotalReturns,
			TotalCost:    result.Summary.TotalCostText,
		}
		if err := s.publisher.PublishReportGenerated(ctx, event); err != nil {
			s.logger.Error("Failed to publish ReportGenerated event", zap.Error(err))
		}
	}

	return result, nil
}

// LatestPath returns the path of the last written report
func (s *ReportService) LatestPath() (string, error) {
	path := s.generator.Path()

	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNoReport
	}
	if err != nil {
		return "", fmt.Errorf("failed to stat report: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("report path %s is a directory", path)
	}
	return path, nil
}
