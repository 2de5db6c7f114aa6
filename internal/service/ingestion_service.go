package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"returns-service/internal/extractor"
	"returns-service/internal/models"
	"returns-service/internal/redisclient"
	"returns-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Extractor turns free text into return fields
type Extractor interface {
	Extract(ctx context.Context, text string) (*extractor.Fields, error)
}

// RecordStore is the part of the store the ingestion path needs
type RecordStore interface {
	CreateReturn(ctx context.Context, rec *models.ReturnRecord) (int64, error)
	ReadAll(ctx context.Context) ([]models.ReturnRecord, error)
}

// IdempotencyStore remembers which order a submission key produced
type IdempotencyStore interface {
	Claim(ctx context.Context, key string) (orderID int64, claimed bool, err error)
	Complete(ctx context.Context, key string, orderID int64) error
	Release(ctx context.Context, key string) error
}

// EventPublisher publishes domain events
type EventPublisher interface {
	PublishReturnCreated(ctx context.Context, event *models.ReturnCreatedEvent) error
	PublishReportGenerated(ctx context.Context, event *models.ReportGeneratedEvent) error
}

// SubmitReturnRequest is a structured return submission. Field order is
// the order validation reports violations in.
type SubmitReturnRequest struct {
	Product        string          `json:"product" validate:"trimmed_min=2"`
	StoreName      string          `json:"store_name" validate:"trimmed_min=2"`
	ReturnReason   string          `json:"return_reason" validate:"omitempty,not_blank"`
	Cost           decimal.Decimal `json:"cost" validate:"gt=0"`
	ApprovedFlag   string          `json:"approved_flag" validate:"approval_flag"`
	Category       string          `json:"category"`
	IdempotencyKey string          `json:"-"`
}

// SubmitResult carries the assigned order id and a fresh snapshot of all
// records
type SubmitResult struct {
	OrderID  int64                 `json:"order_id"`
	Records  []models.ReturnRecord `json:"records"`
	Replayed bool                  `json:"replayed,omitempty"`
}

// IngestionService validates and persists return submissions
type IngestionService struct {
	store       RecordStore
	idempotency IdempotencyStore
	publisher   EventPublisher
	logger      *zap.Logger
}

// NewIngestionService creates a new ingestion service. idempotency and
// publisher may be nil.
func NewIngestionService(store RecordStore, idempotency IdempotencyStore, publisher EventPublisher) *IngestionService {
	return &IngestionService{
		store:       store,
		idempotency: idempotency,
		publisher:   publisher,
		logger:      util.GetLogger(),
	}
}

// validateRecord enforces the invariants every stored record holds,
// whichever path produced it
func validateRecord(rec *models.ReturnRecord) []string {
	var violations []string

	if rec.Product == "" {
		violations = append(violations, "product is required")
	}
	if rec.StoreName == "" {
		violations = append(violations, "store_name is required")
	}
	if rec.Cost.IsNegative() {
		violations = append(violations, "cost must not be negative")
	}
	if !validFlag(rec.ApprovedFlag) {
		violations = append(violations, "approved_flag must be Yes or No")
	}

	return violations
}

func validFlag(flag string) bool {
	return flag == models.ApprovedYes || flag == models.ApprovedNo
}

func normalize(req *SubmitReturnRequest) *models.ReturnRecord {
	rec := &models.ReturnRecord{
		Product:      strings.TrimSpace(req.Product),
		Category:     strings.TrimSpace(req.Category),
		ReturnReason: strings.TrimSpace(req.ReturnReason),
		Cost:         req.Cost,
		ApprovedFlag: strings.TrimSpace(req.ApprovedFlag),
		StoreName:    strings.TrimSpace(req.StoreName),
	}

	if rec.Category == "" {
		rec.Category = models.UnknownValue
	}
	if rec.ReturnReason == "" {
		rec.ReturnReason = models.UnknownValue
	}
	if rec.ApprovedFlag == "" {
		rec.ApprovedFlag = models.ApprovedNo
	}
	return rec
}

// Submit validates a form submission and stores it
func (s *IngestionService) Submit(ctx context.Context, req *SubmitReturnRequest) (*SubmitResult, error) {
	ctx, span := util.StartSpan(ctx, "IngestionService.Submit")
	defer span.End()

	if violations := ValidateForm(req); len(violations) > 0 {
		util.ReturnsRejectedTotal.WithLabelValues("validation").Inc()
		s.logger.Info("Return submission rejected", zap.Strings("violations", violations))
		return nil, &ValidationError{Violations: violations}
	}

	return s.persist(ctx, normalize(req), req.IdempotencyKey, models.SourceForm)
}

// SubmitFromExtraction extracts return fields from rawText and stores them.
// Missing fields take their defaults; the extracted record still has to
// pass the record invariants. An extraction failure is returned unchanged
// and nothing is stored.
func (s *IngestionService) SubmitFromExtraction(ctx context.Context, rawText string, ex Extractor) (*SubmitResult, error) {
	ctx, span := util.StartSpan(ctx, "IngestionService.SubmitFromExtraction")
	defer span.End()

	if strings.TrimSpace(rawText) == "" {
		util.ReturnsRejectedTotal.WithLabelValues("validation").Inc()
		return nil, &ValidationError{Violations: []string{"text is required"}}
	}

	start := time.Now()
	fields, err := ex.Extract(ctx, rawText)
	util.ExtractionLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		kind := "unknown"
		var extractErr *extractor.Error
		if errors.As(err, &extractErr) {
			kind = string(extractErr.Kind)
		}
		util.ExtractionFailuresTotal.WithLabelValues(kind).Inc()
		s.logger.Warn("Extraction failed", zap.String("kind", kind), zap.Error(err))
		return nil, err
	}

	rec := fromFields(fields)
	s.logger.Debug("Extracted return fields",
		zap.String("product", rec.Product),
		zap.String("store_name", rec.StoreName),
		zap.String("cost", rec.Cost.String()))

	return s.persist(ctx, rec, "", models.SourceExtraction)
}

// fromFields applies the extraction defaults: gaps become Unknown or 0,
// category is always Unknown and the return is never pre-approved
func fromFields(fields *extractor.Fields) *models.ReturnRecord {
	rec := &models.ReturnRecord{
		Product:      models.UnknownValue,
		Category:     models.UnknownValue,
		ReturnReason: models.UnknownValue,
		Cost:         decimal.Zero,
		ApprovedFlag: models.ApprovedNo,
		StoreName:    models.UnknownValue,
	}

	setIfPresent(&rec.Product, fields.Product)
	setIfPresent(&rec.StoreName, fields.StoreName)
	setIfPresent(&rec.ReturnReason, fields.ReturnReason)
	if fields.Cost != nil {
		rec.Cost = *fields.Cost
	}
	return rec
}

// setIfPresent overwrites dst with a non-blank extracted value
func setIfPresent(dst *string, v *string) {
	if v == nil {
		return
	}
	if trimmed := strings.TrimSpace(*v); trimmed != "" {
		*dst = trimmed
	}
}

func (s *IngestionService) persist(ctx context.Context, rec *models.ReturnRecord, idempotencyKey, source string) (*SubmitResult, error) {
	if violations := validateRecord(rec); len(violations) > 0 {
		util.ReturnsRejectedTotal.WithLabelValues("invariant").Inc()
		s.logger.Info("Return record rejected",
			zap.String("source", source),
			zap.Strings("violations", violations))
		return nil, &ValidationError{Violations: violations}
	}

	if idempotencyKey != "" && s.idempotency != nil {
		orderID, claimed, err := s.idempotency.Claim(ctx, idempotencyKey)
		switch {
		case errors.Is(err, redisclient.ErrKeyInFlight):
			return nil, ErrSubmissionInProgress
		case err != nil:
			s.logger.Warn("Idempotency check unavailable, submitting without it",
				zap.String("idempotency_key", idempotencyKey),
				zap.Error(err))
			idempotencyKey = ""
		case !claimed:
			util.IdempotentReplaysTotal.Inc()
			s.logger.Info("Duplicate return submission detected",
				zap.String("idempotency_key", idempotencyKey),
				zap.Int64("order_id", orderID))
			return s.snapshot(ctx, orderID, true)
		}
	}

	orderID, err := s.store.CreateReturn(ctx, rec)
	if err != nil {
		util.ReturnsFailedTotal.Inc()
		s.logger.Error("Failed to store return", zap.String("source", source), zap.Error(err))
		if idempotencyKey != "" && s.idempotency != nil {
			if relErr := s.idempotency.Release(ctx, idempotencyKey); relErr != nil {
				s.logger.Warn("Failed to release idempotency key", zap.Error(relErr))
			}
		}
		return nil, &SubmissionError{Err: err}
	}

	util.ReturnsCreatedTotal.WithLabelValues(source).Inc()
	s.logger.Info("Return created",
		zap.Int64("order_id", orderID),
		zap.String("store_name", rec.StoreName),
		zap.String("source", source))

	if idempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.Complete(ctx, idempotencyKey, orderID); err != nil {
			s.logger.Warn("Failed to record idempotency key",
				zap.String("idempotency_key", idempotencyKey),
				zap.Int64("order_id", orderID),
				zap.Error(err))
			// a pending claim left behind would answer 409 until it expires
			if relErr := s.idempotency.Release(ctx, idempotencyKey); relErr != nil {
				s.logger.Warn("Failed to release idempotency key", zap.Error(relErr))
			}
		}
	}

	s.publishCreated(ctx, rec, source)

	return s.snapshot(ctx, orderID, false)
}

func (s *IngestionService) snapshot(ctx context.Context, orderID int64, replayed bool) (*SubmitResult, error) {
	records, err := s.store.ReadAll(ctx)
	if err != nil {
		s.logger.Error("Failed to read records after submission",
			zap.Int64("order_id", orderID),
			zap.Error(err))
		return nil, &RecordedError{OrderID: orderID, Err: err}
	}

	return &SubmitResult{
		OrderID:  orderID,
		Records:  records,
		Replayed: replayed,
	}, nil
}

func (s *IngestionService) publishCreated(ctx context.Context, rec *models.ReturnRecord, source string) {
	if s.publisher == nil {
		return
	}

	event := &models.ReturnCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeReturnCreated,
			Timestamp: time.Now(),
		},
		OrderID:      rec.OrderID,
		Product:      rec.Product,
		StoreName:    rec.StoreName,
		Cost:         rec.Cost.StringFixed(2),
		ApprovedFlag: rec.ApprovedFlag,
		Date:         rec.Date,
		Source:       source,
	}

	if err := s.publisher.PublishReturnCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish ReturnCreated event",
			zap.Int64("order_id", rec.OrderID),
			zap.Error(err))
	}
}

// ListReturns returns every stored record in insertion order
func (s *IngestionService) ListReturns(ctx context.Context) ([]models.ReturnRecord, error) {
	ctx, span := util.StartSpan(ctx, "IngestionService.ListReturns")
	defer span.End()

	return s.store.ReadAll(ctx)
}
