package store

import (
	"context"
	"database/sql"
	"fmt"

	"returns-service/internal/models"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// maxCreateAttempts bounds the insert-and-retry loop in CreateReturn
const maxCreateAttempts = 5

const insertReturnSQL = `
	INSERT INTO returns (order_id, product, category, return_reason, cost, approved_flag, store_name, date)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

const selectReturnsSQL = `
	SELECT id, order_id, product,
		COALESCE(category, '') AS category,
		COALESCE(return_reason, '') AS return_reason,
		COALESCE(cost, 0) AS cost,
		COALESCE(approved_flag, '') AS approved_flag,
		store_name, date
	FROM returns
	ORDER BY id`

// SeedSource supplies reference rows for an empty table
type SeedSource interface {
	Fetch(ctx context.Context) ([]models.ReturnRecord, error)
}

// NextOrderID returns the current maximum order id plus one, or
// models.SeedOrderID on an empty table. Two callers outside a transaction
// can observe the same value; CreateReturn does not rely on it.
func (s *Store) NextOrderID(ctx context.Context) (int64, error) {
	id, err := nextOrderID(ctx, s.db)
	if err != nil {
		return 0, &PersistenceError{Op: "next order id", Err: err}
	}
	return id, nil
}

func nextOrderID(ctx context.Context, q sqlx.QueryerContext) (int64, error) {
	var maxID sql.NullInt64
	if err := sqlx.GetContext(ctx, q, &maxID, "SELECT MAX(order_id) FROM returns"); err != nil {
		return 0, err
	}
	if !maxID.Valid {
		return models.SeedOrderID, nil
	}
	return maxID.Int64 + 1, nil
}

// CreateReturn stamps the record with today's date, assigns the next order id
// and inserts it. Assignment and insert share one transaction; a unique
// violation from a concurrent writer restarts the pair. Any order id already
// set on rec is overwritten.
func (s *Store) CreateReturn(ctx context.Context, rec *models.ReturnRecord) (int64, error) {
	rec.Date = s.now().Format(models.DateLayout)

	var lastErr error
	for attempt := 1; attempt <= maxCreateAttempts; attempt++ {
		err := s.createReturnTx(ctx, rec)
		if err == nil {
			return rec.OrderID, nil
		}
		if !IsUniqueViolation(err) {
			return 0, &PersistenceError{Op: "create", Err: err}
		}

		lastErr = err
		s.logger.Warn("Order id collision, retrying",
			zap.Int64("order_id", rec.OrderID),
			zap.Int("attempt", attempt))
	}

	return 0, &PersistenceError{
		Op:  "create",
		Err: fmt.Errorf("order id still conflicting after %d attempts: %w", maxCreateAttempts, lastErr),
	}
}

func (s *Store) createReturnTx(ctx context.Context, rec *models.ReturnRecord) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	orderID, err := nextOrderID(ctx, tx)
	if err != nil {
		return fmt.Errorf("failed to assign order id: %w", err)
	}
	rec.OrderID = orderID

	id, err := insertReturn(ctx, tx, rec)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	rec.ID = id
	return nil
}

func insertReturn(ctx context.Context, e sqlx.ExecerContext, rec *models.ReturnRecord) (int64, error) {
	res, err := e.ExecContext(ctx, insertReturnSQL,
		rec.OrderID,
		rec.Product,
		rec.Category,
		rec.ReturnReason,
		rec.Cost.InexactFloat64(),
		rec.ApprovedFlag,
		rec.StoreName,
		rec.Date,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ReadAll returns every record in insertion order
func (s *Store) ReadAll(ctx context.Context) ([]models.ReturnRecord, error) {
	records := []models.ReturnRecord{}
	if err := s.db.SelectContext(ctx, &records, selectReturnsSQL); err != nil {
		return nil, &PersistenceError{Op: "read all", Err: err}
	}
	return records, nil
}

// CountReturns returns the number of stored records
func (s *Store) CountReturns(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM returns"); err != nil {
		return 0, &PersistenceError{Op: "count", Err: err}
	}
	return n, nil
}

// SeedIfEmpty loads the source's rows verbatim into an empty table and
// reports how many were inserted. A non-empty table is left alone. A source
// that cannot be reached is logged and skipped: the service runs fine on an
// empty table. Rows go in as one transaction, so a rejected row leaves the
// table empty.
func (s *Store) SeedIfEmpty(ctx context.Context, source SeedSource) (int, error) {
	n, err := s.CountReturns(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("Returns table already populated, skipping seed", zap.Int("rows", n))
		return 0, nil
	}

	records, err := source.Fetch(ctx)
	if err != nil {
		s.logger.Warn("Failed to fetch seed data, continuing with empty table", zap.Error(err))
		return 0, nil
	}
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, &PersistenceError{Op: "seed", Err: err}
	}
	defer tx.Rollback()

	// Re-check under the write lock; another process may have seeded meanwhile.
	if err := tx.GetContext(ctx, &n, "SELECT COUNT(*) FROM returns"); err != nil {
		return 0, &PersistenceError{Op: "seed", Err: err}
	}
	if n > 0 {
		return 0, nil
	}

	for i := range records {
		if _, err := insertReturn(ctx, tx, &records[i]); err != nil {
			return 0, &PersistenceError{
				Op:  "seed",
				Err: fmt.Errorf("row %d (order %d): %w", i+1, records[i].OrderID, err),
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, &PersistenceError{Op: "seed", Err: err}
	}

	s.logger.Info("Seeded returns table", zap.Int("rows", len(records)))
	return len(records), nil
}
