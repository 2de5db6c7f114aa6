package service

import (
	"context"
	"time"

	"returns-service/internal/store"
	"returns-service/internal/util"

	"go.uber.org/zap"
)

const (
	seedLockKey = "seed"
	seedLockTTL = 30 * time.Second
)

// SchemaStore is the part of the store the startup routine needs
type SchemaStore interface {
	Initialize(ctx context.Context) error
	SeedIfEmpty(ctx context.Context, source store.SeedSource) (int, error)
}

// Locker guards seeding across processes
type Locker interface {
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (token string, ok bool, err error)
	ReleaseLock(ctx context.Context, lockKey, token string) error
}

// Startup prepares the store before the first request
type Startup struct {
	store  SchemaStore
	source store.SeedSource
	locker Locker
	logger *zap.Logger
}

// NewStartup creates the startup routine. A nil source disables seeding;
// a nil locker leaves the row count as the only guard against double seeding.
func NewStartup(st SchemaStore, source store.SeedSource, locker Locker) *Startup {
	return &Startup{
		store:  st,
		source: source,
		locker: locker,
		logger: util.GetLogger(),
	}
}

// Run creates the schema and seeds an empty table. It is safe to run on
// every start.
func (s *Startup) Run(ctx context.Context) error {
	if err := s.store.Initialize(ctx); err != nil {
		return err
	}

	if s.source == nil {
		s.logger.Info("Seed source not configured, skipping seed")
		return nil
	}

	if s.locker != nil {
		token, ok, err := s.locker.AcquireLock(ctx, seedLockKey, seedLockTTL)
		switch {
		case err != nil:
			s.logger.Warn("Seed lock unavailable, seeding without it", zap.Error(err))
		case !ok:
			s.logger.Info("Another process is seeding, skipping")
			return nil
		default:
			defer func() {
				if err := s.locker.ReleaseLock(context.Background(), seedLockKey, token); err != nil {
					s.logger.Warn("Failed to release seed lock", zap.Error(err))
				}
			}()
		}
	}

	n, err := s.store.SeedIfEmpty(ctx, s.source)
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Info("Startup seed complete", zap.Int("rows", n))
	}
	return nil
}
