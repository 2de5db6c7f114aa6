package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"returns-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSeedSource struct {
	records []models.ReturnRecord
	calls   int
}

func (f *fakeSeedSource) Fetch(ctx context.Context) ([]models.ReturnRecord, error) {
	f.calls++
	return f.records, nil
}

type fakeLocker struct {
	held     bool
	err      error
	released int
}

func (f *fakeLocker) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, bool, error) {
	if f.err != nil {
		return "", false, f.err
	}
	if f.held {
		return "", false, nil
	}
	f.held = true
	return "token", true, nil
}

func (f *fakeLocker) ReleaseLock(ctx context.Context, lockKey, token string) error {
	f.held = false
	f.released++
	return nil
}

func seedRows() []models.ReturnRecord {
	return []models.ReturnRecord{
		{
			OrderID:      1001,
			Product:      "Bluetooth Speaker",
			Category:     "Electronics",
			ReturnReason: "No sound",
			Cost:         decimal.RequireFromString("45.00"),
			ApprovedFlag: models.ApprovedYes,
			StoreName:    "Taipei Xinyi",
			Date:         "2024-01-15",
		},
		{
			OrderID:      1002,
			Product:      "Desk Lamp",
			Category:     "Home",
			ReturnReason: "Broken",
			Cost:         decimal.RequireFromString("12.00"),
			ApprovedFlag: models.ApprovedNo,
			StoreName:    "Kaohsiung",
			Date:         "2024-01-16",
		},
	}
}

func TestStartupSeedsOnce(t *testing.T) {
	st := newTestStore(t)
	src := &fakeSeedSource{records: seedRows()}
	locker := &fakeLocker{}
	ctx := context.Background()

	startup := NewStartup(st, src, locker)
	require.NoError(t, startup.Run(ctx))
	require.NoError(t, startup.Run(ctx))

	n, err := st.CountReturns(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, src.calls)
	assert.Equal(t, 2, locker.released)

	// seed rows keep their own ids; new submissions continue after them
	next, err := st.NextOrderID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1003), next)
}

func TestStartupSkipsWhenLockHeld(t *testing.T) {
	st := newTestStore(t)
	src := &fakeSeedSource{records: seedRows()}

	startup := NewStartup(st, src, &fakeLocker{held: true})
	require.NoError(t, startup.Run(context.Background()))

	assert.Zero(t, src.calls)
	n, err := st.CountReturns(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStartupLockErrorStillSeeds(t *testing.T) {
	st := newTestStore(t)
	src := &fakeSeedSource{records: seedRows()}

	startup := NewStartup(st, src, &fakeLocker{err: errors.New("redis down")})
	require.NoError(t, startup.Run(context.Background()))

	n, err := st.CountReturns(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestStartupWithoutSource(t *testing.T) {
	st := newTestStore(t)

	require.NoError(t, NewStartup(st, nil, nil).Run(context.Background()))

	records, err := st.ReadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}
