package limiter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

func newLimiter(t *testing.T, cfg Config) (*PG, pgxmock.PgxPoolIface, time.Time) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewPG(mock, cfg)
	l.now = func() time.Time { return now }
	return l, mock, now
}

func TestNewPG_Defaults(t *testing.T) {
	l := NewPG(nil, Config{})
	require.Equal(t, 5, l.cfg.MaxFailures)
	require.Equal(t, 15*time.Minute, l.cfg.Window)
	require.Equal(t, 15*time.Minute, l.cfg.BlockFor)
}

func TestAllow(t *testing.T) {
	l, mock, now := newLimiter(t, Config{})
	ctx := context.Background()
	h := HashClient("1.2.3.4")

	mock.ExpectQuery(`SELECT blocked_until FROM login_attempts WHERE email=\$1 AND ip_hash=\$2`).
		WithArgs("a@x.com", h).
		WillReturnError(pgx.ErrNoRows)
	ok, dur, err := l.Allow(ctx, "a@x.com", h)
	require.NoError(t, err)
	require.True(t, ok)
	require.Zero(t, dur)

	mock.ExpectQuery(`SELECT blocked_until`).
		WithArgs("a@x.com", h).
		WillReturnRows(pgxmock.NewRows([]string{"blocked_until"}).AddRow(now.Add(10 * time.Minute)))
	ok, dur, err = l.Allow(ctx, "a@x.com", h)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 10*time.Minute, dur)

	mock.ExpectQuery(`SELECT blocked_until`).
		WithArgs("a@x.com", h).
		WillReturnRows(pgxmock.NewRows([]string{"blocked_until"}).AddRow(now.Add(-time.Minute)))
	ok, _, err = l.Allow(ctx, "a@x.com", h)
	require.NoError(t, err)
	require.True(t, ok)

	mock.ExpectQuery(`SELECT blocked_until`).
		WithArgs("a@x.com", h).
		WillReturnError(errors.New("db boom"))
	ok, _, err = l.Allow(ctx, "a@x.com", h)
	require.Error(t, err)
	require.False(t, ok)
}

func TestSuccess(t *testing.T) {
	l, mock, _ := newLimiter(t, Config{})
	h := HashClient("1.2.3.4")

	mock.ExpectExec(`DELETE FROM login_attempts WHERE email=\$1 AND ip_hash=\$2`).
		WithArgs("a@x.com", h).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	require.NoError(t, l.Success(context.Background(), "a@x.com", h))

	mock.ExpectExec(`DELETE FROM login_attempts`).
		WithArgs("a@x.com", h).
		WillReturnError(errors.New("exec fail"))
	require.Error(t, l.Success(context.Background(), "a@x.com", h))
}

func TestFailure_CountsThenBlocks(t *testing.T) {
	cfg := Config{Window: 5 * time.Minute, MaxFailures: 3, BlockFor: 10 * time.Minute}
	l, mock, now := newLimiter(t, cfg)
	ctx := context.Background()
	h := HashClient("1.2.3.4")

	mock.ExpectQuery(`INSERT INTO login_attempts .* RETURNING fail_count`).
		WithArgs("a@x.com", h, now, now.Add(-cfg.Window)).
		WillReturnRows(pgxmock.NewRows([]string{"fail_count"}).AddRow(2))
	blocked, dur, err := l.Failure(ctx, "a@x.com", h)
	require.NoError(t, err)
	require.False(t, blocked)
	require.Zero(t, dur)

	mock.ExpectQuery(`INSERT INTO login_attempts`).
		WithArgs("a@x.com", h, now, now.Add(-cfg.Window)).
		WillReturnRows(pgxmock.NewRows([]string{"fail_count"}).AddRow(3))
	mock.ExpectExec(`UPDATE login_attempts SET blocked_until=\$3, fail_count=0`).
		WithArgs("a@x.com", h, now.Add(cfg.BlockFor)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	blocked, dur, err = l.Failure(ctx, "a@x.com", h)
	require.NoError(t, err)
	require.True(t, blocked)
	require.Equal(t, cfg.BlockFor, dur)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFailure_QueryError(t *testing.T) {
	l, mock, _ := newLimiter(t, Config{})
	mock.ExpectQuery(`INSERT INTO login_attempts`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("query error"))

	_, _, err := l.Failure(context.Background(), "a@x.com", []byte("h"))
	require.Error(t, err)
}

func TestHashClient_Determinism(t *testing.T) {
	a := HashClient("1.2.3.4")
	b := HashClient("1.2.3.4")
	c := HashClient("5.6.7.8")
	if string(a) != string(b) || string(a) == string(c) || len(a) != 32 {
		t.Fatalf("hash mismatch/len: %d", len(a))
	}
}

func TestNop_NeverBlocks(t *testing.T) {
	var l Limiter = Nop{}
	ok, _, err := l.Allow(context.Background(), "a", nil)
	require.NoError(t, err)
	require.True(t, ok)
	blocked, _, err := l.Failure(context.Background(), "a", nil)
	require.NoError(t, err)
	require.False(t, blocked)
	require.NoError(t, l.Success(context.Background(), "a", nil))
}
