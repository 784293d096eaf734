package limiter

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgx used here; *pgxpool.Pool satisfies it.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Config tunes the fixed-window lockout.
type Config struct {
	Window      time.Duration // failures older than this no longer count
	MaxFailures int           // failures inside Window that trigger a block
	BlockFor    time.Duration // lockout length
}

// PG is a PostgreSQL-backed limiter storing counters in login_attempts.
type PG struct {
	db  Querier
	cfg Config
	now func() time.Time
}

// NewPG constructs a PostgreSQL-backed limiter.
func NewPG(db Querier, cfg Config) *PG {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Window <= 0 {
		cfg.Window = 15 * time.Minute
	}
	if cfg.BlockFor <= 0 {
		cfg.BlockFor = 15 * time.Minute
	}
	return &PG{db: db, cfg: cfg, now: time.Now}
}

// Allow reports whether login is currently allowed and a retry-after duration.
func (l *PG) Allow(ctx context.Context, email string, clientHash []byte) (bool, time.Duration, error) {
	const q = `SELECT blocked_until FROM login_attempts WHERE email=$1 AND ip_hash=$2`
	var blockedUntil time.Time
	err := l.db.QueryRow(ctx, q, email, clientHash).Scan(&blockedUntil)
	switch {
	case err == nil:
		if now := l.now(); blockedUntil.After(now) {
			return false, blockedUntil.Sub(now), nil
		}
		return true, 0, nil
	case errors.Is(err, pgx.ErrNoRows):
		return true, 0, nil
	default:
		return false, 0, err
	}
}

// Success drops the counters for (email, client).
func (l *PG) Success(ctx context.Context, email string, clientHash []byte) error {
	const q = `DELETE FROM login_attempts WHERE email=$1 AND ip_hash=$2`
	_, err := l.db.Exec(ctx, q, email, clientHash)
	return err
}

// Failure counts a failed attempt, restarting the window when the previous one lapsed,
// and blocks the pair once MaxFailures is reached.
func (l *PG) Failure(ctx context.Context, email string, clientHash []byte) (bool, time.Duration, error) {
	now := l.now()
	windowStart := now.Add(-l.cfg.Window)

	const q = `
INSERT INTO login_attempts (email, ip_hash, fail_count, window_start)
VALUES ($1, $2, 1, $3)
ON CONFLICT (email, ip_hash) DO UPDATE
SET
  fail_count = CASE WHEN login_attempts.window_start < $4 THEN 1 ELSE login_attempts.fail_count + 1 END,
  window_start = CASE WHEN login_attempts.window_start < $4 THEN $3 ELSE login_attempts.window_start END
RETURNING fail_count`
	var fails int
	if err := l.db.QueryRow(ctx, q, email, clientHash, now, windowStart).Scan(&fails); err != nil {
		return false, 0, err
	}
	if fails < l.cfg.MaxFailures {
		return false, 0, nil
	}

	const block = `UPDATE login_attempts SET blocked_until=$3, fail_count=0 WHERE email=$1 AND ip_hash=$2`
	if _, err := l.db.Exec(ctx, block, email, clientHash, now.Add(l.cfg.BlockFor)); err != nil {
		return false, 0, err
	}
	return true, l.cfg.BlockFor, nil
}
