package service

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/tasktracker/internal/model"
)

// TaskCounter is the read side the aggregator needs.
type TaskCounter interface {
	Counts(ctx context.Context, userID uuid.UUID) (model.TaskCounts, error)
}

// StatsService computes per-user aggregates on demand.
type StatsService interface {
	Compute(ctx context.Context, userID uuid.UUID) (model.Stats, error)
}

type StatsServiceImpl struct {
	counter TaskCounter
	timeout time.Duration
}

// NewStatsService constructs StatsService.
func NewStatsService(counter TaskCounter, timeout time.Duration) *StatsServiceImpl {
	return &StatsServiceImpl{counter: counter, timeout: timeout}
}

// Compute returns the caller's counters. Pending is derived as Total-Completed,
// so it always agrees with the other two.
func (s *StatsServiceImpl) Compute(ctx context.Context, userID uuid.UUID) (model.Stats, error) {
	if userID == uuid.Nil {
		return model.Stats{}, errors.New("validation: empty userID")
	}
	sctx, cancel := storeCtx(ctx, s.timeout)
	defer cancel()
	c, err := s.counter.Counts(sctx, userID)
	if err != nil {
		return model.Stats{}, storeErr("count tasks", err)
	}
	return model.Stats{
		Total:        c.Total,
		Completed:    c.Completed,
		Pending:      c.Total - c.Completed,
		HighPriority: c.HighPriority,
	}, nil
}
