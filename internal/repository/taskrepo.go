package repository

import (
	"context"

	"github.com/and161185/tasktracker/internal/model"
	"github.com/gofrs/uuid/v5"
)

// TaskRepository provides owner-scoped access to tasks. Every method filters by userID;
// a task owned by someone else is indistinguishable from a missing one.
type TaskRepository interface {
	// Create inserts a fully populated task.
	Create(ctx context.Context, t *model.Task) error

	// ListByOwner returns the owner's tasks, newest first.
	ListByOwner(ctx context.Context, userID uuid.UUID) ([]model.Task, error)

	// Update applies a partial patch and returns the stored result.
	Update(ctx context.Context, userID, taskID uuid.UUID, patch model.TaskPatch) (*model.Task, error)

	// Delete removes a task.
	Delete(ctx context.Context, userID, taskID uuid.UUID) error

	// Counts returns the raw counters used by stats.
	Counts(ctx context.Context, userID uuid.UUID) (model.TaskCounts, error)
}
