package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/and161185/tasktracker/internal/errs"
	"github.com/and161185/tasktracker/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

const taskColumns = `id, user_id, title, description, priority, completed, due_date, version, created_at, updated_at`

// TaskRepo implements TaskRepository using PostgreSQL.
type TaskRepo struct{ db *DB }

// NewTaskRepo constructs a task repository.
func NewTaskRepo(db *DB) *TaskRepo { return &TaskRepo{db: db} }

// Create inserts a new task row.
func (r *TaskRepo) Create(ctx context.Context, t *model.Task) error {
	const q = `
INSERT INTO tasks (id, user_id, title, description, priority, completed, due_date, version, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.db.Pool.Exec(ctx, q,
		t.ID, t.UserID, t.Title, t.Description, string(t.Priority), t.Completed, t.DueDate,
		t.Version, t.CreatedAt, t.UpdatedAt)
	return classify(err)
}

// ListByOwner returns the owner's tasks ordered by creation time, newest first.
// Equal timestamps fall back to insertion order (seq), also newest first.
func (r *TaskRepo) ListByOwner(ctx context.Context, userID uuid.UUID) ([]model.Task, error) {
	const q = `
SELECT ` + taskColumns + `
FROM tasks
WHERE user_id=$1
ORDER BY created_at DESC, seq DESC`
	rows, err := r.db.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	out := []model.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, *t)
	}
	return out, classify(rows.Err())
}

// Update applies a partial patch under a row lock and bumps the version.
// An empty patch returns the row unchanged.
func (r *TaskRepo) Update(
	ctx context.Context, userID, taskID uuid.UUID, patch model.TaskPatch,
) (t *model.Task, err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, classify(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			t, err = nil, classify(e)
		}
	}()

	const sel = `SELECT version FROM tasks WHERE id=$1 AND user_id=$2 FOR UPDATE`
	const upd = `
UPDATE tasks SET
  title = COALESCE($3, title),
  description = COALESCE($4, description),
  priority = COALESCE($5, priority),
  completed = COALESCE($6, completed),
  due_date = CASE WHEN $8 THEN NULL ELSE COALESCE($7, due_date) END,
  version = version + 1,
  updated_at = now()
WHERE id=$1 AND user_id=$2
RETURNING ` + taskColumns

	var curVer int64
	if err = tx.QueryRow(ctx, sel, taskID, userID).Scan(&curVer); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, classify(err)
	}
	if patch.BaseVer != nil && *patch.BaseVer != curVer {
		return nil, errs.ErrVersionConflict
	}

	if patch.Empty() {
		// nothing to write: no version bump
		t, err = scanTask(tx.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=$1 AND user_id=$2`, taskID, userID))
		if err != nil {
			return nil, classify(err)
		}
		return t, nil
	}

	var prio *string
	if patch.Priority != nil {
		p := string(*patch.Priority)
		prio = &p
	}
	t, err = scanTask(tx.QueryRow(ctx, upd, taskID, userID,
		patch.Title, patch.Description, prio, patch.Completed, patch.DueDate, patch.ClearDueDate))
	if err != nil {
		return nil, classify(err)
	}
	return t, nil
}

// Delete removes the task if it belongs to userID.
func (r *TaskRepo) Delete(ctx context.Context, userID, taskID uuid.UUID) error {
	const q = `DELETE FROM tasks WHERE id=$1 AND user_id=$2`
	tag, err := r.db.Pool.Exec(ctx, q, taskID, userID)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Counts reads all counters in one statement, so they share a snapshot.
func (r *TaskRepo) Counts(ctx context.Context, userID uuid.UUID) (model.TaskCounts, error) {
	const q = `
SELECT count(*),
       count(*) FILTER (WHERE completed),
       count(*) FILTER (WHERE priority = 'high')
FROM tasks WHERE user_id=$1`
	var c model.TaskCounts
	if err := r.db.Pool.QueryRow(ctx, q, userID).Scan(&c.Total, &c.Completed, &c.HighPriority); err != nil {
		return model.TaskCounts{}, classify(err)
	}
	return c, nil
}

func scanTask(row pgx.Row) (*model.Task, error) {
	var (
		t    model.Task
		prio string
		due  *time.Time
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &prio, &t.Completed,
		&due, &t.Version, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Priority = model.Priority(prio)
	t.DueDate = due
	return &t, nil
}
