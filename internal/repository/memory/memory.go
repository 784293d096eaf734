// Package memory provides process-local repository implementations for development
// runs and tests. State is lost on restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/tasktracker/internal/errs"
	"github.com/and161185/tasktracker/internal/model"
)

// UserRepo is an in-memory UserRepository. Uniqueness is checked under the same lock as the insert.
type UserRepo struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]model.User
	byName  map[string]uuid.UUID
	byEmail map[string]uuid.UUID
}

// NewUserRepo constructs an empty user store.
func NewUserRepo() *UserRepo {
	return &UserRepo{
		byID:    map[uuid.UUID]model.User{},
		byName:  map[string]uuid.UUID{},
		byEmail: map[string]uuid.UUID{},
	}
}

func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, nameTaken := r.byName[u.Username]
	_, emailTaken := r.byEmail[u.Email]
	if nameTaken || emailTaken {
		return errs.ErrAlreadyExists
	}
	u.CreatedAt = time.Now().UTC()
	r.byID[u.ID] = *u
	r.byName[u.Username] = u.ID
	r.byEmail[u.Email] = u.ID
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &u, nil
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[email]
	if !ok {
		return nil, errs.ErrNotFound
	}
	u := r.byID[id]
	return &u, nil
}

type taskRow struct {
	task model.Task
	seq  uint64
}

// TaskRepo is an in-memory TaskRepository.
type TaskRepo struct {
	mu   sync.RWMutex
	seq  uint64
	rows map[uuid.UUID]*taskRow
}

// NewTaskRepo constructs an empty task store.
func NewTaskRepo() *TaskRepo {
	return &TaskRepo{rows: map[uuid.UUID]*taskRow{}}
}

func (r *TaskRepo) Create(ctx context.Context, t *model.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.rows[t.ID]; dup {
		return errs.ErrAlreadyExists
	}
	r.seq++
	r.rows[t.ID] = &taskRow{task: cloneTask(*t), seq: r.seq}
	return nil
}

func (r *TaskRepo) ListByOwner(ctx context.Context, userID uuid.UUID) ([]model.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	rows := make([]*taskRow, 0)
	for _, row := range r.rows {
		if row.task.UserID == userID {
			rows = append(rows, row)
		}
	}
	r.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.task.CreatedAt.Equal(b.task.CreatedAt) {
			return a.task.CreatedAt.After(b.task.CreatedAt)
		}
		return a.seq > b.seq
	})
	out := make([]model.Task, 0, len(rows))
	for _, row := range rows {
		out = append(out, cloneTask(row.task))
	}
	return out, nil
}

func (r *TaskRepo) Update(ctx context.Context, userID, taskID uuid.UUID, patch model.TaskPatch) (*model.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[taskID]
	if !ok || row.task.UserID != userID {
		return nil, errs.ErrNotFound
	}
	if patch.BaseVer != nil && *patch.BaseVer != row.task.Version {
		return nil, errs.ErrVersionConflict
	}

	if patch.Empty() {
		out := cloneTask(row.task)
		return &out, nil
	}

	t := &row.task
	if patch.Title != nil {
		t.Title = *patch.Title
	}
	if patch.Description != nil {
		t.Description = *patch.Description
	}
	if patch.Priority != nil {
		t.Priority = *patch.Priority
	}
	if patch.Completed != nil {
		t.Completed = *patch.Completed
	}
	switch {
	case patch.ClearDueDate:
		t.DueDate = nil
	case patch.DueDate != nil:
		d := *patch.DueDate
		t.DueDate = &d
	}
	t.Version++
	t.UpdatedAt = time.Now().UTC()

	out := cloneTask(*t)
	return &out, nil
}

func (r *TaskRepo) Delete(ctx context.Context, userID, taskID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[taskID]
	if !ok || row.task.UserID != userID {
		return errs.ErrNotFound
	}
	delete(r.rows, taskID)
	return nil
}

// Counts walks the owner's rows under one read lock.
func (r *TaskRepo) Counts(ctx context.Context, userID uuid.UUID) (model.TaskCounts, error) {
	if err := ctx.Err(); err != nil {
		return model.TaskCounts{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var c model.TaskCounts
	for _, row := range r.rows {
		if row.task.UserID != userID {
			continue
		}
		c.Total++
		if row.task.Completed {
			c.Completed++
		}
		if row.task.Priority == model.PriorityHigh {
			c.HighPriority++
		}
	}
	return c, nil
}

func cloneTask(t model.Task) model.Task {
	if t.DueDate != nil {
		d := *t.DueDate
		t.DueDate = &d
	}
	return t
}
