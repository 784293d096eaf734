package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/tasktracker/internal/errs"
	"github.com/and161185/tasktracker/internal/model"
	"github.com/and161185/tasktracker/internal/repository"
)

// TaskService defines owner-scoped task operations.
type TaskService interface {
	// Create stores a new task for userID, applying field defaults.
	Create(ctx context.Context, userID uuid.UUID, in model.NewTask) (*model.Task, error)
	// List returns the caller's tasks, newest first.
	List(ctx context.Context, userID uuid.UUID) ([]model.Task, error)
	// Update applies a partial patch to a task the caller owns.
	Update(ctx context.Context, userID, taskID uuid.UUID, patch model.TaskPatch) (*model.Task, error)
	// Delete removes a task the caller owns.
	Delete(ctx context.Context, userID, taskID uuid.UUID) error
}

type TaskServiceImpl struct {
	repo    repository.TaskRepository
	timeout time.Duration
	now     func() time.Time
}

// NewTaskService constructs TaskService. timeout bounds every store round-trip.
func NewTaskService(repo repository.TaskRepository, timeout time.Duration) *TaskServiceImpl {
	return &TaskServiceImpl{repo: repo, timeout: timeout, now: time.Now}
}

type taskFields struct {
	Title       *string `json:"title" validate:"omitnil,notblank,max=500"`
	Description *string `json:"description" validate:"omitnil,max=10000"`
	Priority    *string `json:"priority" validate:"omitnil,oneof=low medium high"`
	BaseVer     *int64  `json:"version" validate:"omitnil,min=1"`
}

func checkFields(title, description *string, prio *model.Priority, baseVer *int64) error {
	f := taskFields{Title: title, Description: description, BaseVer: baseVer}
	if prio != nil {
		p := string(*prio)
		f.Priority = &p
	}
	return validateStruct(f)
}

// Create validates the title and fills defaults: empty description, medium priority,
// not completed. ID, owner and timestamps are assigned here, never by the client.
func (s *TaskServiceImpl) Create(ctx context.Context, userID uuid.UUID, in model.NewTask) (*model.Task, error) {
	if userID == uuid.Nil {
		return nil, errors.New("validation: empty userID")
	}
	if err := checkFields(&in.Title, in.Description, in.Priority, nil); err != nil {
		return nil, err
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	t := &model.Task{
		ID:        id,
		UserID:    userID,
		Title:     strings.TrimSpace(in.Title),
		Priority:  model.PriorityMedium,
		DueDate:   in.DueDate,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if in.Description != nil {
		t.Description = *in.Description
	}
	if in.Priority != nil {
		t.Priority = *in.Priority
	}
	if in.Completed != nil {
		t.Completed = *in.Completed
	}

	sctx, cancel := storeCtx(ctx, s.timeout)
	defer cancel()
	if err := s.repo.Create(sctx, t); err != nil {
		return nil, storeErr("create task", err)
	}
	return t, nil
}

// List returns all of the caller's tasks; no tasks is an empty slice, not an error.
func (s *TaskServiceImpl) List(ctx context.Context, userID uuid.UUID) ([]model.Task, error) {
	if userID == uuid.Nil {
		return nil, errors.New("validation: empty userID")
	}
	sctx, cancel := storeCtx(ctx, s.timeout)
	defer cancel()
	out, err := s.repo.ListByOwner(sctx, userID)
	if err != nil {
		return nil, storeErr("list tasks", err)
	}
	if out == nil {
		out = []model.Task{}
	}
	return out, nil
}

// Update validates supplied fields and delegates the owner-scoped write.
// A task owned by someone else yields errs.ErrNotFound.
func (s *TaskServiceImpl) Update(ctx context.Context, userID, taskID uuid.UUID, patch model.TaskPatch) (*model.Task, error) {
	if userID == uuid.Nil {
		return nil, errors.New("validation: empty userID")
	}
	if taskID == uuid.Nil {
		return nil, errs.ErrNotFound
	}
	if err := checkFields(patch.Title, patch.Description, patch.Priority, patch.BaseVer); err != nil {
		return nil, err
	}
	if patch.DueDate != nil && patch.ClearDueDate {
		return nil, errs.NewValidation("dueDate", "clearDueDate")
	}
	if patch.Title != nil {
		trimmed := strings.TrimSpace(*patch.Title)
		patch.Title = &trimmed
	}

	sctx, cancel := storeCtx(ctx, s.timeout)
	defer cancel()
	t, err := s.repo.Update(sctx, userID, taskID, patch)
	if err != nil {
		return nil, storeErr("update task", err)
	}
	return t, nil
}

// Delete removes the task. Deleting an already deleted task reports errs.ErrNotFound.
func (s *TaskServiceImpl) Delete(ctx context.Context, userID, taskID uuid.UUID) error {
	if userID == uuid.Nil {
		return errors.New("validation: empty userID")
	}
	if taskID == uuid.Nil {
		return errs.ErrNotFound
	}
	sctx, cancel := storeCtx(ctx, s.timeout)
	defer cancel()
	return storeErr("delete task", s.repo.Delete(sctx, userID, taskID))
}
