// Package convert maps domain types to their JSON wire shapes and back.
package convert

import (
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/tasktracker/internal/model"
)

// UserView is the public projection of a user. The password digest has no field here.
type UserView struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
}

// TaskView is a task as returned to its owner.
type TaskView struct {
	ID          uuid.UUID  `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Priority    string     `json:"priority"`
	Completed   bool       `json:"completed"`
	DueDate     *time.Time `json:"dueDate"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	Version     int64      `json:"version"`
}

// StatsView is the aggregate counters payload.
type StatsView struct {
	Total        int64 `json:"total"`
	Completed    int64 `json:"completed"`
	Pending      int64 `json:"pending"`
	HighPriority int64 `json:"highPriority"`
}

// AuthView is returned by register and login.
type AuthView struct {
	User      UserView  `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// --- requests (client -> server) ---

// RegisterRequest is the body of POST /api/auth/register.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// CreateTaskRequest is the body of POST /api/tasks.
type CreateTaskRequest struct {
	Title       string     `json:"title"`
	Description *string    `json:"description,omitempty"`
	Priority    *string    `json:"priority,omitempty"`
	Completed   *bool      `json:"completed,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
}

// UpdateTaskRequest is the body of PUT/PATCH /api/tasks/:id. Absent fields stay unchanged.
type UpdateTaskRequest struct {
	Title        *string    `json:"title,omitempty"`
	Description  *string    `json:"description,omitempty"`
	Priority     *string    `json:"priority,omitempty"`
	Completed    *bool      `json:"completed,omitempty"`
	DueDate      *time.Time `json:"dueDate,omitempty"`
	ClearDueDate bool       `json:"clearDueDate,omitempty"`
	Version      *int64     `json:"version,omitempty"`
}

// --- domain -> wire ---

// ToUserView drops everything but the public fields.
func ToUserView(u model.User) UserView {
	return UserView{ID: u.ID, Username: u.Username, Email: u.Email}
}

// ToTaskView converts a domain task. Timestamps are rendered in UTC.
func ToTaskView(t model.Task) TaskView {
	v := TaskView{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Priority:    string(t.Priority),
		Completed:   t.Completed,
		CreatedAt:   t.CreatedAt.UTC(),
		UpdatedAt:   t.UpdatedAt.UTC(),
		Version:     t.Version,
	}
	if t.DueDate != nil {
		d := t.DueDate.UTC()
		v.DueDate = &d
	}
	return v
}

// ToTaskViews converts a list; an empty input yields an empty, non-nil slice.
func ToTaskViews(ts []model.Task) []TaskView {
	out := make([]TaskView, 0, len(ts))
	for _, t := range ts {
		out = append(out, ToTaskView(t))
	}
	return out
}

func ToStatsView(s model.Stats) StatsView {
	return StatsView{Total: s.Total, Completed: s.Completed, Pending: s.Pending, HighPriority: s.HighPriority}
}

func ToAuthView(u model.User, tok model.Tokens) AuthView {
	return AuthView{User: ToUserView(u), Token: tok.AccessToken, ExpiresAt: tok.ExpiresAt.UTC()}
}

// --- wire -> domain ---

func prio(p *string) *model.Priority {
	if p == nil {
		return nil
	}
	mp := model.Priority(*p)
	return &mp
}

// FromCreateTaskRequest converts the create body. Values are checked by the task service.
func FromCreateTaskRequest(in CreateTaskRequest) model.NewTask {
	return model.NewTask{
		Title:       in.Title,
		Description: in.Description,
		Priority:    prio(in.Priority),
		Completed:   in.Completed,
		DueDate:     in.DueDate,
	}
}

// FromUpdateTaskRequest converts the update body into a patch.
func FromUpdateTaskRequest(in UpdateTaskRequest) model.TaskPatch {
	return model.TaskPatch{
		Title:        in.Title,
		Description:  in.Description,
		Priority:     prio(in.Priority),
		Completed:    in.Completed,
		DueDate:      in.DueDate,
		ClearDueDate: in.ClearDueDate,
		BaseVer:      in.Version,
	}
}
