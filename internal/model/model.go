// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Tokens collects an issued access token and its expiry.
type Tokens struct {
	AccessToken string
	ExpiresAt   time.Time
}

// User represents an account stored on the server. The password is never stored in plaintext.
type User struct {
	ID        uuid.UUID // PK
	Username  string    // unique, case-sensitive
	Email     string    // unique, stored lower-cased
	PwdHash   string    // argon2id PHC string, salt embedded
	CreatedAt time.Time
}

// Priority is the urgency level of a task.
type Priority string

// Supported priorities.
const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Task is a single to-do record owned by exactly one user.
type Task struct {
	ID          uuid.UUID
	UserID      uuid.UUID // FK -> users.id, set from the authenticated caller
	Title       string
	Description string
	Priority    Priority
	Completed   bool
	DueDate     *time.Time
	Version     int64 // incremented on every update
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewTask holds the client-supplied fields for task creation. Nil means "use the default".
type NewTask struct {
	Title       string
	Description *string
	Priority    *Priority
	Completed   *bool
	DueDate     *time.Time
}

// TaskPatch is a partial update; nil fields are left unchanged.
type TaskPatch struct {
	Title        *string
	Description  *string
	Priority     *Priority
	Completed    *bool
	DueDate      *time.Time
	ClearDueDate bool
	BaseVer      *int64 // optional optimistic concurrency check
}

// Empty reports whether the patch changes nothing.
func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Priority == nil &&
		p.Completed == nil && p.DueDate == nil && !p.ClearDueDate
}

// TaskCounts are raw per-owner counters read from the store.
type TaskCounts struct {
	Total        int64
	Completed    int64
	HighPriority int64
}

// Stats is the aggregate view over a user's tasks.
type Stats struct {
	Total        int64
	Completed    int64
	Pending      int64
	HighPriority int64
}
