package models

import (
	"strings"
	"time"

	"github.com/gofrs/uuid"
)

type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in-progress"
	StatusCompleted  TaskStatus = "completed"
)

var TaskStatuses = []TaskStatus{StatusPending, StatusInProgress, StatusCompleted}

func (s TaskStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// ParseTaskStatus accepts the canonical keywords plus the underscore spelling
// older clients send for in-progress.
func ParseTaskStatus(s string) (TaskStatus, bool) {
	normalized := TaskStatus(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-"))
	return normalized, normalized.Valid()
}

type Task struct {
	ID          uuid.UUID  `json:"id"`
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	DueDate     string     `json:"due_date"`
	Status      TaskStatus `json:"status"`
	CategoryID  *uuid.UUID `json:"category_id"`
	CreatedBy   uuid.UUID  `json:"created_by"`
	AssignedTo  *uuid.UUID `json:"assigned_to"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (t Task) IsCompleted() bool {
	return t.Status == StatusCompleted
}

// NewTask carries the caller-supplied fields of a task; id, creator and
// timestamps are stamped by the provider.
type NewTask struct {
	Title       string     `json:"title" binding:"required"`
	Description *string    `json:"description"`
	DueDate     string     `json:"due_date" binding:"required"`
	Status      TaskStatus `json:"status"`
	CategoryID  *uuid.UUID `json:"category_id"`
	AssignedTo  *uuid.UUID `json:"assigned_to"`
}

// TaskPatch is a field-level partial update. Nil pointers leave the field
// untouched; the Clear flags null out optional references.
type TaskPatch struct {
	Title            *string     `json:"title"`
	Description      *string     `json:"description"`
	ClearDescription bool        `json:"clear_description"`
	DueDate          *string     `json:"due_date"`
	Status           *TaskStatus `json:"status"`
	CategoryID       *uuid.UUID  `json:"category_id"`
	ClearCategory    bool        `json:"clear_category"`
	AssignedTo       *uuid.UUID  `json:"assigned_to"`
	ClearAssignee    bool        `json:"clear_assignee"`
}

func (p TaskPatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && !p.ClearDescription &&
		p.DueDate == nil && p.Status == nil &&
		p.CategoryID == nil && !p.ClearCategory &&
		p.AssignedTo == nil && !p.ClearAssignee
}

// Apply merges the patch into t and returns the result. Timestamps are left
// to the caller.
func (p TaskPatch) Apply(t Task) Task {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.ClearDescription {
		t.Description = nil
	} else if p.Description != nil {
		t.Description = cloneString(p.Description)
	}
	if p.DueDate != nil {
		t.DueDate = *p.DueDate
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.ClearCategory {
		t.CategoryID = nil
	} else if p.CategoryID != nil {
		t.CategoryID = cloneUUID(p.CategoryID)
	}
	if p.ClearAssignee {
		t.AssignedTo = nil
	} else if p.AssignedTo != nil {
		t.AssignedTo = cloneUUID(p.AssignedTo)
	}
	return t
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
