package handlers

import (
	"time"

	"taskflow/backend/internal/dateutil"
	"taskflow/backend/internal/models"
)

// TaskView is a task plus the due-date fields a client would otherwise have
// to compute itself.
type TaskView struct {
	models.Task
	Overdue     bool   `json:"overdue"`
	DueToday    bool   `json:"due_today"`
	DueLabel    string `json:"due_label"`
	DueRelative string `json:"due_relative"`
	DueInput    string `json:"due_input"`
}

func renderTask(t models.Task, now time.Time) TaskView {
	return TaskView{
		Task:        t,
		Overdue:     !t.IsCompleted() && dateutil.IsOverdueAt(t.DueDate, now),
		DueToday:    dateutil.IsTodayAt(t.DueDate, now),
		DueLabel:    dateutil.FormatDateIn(t.DueDate, now.Location()),
		DueRelative: dateutil.RelativeTimeAt(t.DueDate, now),
		DueInput:    dateutil.ToDateInputValueAt(t.DueDate, now),
	}
}

func renderTasks(tasks []models.Task, now time.Time) []TaskView {
	views := make([]TaskView, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, renderTask(t, now))
	}
	return views
}
