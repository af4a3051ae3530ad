package models

import (
	"time"

	"github.com/gofrs/uuid"
)

type Category struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	UserID    uuid.UUID `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type NewCategory struct {
	Name  string `json:"name" binding:"required"`
	Color string `json:"color" binding:"required"`
}

// DefaultCategories are seeded for every newly provisioned user.
var DefaultCategories = []NewCategory{
	{Name: "Work", Color: "#3B82F6"},
	{Name: "Personal", Color: "#10B981"},
	{Name: "Urgent", Color: "#EF4444"},
}
