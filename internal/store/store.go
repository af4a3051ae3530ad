// Package store keeps typed values mirrored in memory and persisted as JSON
// blobs under string keys in a durable backend.
package store

import (
	"context"
	"errors"
)

// Keys of the collections the task provider persists.
const (
	KeyTasks      = "tasks"
	KeyCategories = "categories"
	KeyUsers      = "users"
)

var (
	ErrNotFound    = errors.New("store: key not found")
	ErrCircuitOpen = errors.New("store: backend circuit open")
	ErrClosed      = errors.New("store: backend closed")
)

// Backend is a durable blob store. Load returns ErrNotFound for absent keys.
type Backend interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
	Health(ctx context.Context) error
	Close() error
}
