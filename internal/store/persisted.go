package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Persisted is a value of type T mirrored in memory and written through to a
// Backend on every Set. Get never touches the backend.
type Persisted[T any] struct {
	mu      sync.RWMutex
	writeMu sync.Mutex
	backend Backend
	key     string
	value   T
	log     *zap.Logger
	metrics *Metrics
}

type options struct {
	log     *zap.Logger
	metrics *Metrics
}

type Option func(*options)

func WithLogger(log *zap.Logger) Option {
	return func(o *options) { o.log = log }
}

func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// Open reads key from backend. A missing key is initialised with def and
// persisted immediately. A stored value that fails to decode is reported and
// replaced in memory by def; the stored blob is left for the next Set to
// overwrite.
func Open[T any](ctx context.Context, backend Backend, key string, def T, opts ...Option) (*Persisted[T], error) {
	o := options{log: zap.NewNop(), metrics: NewMetrics()}
	for _, opt := range opts {
		opt(&o)
	}

	p := &Persisted[T]{
		backend: backend,
		key:     key,
		log:     o.log.With(zap.String("key", key)),
		metrics: o.metrics,
	}

	data, err := backend.Load(ctx, key)
	switch {
	case errors.Is(err, ErrNotFound):
		p.metrics.RecordMiss()
		if err := p.Set(ctx, def); err != nil {
			return nil, fmt.Errorf("initialise %s: %w", key, err)
		}
		return p, nil
	case err != nil:
		p.metrics.RecordError()
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	p.metrics.RecordLoad()

	var decoded T
	if err := json.Unmarshal(data, &decoded); err != nil {
		p.metrics.RecordDecodeFailure()
		p.log.Warn("stored value is corrupt, using default", zap.Error(err), zap.Int("bytes", len(data)))
		p.value = def
		return p, nil
	}
	p.value = decoded
	return p, nil
}

func (p *Persisted[T]) Key() string {
	return p.key
}

// Get returns the current value. Callers must not mutate reference types in
// the returned value; build a new value and Set it instead.
func (p *Persisted[T]) Get() T {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.value
}

// Set replaces the in-memory value and writes it to the backend. The memory
// update happens even when the write fails; the write error is returned.
func (p *Persisted[T]) Set(ctx context.Context, value T) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	p.mu.Lock()
	p.value = value
	p.mu.Unlock()

	data, err := json.Marshal(value)
	if err != nil {
		p.metrics.RecordError()
		return fmt.Errorf("encode %s: %w", p.key, err)
	}

	if err := p.backend.Save(ctx, p.key, data); err != nil {
		p.metrics.RecordError()
		p.log.Error("failed to persist value", zap.Error(err))
		return fmt.Errorf("save %s: %w", p.key, err)
	}
	p.metrics.RecordSave()
	return nil
}
