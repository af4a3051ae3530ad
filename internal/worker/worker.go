// Package worker runs background jobs from Redis lists.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"taskflow/backend/internal/monitoring"

	"github.com/gofrs/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type JobType string

const (
	JobTypeOverdueDigest JobType = "overdue_digest"
)

const (
	QueueDefault = "taskflow:jobs:default"
	QueueRetry   = "taskflow:jobs:retry"
	QueueDead    = "taskflow:jobs:dead"
)

const defaultMaxTries = 3

type Job struct {
	ID        string                 `json:"id"`
	Type      JobType                `json:"type"`
	Payload   map[string]interface{} `json:"payload"`
	Attempts  int                    `json:"attempts"`
	MaxTries  int                    `json:"max_tries"`
	CreatedAt time.Time              `json:"created_at"`
	ProcessAt time.Time              `json:"process_at"`
}

type JobHandler func(ctx context.Context, job *Job) error

// ErrNoHandler is returned for jobs whose type has no registered handler.
var ErrNoHandler = errors.New("no handler registered")

type Worker struct {
	client       *redis.Client
	handlers     map[JobType]JobHandler
	queues       []string
	pollInterval time.Duration
	jobTimeout   time.Duration
	retryBase    time.Duration
	now          func() time.Time
	log          *zap.Logger

	mu     sync.RWMutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type WorkerConfig struct {
	RedisClient  *redis.Client
	PollInterval time.Duration
	JobTimeout   time.Duration
	// RetryBase is the first retry delay; it doubles per attempt.
	RetryBase time.Duration
	Queues    []string
	Logger    *zap.Logger
}

func NewWorker(config WorkerConfig) *Worker {
	if config.PollInterval <= 0 {
		config.PollInterval = 5 * time.Second
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = 30 * time.Second
	}
	if config.RetryBase <= 0 {
		config.RetryBase = time.Minute
	}
	if len(config.Queues) == 0 {
		config.Queues = []string{QueueDefault}
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	queues := append([]string{}, config.Queues...)
	hasRetry := false
	for _, q := range queues {
		if q == QueueRetry {
			hasRetry = true
		}
	}
	if !hasRetry {
		queues = append(queues, QueueRetry)
	}

	return &Worker{
		client:       config.RedisClient,
		handlers:     make(map[JobType]JobHandler),
		queues:       queues,
		pollInterval: config.PollInterval,
		jobTimeout:   config.JobTimeout,
		retryBase:    config.RetryBase,
		now:          time.Now,
		log:          config.Logger.Named("worker"),
	}
}

func (w *Worker) RegisterHandler(jobType JobType, handler JobHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[jobType] = handler
}

// Start launches concurrency polling loops that stop when ctx is cancelled or
// Stop is called.
func (w *Worker) Start(ctx context.Context, concurrency int) {
	if concurrency < 1 {
		concurrency = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()

	w.log.Info("starting worker", zap.Int("concurrency", concurrency), zap.Strings("queues", w.queues))
	for i := 0; i < concurrency; i++ {
		w.wg.Add(1)
		go w.loop(ctx)
	}
}

func (w *Worker) Stop() {
	w.log.Info("stopping worker")
	w.mu.RLock()
	cancel := w.cancel
	w.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
	w.wg.Wait()
	w.log.Info("worker stopped")
}

func (w *Worker) loop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if _, err := w.ProcessNext(ctx); err != nil && ctx.Err() == nil {
			w.log.Error("processing job", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
	}
}

// ProcessNext waits up to the poll interval for one job and handles it. It
// reports whether a job was taken off a queue.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	result, err := w.client.BLPop(ctx, w.pollInterval, w.queues...).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("pop job: %w", err)
	}
	if len(result) < 2 {
		return false, errors.New("invalid job result")
	}

	queue, data := result[0], result[1]
	var job Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return true, fmt.Errorf("unmarshal job: %w", err)
	}

	if w.now().Before(job.ProcessAt) {
		return true, w.enqueue(ctx, queue, &job)
	}
	return true, w.execute(ctx, &job)
}

func (w *Worker) execute(ctx context.Context, job *Job) error {
	w.mu.RLock()
	handler, exists := w.handlers[job.Type]
	w.mu.RUnlock()

	log := w.log.With(zap.String("job_id", job.ID), zap.String("job_type", string(job.Type)))
	if !exists {
		err := fmt.Errorf("%w for job type %s", ErrNoHandler, job.Type)
		monitoring.RecordJob(string(job.Type), err)
		return w.moveToDead(ctx, job, err)
	}

	log.Debug("processing job")
	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	err := handler(jobCtx, job)
	monitoring.RecordJob(string(job.Type), err)
	if err == nil {
		log.Info("job completed")
		return nil
	}

	job.Attempts++
	if job.Attempts < job.MaxTries {
		log.Warn("job failed, retrying", zap.Int("attempt", job.Attempts), zap.Int("max_tries", job.MaxTries), zap.Error(err))
		job.ProcessAt = w.now().Add(w.retryBase * time.Duration(1<<(job.Attempts-1)))
		return w.enqueue(ctx, QueueRetry, job)
	}

	log.Error("job failed permanently", zap.Int("attempts", job.Attempts), zap.Error(err))
	return w.moveToDead(ctx, job, err)
}

func (w *Worker) enqueue(ctx context.Context, queue string, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	return w.client.RPush(ctx, queue, data).Err()
}

func (w *Worker) moveToDead(ctx context.Context, job *Job, jobErr error) error {
	dead := map[string]interface{}{
		"original_job": job,
		"error":        jobErr.Error(),
		"failed_at":    w.now(),
	}
	data, err := json.Marshal(dead)
	if err != nil {
		return fmt.Errorf("marshal dead job: %w", err)
	}
	return w.client.RPush(ctx, QueueDead, data).Err()
}

type JobQueue struct {
	client *redis.Client
}

func NewJobQueue(client *redis.Client) *JobQueue {
	return &JobQueue{client: client}
}

func (q *JobQueue) Enqueue(ctx context.Context, queue string, jobType JobType, payload map[string]interface{}) (*Job, error) {
	return q.EnqueueAt(ctx, queue, jobType, payload, time.Now())
}

func (q *JobQueue) EnqueueAt(ctx context.Context, queue string, jobType JobType, payload map[string]interface{}, processAt time.Time) (*Job, error) {
	job := &Job{
		ID:        uuid.Must(uuid.NewV4()).String(),
		Type:      jobType,
		Payload:   payload,
		MaxTries:  defaultMaxTries,
		CreatedAt: time.Now(),
		ProcessAt: processAt,
	}

	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, queue, data).Err(); err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}
	return job, nil
}

func (q *JobQueue) Size(ctx context.Context, queue string) (int64, error) {
	return q.client.LLen(ctx, queue).Result()
}
