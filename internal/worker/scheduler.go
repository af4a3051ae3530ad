package worker

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler wraps cron-based jobs.
type Scheduler struct {
	cron *cron.Cron
	log  *zap.Logger
}

func NewScheduler(loc *time.Location, log *zap.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		cron: cron.New(cron.WithLocation(loc), cron.WithSeconds()),
		log:  log.Named("scheduler"),
	}
}

// ScheduleDaily registers a daily job at the given HH:MM time string.
func (s *Scheduler) ScheduleDaily(timeStr string, job func()) (cron.EntryID, error) {
	spec, err := buildDailySpec(timeStr)
	if err != nil {
		return 0, err
	}
	return s.cron.AddFunc(spec, job)
}

// ScheduleDigest enqueues an overdue digest job every day at timeStr.
func (s *Scheduler) ScheduleDigest(ctx context.Context, queue *JobQueue, timeStr string) (cron.EntryID, error) {
	return s.ScheduleDaily(timeStr, func() {
		job, err := queue.Enqueue(ctx, QueueDefault, JobTypeOverdueDigest, map[string]interface{}{
			"scheduled_for": timeStr,
		})
		if err != nil {
			s.log.Error("enqueue overdue digest", zap.Error(err))
			return
		}
		s.log.Info("overdue digest enqueued", zap.String("job_id", job.ID))
	})
}

func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func buildDailySpec(timeStr string) (string, error) {
	parts := strings.Split(timeStr, ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid time %q, expected HH:MM", timeStr)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("invalid hour in %q", timeStr)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid minute in %q", timeStr)
	}
	// second minute hour dom month dow
	return fmt.Sprintf("0 %d %d * * *", minute, hour), nil
}
