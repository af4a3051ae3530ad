package worker

import (
	"context"
	"sort"

	"taskflow/backend/internal/models"

	"github.com/gofrs/uuid"
	"go.uber.org/zap"
)

// DigestSource is the read side of the task provider the digest needs.
type DigestSource interface {
	OverdueTasks() []models.Task
	UserByID(id uuid.UUID) (models.User, bool)
}

// DigestEntry lists the overdue tasks of one person: the assignee, or the
// creator when the task is unassigned.
type DigestEntry struct {
	UserID uuid.UUID
	Name   string
	Email  string
	Tasks  []models.Task
}

// BuildDigest groups overdue tasks per responsible user, ordered by name and
// then id, with each user's tasks ordered by due date.
func BuildDigest(source DigestSource) []DigestEntry {
	byUser := make(map[uuid.UUID]*DigestEntry)
	for _, t := range source.OverdueTasks() {
		owner := t.CreatedBy
		if t.AssignedTo != nil {
			owner = *t.AssignedTo
		}
		entry, ok := byUser[owner]
		if !ok {
			entry = &DigestEntry{UserID: owner}
			if user, found := source.UserByID(owner); found {
				entry.Name = user.Name
				entry.Email = user.Email
			}
			byUser[owner] = entry
		}
		entry.Tasks = append(entry.Tasks, t)
	}

	digest := make([]DigestEntry, 0, len(byUser))
	for _, entry := range byUser {
		sort.SliceStable(entry.Tasks, func(i, j int) bool {
			return entry.Tasks[i].DueDate < entry.Tasks[j].DueDate
		})
		digest = append(digest, *entry)
	}
	sort.Slice(digest, func(i, j int) bool {
		if digest[i].Name != digest[j].Name {
			return digest[i].Name < digest[j].Name
		}
		return digest[i].UserID.String() < digest[j].UserID.String()
	})
	return digest
}

// NewOverdueDigestHandler logs one line per user with overdue work.
func NewOverdueDigestHandler(source DigestSource, log *zap.Logger) JobHandler {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("digest")

	return func(ctx context.Context, job *Job) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		digest := BuildDigest(source)
		for _, entry := range digest {
			titles := make([]string, 0, len(entry.Tasks))
			for _, t := range entry.Tasks {
				titles = append(titles, t.Title)
			}
			log.Info("overdue digest",
				zap.String("job_id", job.ID),
				zap.String("user_id", entry.UserID.String()),
				zap.String("email", entry.Email),
				zap.Int("overdue", len(entry.Tasks)),
				zap.Strings("titles", titles),
			)
		}
		log.Info("overdue digest finished", zap.String("job_id", job.ID), zap.Int("users", len(digest)))
		return nil
	}
}
