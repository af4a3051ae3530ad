package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"taskflow/backend/internal/auth"
	"taskflow/backend/internal/dateutil"
	"taskflow/backend/internal/models"
	"taskflow/backend/internal/monitoring"
	"taskflow/backend/internal/store"

	"github.com/gofrs/uuid"
	"go.uber.org/zap"
)

// Filter keywords accepted by TasksByFilter.
const (
	FilterPending    = "pending"
	FilterInProgress = "in-progress"
	FilterCompleted  = "completed"
	FilterOverdue    = "overdue"
	FilterToday      = "today"
)

var TaskFilters = []string{FilterPending, FilterInProgress, FilterCompleted, FilterOverdue, FilterToday}

type TaskService interface {
	Now() time.Time

	Tasks() []models.Task
	Categories() []models.Category
	Users() []models.User

	TaskByID(id uuid.UUID) (models.Task, bool)
	AddTask(ctx context.Context, input models.NewTask) (models.Task, error)
	UpdateTask(ctx context.Context, id uuid.UUID, patch models.TaskPatch) (models.Task, bool, error)
	UpdateTaskStatus(ctx context.Context, id uuid.UUID, status models.TaskStatus) (models.Task, bool, error)
	DeleteTask(ctx context.Context, id uuid.UUID) (bool, error)

	AddCategory(ctx context.Context, input models.NewCategory) (models.Category, error)
	DeleteCategory(ctx context.Context, id uuid.UUID) (bool, error)

	TasksByCategory(categoryID uuid.UUID) []models.Task
	TasksByStatus(status models.TaskStatus) []models.Task
	TasksByAssignee(userID uuid.UUID) []models.Task
	OverdueTasks() []models.Task
	TasksDueToday() []models.Task
	TasksByFilter(keyword string) ([]models.Task, error)
	CategoryByID(id uuid.UUID) (models.Category, bool)
	UserByID(id uuid.UUID) (models.User, bool)

	CompletedCount() int
	PendingCount() int
	InProgressCount() int
	OverdueCount() int
	TotalCount() int
	CompletionRate() float64
	Stats() Stats
}

// Stats is a consistent snapshot of every task counter.
type Stats struct {
	Total          int     `json:"total"`
	Completed      int     `json:"completed"`
	Pending        int     `json:"pending"`
	InProgress     int     `json:"in_progress"`
	Overdue        int     `json:"overdue"`
	DueToday       int     `json:"due_today"`
	CompletionRate float64 `json:"completion_rate"`
}

// TaskProvider owns the task, category and user collections. Each collection
// is mirrored in memory and rewritten as a whole on every mutation.
type TaskProvider struct {
	mu         sync.RWMutex
	tasks      *store.Persisted[[]models.Task]
	categories *store.Persisted[[]models.Category]
	users      *store.Persisted[[]models.User]

	now     func() time.Time
	log     *zap.Logger
	metrics map[string]*store.Metrics
}

type ProviderOption func(*TaskProvider)

// WithClock replaces time.Now. The clock's location decides where a calendar
// day starts for the overdue and due-today predicates.
func WithClock(now func() time.Time) ProviderOption {
	return func(p *TaskProvider) { p.now = now }
}

func NewTaskProvider(ctx context.Context, backend store.Backend, log *zap.Logger, opts ...ProviderOption) (*TaskProvider, error) {
	if log == nil {
		log = zap.NewNop()
	}
	p := &TaskProvider{
		now: time.Now,
		log: log.Named("tasks"),
		metrics: map[string]*store.Metrics{
			store.KeyTasks:      store.NewMetrics(),
			store.KeyCategories: store.NewMetrics(),
			store.KeyUsers:      store.NewMetrics(),
		},
	}
	for _, opt := range opts {
		opt(p)
	}

	storeOpts := func(key string) []store.Option {
		return []store.Option{store.WithLogger(log.Named("store")), store.WithMetrics(p.metrics[key])}
	}

	var err error
	if p.tasks, err = store.Open(ctx, backend, store.KeyTasks, []models.Task{}, storeOpts(store.KeyTasks)...); err != nil {
		return nil, err
	}
	if p.categories, err = store.Open(ctx, backend, store.KeyCategories, []models.Category{}, storeOpts(store.KeyCategories)...); err != nil {
		return nil, err
	}
	if p.users, err = store.Open(ctx, backend, store.KeyUsers, []models.User{}, storeOpts(store.KeyUsers)...); err != nil {
		return nil, err
	}

	p.log.Info("task provider ready",
		zap.Int("tasks", len(p.tasks.Get())),
		zap.Int("categories", len(p.categories.Get())),
		zap.Int("users", len(p.users.Get())),
	)
	return p, nil
}

// StoreMetrics returns the per-collection store counters keyed by store key.
func (p *TaskProvider) StoreMetrics() map[string]*store.Metrics {
	return p.metrics
}

func (p *TaskProvider) Now() time.Time {
	return p.now()
}

func (p *TaskProvider) Tasks() []models.Task {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]models.Task(nil), p.tasks.Get()...)
}

func (p *TaskProvider) Categories() []models.Category {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]models.Category(nil), p.categories.Get()...)
}

func (p *TaskProvider) Users() []models.User {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]models.User(nil), p.users.Get()...)
}

func (p *TaskProvider) TaskByID(id uuid.UUID) (models.Task, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, t := range p.tasks.Get() {
		if t.ID == id {
			return t, true
		}
	}
	return models.Task{}, false
}

func (p *TaskProvider) AddTask(ctx context.Context, input models.NewTask) (models.Task, error) {
	user, ok := auth.UserFromContext(ctx)
	if !ok {
		return models.Task{}, ErrUnauthenticated
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return models.Task{}, fmt.Errorf("%w: title is required", ErrInvalidTask)
	}
	if _, ok := dateutil.Parse(input.DueDate, p.now().Location()); !ok {
		return models.Task{}, fmt.Errorf("%w: due date %q is not a date", ErrInvalidTask, input.DueDate)
	}
	status := input.Status
	if status == "" {
		status = models.StatusPending
	}
	if !status.Valid() {
		return models.Task{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	id, err := uuid.NewV4()
	if err != nil {
		return models.Task{}, fmt.Errorf("generate task id: %w", err)
	}

	now := p.now()
	task := models.Task{
		ID:          id,
		Title:       title,
		Description: input.Description,
		DueDate:     input.DueDate,
		Status:      status,
		CategoryID:  input.CategoryID,
		CreatedBy:   user.ID,
		AssignedTo:  input.AssignedTo,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	current := p.tasks.Get()
	next := make([]models.Task, 0, len(current)+1)
	next = append(next, current...)
	next = append(next, task)
	if err := p.tasks.Set(ctx, next); err != nil {
		return task, err
	}

	monitoring.RecordTaskMutation("add_task")
	p.log.Debug("task added", zap.String("task_id", task.ID.String()), zap.String("user_id", user.ID.String()))
	return task, nil
}

// UpdateTask merges patch into the task with the given id. An unknown id is a
// no-op reported through found=false.
func (p *TaskProvider) UpdateTask(ctx context.Context, id uuid.UUID, patch models.TaskPatch) (models.Task, bool, error) {
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return models.Task{}, false, fmt.Errorf("%w: title is required", ErrInvalidTask)
	}
	if patch.DueDate != nil {
		if _, ok := dateutil.Parse(*patch.DueDate, p.now().Location()); !ok {
			return models.Task{}, false, fmt.Errorf("%w: due date %q is not a date", ErrInvalidTask, *patch.DueDate)
		}
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return models.Task{}, false, fmt.Errorf("%w: %q", ErrInvalidStatus, *patch.Status)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	current := p.tasks.Get()
	idx := -1
	for i, t := range current {
		if t.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return models.Task{}, false, nil
	}

	updated := patch.Apply(current[idx])
	if patch.Title != nil {
		updated.Title = strings.TrimSpace(*patch.Title)
	}
	now := p.now()
	if now.After(updated.UpdatedAt) {
		updated.UpdatedAt = now
	}

	next := append([]models.Task(nil), current...)
	next[idx] = updated
	if err := p.tasks.Set(ctx, next); err != nil {
		return updated, true, err
	}

	monitoring.RecordTaskMutation("update_task")
	return updated, true, nil
}

func (p *TaskProvider) UpdateTaskStatus(ctx context.Context, id uuid.UUID, status models.TaskStatus) (models.Task, bool, error) {
	return p.UpdateTask(ctx, id, models.TaskPatch{Status: &status})
}

func (p *TaskProvider) DeleteTask(ctx context.Context, id uuid.UUID) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	current := p.tasks.Get()
	next := make([]models.Task, 0, len(current))
	for _, t := range current {
		if t.ID != id {
			next = append(next, t)
		}
	}
	if len(next) == len(current) {
		return false, nil
	}
	if err := p.tasks.Set(ctx, next); err != nil {
		return true, err
	}

	monitoring.RecordTaskMutation("delete_task")
	return true, nil
}

func (p *TaskProvider) AddCategory(ctx context.Context, input models.NewCategory) (models.Category, error) {
	user, ok := auth.UserFromContext(ctx)
	if !ok {
		return models.Category{}, ErrUnauthenticated
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return models.Category{}, fmt.Errorf("%w: name is required", ErrInvalidCategory)
	}

	category, err := p.newCategory(user.ID, models.NewCategory{Name: name, Color: input.Color})
	if err != nil {
		return models.Category{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	current := p.categories.Get()
	next := make([]models.Category, 0, len(current)+1)
	next = append(next, current...)
	next = append(next, category)
	if err := p.categories.Set(ctx, next); err != nil {
		return category, err
	}

	monitoring.RecordTaskMutation("add_category")
	return category, nil
}

func (p *TaskProvider) newCategory(owner uuid.UUID, input models.NewCategory) (models.Category, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return models.Category{}, fmt.Errorf("generate category id: %w", err)
	}
	now := p.now()
	return models.Category{
		ID:        id,
		Name:      input.Name,
		Color:     input.Color,
		UserID:    owner,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// DeleteCategory removes the category only. Tasks that reference it keep the
// dangling reference.
func (p *TaskProvider) DeleteCategory(ctx context.Context, id uuid.UUID) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	current := p.categories.Get()
	next := make([]models.Category, 0, len(current))
	for _, c := range current {
		if c.ID != id {
			next = append(next, c)
		}
	}
	if len(next) == len(current) {
		return false, nil
	}
	if err := p.categories.Set(ctx, next); err != nil {
		return true, err
	}

	monitoring.RecordTaskMutation("delete_category")
	return true, nil
}

// UpsertUser inserts the profile or refreshes name and email of an existing
// one, keeping its creation time and avatar.
func (p *TaskProvider) UpsertUser(ctx context.Context, user models.User) (models.User, error) {
	if user.ID.IsNil() {
		return models.User{}, fmt.Errorf("upsert user: %w", ErrUnauthenticated)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	current := p.users.Get()
	next := append([]models.User(nil), current...)

	stored := user
	found := false
	for i, u := range next {
		if u.ID == user.ID {
			u.Name = user.Name
			u.Email = user.Email
			if user.AvatarURL != nil {
				u.AvatarURL = user.AvatarURL
			}
			if now.After(u.UpdatedAt) {
				u.UpdatedAt = now
			}
			next[i] = u
			stored = u
			found = true
			break
		}
	}
	if !found {
		stored.CreatedAt = now
		stored.UpdatedAt = now
		next = append(next, stored)
	}

	if err := p.users.Set(ctx, next); err != nil {
		return stored, err
	}
	monitoring.RecordTaskMutation("upsert_user")
	return stored, nil
}

// EnsureCategories creates each wanted category the owner does not already
// have by name, and returns only the ones it created.
func (p *TaskProvider) EnsureCategories(ctx context.Context, owner uuid.UUID, wanted []models.NewCategory) ([]models.Category, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	current := p.categories.Get()
	have := make(map[string]bool)
	for _, c := range current {
		if c.UserID == owner {
			have[strings.ToLower(c.Name)] = true
		}
	}

	var created []models.Category
	for _, w := range wanted {
		if have[strings.ToLower(w.Name)] {
			continue
		}
		category, err := p.newCategory(owner, w)
		if err != nil {
			return nil, err
		}
		created = append(created, category)
		have[strings.ToLower(w.Name)] = true
	}
	if len(created) == 0 {
		return nil, nil
	}

	next := make([]models.Category, 0, len(current)+len(created))
	next = append(next, current...)
	next = append(next, created...)
	if err := p.categories.Set(ctx, next); err != nil {
		return created, err
	}

	monitoring.RecordTaskMutation("ensure_categories")
	return created, nil
}

func (p *TaskProvider) filterTasks(keep func(models.Task) bool) []models.Task {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []models.Task
	for _, t := range p.tasks.Get() {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}

func (p *TaskProvider) TasksByCategory(categoryID uuid.UUID) []models.Task {
	return p.filterTasks(func(t models.Task) bool {
		return t.CategoryID != nil && *t.CategoryID == categoryID
	})
}

func (p *TaskProvider) TasksByStatus(status models.TaskStatus) []models.Task {
	return p.filterTasks(func(t models.Task) bool { return t.Status == status })
}

func (p *TaskProvider) TasksByAssignee(userID uuid.UUID) []models.Task {
	return p.filterTasks(func(t models.Task) bool {
		return t.AssignedTo != nil && *t.AssignedTo == userID
	})
}

func (p *TaskProvider) isOverdue(t models.Task, now time.Time) bool {
	return !t.IsCompleted() && dateutil.IsOverdueAt(t.DueDate, now)
}

func (p *TaskProvider) OverdueTasks() []models.Task {
	now := p.now()
	return p.filterTasks(func(t models.Task) bool { return p.isOverdue(t, now) })
}

func (p *TaskProvider) TasksDueToday() []models.Task {
	now := p.now()
	return p.filterTasks(func(t models.Task) bool { return dateutil.IsTodayAt(t.DueDate, now) })
}

func (p *TaskProvider) TasksByFilter(keyword string) ([]models.Task, error) {
	switch strings.ToLower(strings.TrimSpace(keyword)) {
	case FilterOverdue:
		return p.OverdueTasks(), nil
	case FilterToday:
		return p.TasksDueToday(), nil
	}
	status, ok := models.ParseTaskStatus(keyword)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFilter, keyword)
	}
	return p.TasksByStatus(status), nil
}

func (p *TaskProvider) CategoryByID(id uuid.UUID) (models.Category, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, c := range p.categories.Get() {
		if c.ID == id {
			return c, true
		}
	}
	return models.Category{}, false
}

func (p *TaskProvider) UserByID(id uuid.UUID) (models.User, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, u := range p.users.Get() {
		if u.ID == id {
			return u, true
		}
	}
	return models.User{}, false
}

func (p *TaskProvider) CompletedCount() int {
	return len(p.TasksByStatus(models.StatusCompleted))
}

func (p *TaskProvider) PendingCount() int {
	return len(p.TasksByStatus(models.StatusPending))
}

func (p *TaskProvider) InProgressCount() int {
	return len(p.TasksByStatus(models.StatusInProgress))
}

func (p *TaskProvider) OverdueCount() int {
	return len(p.OverdueTasks())
}

func (p *TaskProvider) TotalCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.tasks.Get())
}

// CompletionRate is completed/total in [0,1], and 0 for no tasks.
func (p *TaskProvider) CompletionRate() float64 {
	return p.Stats().CompletionRate
}

func (p *TaskProvider) Stats() Stats {
	now := p.now()

	p.mu.RLock()
	defer p.mu.RUnlock()

	var s Stats
	for _, t := range p.tasks.Get() {
		s.Total++
		switch t.Status {
		case models.StatusCompleted:
			s.Completed++
		case models.StatusPending:
			s.Pending++
		case models.StatusInProgress:
			s.InProgress++
		}
		if p.isOverdue(t, now) {
			s.Overdue++
		}
		if dateutil.IsTodayAt(t.DueDate, now) {
			s.DueToday++
		}
	}
	if s.Total > 0 {
		s.CompletionRate = float64(s.Completed) / float64(s.Total)
	}
	return s
}
