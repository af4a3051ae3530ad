package monitoring

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

type HealthCheck struct {
	Name    string    `json:"name"`
	Status  string    `json:"status"`
	Message string    `json:"message,omitempty"`
	LastRun time.Time `json:"last_run"`
}

type HealthCheckFunc func(ctx context.Context) error

// HealthChecker runs named dependency probes on demand.
type HealthChecker struct {
	mu      sync.RWMutex
	checks  map[string]HealthCheckFunc
	timeout time.Duration
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		checks:  make(map[string]HealthCheckFunc),
		timeout: 5 * time.Second,
	}
}

func (h *HealthChecker) Register(name string, check HealthCheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

func (h *HealthChecker) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes every registered check concurrently.
func (h *HealthChecker) Run(ctx context.Context) map[string]HealthCheck {
	h.mu.RLock()
	checks := make(map[string]HealthCheckFunc, len(h.checks))
	for name, fn := range h.checks {
		checks[name] = fn
	}
	h.mu.RUnlock()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make(map[string]HealthCheck, len(checks))
	)
	for name, fn := range checks {
		wg.Add(1)
		go func(name string, fn HealthCheckFunc) {
			defer wg.Done()

			checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
			defer cancel()

			check := HealthCheck{Name: name, Status: StatusHealthy, LastRun: time.Now()}
			if err := fn(checkCtx); err != nil {
				check.Status = StatusUnhealthy
				check.Message = err.Error()
			}

			mu.Lock()
			results[name] = check
			mu.Unlock()
		}(name, fn)
	}
	wg.Wait()
	return results
}

func healthy(checks map[string]HealthCheck) bool {
	for _, check := range checks {
		if check.Status != StatusHealthy {
			return false
		}
	}
	return true
}

func (h *HealthChecker) HealthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := h.Run(c.Request.Context())

		overallStatus := StatusHealthy
		status := http.StatusOK
		if !healthy(checks) {
			overallStatus = StatusUnhealthy
			status = http.StatusServiceUnavailable
		}

		c.JSON(status, gin.H{
			"status":    overallStatus,
			"timestamp": time.Now(),
			"checks":    checks,
			"uptime":    time.Since(startTime).String(),
		})
	}
}

func (h *HealthChecker) ReadinessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if healthy(h.Run(c.Request.Context())) {
			c.JSON(http.StatusOK, gin.H{
				"status":    "ready",
				"timestamp": time.Now(),
			})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "not ready",
			"timestamp": time.Now(),
		})
	}
}

func LivenessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "alive",
			"timestamp": time.Now(),
			"uptime":    time.Since(startTime).String(),
		})
	}
}
