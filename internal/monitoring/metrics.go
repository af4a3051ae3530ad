package monitoring

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"taskflow/backend/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "taskflow"

var startTime = time.Now()

var (
	// HTTPRequestsTotal counts served requests.
	// Labels: method, route, status
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	HTTPActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "active_requests",
			Help:      "Number of requests currently being served",
		},
	)

	// TaskMutations counts provider mutations.
	// Labels: op (add_task, update_task, delete_task, add_category, delete_category, upsert_user, ensure_categories)
	TaskMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_mutations_total",
			Help:      "Total number of task provider mutations",
		},
		[]string{"op"},
	)

	// ProvisionedUsers counts provisioning runs.
	// Labels: result (success, error)
	ProvisionedUsers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provisioning_total",
			Help:      "Total number of user provisioning runs",
		},
		[]string{"result"},
	)

	// JobsProcessed counts background jobs.
	// Labels: type, result (success, error)
	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "jobs_total",
			Help:      "Total number of processed background jobs",
		},
		[]string{"type", "result"},
	)
)

func RecordTaskMutation(op string) {
	TaskMutations.WithLabelValues(op).Inc()
}

func RecordProvisioning(err error) {
	ProvisionedUsers.WithLabelValues(result(err)).Inc()
}

func RecordJob(jobType string, err error) {
	JobsProcessed.WithLabelValues(jobType, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		HTTPActiveRequests.Inc()

		c.Next()

		HTTPActiveRequests.Dec()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

func MetricsHandler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

// StoreCollector exports the counters of persisted collections, one series
// per collection key and operation.
type StoreCollector struct {
	metrics map[string]*store.Metrics
	desc    *prometheus.Desc
}

func NewStoreCollector(metrics map[string]*store.Metrics) *StoreCollector {
	return &StoreCollector{
		metrics: metrics,
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "store", "operations_total"),
			"Total number of persisted store operations",
			[]string{"key", "op"},
			nil,
		),
	}
}

func (c *StoreCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *StoreCollector) Collect(ch chan<- prometheus.Metric) {
	for key, m := range c.metrics {
		stats := m.GetStats()
		for op, v := range map[string]int64{
			"load":           stats.Loads,
			"save":           stats.Saves,
			"miss":           stats.Misses,
			"decode_failure": stats.DecodeFailures,
			"error":          stats.Errors,
		} {
			ch <- prometheus.MustNewConstMetric(c.desc, prometheus.CounterValue, float64(v), key, op)
		}
	}
}

type SystemMetrics struct {
	Uptime         string      `json:"uptime"`
	MemoryUsage    MemoryStats `json:"memory"`
	GoroutineCount int         `json:"goroutine_count"`
	CPUCount       int         `json:"cpu_count"`
	GoVersion      string      `json:"go_version"`
}

type MemoryStats struct {
	Alloc      uint64 `json:"alloc_mb"`
	TotalAlloc uint64 `json:"total_alloc_mb"`
	Sys        uint64 `json:"sys_mb"`
	NumGC      uint32 `json:"num_gc"`
}

func GetSystemMetrics() SystemMetrics {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return SystemMetrics{
		Uptime: time.Since(startTime).Round(time.Second).String(),
		MemoryUsage: MemoryStats{
			Alloc:      bToMb(m.Alloc),
			TotalAlloc: bToMb(m.TotalAlloc),
			Sys:        bToMb(m.Sys),
			NumGC:      m.NumGC,
		},
		GoroutineCount: runtime.NumGoroutine(),
		CPUCount:       runtime.NumCPU(),
		GoVersion:      runtime.Version(),
	}
}

func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}

func SystemHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"system":    GetSystemMetrics(),
			"timestamp": time.Now(),
		})
	}
}
