package handlers

import (
	"math"
	"net/http"

	"taskflow/backend/internal/services"

	"github.com/gin-gonic/gin"
)

type AnalyticsHandler struct {
	taskService services.TaskService
}

func NewAnalyticsHandler(taskService services.TaskService) *AnalyticsHandler {
	return &AnalyticsHandler{taskService: taskService}
}

// Home is the dashboard: counters plus what needs attention today.
func (h *AnalyticsHandler) Home(c *gin.Context) {
	now := h.taskService.Now()
	c.JSON(http.StatusOK, gin.H{
		"stats":     h.taskService.Stats(),
		"due_today": renderTasks(h.taskService.TasksDueToday(), now),
		"overdue":   renderTasks(h.taskService.OverdueTasks(), now),
	})
}

type categoryBreakdown struct {
	CategoryID string `json:"category_id"`
	Name       string `json:"name"`
	Color      string `json:"color"`
	Total      int    `json:"total"`
	Completed  int    `json:"completed"`
}

func (h *AnalyticsHandler) Analytics(c *gin.Context) {
	stats := h.taskService.Stats()

	breakdown := make([]categoryBreakdown, 0)
	for _, category := range h.taskService.Categories() {
		entry := categoryBreakdown{
			CategoryID: category.ID.String(),
			Name:       category.Name,
			Color:      category.Color,
		}
		for _, t := range h.taskService.TasksByCategory(category.ID) {
			entry.Total++
			if t.IsCompleted() {
				entry.Completed++
			}
		}
		breakdown = append(breakdown, entry)
	}

	c.JSON(http.StatusOK, gin.H{
		"stats":              stats,
		"completion_rate":    stats.CompletionRate,
		"completion_percent": math.Round(stats.CompletionRate * 100),
		"by_status": gin.H{
			"pending":     stats.Pending,
			"in-progress": stats.InProgress,
			"completed":   stats.Completed,
		},
		"by_category": breakdown,
	})
}
