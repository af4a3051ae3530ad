package handlers

import (
	"net/http"

	"taskflow/backend/internal/models"
	"taskflow/backend/internal/services"

	"github.com/gin-gonic/gin"
)

type CategoryHandler struct {
	taskService services.TaskService
}

func NewCategoryHandler(taskService services.TaskService) *CategoryHandler {
	return &CategoryHandler{taskService: taskService}
}

func (h *CategoryHandler) GetCategories(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"categories": h.taskService.Categories()})
}

func (h *CategoryHandler) CreateCategory(c *gin.Context) {
	var input models.NewCategory
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	category, err := h.taskService.AddCategory(c.Request.Context(), input)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, category)
}

func (h *CategoryHandler) DeleteCategory(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	found, err := h.taskService.DeleteCategory(c.Request.Context(), id)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "category not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *CategoryHandler) GetCategoryTasks(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	category, found := h.taskService.CategoryByID(id)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "category not found"})
		return
	}
	tasks := h.taskService.TasksByCategory(id)
	c.JSON(http.StatusOK, gin.H{
		"category": category,
		"tasks":    renderTasks(tasks, h.taskService.Now()),
		"total":    len(tasks),
	})
}
