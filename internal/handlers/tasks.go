package handlers

import (
	"net/http"

	"taskflow/backend/internal/models"
	"taskflow/backend/internal/services"

	"github.com/gin-gonic/gin"
)

type TaskHandler struct {
	taskService services.TaskService
}

func NewTaskHandler(taskService services.TaskService) *TaskHandler {
	return &TaskHandler{taskService: taskService}
}

func (h *TaskHandler) GetTasks(c *gin.Context) {
	tasks := h.taskService.Tasks()
	c.JSON(http.StatusOK, gin.H{
		"tasks": renderTasks(tasks, h.taskService.Now()),
		"total": len(tasks),
	})
}

func (h *TaskHandler) CreateTask(c *gin.Context) {
	var input models.NewTask
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := h.taskService.AddTask(c.Request.Context(), input)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, renderTask(task, h.taskService.Now()))
}

func (h *TaskHandler) GetTaskByID(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	task, found := h.taskService.TaskByID(id)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	c.JSON(http.StatusOK, renderTask(task, h.taskService.Now()))
}

func (h *TaskHandler) UpdateTask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var patch models.TaskPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if patch.IsEmpty() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no fields to update"})
		return
	}

	task, found, err := h.taskService.UpdateTask(c.Request.Context(), id, patch)
	h.respondUpdate(c, task, found, err)
}

func (h *TaskHandler) UpdateTaskStatus(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var body struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	status, valid := models.ParseTaskStatus(body.Status)
	if !valid {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be one of pending, in-progress, completed"})
		return
	}

	task, found, err := h.taskService.UpdateTaskStatus(c.Request.Context(), id, status)
	h.respondUpdate(c, task, found, err)
}

func (h *TaskHandler) respondUpdate(c *gin.Context, task models.Task, found bool, err error) {
	if err != nil {
		handleServiceError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	c.JSON(http.StatusOK, renderTask(task, h.taskService.Now()))
}

func (h *TaskHandler) DeleteTask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	found, err := h.taskService.DeleteTask(c.Request.Context(), id)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *TaskHandler) FilterTasks(c *gin.Context) {
	filter := c.Param("filter")
	tasks, err := h.taskService.TasksByFilter(filter)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"filter": filter,
		"tasks":  renderTasks(tasks, h.taskService.Now()),
		"total":  len(tasks),
	})
}
