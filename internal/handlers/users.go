package handlers

import (
	"net/http"

	"taskflow/backend/internal/services"

	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	taskService services.TaskService
}

func NewUserHandler(taskService services.TaskService) *UserHandler {
	return &UserHandler{taskService: taskService}
}

func (h *UserHandler) GetUsers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"users": h.taskService.Users()})
}

func (h *UserHandler) GetUser(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	user, found := h.taskService.UserByID(id)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":           user,
		"assigned_tasks": renderTasks(h.taskService.TasksByAssignee(id), h.taskService.Now()),
	})
}
