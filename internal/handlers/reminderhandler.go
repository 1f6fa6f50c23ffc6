package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/justsurfingit/jobpilot/internal/dtos"
	"github.com/justsurfingit/jobpilot/internal/services"
)

type ReminderHandler struct {
	ReminderService *services.ReminderService
}

func NewReminderHandler(r *services.ReminderService) *ReminderHandler {
	return &ReminderHandler{ReminderService: r}
}

// ListReminders is GET /reminders
func (h *ReminderHandler) ListReminders(c *gin.Context) {
	reminders, err := h.ReminderService.List(c.Request.Context(), identity(c).UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": reminders})
}

// CreateReminder is POST /reminders
func (h *ReminderHandler) CreateReminder(c *gin.Context) {
	var req dtos.ReminderCreationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON format: " + err.Error()})
		return
	}
	m, err := h.ReminderService.Add(c.Request.Context(), identity(c).UserID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, accepted(m))
}

// DeleteReminder is DELETE /reminders/:id
func (h *ReminderHandler) DeleteReminder(c *gin.Context) {
	m, err := h.ReminderService.Delete(identity(c).UserID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, accepted(m))
}
