package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"parking_garage/internal/domain"
	"parking_garage/internal/service"
)

type NotificationHandler struct {
	notifications *service.NotificationService
}

func NewNotificationHandler(ns *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: ns}
}

// GET /notifications
func (h *NotificationHandler) List(c *gin.Context) {
	list, err := h.notifications.List(c.Request.Context(), actor(c).UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	if list == nil {
		list = []domain.Notification{}
	}
	c.JSON(http.StatusOK, list)
}

// POST /notifications/:id/seen
func (h *NotificationHandler) MarkSeen(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.notifications.MarkSeen(c.Request.Context(), actor(c).UserID, id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
