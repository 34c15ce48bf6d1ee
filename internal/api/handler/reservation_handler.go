package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"parking_garage/internal/domain"
	"parking_garage/internal/service"
)

type ReservationHandler struct {
	reservations *service.ReservationService
}

func NewReservationHandler(rs *service.ReservationService) *ReservationHandler {
	return &ReservationHandler{reservations: rs}
}

// POST /reservations
func (h *ReservationHandler) Create(c *gin.Context) {
	var dto domain.CreateReservationDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		bindError(c, err)
		return
	}
	res, err := h.reservations.CreateReservation(c.Request.Context(), actor(c), dto)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// GET /reservations?garage_id=
func (h *ReservationHandler) List(c *gin.Context) {
	garageID := 0
	if raw := c.Query("garage_id"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid garage_id"})
			return
		}
		garageID = id
	}
	list, err := h.reservations.List(c.Request.Context(), actor(c), garageID)
	if err != nil {
		respondError(c, err)
		return
	}
	if list == nil {
		list = []domain.Reservation{}
	}
	c.JSON(http.StatusOK, list)
}

// DELETE /reservations/:id
func (h *ReservationHandler) Cancel(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.reservations.Cancel(c.Request.Context(), actor(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
