package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"parking_garage/internal/domain"
	"parking_garage/internal/service"
)

type GarageHandler struct {
	garages      *service.GarageService
	reservations *service.ReservationService
	reassignment *service.ReassignmentService
}

func NewGarageHandler(gs *service.GarageService, rs *service.ReservationService, ras *service.ReassignmentService) *GarageHandler {
	return &GarageHandler{garages: gs, reservations: rs, reassignment: ras}
}

// POST /garages
func (h *GarageHandler) CreateGarage(c *gin.Context) {
	var dto domain.GarageDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		bindError(c, err)
		return
	}
	garage, err := h.garages.CreateGarage(c.Request.Context(), actor(c).UserID, dto)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, garage)
}

// GET /garages
func (h *GarageHandler) ListGarages(c *gin.Context) {
	garages, err := h.garages.ListGarages(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if garages == nil {
		garages = []domain.Garage{}
	}
	c.JSON(http.StatusOK, garages)
}

// GET /garages/:id
func (h *GarageHandler) GetGarage(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	garage, err := h.garages.GetGarage(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, garage)
}

// PUT /garages/:id
func (h *GarageHandler) UpdateGarage(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var dto domain.GarageDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		bindError(c, err)
		return
	}
	garage, err := h.garages.UpdateGarage(c.Request.Context(), id, dto)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, garage)
}

// DELETE /garages/:id
func (h *GarageHandler) DeleteGarage(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.garages.DeleteGarage(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /garages/:id/status
func (h *GarageHandler) GetStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	status, err := h.garages.GetStatus(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// GET /garages/:id/lots?from=&to=
func (h *GarageHandler) ListLots(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var q domain.AvailabilityQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindError(c, err)
		return
	}
	lots, err := h.garages.ListLots(c.Request.Context(), id, q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, lots)
}

// POST /garages/:id/lots
func (h *GarageHandler) CreateLot(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var dto domain.ParkingLotDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		bindError(c, err)
		return
	}
	lot, err := h.garages.CreateLot(c.Request.Context(), id, dto)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, lot)
}

// PUT /garages/:id/lots/:lot_id
func (h *GarageHandler) UpdateLot(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	lotID, ok := pathID(c, "lot_id")
	if !ok {
		return
	}
	var dto domain.UpdateParkingLotDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		bindError(c, err)
		return
	}
	lot, err := h.garages.UpdateLot(c.Request.Context(), id, lotID, dto)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, lot)
}

// GET /garages/:id/prices
func (h *GarageHandler) ListPrices(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	prices, err := h.garages.ListPrices(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if prices == nil {
		prices = []domain.Price{}
	}
	c.JSON(http.StatusOK, prices)
}

// POST /garages/:id/prices
func (h *GarageHandler) CreatePrice(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var dto domain.PriceDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		bindError(c, err)
		return
	}
	price, err := h.garages.CreatePrice(c.Request.Context(), id, dto)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, price)
}

// DELETE /garages/:id/prices/:price_id
func (h *GarageHandler) DeletePrice(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	priceID, ok := pathID(c, "price_id")
	if !ok {
		return
	}
	if err := h.garages.DeletePrice(c.Request.Context(), id, priceID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /garages/:id/assign-lot
func (h *GarageHandler) AssignLot(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var dto domain.AssignLotDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		bindError(c, err)
		return
	}
	lot, err := h.reservations.AssignLot(c.Request.Context(), id, dto.FromDate, dto.ToDate)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, lot)
}

// POST /garages/:id/reassign
func (h *GarageHandler) Reassign(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	report, err := h.reassignment.ReassignGarage(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
