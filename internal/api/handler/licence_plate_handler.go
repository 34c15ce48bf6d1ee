package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"parking_garage/internal/domain"
	"parking_garage/internal/service"
)

type LicencePlateHandler struct {
	plates  *service.LicencePlateService
	billing *service.BillingService
}

func NewLicencePlateHandler(ps *service.LicencePlateService, bs *service.BillingService) *LicencePlateHandler {
	return &LicencePlateHandler{plates: ps, billing: bs}
}

// POST /licence-plates
func (h *LicencePlateHandler) Register(c *gin.Context) {
	var dto domain.LicencePlateDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		bindError(c, err)
		return
	}
	lp, err := h.plates.Register(c.Request.Context(), actor(c).UserID, dto)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, lp)
}

// GET /licence-plates
func (h *LicencePlateHandler) List(c *gin.Context) {
	plates, err := h.plates.List(c.Request.Context(), actor(c).UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	if plates == nil {
		plates = []domain.LicencePlate{}
	}
	c.JSON(http.StatusOK, plates)
}

// GET /licence-plates/:id/billing
func (h *LicencePlateHandler) Billing(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	preview, err := h.billing.GetBillingPreview(c.Request.Context(), actor(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, preview)
}

// POST /licence-plates/:id/pay
func (h *LicencePlateHandler) Pay(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	lp, err := h.billing.RecordPayment(c.Request.Context(), actor(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, lp)
}
