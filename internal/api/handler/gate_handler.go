package handler

import (
	"encoding/base64"
	"net/http"

	"github.com/gin-gonic/gin"

	"parking_garage/internal/domain"
	"parking_garage/internal/service"
)

// GateHandler is the operator-facing surface of the entry and exit gates.
type GateHandler struct {
	gateService *service.GateService
	iotService  *service.IoTService
}

func NewGateHandler(gs *service.GateService, is *service.IoTService) *GateHandler {
	return &GateHandler{gateService: gs, iotService: is}
}

// POST /api/v1/gates/:garage_id/detect
func (h *GateHandler) DetectPlate(c *gin.Context) {
	garageID, ok := pathID(c, "garage_id")
	if !ok {
		return
	}
	var dto domain.DetectPlateDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		bindError(c, err)
		return
	}
	result, err := h.gateService.DetectPlate(c.Request.Context(), dto.Plate, garageID)
	respondDetection(c, result, err)
}

// POST /api/v1/gates/:garage_id/image
func (h *GateHandler) DetectImage(c *gin.Context) {
	garageID, ok := pathID(c, "garage_id")
	if !ok {
		return
	}
	var req domain.LPRRequestDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	image, err := base64.StdEncoding.DecodeString(req.ImageBase64)
	if err != nil || len(image) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image_base64 is not a valid image"})
		return
	}

	resp, err := h.gateService.DetectImage(c.Request.Context(), garageID, image, domain.SourceAPI)
	if err != nil {
		if resp == nil {
			respondError(c, err)
			return
		}
		c.JSON(statusFor(err), resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// POST /api/v1/gates/:garage_id/barrier
func (h *GateHandler) ControlBarrier(c *gin.Context) {
	garageID, ok := pathID(c, "garage_id")
	if !ok {
		return
	}
	var dto domain.ControlBarrierDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		bindError(c, err)
		return
	}
	requestID, err := h.iotService.ControlBarrier(c.Request.Context(), garageID, dto)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"request_id": requestID, "garage_id": garageID, "direction": dto.Direction, "command": dto.Command})
}

// respondDetection reports a rejected detection with both the reason and the result.
func respondDetection(c *gin.Context, result *domain.EntryExitResult, err error) {
	if err == nil {
		c.JSON(http.StatusOK, result)
		return
	}
	body := errorBody(c, err)
	if result != nil {
		body["result"] = result
	}
	c.JSON(statusFor(err), body)
}
