package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"parking_garage/internal/logger"
	"parking_garage/internal/payment"
)

const maxWebhookBody = 65536

// InvoiceEventHandler settles exits from payment results.
type InvoiceEventHandler interface {
	HandleInvoiceEvent(ctx context.Context, ev *payment.InvoiceEvent) error
}

type WebhookHandler struct {
	events InvoiceEventHandler
	secret string
	log    *logger.Logger
}

func NewWebhookHandler(events InvoiceEventHandler, secret string) *WebhookHandler {
	return &WebhookHandler{events: events, secret: secret, log: logger.Named("stripe-webhook")}
}

// POST /webhooks/stripe
func (h *WebhookHandler) Stripe(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "could not read body"})
		return
	}
	ev, err := payment.ParseInvoiceEvent(payload, c.GetHeader("Stripe-Signature"), h.secret)
	if err != nil {
		h.log.Warn("rejected webhook", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if ev == nil {
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}
	if err := h.events.HandleInvoiceEvent(c.Request.Context(), ev); err != nil {
		h.log.Error("could not apply invoice event", zap.String("invoice_id", ev.InvoiceID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	h.log.Info("invoice event applied",
		zap.String("type", ev.Type), zap.String("invoice_id", ev.InvoiceID), zap.Bool("succeeded", ev.Succeeded))
	c.JSON(http.StatusOK, gin.H{"received": true})
}
