package handlers

import (
	"errors"
	"io"
	"net/http"

	"tutorhive/services/payment"
	"tutorhive/services/webhook"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// WebhookHandler is the inbound surface for provider notifications.
// Responses follow the provider retry contract: 2xx acknowledges, 4xx
// tells the provider to stop, 5xx asks it to redeliver.
type WebhookHandler struct {
	Engine webhook.Engine
	Logger *zap.Logger
}

func NewWebhookHandler(engine webhook.Engine, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{Engine: engine, Logger: logger}
}

// PaymentWebhookHandler ingests a webhook for the gateway named in the
// path.
func (h *WebhookHandler) PaymentWebhookHandler(c *gin.Context) {
	h.handle(c, c.Param("gateway"))
}

// ZiinaWebhookHandler is the legacy fixed-path intake for Ziina.
func (h *WebhookHandler) ZiinaWebhookHandler(c *gin.Context) {
	h.handle(c, payment.GatewayZiina)
}

func (h *WebhookHandler) handle(c *gin.Context, gateway string) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable payload"})
		return
	}

	err = h.Engine.HandleWebhook(c.Request.Context(), gateway, payload, c.Request.Header)
	if err == nil {
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	if errors.Is(err, payment.ErrUnknownGateway) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown gateway"})
		return
	}
	var whErr *webhook.WebhookError
	if errors.As(err, &whErr) {
		switch whErr.Code {
		case webhook.CodeBadSignature:
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		case webhook.CodeBadPayload:
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload"})
			return
		}
	}

	// Anything else is retriable: answer 5xx so the provider's own
	// retry redelivers and the reconciliation sweep has a second shot.
	h.Logger.Error("webhook processing failed",
		zap.String("gateway", gateway), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed, retry"})
}
