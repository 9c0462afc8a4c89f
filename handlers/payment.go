package handlers

import (
	"errors"
	"net/http"

	"tutorhive/models"
	"tutorhive/services/booking"
	"tutorhive/services/payment"
	"tutorhive/services/webhook"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PaymentHandler exposes charge initiation, the synchronous provider
// redirect endpoints, and the privileged capture/refund operations.
type PaymentHandler struct {
	Bookings booking.BookingService
	Payments payment.Service
	Engine   webhook.Engine
	Logger   *zap.Logger
}

func NewPaymentHandler(bookings booking.BookingService, payments payment.Service, engine webhook.Engine, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{Bookings: bookings, Payments: payments, Engine: engine, Logger: logger}
}

// InitiatePaymentHandler opens a charge for a pending booking and
// returns the redirect the student must follow.
func (h *PaymentHandler) InitiatePaymentHandler(c *gin.Context) {
	var req models.InitiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input", "details": err.Error()})
		return
	}

	pay, err := h.Bookings.InitiatePayment(c.Request.Context(), c.Param("id"), req.Gateway)
	if err != nil {
		if errors.Is(err, payment.ErrUnknownGateway) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported payment gateway"})
			return
		}
		var bkErr *booking.BookingError
		if errors.As(err, &bkErr) {
			respondBookingError(c, err)
			return
		}
		h.Logger.Error("payment initiation failed", zap.String("bookingId", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "payment could not be initiated"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"payment": pay, "redirectUrl": pay.RedirectURL})
}

// SuccessRedirectHandler lands the student after the provider reports
// success. The redirect is a UX shortcut only: the handler re-reads the
// gateway's authoritative state and applies that, never the query
// string. The webhook remains the source of truth if this fails.
func (h *PaymentHandler) SuccessRedirectHandler(c *gin.Context) {
	h.applySyncedState(c, "success")
}

// FailureRedirectHandler lands the student after a declined charge.
func (h *PaymentHandler) FailureRedirectHandler(c *gin.Context) {
	h.applySyncedState(c, "failure")
}

// CancelRedirectHandler lands the student after abandoning checkout.
func (h *PaymentHandler) CancelRedirectHandler(c *gin.Context) {
	h.applySyncedState(c, "cancel")
}

func (h *PaymentHandler) applySyncedState(c *gin.Context, leg string) {
	paymentID := c.Param("id")
	ctx := c.Request.Context()

	event, err := h.Payments.Sync(ctx, paymentID)
	if err != nil {
		if errors.Is(err, payment.ErrPaymentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
			return
		}
		// Best effort: the webhook will settle it.
		h.Logger.Warn("redirect sync with gateway failed",
			zap.String("paymentId", paymentID), zap.String("leg", leg), zap.Error(err))
	} else if derr := h.Engine.Dispatch(ctx, event); derr != nil {
		h.Logger.Warn("redirect dispatch failed",
			zap.String("paymentId", paymentID), zap.String("leg", leg), zap.Error(derr))
	}

	pay, err := h.Payments.Get(ctx, paymentID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment": pay})
}

// CaptureHandler settles an authorized charge, admin-only.
func (h *PaymentHandler) CaptureHandler(c *gin.Context) {
	paymentID := c.Param("id")
	event, err := h.Payments.Capture(c.Request.Context(), paymentID)
	if err != nil {
		h.respondPaymentError(c, paymentID, "capture", err)
		return
	}
	if err := h.Engine.Dispatch(c.Request.Context(), event); err != nil {
		h.Logger.Error("capture dispatch failed", zap.String("paymentId", paymentID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "capture recorded but booking update failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "captured"})
}

// RefundHandler reverses a captured charge, admin-only. A zero or
// missing amount refunds in full.
func (h *PaymentHandler) RefundHandler(c *gin.Context) {
	var req models.RefundPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input", "details": err.Error()})
		return
	}

	paymentID := c.Param("id")
	event, err := h.Payments.Refund(c.Request.Context(), paymentID, req.Amount)
	if err != nil {
		h.respondPaymentError(c, paymentID, "refund", err)
		return
	}
	if err := h.Engine.Dispatch(c.Request.Context(), event); err != nil {
		h.Logger.Error("refund dispatch failed", zap.String("paymentId", paymentID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "refund recorded but booking update failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "refunded"})
}

// GetPaymentHandler returns one payment row.
func (h *PaymentHandler) GetPaymentHandler(c *gin.Context) {
	pay, err := h.Payments.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, payment.ErrPaymentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment": pay})
}

func (h *PaymentHandler) respondPaymentError(c *gin.Context, paymentID, op string, err error) {
	if errors.Is(err, payment.ErrPaymentNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
		return
	}
	if payment.IsTransient(err) {
		h.Logger.Warn("gateway unavailable", zap.String("paymentId", paymentID), zap.String("op", op), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "payment gateway unavailable, try again"})
		return
	}
	h.Logger.Error("payment operation failed", zap.String("paymentId", paymentID), zap.String("op", op), zap.Error(err))
	c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
}
