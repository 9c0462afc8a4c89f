package handlers

import (
	"errors"
	"net/http"

	"tutorhive/middleware"
	"tutorhive/models"
	"tutorhive/services/subscription"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SubscriptionHandler exposes package subscription endpoints.
type SubscriptionHandler struct {
	Subscriptions subscription.SubscriptionService
	Logger        *zap.Logger
}

func NewSubscriptionHandler(subscriptions subscription.SubscriptionService, logger *zap.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{Subscriptions: subscriptions, Logger: logger}
}

// SubscribeHandler starts a subscription to the package in the path
// and opens the first cycle's charge.
func (h *SubscriptionHandler) SubscribeHandler(c *gin.Context) {
	var req models.SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input", "details": err.Error()})
		return
	}

	userID := middleware.CallerID(c)
	sub, pay, err := h.Subscriptions.Subscribe(c.Request.Context(), userID, c.Param("packageId"), req.Gateway)
	if err != nil {
		respondSubscriptionError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"subscription": sub,
		"payment":      pay,
		"redirectUrl":  pay.RedirectURL,
	})
}

// CancelSubscriptionHandler stops future renewals; the current period
// stays usable.
func (h *SubscriptionHandler) CancelSubscriptionHandler(c *gin.Context) {
	actorID := middleware.CallerID(c)
	if c.GetString(middleware.ContextRoleKey) == "admin" {
		actorID = ""
	}
	if err := h.Subscriptions.CancelSubscription(c.Request.Context(), c.Param("subscriptionId"), actorID); err != nil {
		respondSubscriptionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

// RenewSubscriptionHandler charges one subscription for its next
// period, admin-only.
func (h *SubscriptionHandler) RenewSubscriptionHandler(c *gin.Context) {
	pay, err := h.Subscriptions.Renew(c.Request.Context(), c.Param("subscriptionId"))
	if err != nil {
		respondSubscriptionError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"payment": pay, "redirectUrl": pay.RedirectURL})
}

// CheckEligibilityHandler is the read-only membership-certificate
// eligibility query.
func (h *SubscriptionHandler) CheckEligibilityHandler(c *gin.Context) {
	var req models.EligibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input", "details": err.Error()})
		return
	}

	resp, err := h.Subscriptions.CheckEligibility(c.Request.Context(), middleware.CallerID(c), req.PackageID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "eligibility check failed"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func respondSubscriptionError(c *gin.Context, err error) {
	var subErr *subscription.SubscriptionError
	if errors.As(err, &subErr) {
		status := http.StatusBadRequest
		switch subErr.Code {
		case subscription.CodeNotFound:
			status = http.StatusNotFound
		case subscription.CodeAlreadyActive, subscription.CodeInvalidState:
			status = http.StatusConflict
		case subscription.CodeNotAuthorized:
			status = http.StatusForbidden
		}
		c.JSON(status, gin.H{"error": subErr.Message, "code": subErr.Code})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
