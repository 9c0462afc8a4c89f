package handlers

import (
	"errors"
	"net/http"

	"tutorhive/middleware"
	"tutorhive/models"
	"tutorhive/services/reservation"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AvailabilityHandler exposes teacher slot management endpoints.
type AvailabilityHandler struct {
	Reservations reservation.ReservationService
	Logger       *zap.Logger
}

func NewAvailabilityHandler(reservations reservation.ReservationService, logger *zap.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{Reservations: reservations, Logger: logger}
}

// PublishSlotsHandler creates bookable slots for the calling teacher.
func (h *AvailabilityHandler) PublishSlotsHandler(c *gin.Context) {
	var req models.PublishSlotsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input", "details": err.Error()})
		return
	}

	teacherID := middleware.CallerID(c)
	slots, err := h.Reservations.PublishSlots(c.Request.Context(), teacherID, req.Slots)
	if err != nil {
		respondReservationError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"slots": slots})
}

// ListAvailabilityHandler returns a teacher's slots with occupancy state.
func (h *AvailabilityHandler) ListAvailabilityHandler(c *gin.Context) {
	teacherID := c.Param("teacherId")
	slots, err := h.Reservations.ListAvailability(c.Request.Context(), teacherID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list availability"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"slots": slots})
}

// RemoveSlotHandler deletes one of the calling teacher's free slots.
func (h *AvailabilityHandler) RemoveSlotHandler(c *gin.Context) {
	teacherID := middleware.CallerID(c)
	slotID := c.Param("slotId")
	if err := h.Reservations.RemoveSlot(c.Request.Context(), teacherID, slotID); err != nil {
		respondReservationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}

// ReopenSlotHandler returns a booked slot to the pool after an
// out-of-band resolution, an admin-only operation.
func (h *AvailabilityHandler) ReopenSlotHandler(c *gin.Context) {
	slotID := c.Param("slotId")
	if err := h.Reservations.CancelBooked(c.Request.Context(), slotID); err != nil {
		respondReservationError(c, err)
		return
	}
	h.Logger.Info("slot reopened by admin", zap.String("slotId", slotID))
	c.JSON(http.StatusOK, gin.H{"status": "reopened"})
}

func respondReservationError(c *gin.Context, err error) {
	var resErr *reservation.ReservationError
	if errors.As(err, &resErr) {
		status := http.StatusBadRequest
		switch resErr.Code {
		case reservation.CodeSlotConflict:
			status = http.StatusConflict
		case reservation.CodeHoldExpired:
			status = http.StatusGone
		case reservation.CodeInvalidSlot:
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": resErr.Message, "code": resErr.Code})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
