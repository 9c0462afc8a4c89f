package handlers

import (
	"errors"
	"net/http"

	"tutorhive/middleware"
	"tutorhive/models"
	"tutorhive/services/booking"
	"tutorhive/services/reservation"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// BookingHandler exposes the booking lifecycle endpoints.
type BookingHandler struct {
	Bookings booking.BookingService
	Logger   *zap.Logger
}

func NewBookingHandler(bookings booking.BookingService, logger *zap.Logger) *BookingHandler {
	return &BookingHandler{Bookings: bookings, Logger: logger}
}

// BookSlotHandler holds a slot and opens a pending booking for the
// calling student.
func (h *BookingHandler) BookSlotHandler(c *gin.Context) {
	var req models.BookSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input", "details": err.Error()})
		return
	}

	studentID := middleware.CallerID(c)
	bk, err := h.Bookings.BookSlot(c.Request.Context(), studentID, req.SlotID)
	if err != nil {
		var resErr *reservation.ReservationError
		if errors.As(err, &resErr) {
			respondReservationError(c, err)
			return
		}
		h.Logger.Error("booking creation failed", zap.String("slotId", req.SlotID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create booking"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"booking": bk})
}

func (h *BookingHandler) GetBookingHandler(c *gin.Context) {
	bk, err := h.Bookings.GetBooking(c.Request.Context(), c.Param("bookingId"))
	if err != nil {
		respondBookingError(c, err)
		return
	}
	if bk.StudentID != middleware.CallerID(c) && c.GetString(middleware.ContextRoleKey) != "admin" {
		c.JSON(http.StatusForbidden, gin.H{"error": "booking belongs to another student"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking": bk})
}

func (h *BookingHandler) ListMyBookingsHandler(c *gin.Context) {
	bookings, err := h.Bookings.ListStudentBookings(c.Request.Context(), middleware.CallerID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list bookings"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings})
}

// UpdateBookingStatusHandler accepts the caller-driven transitions:
// cancellation by the student and completion by teacher or admin.
// Payment-driven transitions only ever come through the webhook path.
func (h *BookingHandler) UpdateBookingStatusHandler(c *gin.Context) {
	var req models.UpdateBookingStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input", "details": err.Error()})
		return
	}

	bookingID := c.Param("bookingId")
	switch req.Status {
	case models.BookingCancelled:
		actorID := middleware.CallerID(c)
		if c.GetString(middleware.ContextRoleKey) == "admin" {
			actorID = ""
		}
		if err := h.Bookings.Cancel(c.Request.Context(), bookingID, actorID); err != nil {
			respondBookingError(c, err)
			return
		}
	case models.BookingCompleted:
		role := c.GetString(middleware.ContextRoleKey)
		if role != "teacher" && role != "admin" {
			c.JSON(http.StatusForbidden, gin.H{"error": "only the teacher can complete a session"})
			return
		}
		if err := h.Bookings.Complete(c.Request.Context(), bookingID); err != nil {
			respondBookingError(c, err)
			return
		}
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be cancelled or completed"})
		return
	}

	bk, err := h.Bookings.GetBooking(c.Request.Context(), bookingID)
	if err != nil {
		respondBookingError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking": bk})
}

// CancelBookingHandler is the dedicated cancel endpoint; the status
// update route accepts the same transition.
func (h *BookingHandler) CancelBookingHandler(c *gin.Context) {
	bookingID := c.Param("bookingId")
	actorID := middleware.CallerID(c)
	if c.GetString(middleware.ContextRoleKey) == "admin" {
		actorID = ""
	}
	if err := h.Bookings.Cancel(c.Request.Context(), bookingID, actorID); err != nil {
		respondBookingError(c, err)
		return
	}

	bk, err := h.Bookings.GetBooking(c.Request.Context(), bookingID)
	if err != nil {
		respondBookingError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking": bk})
}

func respondBookingError(c *gin.Context, err error) {
	var bkErr *booking.BookingError
	if errors.As(err, &bkErr) {
		status := http.StatusBadRequest
		switch bkErr.Code {
		case booking.CodeNotFound:
			status = http.StatusNotFound
		case booking.CodeNotAuthorized:
			status = http.StatusForbidden
		case booking.CodeInvalidState, booking.CodeCutoffPassed:
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": bkErr.Message, "code": bkErr.Code})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
