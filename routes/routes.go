package routes

import (
	"net/http"
	"time"

	"tutorhive/handlers"
	"tutorhive/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RegisterAvailabilityRoutes registers teacher slot endpoints.
func RegisterAvailabilityRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	api := r.Group("/api/availabilities")
	{
		// Public browse endpoint.
		api.GET("/teacher/:teacherId", hb.ListAvailabilityHandler)

		// Alias for booking a slot straight off a listing.
		api.POST("/book", middleware.JWTAuthMiddleware(), hb.BookSlotHandler)

		protected := api.Group("")
		protected.Use(middleware.JWTAuthMiddleware(), middleware.RequireRole("teacher", "admin"))
		protected.POST("", hb.PublishSlotsHandler)
		protected.DELETE("/slots/:slotId", hb.RemoveSlotHandler)
	}
}

// RegisterBookingRoutes registers the booking lifecycle endpoints.
func RegisterBookingRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	api := r.Group("/api/bookings")
	{
		api.Use(middleware.JWTAuthMiddleware())
		api.POST("", hb.BookSlotHandler)
		api.GET("", hb.ListMyBookingsHandler)
		api.GET("/:bookingId", hb.GetBookingHandler)
		api.PUT("/:bookingId/status", hb.UpdateBookingStatusHandler)
		api.POST("/:bookingId/cancel", hb.CancelBookingHandler)
	}
}

// RegisterPaymentRoutes registers charge initiation, the provider
// redirect legs, and privileged settlement operations. The redirect
// legs are unauthenticated: the student arrives from the provider's
// domain without our session attached.
func RegisterPaymentRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	api := r.Group("/api/payment")
	{
		api.GET("/:id/success", hb.SuccessRedirectHandler)
		api.GET("/:id/failure", hb.FailureRedirectHandler)
		api.POST("/:id/cancel", hb.CancelRedirectHandler)

		authed := api.Group("")
		authed.Use(middleware.JWTAuthMiddleware())
		// Initiate is addressed by booking id; the rest by payment id.
		authed.POST("/:id/initiate", hb.InitiatePaymentHandler)
		authed.GET("/:id", hb.GetPaymentHandler)

		privileged := api.Group("")
		privileged.Use(middleware.JWTAuthMiddleware(), middleware.RequireRole("admin"))
		privileged.POST("/:id/capture", hb.CaptureHandler)
		privileged.POST("/:id/refund", hb.RefundHandler)
	}
}

// RegisterWebhookRoutes registers the inbound provider surfaces. No
// auth middleware: authenticity is the signature check inside the
// reconciliation engine.
func RegisterWebhookRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	r.POST("/webhook/ziina", hb.ZiinaWebhookHandler)
	r.POST("/api/webhooks/payment/:gateway", hb.PaymentWebhookHandler)
}

// RegisterPackageRoutes registers subscription endpoints.
func RegisterPackageRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	api := r.Group("/api/packages")
	{
		api.Use(middleware.JWTAuthMiddleware())
		api.POST("/:packageId/subscribe", hb.SubscribeHandler)
		api.POST("/subscriptions/:subscriptionId/cancel", hb.CancelSubscriptionHandler)
	}

	certs := r.Group("/api/membership-certificates")
	{
		certs.Use(middleware.JWTAuthMiddleware())
		certs.POST("/check-eligibility", hb.CheckEligibilityHandler)
	}
}

// RegisterAdminRoutes registers privileged operational endpoints.
func RegisterAdminRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	api := r.Group("/api/admin")
	{
		api.Use(middleware.JWTAuthMiddleware(), middleware.RequireRole("admin"))
		api.POST("/slots/:slotId/reopen", hb.ReopenSlotHandler)
		api.POST("/packages/subscribers/:subscriptionId/renew", hb.RenewSubscriptionHandler)
	}
}

// RegisterHealthRoute registers a health-check endpoint.
func RegisterHealthRoute(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "Hi, I'm TutorHive"})
	})
}

// RegisterRoutes centralizes registration of all endpoints and middleware.
func RegisterRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(middleware.RateLimitMiddleware())

	RegisterHealthRoute(r)
	RegisterAvailabilityRoutes(r, hb)
	RegisterBookingRoutes(r, hb)
	RegisterPaymentRoutes(r, hb)
	RegisterWebhookRoutes(r, hb)
	RegisterPackageRoutes(r, hb)
	RegisterAdminRoutes(r, hb)
}
