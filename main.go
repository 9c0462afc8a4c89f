package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tutorhive/config"
	"tutorhive/cron"
	"tutorhive/database"
	availabilityRepoPkg "tutorhive/database/repository/availability"
	bookingRepoPkg "tutorhive/database/repository/booking"
	paymentRepoPkg "tutorhive/database/repository/payment"
	subscriptionRepoPkg "tutorhive/database/repository/subscription"
	webhookRepoPkg "tutorhive/database/repository/webhook"
	"tutorhive/handlers"
	"tutorhive/models"
	"tutorhive/routes"
	"tutorhive/services/booking"
	"tutorhive/services/notification"
	"tutorhive/services/payment"
	"tutorhive/services/reservation"
	"tutorhive/services/subscription"
	"tutorhive/services/webhook"
	"tutorhive/utils"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v76"
)

func main() {
	config.LoadConfig()
	logger := utils.GetLogger()

	database.InitDB()
	utils.InitCache()
	utils.InitLockCache()

	// Create the Gin router.
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(utils.ErrorHandler())
	router.Use(gin.Logger())
	stripe.Key = config.AppConfig.StripeKey

	// repositories.
	availabilityRepo := availabilityRepoPkg.NewMongoAvailabilityRepo()
	bookingRepo := bookingRepoPkg.NewMongoBookingRepo()
	paymentRepo := paymentRepoPkg.NewMongoPaymentRepo()
	webhookRepo := webhookRepoPkg.NewMongoWebhookRepo()
	subscriptionRepo := subscriptionRepoPkg.NewMongoSubscriptionRepo()

	for name, ensure := range map[string]func() error{
		"availability":  availabilityRepo.EnsureIndexes,
		"bookings":      bookingRepo.EnsureIndexes,
		"payments":      paymentRepo.EnsureIndexes,
		"webhooks":      webhookRepo.EnsureIndexes,
		"subscriptions": subscriptionRepo.EnsureIndexes,
	} {
		if err := ensure(); err != nil {
			logger.Sugar().Fatalf("main: failed to ensure %s indexes: %v", name, err)
		}
	}

	clock := utils.SystemClock{}
	ids := utils.UUIDGenerator{}
	locker := utils.NewRedisLocker(utils.GetLockClient())
	cache := utils.NewRedisCache(utils.GetCacheClient())

	// services.
	reservationService := &reservation.DefaultReservationService{
		Repo:    availabilityRepo,
		Locker:  locker,
		Cache:   cache,
		Clock:   clock,
		IDs:     ids,
		HoldTTL: config.HoldTTL(),
		Logger:  logger,
	}

	gatewayRegistry := payment.NewRegistry(
		payment.NewStripeAdapter(config.AppConfig.StripeWebhookSecret, config.AppConfig.StripeManualCapture),
		payment.NewZiinaAdapter(config.AppConfig.ZiinaAPIKey, config.AppConfig.ZiinaWebhookSecret, config.AppConfig.ZiinaAPIBase),
	)
	paymentService := &payment.DefaultPaymentService{
		Repo:       paymentRepo,
		Registry:   gatewayRegistry,
		Clock:      clock,
		IDs:        ids,
		MaxRetries: config.AppConfig.GatewayMaxRetries,
		BaseURL:    config.AppConfig.BaseURL,
		Logger:     logger,
	}

	notificationService := &notification.LogNotificationService{Logger: logger}

	bookingService := &booking.DefaultBookingService{
		Repo:         bookingRepo,
		Reservations: reservationService,
		Payments:     paymentService,
		Notifier:     notificationService,
		Locker:       locker,
		Clock:        clock,
		IDs:          ids,
		CancelCutoff: config.CancelCutoff(),
		Logger:       logger,
	}

	subscriptionService := &subscription.DefaultSubscriptionService{
		Repo:          subscriptionRepo,
		Payments:      paymentService,
		Locker:        locker,
		Clock:         clock,
		IDs:           ids,
		RenewalPeriod: config.RenewalPeriod(),
		Logger:        logger,
	}

	webhookEngine := &webhook.DefaultEngine{
		Repo:     webhookRepo,
		Payments: paymentService,
		Handlers: map[string]webhook.OutcomeHandler{
			models.PaymentOwnerBooking:      bookingService,
			models.PaymentOwnerSubscription: subscriptionService,
		},
		Clock:  clock,
		IDs:    ids,
		Logger: logger,
	}

	availabilityHandler := handlers.NewAvailabilityHandler(reservationService, logger)
	bookingHandler := handlers.NewBookingHandler(bookingService, logger)
	paymentHandler := handlers.NewPaymentHandler(bookingService, paymentService, webhookEngine, logger)
	webhookHandler := handlers.NewWebhookHandler(webhookEngine, logger)
	subscriptionHandler := handlers.NewSubscriptionHandler(subscriptionService, logger)

	// Assemble the handler bundle.
	handlerBundle := &handlers.HandlerBundle{
		// Availability endpoints.
		PublishSlotsHandler:     availabilityHandler.PublishSlotsHandler,
		ListAvailabilityHandler: availabilityHandler.ListAvailabilityHandler,
		RemoveSlotHandler:       availabilityHandler.RemoveSlotHandler,
		ReopenSlotHandler:       availabilityHandler.ReopenSlotHandler,

		// Booking endpoints.
		BookSlotHandler:            bookingHandler.BookSlotHandler,
		GetBookingHandler:          bookingHandler.GetBookingHandler,
		ListMyBookingsHandler:      bookingHandler.ListMyBookingsHandler,
		UpdateBookingStatusHandler: bookingHandler.UpdateBookingStatusHandler,
		CancelBookingHandler:       bookingHandler.CancelBookingHandler,

		// Payment endpoints.
		InitiatePaymentHandler: paymentHandler.InitiatePaymentHandler,
		GetPaymentHandler:      paymentHandler.GetPaymentHandler,
		SuccessRedirectHandler: paymentHandler.SuccessRedirectHandler,
		FailureRedirectHandler: paymentHandler.FailureRedirectHandler,
		CancelRedirectHandler:  paymentHandler.CancelRedirectHandler,
		CaptureHandler:         paymentHandler.CaptureHandler,
		RefundHandler:          paymentHandler.RefundHandler,

		// Webhook endpoints.
		PaymentWebhookHandler: webhookHandler.PaymentWebhookHandler,
		ZiinaWebhookHandler:   webhookHandler.ZiinaWebhookHandler,

		// Subscription endpoints.
		SubscribeHandler:          subscriptionHandler.SubscribeHandler,
		CancelSubscriptionHandler: subscriptionHandler.CancelSubscriptionHandler,
		RenewSubscriptionHandler:  subscriptionHandler.RenewSubscriptionHandler,
		CheckEligibilityHandler:   subscriptionHandler.CheckEligibilityHandler,
	}

	// Register routes with the assembled handler bundle.
	routes.RegisterRoutes(router, handlerBundle)

	// Background worker: hold expiry, webhook reconciliation, renewals.
	cron.InitWorker(cron.Deps{
		Reservations:  reservationService,
		Engine:        webhookEngine,
		Subscriptions: subscriptionService,
		Logger:        logger,
	})

	// Start the HTTP server.
	port := config.AppConfig.AppPort
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    "0.0.0.0:" + port,
		Handler: router,
	}

	logger.Sugar().Infof("Starting server on %s...", srv.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Sugar().Fatalf("main: server failed to start: %v", err)
		}
	}()

	// Wait for an OS signal to gracefully shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Sugar().Info("main: server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Sugar().Fatalf("main: server forced to shutdown: %v", err)
	}

	logger.Sugar().Info("main: server stopped gracefully")
}
