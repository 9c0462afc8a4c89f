package cron

import (
	"context"
	"time"

	"tutorhive/config"
	"tutorhive/services/reservation"
	"tutorhive/services/subscription"
	"tutorhive/services/webhook"

	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const (
	TypeSweepHolds       = "sweep:holds"
	TypeWebhookReconcile = "webhook:reconcile"
	TypeRenewDue         = "subscription:renew"
)

// Webhook events older than this with no processed mark are assumed
// stuck (crash between persist and dispatch) and retried.
const reconcileAge = 2 * time.Minute

const sweepBatch = 200

// Deps are the services the background worker drives.
type Deps struct {
	Reservations  reservation.ReservationService
	Engine        webhook.Engine
	Subscriptions subscription.SubscriptionService
	Logger        *zap.Logger
}

// InitWorker runs the asynq worker and its periodic scheduler in the
// background. Hold expiry, webhook reconciliation, and subscription
// renewal all fire from here with no request traffic required.
func InitWorker(deps Deps) {
	redisOpts := asynq.RedisClientOpt{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisQueueDB,
	}

	srv := asynq.NewServer(
		redisOpts,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"default": 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeSweepHolds, handleSweepHolds(deps))
	mux.HandleFunc(TypeWebhookReconcile, handleWebhookReconcile(deps))
	mux.HandleFunc(TypeRenewDue, handleRenewDue(deps))

	scheduler := asynq.NewScheduler(redisOpts, &asynq.SchedulerOpts{})
	registerSchedule(scheduler, "@every 1m", TypeSweepHolds, deps.Logger)
	registerSchedule(scheduler, "@every 2m", TypeWebhookReconcile, deps.Logger)
	registerSchedule(scheduler, "@every 1h", TypeRenewDue, deps.Logger)

	go monitorRedisConnection(deps.Logger)

	// Start the worker with retry logic.
	go func() {
		deps.Logger.Info("starting background worker")
		const maxAttempts = 5

		for attempts := 1; attempts <= maxAttempts; attempts++ {
			if err := srv.Run(mux); err != nil {
				deps.Logger.Error("worker failed to start",
					zap.Int("attempt", attempts), zap.Int("maxAttempts", maxAttempts), zap.Error(err))
				if attempts == maxAttempts {
					deps.Logger.Fatal("worker could not start, giving up")
				}
				time.Sleep(time.Duration(attempts*2) * time.Second)
			} else {
				break
			}
		}
	}()

	go func() {
		if err := scheduler.Run(); err != nil {
			deps.Logger.Fatal("scheduler could not start", zap.Error(err))
		}
	}()
}

func registerSchedule(scheduler *asynq.Scheduler, spec, taskType string, logger *zap.Logger) {
	if _, err := scheduler.Register(spec, asynq.NewTask(taskType, nil)); err != nil {
		logger.Fatal("failed to register periodic task",
			zap.String("task", taskType), zap.Error(err))
	}
}

func handleSweepHolds(deps Deps) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		freed, err := deps.Reservations.SweepExpired(ctx)
		if err != nil {
			deps.Logger.Error("hold sweep failed", zap.Error(err))
			return err
		}
		if freed > 0 {
			deps.Logger.Info("expired holds swept", zap.Int64("freed", freed))
		}
		return nil
	}
}

func handleWebhookReconcile(deps Deps) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		if _, err := deps.Engine.ReprocessUnprocessed(ctx, reconcileAge, sweepBatch); err != nil {
			deps.Logger.Error("webhook reconciliation failed", zap.Error(err))
			return err
		}
		return nil
	}
}

func handleRenewDue(deps Deps) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		if _, err := deps.Subscriptions.RenewDue(ctx, sweepBatch); err != nil {
			deps.Logger.Error("subscription renewal sweep failed", zap.Error(err))
			return err
		}
		return nil
	}
}

// monitorRedisConnection pings Redis periodically to detect failures at runtime.
func monitorRedisConnection(logger *zap.Logger) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisQueueDB,
	})

	ctx := context.Background()

	for {
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("redis connection lost", zap.Error(err))
		}
		time.Sleep(10 * time.Second)
	}
}
