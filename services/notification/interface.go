package notification

import (
	"context"

	"go.uber.org/zap"
)

// NotificationService is a fire-and-forget sink informed on lifecycle
// transitions. Delivery (push, email) lives in an external service;
// failures here never fail the transition that triggered them.
type NotificationService interface {
	Send(ctx context.Context, userID, title, body string, data map[string]string) error
}

// LogNotificationService records dispatches in the application log. It
// stands in for the external delivery service.
type LogNotificationService struct {
	Logger *zap.Logger
}

func (s *LogNotificationService) Send(ctx context.Context, userID, title, body string, data map[string]string) error {
	s.Logger.Info("notification dispatched",
		zap.String("userId", userID),
		zap.String("title", title),
		zap.String("body", body),
		zap.Any("data", data))
	return nil
}
