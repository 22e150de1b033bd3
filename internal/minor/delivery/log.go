package delivery

import (
	"context"
	"log/slog"

	"guardrail/internal/minor"
)

// LogDeliverer writes notifications to the log. Used in development when no
// broker is configured.
type LogDeliverer struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *LogDeliverer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogDeliverer{logger: logger}
}

func (d *LogDeliverer) Deliver(ctx context.Context, n minor.Notification) error {
	d.logger.InfoContext(ctx, "minor notification",
		"notification_id", n.ID,
		"minor_account_id", n.MinorAccountID,
		"guardian_account_id", n.GuardianAccountID,
		"trigger", n.Trigger,
		"correlation_id", n.CorrelationID,
	)
	return nil
}
