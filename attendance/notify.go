package attendance

import (
	"context"

	"go.uber.org/zap"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notifier receives advisory messages. Implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, message string, severity Severity)
}

// LogNotifier writes notifications to a zap logger.
type LogNotifier struct {
	Logger *zap.Logger
}

func (n LogNotifier) Notify(_ context.Context, message string, severity Severity) {
	l := n.Logger.With(zap.String("severity", string(severity)))
	switch severity {
	case SeverityError:
		l.Error(message)
	case SeverityWarning:
		l.Warn(message)
	default:
		l.Info(message)
	}
}

// NopNotifier discards everything.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, string, Severity) {}
