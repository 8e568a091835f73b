// Package telemetry mirrors the teacher's LogError/LogEvent helpers
// (controllers/sender_controller.go): structured logrus output paired
// with a Sentry breadcrumb or exception, so operators get both a local
// log line and an aggregated error trail without the engine persisting
// anything itself.
package telemetry

import (
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
)

func Init(dsn, environment string) error {
	if dsn == "" {
		return nil
	}
	return sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
	})
}

func LogError(log *logrus.Logger, errType string, err error, fields map[string]interface{}) {
	entry := log.WithFields(logrus.Fields{
		"error_type": errType,
		"error":      err.Error(),
	})
	for k, v := range fields {
		entry = entry.WithField(k, v)
	}
	entry.Error("error occurred")

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("error_type", errType)
		for k, v := range fields {
			scope.SetExtra(k, v)
		}
		sentry.CaptureException(err)
	})
}

func LogEvent(log *logrus.Logger, eventType string, fields map[string]interface{}) {
	entry := log.WithFields(logrus.Fields{"event_type": eventType})
	for k, v := range fields {
		entry = entry.WithField(k, v)
	}
	entry.Info("event occurred")

	sentry.AddBreadcrumb(&sentry.Breadcrumb{
		Type:      "info",
		Category:  eventType,
		Data:      fields,
		Timestamp: time.Now(),
	})
}
