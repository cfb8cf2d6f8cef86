package utils

import (
	"os"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
)

var Logger = logrus.New()

func init() {
	Logger.SetOutput(os.Stdout)
	Logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}

// LogEvent records a structured application event
func LogEvent(event string, fields map[string]interface{}) {
	Logger.WithFields(logrus.Fields(fields)).Info(event)
}

// LogError records an error locally and forwards it to Sentry when enabled
func LogError(err error, msg string, fields map[string]interface{}) {
	Logger.WithFields(logrus.Fields(fields)).WithError(err).Error(msg)
	if err != nil {
		sentry.WithScope(func(scope *sentry.Scope) {
			for k, v := range fields {
				scope.SetExtra(k, v)
			}
			scope.SetTag("message", msg)
			sentry.CaptureException(err)
		})
	}
}
