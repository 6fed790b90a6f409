// Package logging builds the process-wide logrus logger and an echo
// middleware that writes one structured line per HTTP request.
package logging

import (
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// New returns a logger for the process.  Production output is JSON;
// otherwise the human-readable text formatter is used.  An unknown level
// falls back to info.
func New(prod bool, level string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	if prod {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	return l
}

// RequestLogger logs method, route, status and latency for every request.
// Server errors are logged at error level, client errors at warn.
func RequestLogger(log logrus.FieldLogger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			status := c.Response().Status
			entry := log.WithFields(logrus.Fields{
				"method":     c.Request().Method,
				"route":      c.Path(),
				"status":     status,
				"latency_ms": time.Since(start).Milliseconds(),
				"remote_ip":  c.RealIP(),
			})
			switch {
			case status >= 500:
				entry.WithError(err).Error("request failed")
			case status >= 400:
				entry.Warn("request rejected")
			default:
				entry.Debug("request served")
			}
			return nil
		}
	}
}
