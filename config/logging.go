package config

import (
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Log formatter options
const (
	FormatterJSON   = "json"
	FormatterLogfmt = "logfmt"
	FormatterTTY    = "tty"
)

// NewLogger returns a logger configured by the log section.
func NewLogger(cfg LogConfig) (*logrus.Logger, error) {
	formatter, err := LogFormatter(cfg.Formatter)
	if err != nil {
		return nil, err
	}

	level := logrus.InfoLevel
	if cfg.Level != "" {
		level, err = logrus.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log.level: %w", err)
		}
	}

	l := logrus.New()
	l.SetFormatter(formatter)
	l.SetLevel(level)
	return l, nil
}

// LogFormatter returns the logrus formatter for the given name.
func LogFormatter(name string) (logrus.Formatter, error) {
	switch name {
	case FormatterJSON:
		return &logrus.JSONFormatter{}, nil
	case FormatterLogfmt:
		return &logrus.TextFormatter{
			DisableColors: true,
			FullTimestamp: true,
		}, nil
	case FormatterTTY, "":
		return &logrus.TextFormatter{}, nil
	default:
		return nil, fmt.Errorf("invalid log.formatter %q, expected one of %s, %s, %s",
			name, FormatterJSON, FormatterLogfmt, FormatterTTY)
	}
}

// GinLogrusLogger logs every request through the given logger.
func GinLogrusLogger(logger logrus.FieldLogger, ignore bool) gin.HandlerFunc {
	if ignore {
		return gin.LoggerWithFormatter(func(p gin.LogFormatterParams) string {
			return ""
		})
	}

	return gin.LoggerWithFormatter(func(p gin.LogFormatterParams) string {
		fields := logger.WithFields(logrus.Fields{
			"status_code":  p.StatusCode,
			"latency_time": p.Latency,
			"client_ip":    p.ClientIP,
			"req_method":   p.Method,
			"req_uri":      p.Request.URL.Path,
		})

		if p.ErrorMessage != "" {
			fields.WithError(errors.New(p.ErrorMessage)).Error("GIN")
			return ""
		}

		fields.Debug("GIN")
		return ""
	})
}
