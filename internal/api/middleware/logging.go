// Package middleware provides HTTP middleware components for the kickspeed server.
package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/kickspeed/kickspeed/internal/logger"
)

// RequestRecorder receives one observation per served request.
// *metrics.HTTPMetrics satisfies it.
type RequestRecorder interface {
	RecordRequest(method, path string, status int, elapsed time.Duration, size int64)
}

// NewRequestLogger creates a request logging middleware. rec may be nil.
func NewRequestLogger(log logger.Logger, rec RequestRecorder) echo.MiddlewareFunc {
	return NewRequestLoggerWithSkipper(log, rec, nil)
}

// NewRequestLoggerWithSkipper creates a request logging middleware with a custom skipper.
func NewRequestLoggerWithSkipper(log logger.Logger, rec RequestRecorder, skipper middleware.Skipper) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper:         skipper,
		LogStatus:       true,
		LogURI:          true,
		LogRoutePath:    true,
		LogMethod:       true,
		LogLatency:      true,
		LogRemoteIP:     true,
		LogResponseSize: true,
		LogError:        true,
		HandleError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if rec != nil {
				// route templates keep label cardinality bounded
				path := v.RoutePath
				if path == "" {
					path = "unmatched"
				}
				rec.RecordRequest(v.Method, path, v.Status, v.Latency, v.ResponseSize)
			}

			if log == nil {
				return nil
			}

			fields := []logger.Field{
				logger.String("method", v.Method),
				logger.String("uri", v.URI),
				logger.Int("status", v.Status),
				logger.String("ip", v.RemoteIP),
				logger.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				fields = append(fields, logger.Error(v.Error))
			}

			if v.Status >= 500 {
				log.Warn("request", fields...)
			} else {
				log.Info("request", fields...)
			}
			return nil
		},
	})
}
