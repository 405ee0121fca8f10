package logger

import (
	"time"

	"order-settlement/internal/config"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

func NewZapLog(cfg config.Log) (*zap.Logger, error) {
	// text level -> zap.AtomicLevel
	lvl, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	zapcfg := zap.NewProductionConfig()
	zapcfg.Level = lvl
	if cfg.Format == "console" {
		zapcfg.Encoding = "console"
	}
	return zapcfg.Build()
}

// RequestLogger logs every handled request through zap.
func RequestLogger(zaplog *zap.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogMethod:    true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency.Round(time.Microsecond)),
				zap.String("request_id", v.RequestID),
			}
			if v.Error != nil {
				zaplog.Warn("handled HTTP request", append(fields, zap.Error(v.Error))...)
				return nil
			}
			zaplog.Info("handled HTTP request", fields...)
			return nil
		},
	})
}
