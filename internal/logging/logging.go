// Package logging builds the zap loggers used by the CLI, the HTTP server and
// the mail listener.
package logging

import (
	"go.uber.org/zap"
)

type Config struct {
	Level       string            `json:"level"`
	Format      string            `json:"format"` // "json" or "console"
	OutputPath  string            `json:"output_path"`
	Fields      map[string]string `json:"fields"`
	Development bool              `json:"development"`
}

// New returns a logger for cfg. An unknown level falls back to info.
func New(cfg Config) (*zap.Logger, error) {
	var zapConfig zap.Config
	if cfg.Development {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	zapConfig.Level = level

	if cfg.Format == "console" {
		zapConfig.Encoding = "console"
	} else {
		zapConfig.Encoding = "json"
	}
	if cfg.OutputPath != "" {
		zapConfig.OutputPaths = []string{cfg.OutputPath}
	}

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}

	fields := make([]zap.Field, 0, len(cfg.Fields))
	for k, v := range cfg.Fields {
		fields = append(fields, zap.String(k, v))
	}
	return logger.With(fields...), nil
}

// NewService is New with the service name attached, falling back to a
// production logger when cfg cannot be built.
func NewService(service, level, format string) *zap.Logger {
	logger, err := New(Config{
		Level:  level,
		Format: format,
		Fields: map[string]string{"service": service},
	})
	if err != nil {
		fallback, _ := zap.NewProduction()
		return fallback.With(zap.String("service", service))
	}
	return logger
}

func NewNop() *zap.Logger {
	return zap.NewNop()
}
