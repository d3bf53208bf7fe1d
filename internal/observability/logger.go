package observability

import (
	"log/slog"

	"github.com/couchcryptid/meteo-rt/internal/config"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

const serviceName = "meteo-rt"

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT, sets it
// as the slog default and tags every entry with the service name.
func NewLogger(cfg *config.Config) *slog.Logger {
	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat).With("service", serviceName)
	slog.SetDefault(logger)
	return logger
}
