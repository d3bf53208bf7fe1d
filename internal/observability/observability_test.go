package observability

import (
	"context"
	"log/slog"
	"testing"

	"github.com/couchcryptid/meteo-rt/internal/config"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewLogger_Level(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	logger := NewLogger(&config.Config{LogLevel: "warn", LogFormat: "text"})

	ctx := context.Background()
	assert.False(t, logger.Enabled(ctx, slog.LevelInfo))
	assert.True(t, logger.Enabled(ctx, slog.LevelWarn))
	assert.Same(t, logger, slog.Default())
}

func TestNewMetricsForTesting(t *testing.T) {
	m1 := NewMetricsForTesting()
	m2 := NewMetricsForTesting()

	m1.Generations.WithLabelValues("auto", "success").Inc()
	m1.HistorySize.Set(7)

	assert.InDelta(t, 1, testutil.ToFloat64(m1.Generations.WithLabelValues("auto", "success")), 0)
	assert.InDelta(t, 7, testutil.ToFloat64(m1.HistorySize), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m2.HistorySize), 0)
}
