package meter

import (
	"log/slog"

	"github.com/crosstrans/trialproxy"
)

// LogMeter logs gateway and dispatch events using slog.
type LogMeter struct {
	Logger *slog.Logger
}

var _ trialproxy.Meter = (*LogMeter)(nil)

// NewLogMeter creates a LogMeter with the given logger.
// If logger is nil, slog.Default() is used.
func NewLogMeter(logger *slog.Logger) *LogMeter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMeter{Logger: logger}
}

func (m *LogMeter) OnAttempt(e trialproxy.AttemptEvent) {
	m.Logger.Info("attempt",
		"request_id", e.RequestID,
		"provider", e.Provider,
		"model", e.Model,
		"attempt", e.AttemptNum,
	)
}

func (m *LogMeter) OnResult(e trialproxy.ResultEvent) {
	if e.Success {
		m.Logger.Info("upstream_ok",
			"request_id", e.RequestID,
			"provider", e.Provider,
			"model", e.Model,
			"status", e.Status,
			"duration_ms", e.Duration.Milliseconds(),
		)
	} else {
		m.Logger.Warn("upstream_error",
			"request_id", e.RequestID,
			"provider", e.Provider,
			"model", e.Model,
			"status", e.Status,
			"duration_ms", e.Duration.Milliseconds(),
			"error", e.Err,
		)
	}
}

func (m *LogMeter) OnRequest(e trialproxy.RequestEvent) {
	m.Logger.Info("request",
		"request_id", e.RequestID,
		"caller", e.CallerID,
		"status", e.Status,
		"provider", e.Provider,
		"remaining", e.Remaining,
		"duration_ms", e.Duration.Milliseconds(),
	)
}
