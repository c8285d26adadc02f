package alert

import "github.com/go-kit/log"

type logSink struct {
	logger log.Logger
}

// LogSink returns a Sink which emits every alert as a structured log line.
func LogSink(logger log.Logger) Sink {
	return &logSink{
		logger: log.With(logger, "service", "alert"),
	}
}

func (s *logSink) Raise(a *Alert) error {
	ps := []interface{}{
		"alert_id", a.ID,
		"created_at", a.CreatedAt,
		"kind", string(a.Kind),
		"message", a.Message,
		"severity", string(a.Severity),
	}

	for k, v := range a.Details {
		ps = append(ps, "detail_"+k, v)
	}

	return s.logger.Log(ps...)
}
