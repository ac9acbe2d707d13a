package server

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// startReporter schedules periodic pool stats logging and returns a function
// that stops it and waits for a running report to finish.
func (s *Server) startReporter() func() {
	if s.config.StatsSchedule == "" {
		return func() {}
	}

	c := cron.New()
	// The schedule was validated in New.
	if _, err := c.AddFunc(s.config.StatsSchedule, s.reportStats); err != nil {
		s.logger.Error("stats reporter disabled", slog.Any("error", err))
		return func() {}
	}
	c.Start()

	return func() {
		<-c.Stop().Done()
	}
}

func (s *Server) reportStats() {
	stats := s.exec.Stats()
	s.logger.Info("pool stats",
		slog.Int("size", stats.Size),
		slog.Int("live_workers", stats.LiveWorkers),
		slog.Int("active_workers", stats.ActiveWorkers),
		slog.Int("queued", stats.Queued),
		slog.Int64("submitted", stats.Submitted),
		slog.Int64("completed", stats.Completed),
		slog.Int64("failed", stats.Failed),
	)
}
