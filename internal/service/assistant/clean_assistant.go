package assistant

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"chatstream/internal/models"
)

const DefaultStaleStreamInterval = time.Minute

// StartStaleStreamSweeper periodically marks bot replies still flagged as streaming after
// maxAge as interrupted. Such rows are left behind when the process dies mid-stream.
func (s *Service) StartStaleStreamSweeper(ctx context.Context, interval, maxAge time.Duration, logger zerolog.Logger) {
	if interval <= 0 {
		interval = DefaultStaleStreamInterval
	}
	go s.sweepLoop(ctx, interval, maxAge, logger)
}

func (s *Service) sweepLoop(ctx context.Context, interval, maxAge time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		n, err := s.SweepStaleStreams(ctx, time.Now().Add(-maxAge))
		switch {
		case err != nil:
			logger.Error().Err(err).Msg("sweep stale streams")
		case n > 0:
			logger.Warn().Int64("messages", n).Msg("marked orphaned streams as interrupted")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// SweepStaleStreams marks streaming bot replies created at or before cutoff as interrupted.
func (s *Service) SweepStaleStreams(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET status = ? WHERE status = ? AND role = ? AND created_at <= ?`,
		models.StatusInterrupted, models.StatusStreaming, models.RoleBot, cutoff.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("sweep stale streams: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("stale stream rows affected: %w", err)
	}
	return n, nil
}
