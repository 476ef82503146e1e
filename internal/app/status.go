package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/NDI05/ums-dental-platform-sub001/internal/domain"
)

// DefaultPollInterval is the documented upper bound on how late a client observes a status change.
const DefaultPollInterval = 3 * time.Second

// Status returns the current status and participant count, read fresh from the store.
func (s *SessionService) Status(ctx context.Context, code string) (domain.StatusUpdate, error) {
	session, err := s.findByCode(ctx, code)
	if err != nil {
		return domain.StatusUpdate{}, err
	}
	participants, err := s.sessions.ListParticipants(ctx, session.ID)
	if err != nil {
		return domain.StatusUpdate{}, fmt.Errorf("list participants: %w", err)
	}
	return domain.StatusUpdate{
		Code:             session.Code,
		Status:           session.Status,
		ParticipantCount: len(participants),
	}, nil
}

// WatchStatus returns a channel that receives the current status immediately and then
// every change observed by polling the store at the given interval. The channel is closed
// after COMPLETED is delivered or when ctx ends. The caller must invoke the returned
// cancel function to stop polling.
func (s *SessionService) WatchStatus(ctx context.Context, code string, interval time.Duration) (<-chan domain.StatusUpdate, func(), error) {
	initial, err := s.Status(ctx, code)
	if err != nil {
		return nil, nil, err
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	ctx, cancel := context.WithCancel(ctx)
	ch := make(chan domain.StatusUpdate, 1)
	ch <- initial

	go func() {
		defer close(ch)
		if initial.Status == domain.StatusCompleted {
			return
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		last := initial
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			update, err := s.Status(ctx, code)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("status poll failed", "code", code, "error", err)
				continue
			}
			if update == last {
				continue
			}
			last = update

			select {
			case ch <- update:
			case <-ctx.Done():
				return
			}
			if update.Status == domain.StatusCompleted {
				return
			}
		}
	}()

	return ch, cancel, nil
}
