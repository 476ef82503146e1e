package app

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/NDI05/ums-dental-platform-sub001/internal/domain"
)

// Join registers the caller in a session. Joining again returns the existing participant.
func (s *SessionService) Join(ctx context.Context, caller domain.Identity, code string) (domain.JoinResult, error) {
	if caller.UserID == "" {
		return domain.JoinResult{}, domain.ErrUnauthorized
	}
	session, err := s.findByCode(ctx, code)
	if err != nil {
		return domain.JoinResult{}, err
	}
	if session.Status == domain.StatusCompleted {
		return domain.JoinResult{}, domain.ErrSessionEnded
	}

	name := caller.Name
	if name == "" {
		name = caller.UserID
	}
	participant, err := s.sessions.UpsertParticipant(ctx, domain.Participant{
		ID:          s.newID(),
		SessionID:   session.ID,
		UserID:      caller.UserID,
		DisplayName: name,
		Avatar:      caller.Avatar,
		Score:       0,
		Status:      domain.StatusJoined,
		JoinedAt:    s.now().UTC(),
	})
	if errors.Is(err, domain.ErrSessionEnded) {
		// ended between the status read and the insert
		return domain.JoinResult{}, err
	}
	if err != nil {
		return domain.JoinResult{}, fmt.Errorf("upsert participant: %w", err)
	}

	// re-read so the summary reflects transitions that raced the join
	if session, err = s.findByCode(ctx, code); err != nil {
		return domain.JoinResult{}, err
	}
	summary, err := s.summarize(ctx, session)
	if err != nil {
		return domain.JoinResult{}, err
	}
	return domain.JoinResult{
		Session:       summary,
		ParticipantID: participant.ID,
		Score:         participant.Score,
	}, nil
}

// ListParticipants is the public lobby view, most recent joiner first.
func (s *SessionService) ListParticipants(ctx context.Context, code string) (domain.ParticipantList, error) {
	session, err := s.findByCode(ctx, code)
	if err != nil {
		return domain.ParticipantList{}, err
	}
	participants, err := s.sessions.ListParticipants(ctx, session.ID)
	if err != nil {
		return domain.ParticipantList{}, fmt.Errorf("list participants: %w", err)
	}
	views := make([]domain.PublicParticipant, len(participants))
	for i, p := range participants {
		views[i] = p.Public()
	}
	return domain.ParticipantList{
		Code:         session.Code,
		Status:       session.Status,
		Count:        len(views),
		Participants: views,
	}, nil
}

// Leaderboard orders participants by score, then earliest join, then name.
func (s *SessionService) Leaderboard(ctx context.Context, code string) (domain.Leaderboard, error) {
	session, err := s.findByCode(ctx, code)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	participants, err := s.sessions.ListParticipants(ctx, session.ID)
	if err != nil {
		return domain.Leaderboard{}, fmt.Errorf("list participants: %w", err)
	}

	sort.SliceStable(participants, func(i, j int) bool {
		pi, pj := participants[i], participants[j]
		if pi.Score != pj.Score {
			return pi.Score > pj.Score
		}
		if !pi.JoinedAt.Equal(pj.JoinedAt) {
			return pi.JoinedAt.Before(pj.JoinedAt)
		}
		return pi.DisplayName < pj.DisplayName
	})

	entries := make([]domain.LeaderboardEntry, len(participants))
	for i, p := range participants {
		entries[i] = domain.LeaderboardEntry{
			Position:      i + 1,
			ParticipantID: p.ID,
			DisplayName:   p.DisplayName,
			Avatar:        p.Avatar,
			Score:         p.Score,
		}
	}
	return domain.Leaderboard{
		Code:      session.Code,
		Status:    session.Status,
		Entries:   entries,
		UpdatedAt: s.now().UTC(),
	}, nil
}
