package queue

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/karaoke-session-system/pkg/apperrors"
	"github.com/karaoke-session-system/pkg/events"
	"github.com/karaoke-session-system/pkg/models"
)

var ReactionEmojis = []string{"🔥", "👏", "❤️", "😂", "🎵", "⭐", "💯", "🎤"}

func validReaction(emoji string) bool {
	for _, e := range ReactionEmojis {
		if e == emoji {
			return true
		}
	}
	return false
}

// React sets userID's reaction to a queue item, replacing any earlier one.
func (s *Service) React(ctx context.Context, itemID, userID uuid.UUID, emoji string) (*models.Rating, error) {
	if !validReaction(emoji) {
		return nil, apperrors.Wrap(apperrors.ErrInvalidArgument, "unsupported reaction %q", emoji)
	}
	item, err := s.RequireItemMember(ctx, itemID, userID)
	if err != nil {
		return nil, err
	}
	if _, err := s.sessions.GetActiveSession(ctx, item.SessionID); err != nil {
		return nil, err
	}

	rating := &models.Rating{
		ID:          uuid.New(),
		QueueItemID: itemID,
		UserID:      userID,
		Emoji:       emoji,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.UpsertRating(ctx, rating); err != nil {
		return nil, err
	}
	events.EmitOrLog(ctx, s.events, s.log, events.TableRatings, events.ChangeUpdate, item.SessionID, rating, nil)
	return rating, nil
}

// Reactions counts reactions per emoji for a queue item.
func (s *Service) Reactions(ctx context.Context, itemID uuid.UUID) (map[string]int, error) {
	if _, err := s.store.GetQueueItem(ctx, itemID); err != nil {
		return nil, err
	}
	ratings, err := s.store.ListRatings(ctx, itemID)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, r := range ratings {
		counts[r.Emoji]++
	}
	return counts, nil
}
