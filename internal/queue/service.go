package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/karaoke-session-system/pkg/apperrors"
	"github.com/karaoke-session-system/pkg/database"
	"github.com/karaoke-session-system/pkg/events"
	"github.com/karaoke-session-system/pkg/logger"
	"github.com/karaoke-session-system/pkg/models"
)

// Sessions is the part of the session directory the queue relies on.
type Sessions interface {
	GetActiveSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	RequireMember(ctx context.Context, sessionID, userID uuid.UUID) error
}

// Filter selects which queue items List returns.
type Filter string

const (
	FilterAll    Filter = "all"
	FilterQueued Filter = "queued"
)

// SongInput describes a video picked from search results.
type SongInput struct {
	YouTubeID    string  `json:"youtube_id" binding:"required"`
	Title        string  `json:"title" binding:"required"`
	Artist       *string `json:"artist"`
	Genre        *string `json:"genre"`
	Decade       *int    `json:"decade"`
	Year         *int    `json:"year"`
	Duration     *int    `json:"duration"`
	ThumbnailURL *string `json:"thumbnail_url"`
}

func (in SongInput) validate() error {
	if strings.TrimSpace(in.YouTubeID) == "" {
		return apperrors.Wrap(apperrors.ErrInvalidArgument, "youtube_id is required")
	}
	if strings.TrimSpace(in.Title) == "" {
		return apperrors.Wrap(apperrors.ErrInvalidArgument, "title is required")
	}
	if in.Duration != nil && *in.Duration < 0 {
		return apperrors.Wrap(apperrors.ErrInvalidArgument, "duration must not be negative")
	}
	return nil
}

type Service struct {
	store    database.Store
	sessions Sessions
	events   events.Publisher
	log      *logger.Logger
}

func NewService(store database.Store, sessions Sessions, pub events.Publisher, log *logger.Logger) *Service {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Service{
		store:    store,
		sessions: sessions,
		events:   pub,
		log:      log,
	}
}

// Enqueue appends a song to the end of the session's queue, adding the song
// to the catalog on first use.
func (s *Service) Enqueue(ctx context.Context, sessionID uuid.UUID, in SongInput, requestedBy uuid.UUID) (*models.QueueItem, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if _, err := s.sessions.GetActiveSession(ctx, sessionID); err != nil {
		return nil, err
	}
	if err := s.sessions.RequireMember(ctx, sessionID, requestedBy); err != nil {
		return nil, err
	}

	song := &models.Song{
		ID:           uuid.New(),
		YouTubeID:    strings.TrimSpace(in.YouTubeID),
		Title:        strings.TrimSpace(in.Title),
		Artist:       in.Artist,
		Genre:        in.Genre,
		Decade:       in.Decade,
		Year:         in.Year,
		Duration:     in.Duration,
		ThumbnailURL: in.ThumbnailURL,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.FindOrCreateSong(ctx, song); err != nil {
		return nil, fmt.Errorf("failed to save song: %w", err)
	}

	return s.append(ctx, &models.QueueItem{
		SessionID:   sessionID,
		SongID:      song.ID,
		RequestedBy: requestedBy,
	})
}

// EnqueueChallenge queues an accepted challenge. The challenger is recorded
// as requester and the challenged user is the one expected to sing.
func (s *Service) EnqueueChallenge(ctx context.Context, sessionID, songID, challengerID, challengedID uuid.UUID) (*models.QueueItem, error) {
	if _, err := s.sessions.GetActiveSession(ctx, sessionID); err != nil {
		return nil, err
	}
	if _, err := s.store.GetSong(ctx, songID); err != nil {
		return nil, err
	}

	accepted := true
	return s.append(ctx, &models.QueueItem{
		SessionID:         sessionID,
		SongID:            songID,
		RequestedBy:       challengerID,
		IsChallenge:       true,
		ChallengedUserID:  &challengedID,
		ChallengeAccepted: &accepted,
	})
}

func (s *Service) append(ctx context.Context, item *models.QueueItem) (*models.QueueItem, error) {
	item.ID = uuid.New()
	item.Status = models.QueueStatusQueued
	item.CreatedAt = time.Now().UTC()

	if err := s.store.AppendQueueItem(ctx, item); err != nil {
		return nil, err
	}
	events.EmitOrLog(ctx, s.events, s.log, events.TableQueue, events.ChangeInsert, item.SessionID, item, nil)
	return item, nil
}

// activeItem loads a queue item whose session is still open.
func (s *Service) activeItem(ctx context.Context, itemID uuid.UUID) (*models.QueueItem, *models.Session, error) {
	item, err := s.store.GetQueueItem(ctx, itemID)
	if err != nil {
		return nil, nil, err
	}
	session, err := s.sessions.GetActiveSession(ctx, item.SessionID)
	if err != nil {
		return nil, nil, err
	}
	return item, session, nil
}

// StartPlayback moves a queued item to playing. Only one item per session
// may be playing at a time.
func (s *Service) StartPlayback(ctx context.Context, itemID uuid.UUID) (*models.QueueItem, error) {
	before, _, err := s.activeItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if before.Status != models.QueueStatusQueued {
		return nil, apperrors.Wrap(apperrors.ErrInvalidState, "queue item is %s", before.Status)
	}

	item, err := s.store.StartQueueItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	events.EmitOrLog(ctx, s.events, s.log, events.TableQueue, events.ChangeUpdate, item.SessionID, item, before)
	return item, nil
}

// CompleteOrSkip ends an item. Completing requires the item to be playing;
// skipping also works on items that have not started.
func (s *Service) CompleteOrSkip(ctx context.Context, itemID uuid.UUID, outcome models.QueueStatus) (*models.QueueItem, error) {
	if outcome != models.QueueStatusCompleted && outcome != models.QueueStatusSkipped {
		return nil, apperrors.Wrap(apperrors.ErrInvalidArgument, "outcome must be completed or skipped")
	}

	item, _, err := s.activeItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if outcome == models.QueueStatusCompleted && item.Status != models.QueueStatusPlaying {
		return nil, apperrors.Wrap(apperrors.ErrInvalidState, "only a playing item can be completed, item is %s", item.Status)
	}
	if !item.Status.CanTransitionTo(outcome) {
		return nil, apperrors.Wrap(apperrors.ErrInvalidState, "cannot move queue item from %s to %s", item.Status, outcome)
	}

	var playedAt *time.Time
	if outcome == models.QueueStatusCompleted {
		now := time.Now().UTC()
		playedAt = &now
	}

	ok, err := s.store.TransitionQueueItem(ctx, itemID, item.Status, outcome, playedAt)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.Wrap(apperrors.ErrInvalidState, "queue item changed state concurrently")
	}

	before := *item
	item.Status = outcome
	item.PlayedAt = playedAt
	events.EmitOrLog(ctx, s.events, s.log, events.TableQueue, events.ChangeUpdate, item.SessionID, item, &before)
	return item, nil
}

// Remove deletes a queued item. Items that are playing or finished stay, the
// latter as history.
func (s *Service) Remove(ctx context.Context, itemID, actorID uuid.UUID) error {
	item, session, err := s.activeItem(ctx, itemID)
	if err != nil {
		return err
	}
	if actorID != item.RequestedBy && actorID != session.HostID {
		return apperrors.Wrap(apperrors.ErrForbidden, "only the requester or the host can remove a song")
	}
	if item.Status != models.QueueStatusQueued {
		return apperrors.Wrap(apperrors.ErrInvalidState, "cannot remove a %s item", item.Status)
	}

	ok, err := s.store.DeleteQueueItem(ctx, itemID, models.QueueStatusQueued)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.Wrap(apperrors.ErrInvalidState, "queue item is no longer queued")
	}
	events.EmitOrLog(ctx, s.events, s.log, events.TableQueue, events.ChangeDelete, item.SessionID, nil, item)
	return nil
}

// List returns the session's items in play order.
func (s *Service) List(ctx context.Context, sessionID uuid.UUID, filter Filter) ([]models.QueueItemDetails, error) {
	switch filter {
	case "", FilterAll:
		return s.store.ListQueue(ctx, sessionID)
	case FilterQueued:
		return s.store.ListQueue(ctx, sessionID, models.QueueStatusQueued)
	default:
		return nil, apperrors.Wrap(apperrors.ErrInvalidArgument, "unknown filter %q", filter)
	}
}

// NowPlaying returns the playing item, or nil.
func (s *Service) NowPlaying(ctx context.Context, sessionID uuid.UUID) (*models.QueueItemDetails, error) {
	items, err := s.store.ListQueue(ctx, sessionID, models.QueueStatusPlaying)
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return &items[0], nil
}

// Next returns the head of the queued items, or nil.
func (s *Service) Next(ctx context.Context, sessionID uuid.UUID) (*models.QueueItemDetails, error) {
	items, err := s.store.ListQueue(ctx, sessionID, models.QueueStatusQueued)
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return &items[0], nil
}

// GetItem returns one queue item.
func (s *Service) GetItem(ctx context.Context, itemID uuid.UUID) (*models.QueueItem, error) {
	return s.store.GetQueueItem(ctx, itemID)
}

// RequireItemMember loads the item and checks that userID belongs to its
// session.
func (s *Service) RequireItemMember(ctx context.Context, itemID, userID uuid.UUID) (*models.QueueItem, error) {
	item, err := s.store.GetQueueItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.RequireMember(ctx, item.SessionID, userID); err != nil {
		return nil, err
	}
	return item, nil
}
