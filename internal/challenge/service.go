package challenge

import (
	"context"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/karaoke-session-system/pkg/apperrors"
	"github.com/karaoke-session-system/pkg/database"
	"github.com/karaoke-session-system/pkg/events"
	"github.com/karaoke-session-system/pkg/logger"
	"github.com/karaoke-session-system/pkg/models"
)

const MaxMessageLength = 280

type Membership interface {
	RequireMember(ctx context.Context, sessionID, userID uuid.UUID) error
}

// Enqueuer puts an accepted challenge on the session's queue.
type Enqueuer interface {
	EnqueueChallenge(ctx context.Context, sessionID, songID, challengerID, challengedID uuid.UUID) (*models.QueueItem, error)
}

type Service struct {
	store   database.Store
	members Membership
	queue   Enqueuer
	events  events.Publisher
	log     *logger.Logger
}

func NewService(store database.Store, members Membership, queue Enqueuer, pub events.Publisher, log *logger.Logger) *Service {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Service{
		store:   store,
		members: members,
		queue:   queue,
		events:  pub,
		log:     log,
	}
}

func (s *Service) Create(ctx context.Context, sessionID, challengerID, challengedID, songID uuid.UUID, message string) (*models.Challenge, error) {
	if challengerID == challengedID {
		return nil, apperrors.Wrap(apperrors.ErrInvalidArgument, "you cannot challenge yourself")
	}
	var msg *string
	if trimmed := strings.TrimSpace(message); trimmed != "" {
		if utf8.RuneCountInString(trimmed) > MaxMessageLength {
			return nil, apperrors.Wrap(apperrors.ErrInvalidArgument, "message must be at most %d characters", MaxMessageLength)
		}
		msg = &trimmed
	}

	if err := s.members.RequireMember(ctx, sessionID, challengerID); err != nil {
		return nil, err
	}
	if err := s.members.RequireMember(ctx, sessionID, challengedID); err != nil {
		return nil, err
	}
	if _, err := s.store.GetSong(ctx, songID); err != nil {
		return nil, err
	}

	challenge := &models.Challenge{
		ID:           uuid.New(),
		SessionID:    sessionID,
		ChallengerID: challengerID,
		ChallengedID: challengedID,
		SongID:       songID,
		Status:       models.ChallengeStatusPending,
		Message:      msg,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateChallenge(ctx, challenge); err != nil {
		return nil, err
	}
	events.EmitOrLog(ctx, s.events, s.log, events.TableChallenges, events.ChangeInsert, sessionID, challenge, nil)
	return challenge, nil
}

// Respond accepts or declines a pending challenge. Accepting queues the song
// for the challenged user.
func (s *Service) Respond(ctx context.Context, challengeID, responderID uuid.UUID, accept bool) (*models.Challenge, error) {
	challenge, err := s.store.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if challenge.ChallengedID != responderID {
		return nil, apperrors.Wrap(apperrors.ErrForbidden, "only the challenged user can respond")
	}

	next := models.ChallengeStatusDeclined
	if accept {
		next = models.ChallengeStatusAccepted
	}
	if !challenge.Status.CanTransitionTo(next) {
		return nil, apperrors.Wrap(apperrors.ErrInvalidState, "challenge is already %s", challenge.Status)
	}

	now := time.Now().UTC()
	ok, err := s.store.TransitionChallenge(ctx, challengeID, models.ChallengeStatusPending, models.ChallengeUpdate{
		Status:      next,
		RespondedAt: &now,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.Wrap(apperrors.ErrInvalidState, "challenge was answered concurrently")
	}

	before := *challenge
	challenge.Status = next
	challenge.RespondedAt = &now

	if accept && s.queue != nil {
		if item, err := s.queue.EnqueueChallenge(ctx, challenge.SessionID, challenge.SongID, challenge.ChallengerID, challenge.ChallengedID); err != nil {
			// The acceptance stands; the song can still be queued by hand.
			s.log.Errorf("failed to queue accepted challenge %s: %v", challenge.ID, err)
		} else if err := s.linkQueueItem(ctx, challenge, item.ID); err != nil {
			s.log.Errorf("failed to link queue item %s to challenge %s: %v", item.ID, challenge.ID, err)
		}
	}

	events.EmitOrLog(ctx, s.events, s.log, events.TableChallenges, events.ChangeUpdate, challenge.SessionID, challenge, &before)
	return challenge, nil
}

// linkQueueItem stores the auto-queued item on a still-accepted challenge.
func (s *Service) linkQueueItem(ctx context.Context, challenge *models.Challenge, itemID uuid.UUID) error {
	ok, err := s.store.TransitionChallenge(ctx, challenge.ID, models.ChallengeStatusAccepted, models.ChallengeUpdate{
		Status:      models.ChallengeStatusAccepted,
		QueueItemID: &itemID,
	})
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.Wrap(apperrors.ErrInvalidState, "challenge is no longer accepted")
	}
	challenge.QueueItemID = &itemID
	return nil
}

// Complete marks an accepted challenge as sung and links the queue item. The
// item must be the challenge's song in the same session, and must match the
// item queued on acceptance if there is one.
func (s *Service) Complete(ctx context.Context, challengeID, queueItemID uuid.UUID) (*models.Challenge, error) {
	challenge, err := s.store.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if !challenge.Status.CanTransitionTo(models.ChallengeStatusCompleted) {
		return nil, apperrors.Wrap(apperrors.ErrInvalidState, "challenge is %s", challenge.Status)
	}

	item, err := s.store.GetQueueItem(ctx, queueItemID)
	if err != nil {
		return nil, err
	}
	switch {
	case item.SessionID != challenge.SessionID:
		return nil, apperrors.Wrap(apperrors.ErrInvalidArgument, "queue item belongs to another session")
	case item.SongID != challenge.SongID:
		return nil, apperrors.Wrap(apperrors.ErrInvalidArgument, "queue item is not the challenged song")
	case challenge.QueueItemID != nil && *challenge.QueueItemID != queueItemID:
		return nil, apperrors.Wrap(apperrors.ErrInvalidArgument, "challenge is linked to a different queue item")
	}

	now := time.Now().UTC()
	ok, err := s.store.TransitionChallenge(ctx, challengeID, models.ChallengeStatusAccepted, models.ChallengeUpdate{
		Status:      models.ChallengeStatusCompleted,
		CompletedAt: &now,
		QueueItemID: &queueItemID,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.Wrap(apperrors.ErrInvalidState, "challenge changed state concurrently")
	}

	before := *challenge
	challenge.Status = models.ChallengeStatusCompleted
	challenge.CompletedAt = &now
	challenge.QueueItemID = &queueItemID
	events.EmitOrLog(ctx, s.events, s.log, events.TableChallenges, events.ChangeUpdate, challenge.SessionID, challenge, &before)
	return challenge, nil
}

func (s *Service) Get(ctx context.Context, challengeID uuid.UUID) (*models.Challenge, error) {
	return s.store.GetChallenge(ctx, challengeID)
}

// List returns challenges involving userID, pending ones first, newest first
// within each group.
func (s *Service) List(ctx context.Context, sessionID, userID uuid.UUID) ([]models.Challenge, error) {
	challenges, err := s.store.ListChallenges(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(challenges, func(i, j int) bool {
		pi := challenges[i].Status == models.ChallengeStatusPending
		pj := challenges[j].Status == models.ChallengeStatusPending
		return pi && !pj
	})
	return challenges, nil
}
