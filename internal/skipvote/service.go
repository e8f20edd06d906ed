package skipvote

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/karaoke-session-system/pkg/apperrors"
	"github.com/karaoke-session-system/pkg/database"
	"github.com/karaoke-session-system/pkg/events"
	"github.com/karaoke-session-system/pkg/logger"
	"github.com/karaoke-session-system/pkg/metrics"
	"github.com/karaoke-session-system/pkg/models"
)

// Skipper ends a queue item once enough votes are in.
type Skipper interface {
	CompleteOrSkip(ctx context.Context, itemID uuid.UUID, outcome models.QueueStatus) (*models.QueueItem, error)
}

type Membership interface {
	GetActiveSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	RequireMember(ctx context.Context, sessionID, userID uuid.UUID) error
}

type Tally struct {
	VoteCount        int `json:"vote_count"`
	ParticipantCount int `json:"participant_count"`
}

type Result struct {
	Tally
	Voted         bool `json:"voted"`
	SkipTriggered bool `json:"skip_triggered"`
}

// ThresholdReached reports whether votes make up at least half of the
// participants.
func ThresholdReached(votes, participants int) bool {
	return participants > 0 && votes*2 >= participants
}

type Service struct {
	store   database.Store
	members Membership
	skipper Skipper
	events  events.Publisher
	log     *logger.Logger
}

func NewService(store database.Store, members Membership, skipper Skipper, pub events.Publisher, log *logger.Logger) *Service {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Service{
		store:   store,
		members: members,
		skipper: skipper,
		events:  pub,
		log:     log,
	}
}

// CastOrRetract toggles userID's skip vote on an item. The threshold is only
// checked when a vote is cast; when it is reached the item is skipped.
// SkipTriggered is set only for the vote whose skip actually ended the item.
func (s *Service) CastOrRetract(ctx context.Context, itemID, userID, sessionID uuid.UUID) (*Result, error) {
	item, err := s.store.GetQueueItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.SessionID != sessionID {
		return nil, apperrors.Wrap(apperrors.ErrInvalidArgument, "queue item does not belong to this session")
	}
	if err := s.members.RequireMember(ctx, sessionID, userID); err != nil {
		return nil, err
	}
	if _, err := s.members.GetActiveSession(ctx, sessionID); err != nil {
		return nil, err
	}

	removed, err := s.store.DeleteSkipVote(ctx, itemID, userID)
	if err != nil {
		return nil, err
	}
	if removed {
		vote := models.SkipVote{QueueItemID: itemID, UserID: userID, SessionID: sessionID}
		events.EmitOrLog(ctx, s.events, s.log, events.TableSkipVotes, events.ChangeDelete, sessionID, nil, vote)

		tally, err := s.Tally(ctx, itemID)
		if err != nil {
			return nil, err
		}
		return &Result{Tally: *tally, Voted: false}, nil
	}

	if item.Status.IsTerminal() {
		return nil, apperrors.Wrap(apperrors.ErrInvalidState, "cannot vote on a %s item", item.Status)
	}

	vote := &models.SkipVote{
		ID:          uuid.New(),
		QueueItemID: itemID,
		UserID:      userID,
		SessionID:   sessionID,
		CreatedAt:   time.Now().UTC(),
	}
	inserted, err := s.store.InsertSkipVote(ctx, vote)
	if err != nil {
		return nil, err
	}
	if inserted {
		events.EmitOrLog(ctx, s.events, s.log, events.TableSkipVotes, events.ChangeInsert, sessionID, vote, nil)
	}

	tally, err := s.Tally(ctx, itemID)
	if err != nil {
		return nil, err
	}
	result := &Result{Tally: *tally, Voted: true}
	if ThresholdReached(tally.VoteCount, tally.ParticipantCount) && s.skip(ctx, itemID) {
		result.SkipTriggered = true
		metrics.RecordSkipSignal()
	}
	return result, nil
}

// skip ends the item and reports whether this call was the one that did.
func (s *Service) skip(ctx context.Context, itemID uuid.UUID) bool {
	if s.skipper == nil {
		return false
	}
	if _, err := s.skipper.CompleteOrSkip(ctx, itemID, models.QueueStatusSkipped); err != nil {
		if errors.Is(err, apperrors.ErrInvalidState) {
			s.log.Infof("skip threshold reached for %s but it already ended: %v", itemID, err)
			return false
		}
		s.log.Errorf("failed to skip queue item %s: %v", itemID, err)
		return false
	}
	return true
}

// Tally recounts votes and participants from the store.
func (s *Service) Tally(ctx context.Context, itemID uuid.UUID) (*Tally, error) {
	item, err := s.store.GetQueueItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	votes, err := s.store.CountSkipVotes(ctx, itemID)
	if err != nil {
		return nil, err
	}
	participants, err := s.store.CountParticipants(ctx, item.SessionID)
	if err != nil {
		return nil, err
	}
	return &Tally{VoteCount: votes, ParticipantCount: participants}, nil
}
