package session

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/karaoke-session-system/pkg/apperrors"
	"github.com/karaoke-session-system/pkg/events"
	"github.com/karaoke-session-system/pkg/models"
)

// Join adds userID to the roster. Joining twice is not an error: the
// existing row is returned with created=false and no event is emitted.
func (s *Service) Join(ctx context.Context, sessionID, userID uuid.UUID, invitedBy *uuid.UUID) (*models.Participant, bool, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}
	if !session.IsActive {
		return nil, false, apperrors.Wrap(apperrors.ErrNotFound, "session")
	}
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, false, err
	}

	p := &models.Participant{
		ID:        uuid.New(),
		SessionID: sessionID,
		UserID:    userID,
		JoinedAt:  time.Now().UTC(),
		InvitedBy: invitedBy,
	}
	created, err := s.store.AddParticipant(ctx, p)
	if err != nil {
		return nil, false, err
	}
	if created {
		events.EmitOrLog(ctx, s.events, s.log, events.TableParticipants, events.ChangeInsert, sessionID, p, nil)
	}
	return p, created, nil
}

func (s *Service) Leave(ctx context.Context, sessionID, userID uuid.UUID) error {
	p, err := s.store.RemoveParticipant(ctx, sessionID, userID)
	if err != nil {
		return err
	}
	events.EmitOrLog(ctx, s.events, s.log, events.TableParticipants, events.ChangeDelete, sessionID, nil, p)
	return nil
}

// ListParticipants returns the roster in join order.
func (s *Service) ListParticipants(ctx context.Context, sessionID uuid.UUID) ([]models.User, error) {
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.store.ListParticipantUsers(ctx, sessionID)
}

func (s *Service) CountParticipants(ctx context.Context, sessionID uuid.UUID) (int, error) {
	return s.store.CountParticipants(ctx, sessionID)
}
