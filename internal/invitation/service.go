package invitation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/karaoke-session-system/pkg/apperrors"
	"github.com/karaoke-session-system/pkg/database"
	"github.com/karaoke-session-system/pkg/events"
	"github.com/karaoke-session-system/pkg/logger"
	"github.com/karaoke-session-system/pkg/metrics"
	"github.com/karaoke-session-system/pkg/models"
)

// Roster is the part of the session directory invitations need.
type Roster interface {
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	IsMember(ctx context.Context, sessionID, userID uuid.UUID) (bool, error)
	RequireMember(ctx context.Context, sessionID, userID uuid.UUID) error
	Join(ctx context.Context, sessionID, userID uuid.UUID, invitedBy *uuid.UUID) (*models.Participant, bool, error)
}

type Redemption struct {
	Session     *models.Session           `json:"session"`
	Invitation  *models.SessionInvitation `json:"invitation"`
	Participant *models.Participant       `json:"participant"`
}

type Service struct {
	store  database.Store
	roster Roster
	appURL string
	events events.Publisher
	log    *logger.Logger
	now    func() time.Time
}

func NewService(store database.Store, roster Roster, appURL string, pub events.Publisher, log *logger.Logger) *Service {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Service{
		store:  store,
		roster: roster,
		appURL: appURL,
		events: pub,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// GenerateShareableLink builds the join URL for a session code.
func (s *Service) GenerateShareableLink(sessionCode string) string {
	return strings.TrimRight(s.appURL, "/") + "/join/" + sessionCode
}

// Issue creates an invitation. A nil usesRemaining means unlimited uses and a
// nil expiresAt means it never expires.
func (s *Service) Issue(ctx context.Context, sessionID, invitedBy uuid.UUID, usesRemaining *int, expiresAt *time.Time) (*models.SessionInvitation, error) {
	if usesRemaining != nil && *usesRemaining < 1 {
		return nil, apperrors.Wrap(apperrors.ErrInvalidArgument, "uses_remaining must be at least 1")
	}
	if expiresAt != nil && !expiresAt.After(s.now()) {
		return nil, apperrors.Wrap(apperrors.ErrInvalidArgument, "expires_at must be in the future")
	}

	session, err := s.roster.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsActive {
		return nil, apperrors.Wrap(apperrors.ErrInvalidState, "session is closed")
	}
	if err := s.roster.RequireMember(ctx, sessionID, invitedBy); err != nil {
		return nil, err
	}

	code, err := s.store.GenerateInvitationCode(ctx)
	if err != nil {
		return nil, err
	}

	invitation := &models.SessionInvitation{
		ID:             uuid.New(),
		SessionID:      sessionID,
		InvitedBy:      invitedBy,
		InvitationCode: code,
		UsesRemaining:  usesRemaining,
		ExpiresAt:      expiresAt,
		CreatedAt:      s.now(),
	}
	if err := s.store.CreateInvitation(ctx, invitation); err != nil {
		return nil, err
	}
	events.EmitOrLog(ctx, s.events, s.log, events.TableInvitations, events.ChangeInsert, sessionID, invitation, nil)
	return invitation, nil
}

// Redeem validates an invitation code, uses it up once and adds userID to the
// session. Users already on the roster do not consume a use.
func (s *Service) Redeem(ctx context.Context, code string, userID uuid.UUID) (*Redemption, error) {
	redemption, err := s.redeem(ctx, code, userID)
	metrics.RecordInvitationRedemption(redemptionResult(err))
	return redemption, err
}

func (s *Service) redeem(ctx context.Context, code string, userID uuid.UUID) (*Redemption, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, apperrors.Wrap(apperrors.ErrInvalidArgument, "invitation code is required")
	}

	invitation, err := s.store.GetInvitationByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if invitation.ExpiresAt != nil && invitation.ExpiresAt.Before(s.now()) {
		return nil, apperrors.Wrap(apperrors.ErrExpired, "invitation %s", code)
	}
	if invitation.UsesRemaining != nil && *invitation.UsesRemaining <= 0 {
		return nil, apperrors.Wrap(apperrors.ErrExhausted, "invitation %s", code)
	}

	session, err := s.roster.GetSession(ctx, invitation.SessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsActive {
		return nil, apperrors.Wrap(apperrors.ErrNotFound, "session")
	}

	member, err := s.roster.IsMember(ctx, session.ID, userID)
	if err != nil {
		return nil, err
	}
	if !member {
		ok, err := s.store.ConsumeInvitationUse(ctx, invitation.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperrors.Wrap(apperrors.ErrExhausted, "invitation %s", code)
		}
		if invitation.UsesRemaining != nil {
			before := invitation
			if invitation, err = s.store.GetInvitationByCode(ctx, code); err != nil {
				return nil, err
			}
			events.EmitOrLog(ctx, s.events, s.log, events.TableInvitations, events.ChangeUpdate, session.ID, invitation, before)
		}
	}

	inviter := invitation.InvitedBy
	participant, _, err := s.roster.Join(ctx, session.ID, userID, &inviter)
	if err != nil {
		return nil, err
	}
	return &Redemption{Session: session, Invitation: invitation, Participant: participant}, nil
}

func redemptionResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, apperrors.ErrExpired):
		return "expired"
	case errors.Is(err, apperrors.ErrExhausted):
		return "exhausted"
	case errors.Is(err, apperrors.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
