package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/karaoke-session-system/pkg/apperrors"
	"github.com/karaoke-session-system/pkg/database"
	"github.com/karaoke-session-system/pkg/events"
	"github.com/karaoke-session-system/pkg/logger"
	"github.com/karaoke-session-system/pkg/models"
	"github.com/karaoke-session-system/pkg/redis"
)

const (
	sessionCodePrefix = "session:code:"
	sessionCacheTTL   = 24 * time.Hour

	MaxNameLength = 100
)

type Service struct {
	store  database.Store
	cache  *redis.Cache
	events events.Publisher
	log    *logger.Logger
}

func NewService(store database.Store, cache *redis.Cache, pub events.Publisher, log *logger.Logger) *Service {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Service{
		store:  store,
		cache:  cache,
		events: pub,
		log:    log,
	}
}

func codeKey(code string) string {
	return sessionCodePrefix + code
}

// NormalizeCode trims and uppercases a user-typed session code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (s *Service) CreateSession(ctx context.Context, name string, hostID uuid.UUID) (*models.Session, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.Wrap(apperrors.ErrInvalidArgument, "session name is required")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return nil, apperrors.Wrap(apperrors.ErrInvalidArgument, "session name must be at most %d characters", MaxNameLength)
	}
	if _, err := s.store.GetUser(ctx, hostID); err != nil {
		return nil, err
	}

	code, err := s.store.GenerateSessionCode(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	session := &models.Session{
		ID:        uuid.New(),
		Name:      name,
		Code:      code,
		HostID:    hostID,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	events.EmitOrLog(ctx, s.events, s.log, events.TableSessions, events.ChangeInsert, session.ID, session, nil)

	if _, _, err := s.Join(ctx, session.ID, hostID, nil); err != nil {
		return nil, fmt.Errorf("failed to enroll host: %w", err)
	}

	s.cacheSession(ctx, session)
	return session, nil
}

func (s *Service) cacheSession(ctx context.Context, session *models.Session) {
	if err := s.cache.SetJSON(ctx, codeKey(session.Code), session, sessionCacheTTL); err != nil {
		s.log.Warnf("failed to cache session %s: %v", session.Code, err)
	}
}

// ResolveSession looks up an active session by its code. Unknown and closed
// sessions are both reported as ErrNotFound.
func (s *Service) ResolveSession(ctx context.Context, code string) (*models.Session, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, apperrors.Wrap(apperrors.ErrInvalidArgument, "session code is required")
	}

	var cached models.Session
	hit, err := s.cache.GetJSON(ctx, codeKey(code), &cached)
	if err != nil {
		s.log.Warnf("session cache read failed: %v", err)
	}
	if hit && cached.IsActive {
		return &cached, nil
	}

	session, err := s.store.GetActiveSessionByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	s.cacheSession(ctx, session)
	return session, nil
}

func (s *Service) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	return s.store.GetSession(ctx, id)
}

// GetActiveSession is GetSession that rejects closed sessions with
// ErrInvalidState.
func (s *Service) GetActiveSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	session, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if !session.IsActive {
		return nil, apperrors.Wrap(apperrors.ErrInvalidState, "session is closed")
	}
	return session, nil
}

// CloseSession deactivates the session. Queue, roster and history rows are
// left in place.
func (s *Service) CloseSession(ctx context.Context, id, actorID uuid.UUID) (*models.Session, error) {
	session, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.HostID != actorID {
		return nil, apperrors.Wrap(apperrors.ErrForbidden, "only the host can close the session")
	}
	if !session.IsActive {
		return session, nil
	}

	if err := s.store.DeactivateSession(ctx, id); err != nil {
		return nil, err
	}
	old := *session
	session.IsActive = false
	session.UpdatedAt = time.Now().UTC()

	if err := s.cache.Delete(ctx, codeKey(session.Code)); err != nil {
		s.log.Warnf("failed to evict session %s from cache: %v", session.Code, err)
	}
	events.EmitOrLog(ctx, s.events, s.log, events.TableSessions, events.ChangeUpdate, session.ID, session, &old)
	return session, nil
}

// IsMember reports whether userID is on the session's roster.
func (s *Service) IsMember(ctx context.Context, sessionID, userID uuid.UUID) (bool, error) {
	_, err := s.store.GetParticipant(ctx, sessionID, userID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, apperrors.ErrNotFound) {
		return false, nil
	}
	return false, err
}

// RequireMember fails with ErrForbidden unless userID is on the roster.
func (s *Service) RequireMember(ctx context.Context, sessionID, userID uuid.UUID) error {
	member, err := s.IsMember(ctx, sessionID, userID)
	if err != nil {
		return err
	}
	if !member {
		return apperrors.Wrap(apperrors.ErrForbidden, "user is not a participant of this session")
	}
	return nil
}
