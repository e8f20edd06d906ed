package user

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
	"github.com/karaoke-session-system/pkg/jwt"
	"github.com/karaoke-session-system/pkg/models"
)

const (
	MaxDisplayNameLength = 50
	DefaultAvatar        = "🎤"
)

var Avatars = []string{
	"🎤", "🎸", "🎹", "🎺", "🎷", "🥁",
	"🎵", "🎶", "🎼", "🎧", "🎯", "⭐",
	"🔥", "💫", "✨", "🌟", "💎", "👑",
	"🦄", "🐉", "🦁", "🐯", "🦅", "🦋",
}

// ContextStore persists each user's current session context between
// requests and page reloads.
type ContextStore interface {
	SaveContext(ctx context.Context, sc *models.SessionContext) error
	LoadContext(ctx context.Context, userID uuid.UUID) (*models.SessionContext, error)
	ClearContext(ctx context.Context, userID uuid.UUID) error
}

type Service struct {
	store     database.Store
	contexts  ContextStore
	jwtSecret string
	jwtExpiry time.Duration
}

func NewService(store database.Store, contexts ContextStore, jwtSecret string, jwtExpiry time.Duration) *Service {
	return &Service{
		store:     store,
		contexts:  contexts,
		jwtSecret: jwtSecret,
		jwtExpiry: jwtExpiry,
	}
}

func validAvatar(emoji string) bool {
	for _, a := range Avatars {
		if a == emoji {
			return true
		}
	}
	return false
}

// CreateUser registers a new identity and returns it with a signed token.
func (s *Service) CreateUser(ctx context.Context, displayName, avatar string) (*models.User, string, error) {
	name := strings.TrimSpace(displayName)
	if name == "" {
		return nil, "", apperrors.Wrap(apperrors.ErrInvalidArgument, "display name is required")
	}
	if utf8.RuneCountInString(name) > MaxDisplayNameLength {
		return nil, "", apperrors.Wrap(apperrors.ErrInvalidArgument, "display name must be at most %d characters", MaxDisplayNameLength)
	}
	if avatar == "" {
		avatar = DefaultAvatar
	}
	if !validAvatar(avatar) {
		return nil, "", apperrors.Wrap(apperrors.ErrInvalidArgument, "unsupported avatar %q", avatar)
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:          uuid.New(),
		DisplayName: name,
		AvatarEmoji: avatar,
		CreatedAt:   now,
		LastSeen:    now,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, "", fmt.Errorf("failed to create user: %w", err)
	}

	token, err := s.IssueToken(user.ID)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

func (s *Service) IssueToken(userID uuid.UUID) (string, error) {
	token, err := jwt.GenerateToken(userID.String(), s.jwtSecret, s.jwtExpiry)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return token, nil
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.store.GetUser(ctx, id)
}

// Touch updates last_seen.
func (s *Service) Touch(ctx context.Context, userID uuid.UUID) error {
	return s.store.TouchUser(ctx, userID, time.Now().UTC())
}

// SetCurrentSession records which session the user is in. A nil sessionID
// clears it.
func (s *Service) SetCurrentSession(ctx context.Context, userID uuid.UUID, sessionID *uuid.UUID) (*models.SessionContext, error) {
	sc := &models.SessionContext{
		UserID:    userID,
		SessionID: sessionID,
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.contexts.SaveContext(ctx, sc); err != nil {
		return nil, err
	}
	return sc, nil
}

// CurrentContext returns the saved context, or an empty one for users that
// never joined a session.
func (s *Service) CurrentContext(ctx context.Context, userID uuid.UUID) (*models.SessionContext, error) {
	sc, err := s.contexts.LoadContext(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return &models.SessionContext{UserID: userID}, nil
		}
		return nil, err
	}
	return sc, nil
}

func (s *Service) ClearContext(ctx context.Context, userID uuid.UUID) error {
	return s.contexts.ClearContext(ctx, userID)
}
