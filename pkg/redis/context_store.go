package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/karaoke-session-system/pkg/apperrors"
	"github.com/karaoke-session-system/pkg/models"
)

type ContextStore struct {
	client *redis.Client
}

// NewContextStore creates a session context store backed by the given Redis client
func NewContextStore(client *redis.Client) *ContextStore {
	return &ContextStore{client: client}
}

func contextKey(userID uuid.UUID) string {
	return fmt.Sprintf("ctx:%s", userID)
}

// SaveContext stores the user's current session context
func (s *ContextStore) SaveContext(ctx context.Context, sc *models.SessionContext) error {
	contextJSON, err := json.Marshal(sc)
	if err != nil {
		return fmt.Errorf("failed to marshal session context: %w", err)
	}

	if err := s.client.Set(ctx, contextKey(sc.UserID), contextJSON, 0).Err(); err != nil { // 0 means no expiration
		return fmt.Errorf("failed to store session context: %w", err)
	}

	return nil
}

// LoadContext retrieves the user's session context
func (s *ContextStore) LoadContext(ctx context.Context, userID uuid.UUID) (*models.SessionContext, error) {
	contextJSON, err := s.client.Get(ctx, contextKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.Wrap(apperrors.ErrNotFound, "session context")
		}
		return nil, fmt.Errorf("failed to get session context: %w", err)
	}

	var sc models.SessionContext
	if err := json.Unmarshal(contextJSON, &sc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session context: %w", err)
	}

	return &sc, nil
}

// ClearContext removes the user's session context
func (s *ContextStore) ClearContext(ctx context.Context, userID uuid.UUID) error {
	return s.client.Del(ctx, contextKey(userID)).Err()
}
