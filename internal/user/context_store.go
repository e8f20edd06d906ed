package user

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/karaoke-session-system/pkg/apperrors"
	"github.com/karaoke-session-system/pkg/models"
)

// MemoryContextStore keeps session contexts in process memory, for
// deployments without Redis.
type MemoryContextStore struct {
	mu       sync.RWMutex
	contexts map[uuid.UUID]models.SessionContext
}

func NewMemoryContextStore() *MemoryContextStore {
	return &MemoryContextStore{contexts: make(map[uuid.UUID]models.SessionContext)}
}

func (m *MemoryContextStore) SaveContext(_ context.Context, sc *models.SessionContext) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contexts[sc.UserID] = *sc
	return nil
}

func (m *MemoryContextStore) LoadContext(_ context.Context, userID uuid.UUID) (*models.SessionContext, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sc, ok := m.contexts[userID]
	if !ok {
		return nil, apperrors.Wrap(apperrors.ErrNotFound, "session context")
	}
	return &sc, nil
}

func (m *MemoryContextStore) ClearContext(_ context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.contexts, userID)
	return nil
}
