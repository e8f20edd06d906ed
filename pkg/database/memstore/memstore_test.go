package memstore

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karaoke-session-system/pkg/apperrors"
	"github.com/karaoke-session-system/pkg/models"
)

func seedSession(t *testing.T, s *Store) (*models.Session, *models.Song, *models.User) {
	t.Helper()
	ctx := context.Background()
	host := &models.User{DisplayName: "Host"}
	require.NoError(t, s.CreateUser(ctx, host))

	code, err := s.GenerateSessionCode(ctx)
	require.NoError(t, err)
	session := &models.Session{Name: "Friday Night", Code: code, HostID: host.ID, IsActive: true}
	require.NoError(t, s.CreateSession(ctx, session))

	song := &models.Song{YouTubeID: "dQw4w9WgXcQ", Title: "Never Gonna Give You Up"}
	require.NoError(t, s.FindOrCreateSong(ctx, song))
	return session, song, host
}

func newItem(session *models.Session, song *models.Song, host *models.User) *models.QueueItem {
	return &models.QueueItem{
		SessionID:   session.ID,
		SongID:      song.ID,
		RequestedBy: host.ID,
		Status:      models.QueueStatusQueued,
	}
}

func TestCreateFillsDefaults(t *testing.T) {
	s := New()
	user := &models.User{DisplayName: "Freddie"}
	require.NoError(t, s.CreateUser(context.Background(), user))
	assert.NotEqual(t, uuid.Nil, user.ID)
	assert.False(t, user.CreatedAt.IsZero())
	assert.False(t, user.LastSeen.IsZero())

	_, err := s.GetUser(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSessionCodeIsCaseInsensitive(t *testing.T) {
	s := New()
	session, _, _ := seedSession(t, s)

	found, err := s.GetActiveSessionByCode(context.Background(), strings.ToLower(session.Code))
	require.NoError(t, err)
	assert.Equal(t, session.ID, found.ID)
}

func TestAppendQueueItem(t *testing.T) {
	s := New()
	ctx := context.Background()
	session, song, host := seedSession(t, s)

	for want := 0; want < 3; want++ {
		item := newItem(session, song, host)
		require.NoError(t, s.AppendQueueItem(ctx, item))
		assert.Equal(t, want, item.QueuePosition)
	}

	orphan := newItem(session, song, host)
	orphan.SessionID = uuid.New()
	assert.ErrorIs(t, s.AppendQueueItem(ctx, orphan), apperrors.ErrNotFound)

	require.NoError(t, s.DeactivateSession(ctx, session.ID))
	assert.ErrorIs(t, s.AppendQueueItem(ctx, newItem(session, song, host)), apperrors.ErrInvalidState)
}

func TestAppendQueueItemConcurrent(t *testing.T) {
	s := New()
	ctx := context.Background()
	session, song, host := seedSession(t, s)
	const n = 50

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.AppendQueueItem(ctx, newItem(session, song, host)))
		}()
	}
	wg.Wait()

	items, err := s.ListQueue(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, items, n)
	for i, item := range items {
		assert.Equal(t, i, item.QueuePosition)
	}
}

func TestStartQueueItem(t *testing.T) {
	s := New()
	ctx := context.Background()
	session, song, host := seedSession(t, s)

	first, second := newItem(session, song, host), newItem(session, song, host)
	require.NoError(t, s.AppendQueueItem(ctx, first))
	require.NoError(t, s.AppendQueueItem(ctx, second))

	_, err := s.StartQueueItem(ctx, first.ID)
	require.NoError(t, err)
	_, err = s.StartQueueItem(ctx, first.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
	_, err = s.StartQueueItem(ctx, second.ID)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestStartQueueItemClosedSession(t *testing.T) {
	s := New()
	ctx := context.Background()
	session, song, host := seedSession(t, s)

	item := newItem(session, song, host)
	require.NoError(t, s.AppendQueueItem(ctx, item))
	require.NoError(t, s.DeactivateSession(ctx, session.ID))

	_, err := s.StartQueueItem(ctx, item.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)

	stored, err := s.GetQueueItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusQueued, stored.Status)
}

func TestConsumeInvitationUseConcurrent(t *testing.T) {
	s := New()
	ctx := context.Background()
	session, _, host := seedSession(t, s)

	code, err := s.GenerateInvitationCode(ctx)
	require.NoError(t, err)
	uses := 5
	inv := &models.SessionInvitation{SessionID: session.ID, InvitedBy: host.ID, InvitationCode: code, UsesRemaining: &uses}
	require.NoError(t, s.CreateInvitation(ctx, inv))

	var granted int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.ConsumeInvitationUse(ctx, inv.ID)
			assert.NoError(t, err)
			if ok {
				atomic.AddInt32(&granted, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(uses), granted)

	// The caller's counter is left untouched.
	assert.Equal(t, 5, uses)
	stored, err := s.GetInvitationByCode(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, 0, *stored.UsesRemaining)
}

func TestUpsertRatingReplaces(t *testing.T) {
	s := New()
	ctx := context.Background()
	session, song, host := seedSession(t, s)
	item := newItem(session, song, host)
	require.NoError(t, s.AppendQueueItem(ctx, item))

	first := &models.Rating{QueueItemID: item.ID, UserID: host.ID, Emoji: "🔥"}
	require.NoError(t, s.UpsertRating(ctx, first))
	second := &models.Rating{QueueItemID: item.ID, UserID: host.ID, Emoji: "👏"}
	require.NoError(t, s.UpsertRating(ctx, second))

	assert.Equal(t, first.ID, second.ID)
	ratings, err := s.ListRatings(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, ratings, 1)
	assert.Equal(t, "👏", ratings[0].Emoji)
}
