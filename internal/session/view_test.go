package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karaoke-session-system/pkg/events"
	"github.com/karaoke-session-system/pkg/models"
)

func nextRoster(t *testing.T, v *RosterView) []models.User {
	t.Helper()
	select {
	case users, ok := <-v.Updates():
		require.True(t, ok, "roster updates closed")
		return users
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for roster update")
		return nil
	}
}

func TestRosterViewAppliesChanges(t *testing.T) {
	svc, store, feed := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	host := createUser(t, store, "Host")
	guest := createUser(t, store, "Guest")
	session, err := svc.CreateSession(ctx, "Friday Night", host.ID)
	require.NoError(t, err)

	view, err := svc.Watch(ctx, feed, session.ID)
	require.NoError(t, err)
	require.Len(t, view.Snapshot(), 1)

	_, _, err = svc.Join(ctx, session.ID, guest.ID, nil)
	require.NoError(t, err)
	users := nextRoster(t, view)
	require.Len(t, users, 2)
	assert.Equal(t, guest.ID, users[1].ID)

	require.NoError(t, svc.Leave(ctx, session.ID, guest.ID))
	users = nextRoster(t, view)
	require.Len(t, users, 1)
	assert.Equal(t, host.ID, users[0].ID)
}

func TestRosterViewIgnoresDuplicateInserts(t *testing.T) {
	svc, store, feed := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	host := createUser(t, store, "Host")
	session, err := svc.CreateSession(ctx, "Friday Night", host.ID)
	require.NoError(t, err)

	view, err := svc.Watch(ctx, feed, session.ID)
	require.NoError(t, err)

	// Redelivered insert for the host, who is already in the snapshot.
	p, err := store.GetParticipant(ctx, session.ID, host.ID)
	require.NoError(t, err)
	require.NoError(t, events.Emit(ctx, feed, events.TableParticipants, events.ChangeInsert, session.ID, p, nil))

	select {
	case users := <-view.Updates():
		t.Fatalf("unexpected roster update: %v", users)
	case <-time.After(50 * time.Millisecond):
	}
	assert.Len(t, view.Snapshot(), 1)
}

func TestRosterViewClosesOnCancel(t *testing.T) {
	svc, store, feed := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())

	host := createUser(t, store, "Host")
	session, err := svc.CreateSession(ctx, "Friday Night", host.ID)
	require.NoError(t, err)

	view, err := svc.Watch(ctx, feed, session.ID)
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-view.Updates():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("updates channel was not closed")
	}
	assert.Eventually(t, func() bool { return feed.Subscribers() == 0 }, time.Second, 10*time.Millisecond)
}
