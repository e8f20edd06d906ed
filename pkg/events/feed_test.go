package events

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karaoke-session-system/pkg/logger"
)

type row struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

func receive(t *testing.T, ch <-chan ChangeEvent) ChangeEvent {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return ChangeEvent{}
	}
}

func assertEmpty(t *testing.T, ch <-chan ChangeEvent) {
	t.Helper()
	select {
	case e := <-ch:
		t.Fatalf("unexpected event %s %s", e.Table, e.Type)
	default:
	}
}

func TestFeedFiltersByTableAndPredicate(t *testing.T) {
	feed := NewFeed(8, logger.NewNop())
	ctx := context.Background()
	mine, other := uuid.New(), uuid.New()

	queue, unsubQueue := feed.OnChange(TableQueue, ForSession(mine))
	defer unsubQueue()
	all, unsubAll := feed.OnChange("", nil)
	defer unsubAll()

	require.NoError(t, Emit(ctx, feed, TableQueue, ChangeInsert, mine, row{Name: "a"}, nil))
	require.NoError(t, Emit(ctx, feed, TableQueue, ChangeInsert, other, row{Name: "b"}, nil))
	require.NoError(t, Emit(ctx, feed, TableParticipants, ChangeInsert, mine, row{Name: "c"}, nil))

	got := receive(t, queue)
	assert.Equal(t, mine, got.SessionID)
	var decoded row
	require.NoError(t, got.Decode(&decoded))
	assert.Equal(t, "a", decoded.Name)
	assertEmpty(t, queue)

	for _, name := range []string{"a", "b", "c"} {
		var r row
		require.NoError(t, receive(t, all).Decode(&r))
		assert.Equal(t, name, r.Name)
	}
}

func TestFeedDropsWhenSubscriberIsFull(t *testing.T) {
	feed := NewFeed(1, logger.NewNop())
	ctx := context.Background()
	sessionID := uuid.New()

	ch, unsubscribe := feed.OnChange(TableQueue, nil)
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 3; i++ {
			_ = Emit(ctx, feed, TableQueue, ChangeUpdate, sessionID, row{}, nil)
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	receive(t, ch)
	assertEmpty(t, ch)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	feed := NewFeed(0, logger.NewNop())
	ch, unsubscribe := feed.OnChange("", nil)
	assert.Equal(t, 1, feed.Subscribers())

	unsubscribe()
	unsubscribe()

	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, feed.Subscribers())
}

func TestDecodeFallsBackToOld(t *testing.T) {
	id := uuid.New()
	event, err := NewChangeEvent(TableParticipants, ChangeDelete, uuid.New(), nil, row{ID: id})
	require.NoError(t, err)

	var r row
	require.NoError(t, event.Decode(&r))
	assert.Equal(t, id, r.ID)

	empty, err := NewChangeEvent(TableParticipants, ChangeDelete, uuid.New(), nil, nil)
	require.NoError(t, err)
	assert.Error(t, empty.Decode(&r))
}

func TestEmitWithoutPublisher(t *testing.T) {
	assert.NoError(t, Emit(context.Background(), nil, TableQueue, ChangeInsert, uuid.New(), row{}, nil))
	EmitOrLog(context.Background(), nil, nil, TableQueue, ChangeInsert, uuid.New(), row{}, nil)
}
