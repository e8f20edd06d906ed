package queue

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/karaoke-session-system/pkg/events"
	"github.com/karaoke-session-system/pkg/logger"
	"github.com/karaoke-session-system/pkg/models"
)

// QueueView keeps the full queue of one session current. Any queue change
// for the session triggers a refetch; queues are small enough that patching
// individual rows is not worth it.
type QueueView struct {
	sessionID uuid.UUID
	load      func(ctx context.Context) ([]models.QueueItemDetails, error)
	log       *logger.Logger

	mu      sync.RWMutex
	items   []models.QueueItemDetails
	updates chan []models.QueueItemDetails
}

// Watch subscribes to queue changes for sessionID and loads the initial
// snapshot. Updates is closed once ctx is cancelled.
func (s *Service) Watch(ctx context.Context, feed events.Subscriber, sessionID uuid.UUID) (*QueueView, error) {
	changes, unsubscribe := feed.OnChange(events.TableQueue, events.ForSession(sessionID))

	v := &QueueView{
		sessionID: sessionID,
		load: func(ctx context.Context) ([]models.QueueItemDetails, error) {
			return s.List(ctx, sessionID, FilterAll)
		},
		log:     s.log,
		updates: make(chan []models.QueueItemDetails, 1),
	}
	items, err := v.load(ctx)
	if err != nil {
		unsubscribe()
		return nil, err
	}
	v.items = items

	go v.run(ctx, changes, unsubscribe)
	return v, nil
}

func (v *QueueView) run(ctx context.Context, changes <-chan events.ChangeEvent, unsubscribe func()) {
	defer close(v.updates)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			v.drain(changes)
			items, err := v.load(ctx)
			if err != nil {
				v.log.Warnf("queue %s: refetch failed: %v", v.sessionID, err)
				continue
			}
			v.mu.Lock()
			v.items = items
			v.mu.Unlock()
			v.publish(items)
		}
	}
}

// drain discards events already waiting, since one refetch covers them all.
func (v *QueueView) drain(changes <-chan events.ChangeEvent) {
	for {
		select {
		case _, ok := <-changes:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

func (v *QueueView) publish(items []models.QueueItemDetails) {
	select {
	case <-v.updates:
	default:
	}
	v.updates <- items
}

func (v *QueueView) Snapshot() []models.QueueItemDetails {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]models.QueueItemDetails, len(v.items))
	copy(out, v.items)
	return out
}

// Updates delivers the refetched queue after changes.
func (v *QueueView) Updates() <-chan []models.QueueItemDetails {
	return v.updates
}
