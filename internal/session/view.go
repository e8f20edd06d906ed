package session

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/karaoke-session-system/pkg/events"
	"github.com/karaoke-session-system/pkg/logger"
	"github.com/karaoke-session-system/pkg/models"
)

// RosterView is a live copy of one session's roster. It starts from a
// snapshot and then applies participant inserts and deletes from the change
// feed. Inserts for users already present are ignored, so redelivered events
// are harmless.
type RosterView struct {
	sessionID uuid.UUID
	users     func(ctx context.Context, id uuid.UUID) (*models.User, error)
	log       *logger.Logger

	mu      sync.RWMutex
	members []models.User
	updates chan []models.User
}

// Watch subscribes to roster changes for sessionID and loads the initial
// snapshot. The view stops updating when ctx is cancelled, after which
// Updates is closed.
func (s *Service) Watch(ctx context.Context, feed events.Subscriber, sessionID uuid.UUID) (*RosterView, error) {
	// Subscribe before the snapshot so nothing between the two is missed.
	changes, unsubscribe := feed.OnChange(events.TableParticipants, events.ForSession(sessionID))

	members, err := s.ListParticipants(ctx, sessionID)
	if err != nil {
		unsubscribe()
		return nil, err
	}

	v := &RosterView{
		sessionID: sessionID,
		users:     s.store.GetUser,
		log:       s.log,
		members:   members,
		updates:   make(chan []models.User, 1),
	}
	go v.run(ctx, changes, unsubscribe)
	return v, nil
}

func (v *RosterView) run(ctx context.Context, changes <-chan events.ChangeEvent, unsubscribe func()) {
	defer close(v.updates)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-changes:
			if !ok {
				return
			}
			if v.apply(ctx, event) {
				v.publish()
			}
		}
	}
}

func (v *RosterView) apply(ctx context.Context, event events.ChangeEvent) bool {
	var p models.Participant
	if err := event.Decode(&p); err != nil {
		v.log.Warnf("roster %s: undecodable participant event: %v", v.sessionID, err)
		return false
	}

	switch event.Type {
	case events.ChangeInsert:
		if v.contains(p.UserID) {
			return false
		}
		user, err := v.users(ctx, p.UserID)
		if err != nil {
			v.log.Warnf("roster %s: failed to load user %s: %v", v.sessionID, p.UserID, err)
			return false
		}
		v.mu.Lock()
		defer v.mu.Unlock()
		v.members = append(v.members, *user)
		return true
	case events.ChangeDelete:
		v.mu.Lock()
		defer v.mu.Unlock()
		for i, m := range v.members {
			if m.ID == p.UserID {
				v.members = append(v.members[:i], v.members[i+1:]...)
				return true
			}
		}
	}
	return false
}

func (v *RosterView) contains(userID uuid.UUID) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	for _, m := range v.members {
		if m.ID == userID {
			return true
		}
	}
	return false
}

// publish offers the latest snapshot, replacing one the reader has not
// picked up yet.
func (v *RosterView) publish() {
	snapshot := v.Snapshot()
	select {
	case <-v.updates:
	default:
	}
	v.updates <- snapshot
}

// Snapshot returns a copy of the current roster.
func (v *RosterView) Snapshot() []models.User {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]models.User, len(v.members))
	copy(out, v.members)
	return out
}

// Updates delivers the roster after every change that altered it.
func (v *RosterView) Updates() <-chan []models.User {
	return v.updates
}
