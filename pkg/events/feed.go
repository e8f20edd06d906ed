package events

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/karaoke-session-system/pkg/logger"
)

const defaultSubscriberBuffer = 64

// Predicate filters the rows a subscriber is interested in.
type Predicate func(ChangeEvent) bool

// ForSession matches events scoped to sessionID.
func ForSession(sessionID uuid.UUID) Predicate {
	return func(e ChangeEvent) bool {
		return e.SessionID == sessionID
	}
}

type subscription struct {
	table     string
	predicate Predicate
	ch        chan ChangeEvent
}

// Feed fans change events out to in-process subscribers. A subscriber whose
// buffer is full misses the event; consumers refetch rather than rely on
// every event arriving.
type Feed struct {
	mu     sync.RWMutex
	subs   map[int]*subscription
	nextID int
	buffer int
	log    *logger.Logger
}

func NewFeed(buffer int, log *logger.Logger) *Feed {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Feed{
		subs:   make(map[int]*subscription),
		buffer: buffer,
		log:    log,
	}
}

// Publish delivers event to every matching subscriber without blocking.
func (f *Feed) Publish(_ context.Context, event ChangeEvent) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, sub := range f.subs {
		if sub.table != "" && sub.table != event.Table {
			continue
		}
		if sub.predicate != nil && !sub.predicate(event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			f.log.Warnf("change feed subscriber full, dropping %s %s event", event.Table, event.Type)
		}
	}
	return nil
}

// OnChange subscribes to events on table ("" for every table) that satisfy
// predicate. The returned function unsubscribes and closes the channel.
func (f *Feed) OnChange(table string, predicate Predicate) (<-chan ChangeEvent, func()) {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	sub := &subscription{
		table:     table,
		predicate: predicate,
		ch:        make(chan ChangeEvent, f.buffer),
	}
	f.subs[id] = sub
	f.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
			close(sub.ch)
		})
	}
}

// Subscribers returns the number of live subscriptions.
func (f *Feed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}
