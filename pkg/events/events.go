package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/karaoke-session-system/pkg/logger"
	"github.com/karaoke-session-system/pkg/metrics"
)

type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// Table names double as change-feed channels.
const (
	TableSessions     = "sessions"
	TableParticipants = "session_participants"
	TableQueue        = "song_queue"
	TableRatings      = "ratings"
	TableSkipVotes    = "skip_votes"
	TableChallenges   = "challenges"
	TableInvitations  = "session_invitations"
)

// ChangeEvent describes one committed row change, scoped to the session that
// owns the row.
type ChangeEvent struct {
	ID        uuid.UUID       `json:"id"`
	Table     string          `json:"table"`
	Type      ChangeType      `json:"type"`
	SessionID uuid.UUID       `json:"session_id"`
	Record    json.RawMessage `json:"record,omitempty"`
	Old       json.RawMessage `json:"old,omitempty"`
	At        time.Time       `json:"at"`
}

// Publisher accepts change events for fan-out.
type Publisher interface {
	Publish(ctx context.Context, event ChangeEvent) error
}

// Subscriber hands out filtered change streams. Table "" matches every
// table; the returned function unsubscribes.
type Subscriber interface {
	OnChange(table string, predicate Predicate) (<-chan ChangeEvent, func())
}

func NewChangeEvent(table string, changeType ChangeType, sessionID uuid.UUID, record, old interface{}) (ChangeEvent, error) {
	event := ChangeEvent{
		ID:        uuid.New(),
		Table:     table,
		Type:      changeType,
		SessionID: sessionID,
		At:        time.Now().UTC(),
	}
	if record != nil {
		data, err := json.Marshal(record)
		if err != nil {
			return ChangeEvent{}, fmt.Errorf("failed to marshal record: %w", err)
		}
		event.Record = data
	}
	if old != nil {
		data, err := json.Marshal(old)
		if err != nil {
			return ChangeEvent{}, fmt.Errorf("failed to marshal old record: %w", err)
		}
		event.Old = data
	}
	return event, nil
}

// Decode unmarshals the new record, falling back to the old one for deletes.
func (e ChangeEvent) Decode(v interface{}) error {
	data := e.Record
	if len(data) == 0 {
		data = e.Old
	}
	if len(data) == 0 {
		return fmt.Errorf("event %s has no payload", e.ID)
	}
	return json.Unmarshal(data, v)
}

// Emit builds and publishes an event. Failures are returned for the caller to
// log; the row change itself has already been committed.
func Emit(ctx context.Context, pub Publisher, table string, changeType ChangeType, sessionID uuid.UUID, record, old interface{}) error {
	if pub == nil {
		return nil
	}
	event, err := NewChangeEvent(table, changeType, sessionID, record, old)
	if err != nil {
		return err
	}
	return pub.Publish(ctx, event)
}

// EmitOrLog is Emit for callers that can only log a failed publish.
func EmitOrLog(ctx context.Context, pub Publisher, log *logger.Logger, table string, changeType ChangeType, sessionID uuid.UUID, record, old interface{}) {
	if pub == nil {
		return
	}
	if err := Emit(ctx, pub, table, changeType, sessionID, record, old); err != nil {
		if log == nil {
			log = logger.GetGlobalLogger()
		}
		log.Errorf("failed to publish %s %s for session %s: %v", table, changeType, sessionID, err)
		return
	}
	metrics.RecordChangeEvent(table)
}
