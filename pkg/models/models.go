package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID          uuid.UUID `json:"id" gorm:"type:char(36);primaryKey"`
	DisplayName string    `json:"display_name" gorm:"size:50;not null"`
	AvatarEmoji string    `json:"avatar_emoji" gorm:"size:16"`
	CreatedAt   time.Time `json:"created_at"`
	LastSeen    time.Time `json:"last_seen"`
}

type Session struct {
	ID        uuid.UUID `json:"id" gorm:"type:char(36);primaryKey"`
	Name      string    `json:"name" gorm:"size:100;not null"`
	Code      string    `json:"code" gorm:"size:8;index;not null"`
	HostID    uuid.UUID `json:"host_id" gorm:"type:char(36);not null"`
	IsActive  bool      `json:"is_active" gorm:"index"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Participant struct {
	ID        uuid.UUID  `json:"id" gorm:"type:char(36);primaryKey"`
	SessionID uuid.UUID  `json:"session_id" gorm:"type:char(36);not null;uniqueIndex:idx_participant_session_user"`
	UserID    uuid.UUID  `json:"user_id" gorm:"type:char(36);not null;uniqueIndex:idx_participant_session_user"`
	JoinedAt  time.Time  `json:"joined_at"`
	InvitedBy *uuid.UUID `json:"invited_by" gorm:"type:char(36)"`
}

func (Participant) TableName() string {
	return "session_participants"
}

// Song is a catalog row shared by every session, keyed by the YouTube video id.
type Song struct {
	ID           uuid.UUID `json:"id" gorm:"type:char(36);primaryKey"`
	YouTubeID    string    `json:"youtube_id" gorm:"column:youtube_id;size:32;uniqueIndex;not null"`
	Title        string    `json:"title" gorm:"size:255;not null"`
	Artist       *string   `json:"artist" gorm:"size:255"`
	Genre        *string   `json:"genre" gorm:"size:64"`
	Decade       *int      `json:"decade"`
	Year         *int      `json:"year"`
	Duration     *int      `json:"duration"`
	ThumbnailURL *string   `json:"thumbnail_url" gorm:"size:512"`
	CreatedAt    time.Time `json:"created_at"`
}

type QueueStatus string

const (
	QueueStatusQueued    QueueStatus = "queued"
	QueueStatusPlaying   QueueStatus = "playing"
	QueueStatusCompleted QueueStatus = "completed"
	QueueStatusSkipped   QueueStatus = "skipped"
)

// IsTerminal reports whether no further transition is possible.
func (s QueueStatus) IsTerminal() bool {
	return s == QueueStatusCompleted || s == QueueStatusSkipped
}

// CanTransitionTo encodes queued -> playing -> {completed, skipped}, plus
// queued -> skipped for items voted off before they start.
func (s QueueStatus) CanTransitionTo(next QueueStatus) bool {
	switch s {
	case QueueStatusQueued:
		return next == QueueStatusPlaying || next == QueueStatusSkipped
	case QueueStatusPlaying:
		return next == QueueStatusCompleted || next == QueueStatusSkipped
	default:
		return false
	}
}

type QueueItem struct {
	ID                uuid.UUID   `json:"id" gorm:"type:char(36);primaryKey"`
	SessionID         uuid.UUID   `json:"session_id" gorm:"type:char(36);not null;index:idx_queue_session_position"`
	SongID            uuid.UUID   `json:"song_id" gorm:"type:char(36);not null"`
	RequestedBy       uuid.UUID   `json:"requested_by" gorm:"type:char(36);not null"`
	QueuePosition     int         `json:"queue_position" gorm:"not null;index:idx_queue_session_position"`
	Status            QueueStatus `json:"status" gorm:"size:16;not null;index"`
	IsChallenge       bool        `json:"is_challenge"`
	ChallengedUserID  *uuid.UUID  `json:"challenged_user_id" gorm:"type:char(36)"`
	ChallengeAccepted *bool       `json:"challenge_accepted"`
	CreatedAt         time.Time   `json:"created_at"`
	PlayedAt          *time.Time  `json:"played_at"`
}

func (QueueItem) TableName() string {
	return "song_queue"
}

// QueueItemDetails is a queue item joined with its song and requester.
type QueueItemDetails struct {
	QueueItem
	Song      Song `json:"song"`
	Requester User `json:"requester"`
}

// Rating is a user's single emoji reaction to a queue item.
type Rating struct {
	ID          uuid.UUID `json:"id" gorm:"type:char(36);primaryKey"`
	QueueItemID uuid.UUID `json:"queue_item_id" gorm:"type:char(36);not null;uniqueIndex:idx_rating_item_user"`
	UserID      uuid.UUID `json:"user_id" gorm:"type:char(36);not null;uniqueIndex:idx_rating_item_user"`
	Emoji       string    `json:"emoji" gorm:"size:16;not null"`
	CreatedAt   time.Time `json:"created_at"`
}

type SkipVote struct {
	ID          uuid.UUID `json:"id" gorm:"type:char(36);primaryKey"`
	QueueItemID uuid.UUID `json:"queue_item_id" gorm:"type:char(36);not null;uniqueIndex:idx_skip_vote_item_user"`
	UserID      uuid.UUID `json:"user_id" gorm:"type:char(36);not null;uniqueIndex:idx_skip_vote_item_user"`
	SessionID   uuid.UUID `json:"session_id" gorm:"type:char(36);not null;index"`
	CreatedAt   time.Time `json:"created_at"`
}

type ChallengeStatus string

const (
	ChallengeStatusPending   ChallengeStatus = "pending"
	ChallengeStatusAccepted  ChallengeStatus = "accepted"
	ChallengeStatusDeclined  ChallengeStatus = "declined"
	ChallengeStatusCompleted ChallengeStatus = "completed"
)

func (s ChallengeStatus) CanTransitionTo(next ChallengeStatus) bool {
	switch s {
	case ChallengeStatusPending:
		return next == ChallengeStatusAccepted || next == ChallengeStatusDeclined
	case ChallengeStatusAccepted:
		return next == ChallengeStatusCompleted
	default:
		return false
	}
}

type Challenge struct {
	ID           uuid.UUID       `json:"id" gorm:"type:char(36);primaryKey"`
	SessionID    uuid.UUID       `json:"session_id" gorm:"type:char(36);not null;index"`
	ChallengerID uuid.UUID       `json:"challenger_id" gorm:"type:char(36);not null"`
	ChallengedID uuid.UUID       `json:"challenged_id" gorm:"type:char(36);not null"`
	SongID       uuid.UUID       `json:"song_id" gorm:"type:char(36);not null"`
	QueueItemID  *uuid.UUID      `json:"queue_item_id" gorm:"type:char(36)"`
	Status       ChallengeStatus `json:"status" gorm:"size:16;not null"`
	Message      *string         `json:"message" gorm:"size:280"`
	CreatedAt    time.Time       `json:"created_at"`
	RespondedAt  *time.Time      `json:"responded_at"`
	CompletedAt  *time.Time      `json:"completed_at"`
}

// ChallengeUpdate carries the columns written by a status transition.
type ChallengeUpdate struct {
	Status      ChallengeStatus
	RespondedAt *time.Time
	CompletedAt *time.Time
	QueueItemID *uuid.UUID
}

type SessionInvitation struct {
	ID             uuid.UUID  `json:"id" gorm:"type:char(36);primaryKey"`
	SessionID      uuid.UUID  `json:"session_id" gorm:"type:char(36);not null;index"`
	InvitedBy      uuid.UUID  `json:"invited_by" gorm:"type:char(36);not null"`
	InvitationCode string     `json:"invitation_code" gorm:"size:16;uniqueIndex;not null"`
	UsesRemaining  *int       `json:"uses_remaining"`
	ExpiresAt      *time.Time `json:"expires_at"`
	CreatedAt      time.Time  `json:"created_at"`
}

// SessionContext is the "current user / current session" pair a client
// carries between requests and reloads.
type SessionContext struct {
	UserID    uuid.UUID  `json:"user_id"`
	SessionID *uuid.UUID `json:"session_id"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// All returns every persisted model, in migration order.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Session{},
		&Participant{},
		&Song{},
		&QueueItem{},
		&Rating{},
		&SkipVote{},
		&Challenge{},
		&SessionInvitation{},
	}
}
