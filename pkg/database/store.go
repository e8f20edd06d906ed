package database

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/karaoke-session-system/pkg/models"
)

// Store is the persistence capability the services depend on. Lookups of
// missing rows return apperrors.ErrNotFound. Methods documented as
// conditional apply their change only if the row is still in the expected
// state, so concurrent callers cannot both succeed.
type Store interface {
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	TouchUser(ctx context.Context, id uuid.UUID, at time.Time) error

	// GenerateSessionCode returns a code not used by any active session.
	GenerateSessionCode(ctx context.Context) (string, error)
	CreateSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	GetActiveSessionByCode(ctx context.Context, code string) (*models.Session, error)
	DeactivateSession(ctx context.Context, id uuid.UUID) error

	// AddParticipant inserts p unless (session, user) already exists, in which
	// case p is overwritten with the existing row and created is false.
	AddParticipant(ctx context.Context, p *models.Participant) (created bool, err error)
	GetParticipant(ctx context.Context, sessionID, userID uuid.UUID) (*models.Participant, error)
	RemoveParticipant(ctx context.Context, sessionID, userID uuid.UUID) (*models.Participant, error)
	ListParticipantUsers(ctx context.Context, sessionID uuid.UUID) ([]models.User, error)
	CountParticipants(ctx context.Context, sessionID uuid.UUID) (int, error)

	// FindOrCreateSong looks song up by YouTubeID, inserting it on first
	// sight. song is overwritten with the stored row.
	FindOrCreateSong(ctx context.Context, song *models.Song) error
	GetSong(ctx context.Context, id uuid.UUID) (*models.Song, error)

	// AppendQueueItem assigns the next queue position for the session and
	// inserts the item, serialized per session.
	AppendQueueItem(ctx context.Context, item *models.QueueItem) error
	GetQueueItem(ctx context.Context, id uuid.UUID) (*models.QueueItem, error)
	// StartQueueItem moves a queued item to playing, failing with
	// ErrConflict if another item of the session is already playing.
	StartQueueItem(ctx context.Context, id uuid.UUID) (*models.QueueItem, error)
	// TransitionQueueItem is conditional on the current status being from.
	TransitionQueueItem(ctx context.Context, id uuid.UUID, from, to models.QueueStatus, playedAt *time.Time) (bool, error)
	// DeleteQueueItem is conditional on the current status being from.
	DeleteQueueItem(ctx context.Context, id uuid.UUID, from models.QueueStatus) (bool, error)
	ListQueue(ctx context.Context, sessionID uuid.UUID, statuses ...models.QueueStatus) ([]models.QueueItemDetails, error)

	// UpsertRating inserts or replaces the emoji for (queue item, user).
	UpsertRating(ctx context.Context, rating *models.Rating) error
	ListRatings(ctx context.Context, queueItemID uuid.UUID) ([]models.Rating, error)

	InsertSkipVote(ctx context.Context, vote *models.SkipVote) (bool, error)
	DeleteSkipVote(ctx context.Context, queueItemID, userID uuid.UUID) (bool, error)
	CountSkipVotes(ctx context.Context, queueItemID uuid.UUID) (int, error)

	CreateChallenge(ctx context.Context, challenge *models.Challenge) error
	GetChallenge(ctx context.Context, id uuid.UUID) (*models.Challenge, error)
	// TransitionChallenge is conditional on the current status being from.
	TransitionChallenge(ctx context.Context, id uuid.UUID, from models.ChallengeStatus, update models.ChallengeUpdate) (bool, error)
	ListChallenges(ctx context.Context, sessionID, userID uuid.UUID) ([]models.Challenge, error)

	GenerateInvitationCode(ctx context.Context) (string, error)
	CreateInvitation(ctx context.Context, invitation *models.SessionInvitation) error
	GetInvitationByCode(ctx context.Context, code string) (*models.SessionInvitation, error)
	// ConsumeInvitationUse decrements uses_remaining if it is positive. It
	// returns false when no use is left. Unlimited invitations always succeed.
	ConsumeInvitationUse(ctx context.Context, id uuid.UUID) (bool, error)
}
