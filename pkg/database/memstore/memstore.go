// Package memstore keeps the whole data model in process memory. It backs
// STORE_DRIVER=memory deployments and the service tests; every method holds
// a single lock, so each call is atomic.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/karaoke-session-system/pkg/apperrors"
	"github.com/karaoke-session-system/pkg/database"
	"github.com/karaoke-session-system/pkg/models"
)

type Store struct {
	mu           sync.Mutex
	users        map[uuid.UUID]models.User
	sessions     map[uuid.UUID]models.Session
	participants map[uuid.UUID]models.Participant
	songs        map[uuid.UUID]models.Song
	queue        map[uuid.UUID]models.QueueItem
	ratings      map[uuid.UUID]models.Rating
	skipVotes    map[uuid.UUID]models.SkipVote
	challenges   map[uuid.UUID]models.Challenge
	invitations  map[uuid.UUID]models.SessionInvitation
}

var _ database.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users:        make(map[uuid.UUID]models.User),
		sessions:     make(map[uuid.UUID]models.Session),
		participants: make(map[uuid.UUID]models.Participant),
		songs:        make(map[uuid.UUID]models.Song),
		queue:        make(map[uuid.UUID]models.QueueItem),
		ratings:      make(map[uuid.UUID]models.Rating),
		skipVotes:    make(map[uuid.UUID]models.SkipVote),
		challenges:   make(map[uuid.UUID]models.Challenge),
		invitations:  make(map[uuid.UUID]models.SessionInvitation),
	}
}

func now() time.Time {
	return time.Now().UTC()
}

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func stamp(t *time.Time) {
	if t.IsZero() {
		*t = now()
	}
}

func missing(what string) error {
	return apperrors.Wrap(apperrors.ErrNotFound, "%s", what)
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ensureID(&user.ID)
	stamp(&user.CreatedAt)
	stamp(&user.LastSeen)
	s.users[user.ID] = *user
	return nil
}

func (s *Store) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return nil, missing("user")
	}
	return &user, nil
}

func (s *Store) TouchUser(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user, ok := s.users[id]; ok {
		user.LastSeen = at
		s.users[id] = user
	}
	return nil
}

func (s *Store) GenerateSessionCode(ctx context.Context) (string, error) {
	return database.UniqueCode(ctx, database.SessionCodeLength, func(_ context.Context, code string) (bool, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, session := range s.sessions {
			if session.IsActive && session.Code == code {
				return true, nil
			}
		}
		return false, nil
	})
}

func (s *Store) CreateSession(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.sessions {
		if existing.IsActive && session.IsActive && existing.Code == session.Code {
			return apperrors.Wrap(apperrors.ErrConflict, "session code %s in use", session.Code)
		}
	}
	ensureID(&session.ID)
	stamp(&session.CreatedAt)
	stamp(&session.UpdatedAt)
	s.sessions[session.ID] = *session
	return nil
}

func (s *Store) GetSession(_ context.Context, id uuid.UUID) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, missing("session")
	}
	return &session, nil
}

func (s *Store) GetActiveSessionByCode(_ context.Context, code string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	code = strings.ToUpper(code)
	for _, session := range s.sessions {
		if session.IsActive && session.Code == code {
			found := session
			return &found, nil
		}
	}
	return nil, missing("session")
}

func (s *Store) DeactivateSession(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return missing("session")
	}
	session.IsActive = false
	session.UpdatedAt = now()
	s.sessions[id] = session
	return nil
}

func (s *Store) findParticipant(sessionID, userID uuid.UUID) (models.Participant, bool) {
	for _, p := range s.participants {
		if p.SessionID == sessionID && p.UserID == userID {
			return p, true
		}
	}
	return models.Participant{}, false
}

func (s *Store) AddParticipant(_ context.Context, p *models.Participant) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.findParticipant(p.SessionID, p.UserID); ok {
		*p = existing
		return false, nil
	}
	ensureID(&p.ID)
	stamp(&p.JoinedAt)
	s.participants[p.ID] = *p
	return true, nil
}

func (s *Store) GetParticipant(_ context.Context, sessionID, userID uuid.UUID) (*models.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.findParticipant(sessionID, userID)
	if !ok {
		return nil, missing("participant")
	}
	return &p, nil
}

func (s *Store) RemoveParticipant(_ context.Context, sessionID, userID uuid.UUID) (*models.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.findParticipant(sessionID, userID)
	if !ok {
		return nil, missing("participant")
	}
	delete(s.participants, p.ID)
	return &p, nil
}

func (s *Store) ListParticipantUsers(_ context.Context, sessionID uuid.UUID) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var members []models.Participant
	for _, p := range s.participants {
		if p.SessionID == sessionID {
			members = append(members, p)
		}
	}
	sort.Slice(members, func(i, j int) bool {
		return members[i].JoinedAt.Before(members[j].JoinedAt)
	})

	users := make([]models.User, 0, len(members))
	for _, p := range members {
		if user, ok := s.users[p.UserID]; ok {
			users = append(users, user)
		}
	}
	return users, nil
}

func (s *Store) CountParticipants(_ context.Context, sessionID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.participants {
		if p.SessionID == sessionID {
			n++
		}
	}
	return n, nil
}

func (s *Store) FindOrCreateSong(_ context.Context, song *models.Song) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.songs {
		if existing.YouTubeID == song.YouTubeID {
			*song = existing
			return nil
		}
	}
	ensureID(&song.ID)
	stamp(&song.CreatedAt)
	s.songs[song.ID] = *song
	return nil
}

func (s *Store) GetSong(_ context.Context, id uuid.UUID) (*models.Song, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	song, ok := s.songs[id]
	if !ok {
		return nil, missing("song")
	}
	return &song, nil
}

func (s *Store) AppendQueueItem(_ context.Context, item *models.QueueItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[item.SessionID]
	if !ok {
		return missing("session")
	}
	if !session.IsActive {
		return apperrors.Wrap(apperrors.ErrInvalidState, "session is closed")
	}

	last := -1
	for _, existing := range s.queue {
		if existing.SessionID == item.SessionID && existing.QueuePosition > last {
			last = existing.QueuePosition
		}
	}
	item.QueuePosition = last + 1
	ensureID(&item.ID)
	stamp(&item.CreatedAt)
	s.queue[item.ID] = *item
	return nil
}

func (s *Store) GetQueueItem(_ context.Context, id uuid.UUID) (*models.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.queue[id]
	if !ok {
		return nil, missing("queue item")
	}
	return &item, nil
}

func (s *Store) StartQueueItem(_ context.Context, id uuid.UUID) (*models.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.queue[id]
	if !ok {
		return nil, missing("queue item")
	}
	if session, ok := s.sessions[item.SessionID]; !ok || !session.IsActive {
		return nil, apperrors.Wrap(apperrors.ErrInvalidState, "session is closed")
	}
	if item.Status != models.QueueStatusQueued {
		return nil, apperrors.Wrap(apperrors.ErrInvalidState, "queue item is %s", item.Status)
	}
	for _, other := range s.queue {
		if other.SessionID == item.SessionID && other.Status == models.QueueStatusPlaying {
			return nil, apperrors.Wrap(apperrors.ErrConflict, "another song is already playing")
		}
	}
	item.Status = models.QueueStatusPlaying
	s.queue[id] = item
	return &item, nil
}

func (s *Store) TransitionQueueItem(_ context.Context, id uuid.UUID, from, to models.QueueStatus, playedAt *time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.queue[id]
	if !ok || item.Status != from {
		return false, nil
	}
	item.Status = to
	if playedAt != nil {
		at := *playedAt
		item.PlayedAt = &at
	}
	s.queue[id] = item
	return true, nil
}

func (s *Store) DeleteQueueItem(_ context.Context, id uuid.UUID, from models.QueueStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.queue[id]
	if !ok || item.Status != from {
		return false, nil
	}
	delete(s.queue, id)
	return true, nil
}

func (s *Store) ListQueue(_ context.Context, sessionID uuid.UUID, statuses ...models.QueueStatus) ([]models.QueueItemDetails, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[models.QueueStatus]bool, len(statuses))
	for _, st := range statuses {
		wanted[st] = true
	}

	var items []models.QueueItem
	for _, item := range s.queue {
		if item.SessionID != sessionID {
			continue
		}
		if len(wanted) > 0 && !wanted[item.Status] {
			continue
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.QueuePosition != b.QueuePosition {
			return a.QueuePosition < b.QueuePosition
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})

	songs := make([]models.Song, 0, len(items))
	users := make([]models.User, 0, len(items))
	for _, item := range items {
		if song, ok := s.songs[item.SongID]; ok {
			songs = append(songs, song)
		}
		if user, ok := s.users[item.RequestedBy]; ok {
			users = append(users, user)
		}
	}
	return database.JoinQueueDetails(items, songs, users)
}

func (s *Store) UpsertRating(_ context.Context, rating *models.Rating) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.ratings {
		if existing.QueueItemID == rating.QueueItemID && existing.UserID == rating.UserID {
			existing.Emoji = rating.Emoji
			s.ratings[id] = existing
			*rating = existing
			return nil
		}
	}
	ensureID(&rating.ID)
	stamp(&rating.CreatedAt)
	s.ratings[rating.ID] = *rating
	return nil
}

func (s *Store) ListRatings(_ context.Context, queueItemID uuid.UUID) ([]models.Rating, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ratings []models.Rating
	for _, r := range s.ratings {
		if r.QueueItemID == queueItemID {
			ratings = append(ratings, r)
		}
	}
	sort.Slice(ratings, func(i, j int) bool {
		return ratings[i].CreatedAt.Before(ratings[j].CreatedAt)
	})
	return ratings, nil
}

func (s *Store) InsertSkipVote(_ context.Context, vote *models.SkipVote) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.skipVotes {
		if existing.QueueItemID == vote.QueueItemID && existing.UserID == vote.UserID {
			return false, nil
		}
	}
	ensureID(&vote.ID)
	stamp(&vote.CreatedAt)
	s.skipVotes[vote.ID] = *vote
	return true, nil
}

func (s *Store) DeleteSkipVote(_ context.Context, queueItemID, userID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.skipVotes {
		if existing.QueueItemID == queueItemID && existing.UserID == userID {
			delete(s.skipVotes, id)
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) CountSkipVotes(_ context.Context, queueItemID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.skipVotes {
		if v.QueueItemID == queueItemID {
			n++
		}
	}
	return n, nil
}

func (s *Store) CreateChallenge(_ context.Context, challenge *models.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ensureID(&challenge.ID)
	stamp(&challenge.CreatedAt)
	s.challenges[challenge.ID] = *challenge
	return nil
}

func (s *Store) GetChallenge(_ context.Context, id uuid.UUID) (*models.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	challenge, ok := s.challenges[id]
	if !ok {
		return nil, missing("challenge")
	}
	return &challenge, nil
}

func (s *Store) TransitionChallenge(_ context.Context, id uuid.UUID, from models.ChallengeStatus, update models.ChallengeUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	challenge, ok := s.challenges[id]
	if !ok || challenge.Status != from {
		return false, nil
	}
	challenge.Status = update.Status
	if update.RespondedAt != nil {
		challenge.RespondedAt = update.RespondedAt
	}
	if update.CompletedAt != nil {
		challenge.CompletedAt = update.CompletedAt
	}
	if update.QueueItemID != nil {
		challenge.QueueItemID = update.QueueItemID
	}
	s.challenges[id] = challenge
	return true, nil
}

func (s *Store) ListChallenges(_ context.Context, sessionID, userID uuid.UUID) ([]models.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Challenge
	for _, c := range s.challenges {
		if c.SessionID == sessionID && (c.ChallengerID == userID || c.ChallengedID == userID) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) GenerateInvitationCode(ctx context.Context) (string, error) {
	return database.UniqueCode(ctx, database.InvitationCodeLength, func(_ context.Context, code string) (bool, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, inv := range s.invitations {
			if inv.InvitationCode == code {
				return true, nil
			}
		}
		return false, nil
	})
}

func (s *Store) CreateInvitation(_ context.Context, invitation *models.SessionInvitation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ensureID(&invitation.ID)
	stamp(&invitation.CreatedAt)
	s.invitations[invitation.ID] = *invitation
	return nil
}

func (s *Store) GetInvitationByCode(_ context.Context, code string) (*models.SessionInvitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	code = strings.ToUpper(code)
	for _, inv := range s.invitations {
		if inv.InvitationCode == code {
			found := inv
			return &found, nil
		}
	}
	return nil, missing("invitation")
}

func (s *Store) ConsumeInvitationUse(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invitations[id]
	if !ok {
		return false, missing("invitation")
	}
	if inv.UsesRemaining == nil {
		return true, nil
	}
	if *inv.UsesRemaining <= 0 {
		return false, nil
	}
	remaining := *inv.UsesRemaining - 1
	inv.UsesRemaining = &remaining
	s.invitations[id] = inv
	return true, nil
}
