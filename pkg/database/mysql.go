package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/karaoke-session-system/pkg/apperrors"
	"github.com/karaoke-session-system/pkg/logger"
	"github.com/karaoke-session-system/pkg/models"
)

type MySQLDB struct {
	*gorm.DB
}

var _ Store = (*MySQLDB)(nil)

// mysqlDSN enables multiStatements so migration scripts can run as one batch.
func mysqlDSN(host, port, user, password, dbname string) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC&multiStatements=true",
		user, password, host, port, dbname)
}

func NewMySQLDB(host, port, user, password, dbname string, verbose bool) (*MySQLDB, error) {
	db, err := Open(mysql.Open(mysqlDSN(host, port, user, password, dbname)), verbose)
	if err != nil {
		return nil, err
	}

	// Set connection pool settings
	sqlDB, err := db.DB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

// Open connects through any gorm dialector and migrates the schema.
func Open(dialector gorm.Dialector, verbose bool) (*MySQLDB, error) {
	level := gormlogger.Warn
	if verbose {
		level = gormlogger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := autoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &MySQLDB{DB: db}, nil
}

func autoMigrate(db *gorm.DB) error {
	logger.GetGlobalLogger().Infof("Running database migrations...")
	return db.AutoMigrate(models.All()...)
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.Wrap(apperrors.ErrNotFound, "%s", what)
	}
	return err
}

func (db *MySQLDB) Ping(ctx context.Context) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// User operations
func (db *MySQLDB) CreateUser(ctx context.Context, user *models.User) error {
	return db.WithContext(ctx).Create(user).Error
}

func (db *MySQLDB) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "user")
	}
	return &user, nil
}

func (db *MySQLDB) TouchUser(ctx context.Context, id uuid.UUID, at time.Time) error {
	return db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("last_seen", at).Error
}

// Session operations
func (db *MySQLDB) GenerateSessionCode(ctx context.Context) (string, error) {
	return UniqueCode(ctx, SessionCodeLength, func(ctx context.Context, code string) (bool, error) {
		var n int64
		err := db.WithContext(ctx).Model(&models.Session{}).
			Where("code = ? AND is_active = ?", code, true).
			Count(&n).Error
		return n > 0, err
	})
}

func (db *MySQLDB) CreateSession(ctx context.Context, session *models.Session) error {
	return db.WithContext(ctx).Create(session).Error
}

func (db *MySQLDB) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	var session models.Session
	if err := db.WithContext(ctx).First(&session, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "session")
	}
	return &session, nil
}

func (db *MySQLDB) GetActiveSessionByCode(ctx context.Context, code string) (*models.Session, error) {
	var session models.Session
	if err := db.WithContext(ctx).
		Where("code = ? AND is_active = ?", strings.ToUpper(code), true).
		First(&session).Error; err != nil {
		return nil, notFound(err, "session")
	}
	return &session, nil
}

func (db *MySQLDB) DeactivateSession(ctx context.Context, id uuid.UUID) error {
	res := db.WithContext(ctx).Model(&models.Session{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"is_active": false, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.Wrap(apperrors.ErrNotFound, "session")
	}
	return nil
}

// Participant operations
func (db *MySQLDB) AddParticipant(ctx context.Context, p *models.Participant) (bool, error) {
	res := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(p)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	existing, err := db.GetParticipant(ctx, p.SessionID, p.UserID)
	if err != nil {
		return false, err
	}
	*p = *existing
	return false, nil
}

func (db *MySQLDB) GetParticipant(ctx context.Context, sessionID, userID uuid.UUID) (*models.Participant, error) {
	var p models.Participant
	if err := db.WithContext(ctx).
		Where("session_id = ? AND user_id = ?", sessionID, userID).
		First(&p).Error; err != nil {
		return nil, notFound(err, "participant")
	}
	return &p, nil
}

func (db *MySQLDB) RemoveParticipant(ctx context.Context, sessionID, userID uuid.UUID) (*models.Participant, error) {
	p, err := db.GetParticipant(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	res := db.WithContext(ctx).Where("id = ?", p.ID).Delete(&models.Participant{})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, apperrors.Wrap(apperrors.ErrNotFound, "participant")
	}
	return p, nil
}

func (db *MySQLDB) ListParticipantUsers(ctx context.Context, sessionID uuid.UUID) ([]models.User, error) {
	var users []models.User
	if err := db.WithContext(ctx).Model(&models.User{}).
		Select("users.*").
		Joins("JOIN session_participants sp ON sp.user_id = users.id").
		Where("sp.session_id = ?", sessionID).
		Order("sp.joined_at ASC").
		Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (db *MySQLDB) CountParticipants(ctx context.Context, sessionID uuid.UUID) (int, error) {
	var n int64
	err := db.WithContext(ctx).Model(&models.Participant{}).Where("session_id = ?", sessionID).Count(&n).Error
	return int(n), err
}

// Song operations
func (db *MySQLDB) FindOrCreateSong(ctx context.Context, song *models.Song) error {
	var existing models.Song
	err := db.WithContext(ctx).First(&existing, "youtube_id = ?", song.YouTubeID).Error
	if err == nil {
		*song = existing
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	res := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(song)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Inserted concurrently by another request.
		if err := db.WithContext(ctx).First(&existing, "youtube_id = ?", song.YouTubeID).Error; err != nil {
			return err
		}
		*song = existing
	}
	return nil
}

func (db *MySQLDB) GetSong(ctx context.Context, id uuid.UUID) (*models.Song, error) {
	var song models.Song
	if err := db.WithContext(ctx).First(&song, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "song")
	}
	return &song, nil
}

// Queue operations

// lockSession takes a row lock on the session for the rest of tx. Every
// queue write that depends on the session's other items goes through it.
func lockSession(tx *gorm.DB, sessionID uuid.UUID) (*models.Session, error) {
	var session models.Session
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&session, "id = ?", sessionID).Error; err != nil {
		return nil, notFound(err, "session")
	}
	return &session, nil
}

func (db *MySQLDB) AppendQueueItem(ctx context.Context, item *models.QueueItem) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		session, err := lockSession(tx, item.SessionID)
		if err != nil {
			return err
		}
		if !session.IsActive {
			return apperrors.Wrap(apperrors.ErrInvalidState, "session is closed")
		}

		var last int
		if err := tx.Model(&models.QueueItem{}).
			Select("COALESCE(MAX(queue_position), -1)").
			Where("session_id = ?", item.SessionID).
			Row().Scan(&last); err != nil {
			return fmt.Errorf("failed to read queue position: %w", err)
		}
		item.QueuePosition = last + 1

		return tx.Create(item).Error
	})
}

func (db *MySQLDB) GetQueueItem(ctx context.Context, id uuid.UUID) (*models.QueueItem, error) {
	var item models.QueueItem
	if err := db.WithContext(ctx).First(&item, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "queue item")
	}
	return &item, nil
}

func (db *MySQLDB) StartQueueItem(ctx context.Context, id uuid.UUID) (*models.QueueItem, error) {
	current, err := db.GetQueueItem(ctx, id)
	if err != nil {
		return nil, err
	}

	var started models.QueueItem
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		session, err := lockSession(tx, current.SessionID)
		if err != nil {
			return err
		}
		if !session.IsActive {
			return apperrors.Wrap(apperrors.ErrInvalidState, "session is closed")
		}
		if err := tx.First(&started, "id = ?", id).Error; err != nil {
			return notFound(err, "queue item")
		}
		if started.Status != models.QueueStatusQueued {
			return apperrors.Wrap(apperrors.ErrInvalidState, "queue item is %s", started.Status)
		}

		var playing int64
		if err := tx.Model(&models.QueueItem{}).
			Where("session_id = ? AND status = ?", started.SessionID, models.QueueStatusPlaying).
			Count(&playing).Error; err != nil {
			return err
		}
		if playing > 0 {
			return apperrors.Wrap(apperrors.ErrConflict, "another song is already playing")
		}

		res := tx.Model(&models.QueueItem{}).
			Where("id = ? AND status = ?", id, models.QueueStatusQueued).
			Update("status", models.QueueStatusPlaying)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperrors.Wrap(apperrors.ErrInvalidState, "queue item is no longer queued")
		}
		started.Status = models.QueueStatusPlaying
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &started, nil
}

func (db *MySQLDB) TransitionQueueItem(ctx context.Context, id uuid.UUID, from, to models.QueueStatus, playedAt *time.Time) (bool, error) {
	updates := map[string]interface{}{"status": to}
	if playedAt != nil {
		updates["played_at"] = *playedAt
	}
	res := db.WithContext(ctx).Model(&models.QueueItem{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	return res.RowsAffected > 0, res.Error
}

func (db *MySQLDB) DeleteQueueItem(ctx context.Context, id uuid.UUID, from models.QueueStatus) (bool, error) {
	res := db.WithContext(ctx).
		Where("id = ? AND status = ?", id, from).
		Delete(&models.QueueItem{})
	return res.RowsAffected > 0, res.Error
}

func (db *MySQLDB) ListQueue(ctx context.Context, sessionID uuid.UUID, statuses ...models.QueueStatus) ([]models.QueueItemDetails, error) {
	query := db.WithContext(ctx).Where("session_id = ?", sessionID)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}

	var items []models.QueueItem
	if err := query.Order("queue_position ASC, created_at ASC, id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return []models.QueueItemDetails{}, nil
	}

	songIDs := make([]uuid.UUID, 0, len(items))
	userIDs := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		songIDs = append(songIDs, item.SongID)
		userIDs = append(userIDs, item.RequestedBy)
	}

	var songs []models.Song
	if err := db.WithContext(ctx).Where("id IN ?", songIDs).Find(&songs).Error; err != nil {
		return nil, err
	}
	var users []models.User
	if err := db.WithContext(ctx).Where("id IN ?", userIDs).Find(&users).Error; err != nil {
		return nil, err
	}

	return JoinQueueDetails(items, songs, users)
}

// JoinQueueDetails assembles typed join rows, failing on any dangling
// reference instead of returning partial data.
func JoinQueueDetails(items []models.QueueItem, songs []models.Song, users []models.User) ([]models.QueueItemDetails, error) {
	songByID := make(map[uuid.UUID]models.Song, len(songs))
	for _, s := range songs {
		songByID[s.ID] = s
	}
	userByID := make(map[uuid.UUID]models.User, len(users))
	for _, u := range users {
		userByID[u.ID] = u
	}

	details := make([]models.QueueItemDetails, 0, len(items))
	for _, item := range items {
		song, ok := songByID[item.SongID]
		if !ok {
			return nil, apperrors.Wrap(apperrors.ErrInvalidRow, "queue item %s references missing song %s", item.ID, item.SongID)
		}
		requester, ok := userByID[item.RequestedBy]
		if !ok {
			return nil, apperrors.Wrap(apperrors.ErrInvalidRow, "queue item %s references missing user %s", item.ID, item.RequestedBy)
		}
		details = append(details, models.QueueItemDetails{QueueItem: item, Song: song, Requester: requester})
	}
	return details, nil
}

// Rating operations
func (db *MySQLDB) UpsertRating(ctx context.Context, rating *models.Rating) error {
	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "queue_item_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"emoji"}),
	}).Create(rating).Error
	if err != nil {
		return err
	}
	var stored models.Rating
	if err := db.WithContext(ctx).
		Where("queue_item_id = ? AND user_id = ?", rating.QueueItemID, rating.UserID).
		First(&stored).Error; err != nil {
		return err
	}
	*rating = stored
	return nil
}

func (db *MySQLDB) ListRatings(ctx context.Context, queueItemID uuid.UUID) ([]models.Rating, error) {
	var ratings []models.Rating
	err := db.WithContext(ctx).Where("queue_item_id = ?", queueItemID).Order("created_at ASC").Find(&ratings).Error
	return ratings, err
}

// Skip vote operations
func (db *MySQLDB) InsertSkipVote(ctx context.Context, vote *models.SkipVote) (bool, error) {
	res := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(vote)
	return res.RowsAffected > 0, res.Error
}

func (db *MySQLDB) DeleteSkipVote(ctx context.Context, queueItemID, userID uuid.UUID) (bool, error) {
	res := db.WithContext(ctx).
		Where("queue_item_id = ? AND user_id = ?", queueItemID, userID).
		Delete(&models.SkipVote{})
	return res.RowsAffected > 0, res.Error
}

func (db *MySQLDB) CountSkipVotes(ctx context.Context, queueItemID uuid.UUID) (int, error) {
	var n int64
	err := db.WithContext(ctx).Model(&models.SkipVote{}).Where("queue_item_id = ?", queueItemID).Count(&n).Error
	return int(n), err
}

// Challenge operations
func (db *MySQLDB) CreateChallenge(ctx context.Context, challenge *models.Challenge) error {
	return db.WithContext(ctx).Create(challenge).Error
}

func (db *MySQLDB) GetChallenge(ctx context.Context, id uuid.UUID) (*models.Challenge, error) {
	var challenge models.Challenge
	if err := db.WithContext(ctx).First(&challenge, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "challenge")
	}
	return &challenge, nil
}

func (db *MySQLDB) TransitionChallenge(ctx context.Context, id uuid.UUID, from models.ChallengeStatus, update models.ChallengeUpdate) (bool, error) {
	updates := map[string]interface{}{"status": update.Status}
	if update.RespondedAt != nil {
		updates["responded_at"] = *update.RespondedAt
	}
	if update.CompletedAt != nil {
		updates["completed_at"] = *update.CompletedAt
	}
	if update.QueueItemID != nil {
		updates["queue_item_id"] = *update.QueueItemID
	}
	res := db.WithContext(ctx).Model(&models.Challenge{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	return res.RowsAffected > 0, res.Error
}

func (db *MySQLDB) ListChallenges(ctx context.Context, sessionID, userID uuid.UUID) ([]models.Challenge, error) {
	var challenges []models.Challenge
	err := db.WithContext(ctx).
		Where("session_id = ? AND (challenger_id = ? OR challenged_id = ?)", sessionID, userID, userID).
		Order("created_at DESC").
		Find(&challenges).Error
	return challenges, err
}

// Invitation operations
func (db *MySQLDB) GenerateInvitationCode(ctx context.Context) (string, error) {
	return UniqueCode(ctx, InvitationCodeLength, func(ctx context.Context, code string) (bool, error) {
		var n int64
		err := db.WithContext(ctx).Model(&models.SessionInvitation{}).
			Where("invitation_code = ?", code).
			Count(&n).Error
		return n > 0, err
	})
}

func (db *MySQLDB) CreateInvitation(ctx context.Context, invitation *models.SessionInvitation) error {
	return db.WithContext(ctx).Create(invitation).Error
}

func (db *MySQLDB) GetInvitationByCode(ctx context.Context, code string) (*models.SessionInvitation, error) {
	var invitation models.SessionInvitation
	if err := db.WithContext(ctx).
		Where("invitation_code = ?", strings.ToUpper(code)).
		First(&invitation).Error; err != nil {
		return nil, notFound(err, "invitation")
	}
	return &invitation, nil
}

func (db *MySQLDB) ConsumeInvitationUse(ctx context.Context, id uuid.UUID) (bool, error) {
	var invitation models.SessionInvitation
	if err := db.WithContext(ctx).First(&invitation, "id = ?", id).Error; err != nil {
		return false, notFound(err, "invitation")
	}
	if invitation.UsesRemaining == nil {
		return true, nil
	}

	res := db.WithContext(ctx).Model(&models.SessionInvitation{}).
		Where("id = ? AND uses_remaining > 0", id).
		UpdateColumn("uses_remaining", gorm.Expr("uses_remaining - 1"))
	return res.RowsAffected > 0, res.Error
}
