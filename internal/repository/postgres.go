package repository

import (
	"context"
	"errors"
	"strconv"

	"github.com/immxrtalbeast/meetchat/internal/domain"
	"github.com/immxrtalbeast/meetchat/internal/repository/model"
	"gorm.io/gorm"
)

var (
	ErrMeetingNotFound = errors.New("meeting not found")
	ErrUserNotFound    = errors.New("user not found")
)

type PostgresMessageStore struct {
	db *gorm.DB
}

func NewPostgresMessageStore(db *gorm.DB) *PostgresMessageStore {
	return &PostgresMessageStore{db: db}
}

func (r *PostgresMessageStore) Append(ctx context.Context, msg *domain.ChatMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg == nil {
		return errors.New("message is nil")
	}

	return r.db.WithContext(ctx).Create(toModelMessage(msg)).Error
}

func (r *PostgresMessageStore) ListByMeeting(ctx context.Context, meetingID string, limit int) ([]*domain.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	query := r.db.WithContext(ctx).
		Where("meeting_id = ?", meetingID).
		Order("timestamp asc, id asc")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []model.ChatMessage
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	messages := make([]*domain.ChatMessage, 0, len(rows))
	for i := range rows {
		messages = append(messages, toDomainMessage(&rows[i]))
	}
	return messages, nil
}

type PostgresMeetingRepository struct {
	db *gorm.DB
}

func NewPostgresMeetingRepository(db *gorm.DB) *PostgresMeetingRepository {
	return &PostgresMeetingRepository{db: db}
}

func (r *PostgresMeetingRepository) Exists(ctx context.Context, meetingID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Meeting{}).
		Where("id = ?", meetingID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

type PostgresUserRepository struct {
	db *gorm.DB
}

func NewPostgresUserRepository(db *gorm.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

func (r *PostgresUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	numID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, ErrUserNotFound
	}

	var row model.User
	if err := r.db.WithContext(ctx).First(&row, "id = ?", numID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	user := &domain.User{
		ID:        strconv.FormatInt(row.ID, 10),
		Name:      row.Name,
		CreatedAt: row.CreatedAt,
	}
	if row.Email != nil {
		user.Email = *row.Email
	}
	return user, nil
}

func toModelMessage(msg *domain.ChatMessage) *model.ChatMessage {
	row := &model.ChatMessage{
		ID:        msg.ID,
		MeetingID: msg.MeetingID,
		UserName:  msg.UserName,
		Content:   msg.Content,
		Timestamp: msg.Timestamp,
	}
	if domain.IsGuestID(msg.UserID) {
		guestID := msg.UserID
		row.GuestUserID = &guestID
	} else if numID, err := strconv.ParseInt(msg.UserID, 10, 64); err == nil {
		row.UserID = &numID
	}
	return row
}

func toDomainMessage(row *model.ChatMessage) *domain.ChatMessage {
	msg := &domain.ChatMessage{
		ID:        row.ID,
		MeetingID: row.MeetingID,
		UserName:  row.UserName,
		Content:   row.Content,
		Timestamp: row.Timestamp,
	}
	switch {
	case row.GuestUserID != nil:
		msg.UserID = *row.GuestUserID
	case row.UserID != nil:
		msg.UserID = strconv.FormatInt(*row.UserID, 10)
	}
	return msg
}
