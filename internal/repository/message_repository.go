package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"careportal/internal/domain/message"
	portal_errors "careportal/pkg/errors"
)

type PostgresMessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &PostgresMessageRepository{db: db}
}

func (r *PostgresMessageRepository) Create(ctx context.Context, m *message.Message) error {
	res := r.db.WithContext(ctx).Create(m)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return portal_errors.ErrAlreadyExists
		}
		return res.Error
	}
	return nil
}

func (r *PostgresMessageRepository) GetByID(ctx context.Context, id uuid.UUID) (message.Message, error) {
	var m message.Message
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return message.Message{}, portal_errors.ErrNotFound
		}
		return message.Message{}, err
	}
	return m, nil
}

func (r *PostgresMessageRepository) ListByConversation(ctx context.Context, patientID, doctorID uuid.UUID) ([]message.Message, error) {
	var messages []message.Message
	err := r.db.WithContext(ctx).
		Where("patient_id = ? AND doctor_id = ?", patientID, doctorID).
		Order("created_at ASC, id ASC").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// AdvanceStatus applies the monotone guard in SQL: the row is only touched
// while its current status precedes the target, so a concurrent or stale
// acknowledgment can never regress delivered/read back to sent.
func (r *PostgresMessageRepository) AdvanceStatus(ctx context.Context, id uuid.UUID, next message.DeliveryStatus) error {
	prior, err := statusesBefore(next)
	if err != nil {
		return err
	}

	res := r.db.WithContext(ctx).
		Model(&message.Message{}).
		Where("id = ? AND status IN ?", id, prior).
		Update("status", next)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Either the message does not exist or it is already at/past the
		// target status. The latter is a no-op, not an error.
		var count int64
		if err := r.db.WithContext(ctx).Model(&message.Message{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return portal_errors.ErrNotFound
		}
	}
	return nil
}

func (r *PostgresMessageRepository) CountByConversation(ctx context.Context) ([]ConversationCount, error) {
	var counts []ConversationCount
	err := r.db.WithContext(ctx).
		Model(&message.Message{}).
		Select("patient_id, doctor_id, COUNT(*) AS messages").
		Group("patient_id, doctor_id").
		Order("messages DESC").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	return counts, nil
}

func statusesBefore(next message.DeliveryStatus) ([]message.DeliveryStatus, error) {
	switch next {
	case message.StatusDelivered:
		return []message.DeliveryStatus{message.StatusSent}, nil
	case message.StatusRead:
		return []message.DeliveryStatus{message.StatusSent, message.StatusDelivered}, nil
	}
	return nil, portal_errors.ErrInvalidTransition
}
