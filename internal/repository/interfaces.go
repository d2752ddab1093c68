package repository

import (
	"context"

	"github.com/google/uuid"

	"careportal/internal/domain/care"
	"careportal/internal/domain/message"
)

// ConversationCount is a per-conversation message tally for the admin view.
type ConversationCount struct {
	PatientID uuid.UUID `json:"patient_id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	Messages  int64     `json:"messages"`
}

type MessageRepository interface {
	Create(ctx context.Context, m *message.Message) error
	GetByID(ctx context.Context, id uuid.UUID) (message.Message, error)

	// ListByConversation returns the full authoritative snapshot for the
	// pair in canonical (created_at, id) order.
	ListByConversation(ctx context.Context, patientID, doctorID uuid.UUID) ([]message.Message, error)

	// AdvanceStatus moves a message's delivery status forward. A regression
	// is a silent no-op; an unknown message id is ErrNotFound.
	AdvanceStatus(ctx context.Context, id uuid.UUID, next message.DeliveryStatus) error

	CountByConversation(ctx context.Context) ([]ConversationCount, error)
}

type UserRepository interface {
	Create(ctx context.Context, u *care.User) error
	GetByID(ctx context.Context, id uuid.UUID) (care.User, error)
	GetByEmail(ctx context.Context, email string) (care.User, error)
}

type AssignmentRepository interface {
	// Assign sets or replaces the patient's treating doctor.
	Assign(ctx context.Context, a *care.Assignment) error

	// GetByPatient returns ErrNotFound when the patient has no doctor.
	GetByPatient(ctx context.Context, patientID uuid.UUID) (care.Assignment, error)

	ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]care.Assignment, error)
}
