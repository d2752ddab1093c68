package message

import (
	"time"

	"github.com/google/uuid"
)

// DeliveryStatus is the delivery state of a message. Transitions are
// one-directional: sent -> delivered -> read.
type DeliveryStatus string

const (
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
)

func (s DeliveryStatus) rank() int {
	switch s {
	case StatusSent:
		return 0
	case StatusDelivered:
		return 1
	case StatusRead:
		return 2
	}
	return -1
}

// Valid reports whether s is a known delivery status.
func (s DeliveryStatus) Valid() bool {
	return s.rank() >= 0
}

// CanAdvanceTo reports whether moving from s to next is a forward transition.
func (s DeliveryStatus) CanAdvanceTo(next DeliveryStatus) bool {
	return s.Valid() && next.Valid() && next.rank() > s.rank()
}

// Later returns the more advanced of the two statuses. Used by the merge
// so a stale snapshot can never regress a locally observed status.
func Later(a, b DeliveryStatus) DeliveryStatus {
	if b.rank() > a.rank() {
		return b
	}
	return a
}

// Message represents the messages table. The authoritative copy lives in
// the store; everything a view holds is a disposable projection. All fields
// except Status are immutable once persisted.
type Message struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	PatientID uuid.UUID      `gorm:"type:uuid;index:idx_messages_conversation,priority:1;not null" json:"patient_id"`
	DoctorID  uuid.UUID      `gorm:"type:uuid;index:idx_messages_conversation,priority:2;not null" json:"doctor_id"`
	SenderID  uuid.UUID      `gorm:"type:uuid;not null" json:"sender_id"`
	Body      string         `gorm:"type:text;not null" json:"body"`
	Status    DeliveryStatus `gorm:"type:varchar(16);not null;default:'sent'" json:"status"`
	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
}

func (Message) TableName() string {
	return "messages"
}

// Less defines the canonical conversation order: (created_at, id), with the
// id bytes breaking timestamp ties. This order equals insertion order and is
// the only ordering the system guarantees.
func Less(a, b Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID.String() < b.ID.String()
}
