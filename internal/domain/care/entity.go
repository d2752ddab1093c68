package care

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies which portal a user belongs to.
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	return r == RolePatient || r == RoleDoctor || r == RoleAdmin
}

// User represents the users table.
type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	DisplayName  string    `gorm:"not null" json:"display_name"`
	Role         Role      `gorm:"type:varchar(16);not null" json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

func (User) TableName() string {
	return "users"
}

// Assignment links a patient to their treating doctor. A patient has at
// most one doctor; the pair is the chat conversation key.
type Assignment struct {
	PatientID uuid.UUID `gorm:"type:uuid;primaryKey" json:"patient_id"`
	DoctorID  uuid.UUID `gorm:"type:uuid;index;not null" json:"doctor_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (Assignment) TableName() string {
	return "assignments"
}

// Covers reports whether the assignment pairs exactly these two parties.
func (a Assignment) Covers(patientID, doctorID uuid.UUID) bool {
	return a.PatientID == patientID && a.DoctorID == doctorID
}

// Party reports whether userID is one of the two conversation parties.
func (a Assignment) Party(userID uuid.UUID) bool {
	return a.PatientID == userID || a.DoctorID == userID
}
