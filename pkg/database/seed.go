package database

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"careportal/internal/domain/care"
)

// SeedResult summarizes what a development seed created.
type SeedResult struct {
	Admin   care.User
	Doctor  care.User
	Patient care.User
}

// SeedDevelopment creates an admin, one doctor, one assigned patient.
// Existing rows (matched by email) are left untouched.
func SeedDevelopment(db *gorm.DB) (*SeedResult, error) {
	admin, err := ensureUser(db, "admin@careportal.local", "Admin@123!", "Portal Admin", care.RoleAdmin)
	if err != nil {
		return nil, err
	}
	doctor, err := ensureUser(db, "doctor@careportal.local", "Doctor@123!", "Dr. Amal Haddad", care.RoleDoctor)
	if err != nil {
		return nil, err
	}
	patient, err := ensureUser(db, "patient@careportal.local", "Patient@123!", "Yousef B.", care.RolePatient)
	if err != nil {
		return nil, err
	}

	assignment := care.Assignment{
		PatientID: patient.ID,
		DoctorID:  doctor.ID,
		CreatedAt: time.Now().UTC(),
	}
	err = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "patient_id"}},
		DoNothing: true,
	}).Create(&assignment).Error
	if err != nil {
		return nil, err
	}

	return &SeedResult{Admin: admin, Doctor: doctor, Patient: patient}, nil
}

func ensureUser(db *gorm.DB, email, password, displayName string, role care.Role) (care.User, error) {
	var existing care.User
	err := db.Where("email = ?", email).First(&existing).Error
	if err == nil {
		return existing, nil
	}
	if err != gorm.ErrRecordNotFound {
		return care.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return care.User{}, err
	}
	u := care.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: string(hash),
		DisplayName:  displayName,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}
	if err := db.Create(&u).Error; err != nil {
		return care.User{}, err
	}
	return u, nil
}
