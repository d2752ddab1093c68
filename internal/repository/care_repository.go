package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"careportal/internal/domain/care"
	portal_errors "careportal/pkg/errors"
)

type PostgresUserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &PostgresUserRepository{db: db}
}

func (r *PostgresUserRepository) Create(ctx context.Context, u *care.User) error {
	res := r.db.WithContext(ctx).Create(u)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return portal_errors.ErrAlreadyExists
		}
		return res.Error
	}
	return nil
}

func (r *PostgresUserRepository) GetByID(ctx context.Context, id uuid.UUID) (care.User, error) {
	var u care.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return care.User{}, portal_errors.ErrNotFound
		}
		return care.User{}, err
	}
	return u, nil
}

func (r *PostgresUserRepository) GetByEmail(ctx context.Context, email string) (care.User, error) {
	var u care.User
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return care.User{}, portal_errors.ErrNotFound
		}
		return care.User{}, err
	}
	return u, nil
}

type PostgresAssignmentRepository struct {
	db *gorm.DB
}

func NewAssignmentRepository(db *gorm.DB) AssignmentRepository {
	return &PostgresAssignmentRepository{db: db}
}

// Assign upserts on patient_id: reassigning a patient replaces the old
// doctor, keeping the one-doctor-per-patient invariant in the schema.
func (r *PostgresAssignmentRepository) Assign(ctx context.Context, a *care.Assignment) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "patient_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"doctor_id"}),
		}).
		Create(a).Error
}

func (r *PostgresAssignmentRepository) GetByPatient(ctx context.Context, patientID uuid.UUID) (care.Assignment, error) {
	var a care.Assignment
	err := r.db.WithContext(ctx).Where("patient_id = ?", patientID).First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return care.Assignment{}, portal_errors.ErrNotFound
		}
		return care.Assignment{}, err
	}
	return a, nil
}

func (r *PostgresAssignmentRepository) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]care.Assignment, error) {
	var assignments []care.Assignment
	err := r.db.WithContext(ctx).
		Where("doctor_id = ?", doctorID).
		Order("created_at ASC").
		Find(&assignments).Error
	if err != nil {
		return nil, err
	}
	return assignments, nil
}
