package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"careportal/internal/domain/care"
	"careportal/internal/repository"
	portal_errors "careportal/pkg/errors"
)

// CareService answers relationship questions: who treats whom. The chat
// core gates every conversation operation on these answers.
type CareService struct {
	users       repository.UserRepository
	assignments repository.AssignmentRepository
}

func NewCareService(users repository.UserRepository, assignments repository.AssignmentRepository) *CareService {
	return &CareService{users: users, assignments: assignments}
}

// AssignDoctor links a patient to a doctor, replacing any prior assignment.
func (s *CareService) AssignDoctor(ctx context.Context, patientID, doctorID uuid.UUID) (care.Assignment, error) {
	patient, err := s.users.GetByID(ctx, patientID)
	if err != nil {
		return care.Assignment{}, err
	}
	if patient.Role != care.RolePatient {
		return care.Assignment{}, fmt.Errorf("%w: %s is not a patient", portal_errors.ErrValidation, patientID)
	}

	doctor, err := s.users.GetByID(ctx, doctorID)
	if err != nil {
		return care.Assignment{}, err
	}
	if doctor.Role != care.RoleDoctor {
		return care.Assignment{}, fmt.Errorf("%w: %s is not a doctor", portal_errors.ErrValidation, doctorID)
	}

	a := &care.Assignment{
		PatientID: patientID,
		DoctorID:  doctorID,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.assignments.Assign(ctx, a); err != nil {
		return care.Assignment{}, err
	}
	return *a, nil
}

// DoctorOf returns the patient's treating doctor, or ErrNotAssigned. The
// unassigned case is a terminal precondition for chat, not a transient one:
// callers must surface the assign-a-doctor flow instead of retrying.
func (s *CareService) DoctorOf(ctx context.Context, patientID uuid.UUID) (care.User, error) {
	a, err := s.assignments.GetByPatient(ctx, patientID)
	if err != nil {
		if errors.Is(err, portal_errors.ErrNotFound) {
			return care.User{}, portal_errors.ErrNotAssigned
		}
		return care.User{}, err
	}
	return s.users.GetByID(ctx, a.DoctorID)
}

// PatientsOf lists the patients assigned to a doctor.
func (s *CareService) PatientsOf(ctx context.Context, doctorID uuid.UUID) ([]care.User, error) {
	assignments, err := s.assignments.ListByDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	patients := make([]care.User, 0, len(assignments))
	for _, a := range assignments {
		p, err := s.users.GetByID(ctx, a.PatientID)
		if err != nil {
			return nil, err
		}
		patients = append(patients, p)
	}
	return patients, nil
}

// Conversation validates that {patientID, doctorID} is an existing mutually
// assigned pair and that userID is one of its parties.
func (s *CareService) Conversation(ctx context.Context, patientID, doctorID, userID uuid.UUID) (care.Assignment, error) {
	a, err := s.assignments.GetByPatient(ctx, patientID)
	if err != nil {
		if errors.Is(err, portal_errors.ErrNotFound) {
			return care.Assignment{}, portal_errors.ErrNotAssigned
		}
		return care.Assignment{}, err
	}
	if !a.Covers(patientID, doctorID) {
		return care.Assignment{}, portal_errors.ErrNotAssigned
	}
	if !a.Party(userID) {
		return care.Assignment{}, portal_errors.ErrForbidden
	}
	return a, nil
}
