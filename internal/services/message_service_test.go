package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"careportal/internal/domain/care"
	"careportal/internal/domain/message"
	"careportal/internal/events"
	"careportal/internal/repository"
	portal_errors "careportal/pkg/errors"
	"careportal/pkg/logger"
)

type memMessageRepo struct {
	mu   sync.Mutex
	msgs map[uuid.UUID]*message.Message
}

func newMemMessageRepo() *memMessageRepo {
	return &memMessageRepo{msgs: map[uuid.UUID]*message.Message{}}
}

func (r *memMessageRepo) Create(ctx context.Context, m *message.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.msgs[m.ID]; ok {
		return portal_errors.ErrAlreadyExists
	}
	cp := *m
	r.msgs[m.ID] = &cp
	return nil
}

func (r *memMessageRepo) GetByID(ctx context.Context, id uuid.UUID) (message.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.msgs[id]
	if !ok {
		return message.Message{}, portal_errors.ErrNotFound
	}
	return *m, nil
}

func (r *memMessageRepo) ListByConversation(ctx context.Context, patientID, doctorID uuid.UUID) ([]message.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []message.Message
	for _, m := range r.msgs {
		if m.PatientID == patientID && m.DoctorID == doctorID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (r *memMessageRepo) AdvanceStatus(ctx context.Context, id uuid.UUID, next message.DeliveryStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.msgs[id]
	if !ok {
		return portal_errors.ErrNotFound
	}
	if !next.Valid() || next == message.StatusSent {
		return portal_errors.ErrInvalidTransition
	}
	if m.Status.CanAdvanceTo(next) {
		m.Status = next
	}
	return nil
}

func (r *memMessageRepo) CountByConversation(ctx context.Context) ([]repository.ConversationCount, error) {
	return nil, nil
}

type memAssignmentRepo struct {
	assignments map[uuid.UUID]care.Assignment
}

func (r *memAssignmentRepo) Assign(ctx context.Context, a *care.Assignment) error {
	r.assignments[a.PatientID] = *a
	return nil
}

func (r *memAssignmentRepo) GetByPatient(ctx context.Context, patientID uuid.UUID) (care.Assignment, error) {
	a, ok := r.assignments[patientID]
	if !ok {
		return care.Assignment{}, portal_errors.ErrNotFound
	}
	return a, nil
}

func (r *memAssignmentRepo) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]care.Assignment, error) {
	var out []care.Assignment
	for _, a := range r.assignments {
		if a.DoctorID == doctorID {
			out = append(out, a)
		}
	}
	return out, nil
}

type memUserRepo struct {
	users map[uuid.UUID]care.User
}

func (r *memUserRepo) Create(ctx context.Context, u *care.User) error {
	r.users[u.ID] = *u
	return nil
}

func (r *memUserRepo) GetByID(ctx context.Context, id uuid.UUID) (care.User, error) {
	u, ok := r.users[id]
	if !ok {
		return care.User{}, portal_errors.ErrNotFound
	}
	return u, nil
}

func (r *memUserRepo) GetByEmail(ctx context.Context, email string) (care.User, error) {
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return care.User{}, portal_errors.ErrNotFound
}

type capturePublisher struct {
	mu        sync.Mutex
	published []events.Envelope
	err       error
}

func (p *capturePublisher) Publish(ctx context.Context, env events.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, env)
	return nil
}

func (p *capturePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

type serviceFixture struct {
	svc       *MessageService
	repo      *memMessageRepo
	publisher *capturePublisher
	patient   care.User
	doctor    care.User
	outsider  care.User
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	users := &memUserRepo{users: map[uuid.UUID]care.User{}}
	assignments := &memAssignmentRepo{assignments: map[uuid.UUID]care.Assignment{}}

	patient := care.User{ID: uuid.New(), Email: "p@x", Role: care.RolePatient}
	doctor := care.User{ID: uuid.New(), Email: "d@x", Role: care.RoleDoctor}
	outsider := care.User{ID: uuid.New(), Email: "o@x", Role: care.RoleDoctor}
	for _, u := range []care.User{patient, doctor, outsider} {
		require.NoError(t, users.Create(context.Background(), &u))
	}
	assignments.assignments[patient.ID] = care.Assignment{
		PatientID: patient.ID,
		DoctorID:  doctor.ID,
		CreatedAt: time.Now().UTC(),
	}

	repo := newMemMessageRepo()
	publisher := &capturePublisher{}
	careSvc := NewCareService(users, assignments)
	svc := NewMessageService(repo, careSvc, publisher, logger.NewNop())

	return &serviceFixture{
		svc:       svc,
		repo:      repo,
		publisher: publisher,
		patient:   patient,
		doctor:    doctor,
		outsider:  outsider,
	}
}

func TestSendPersistsAndPublishes(t *testing.T) {
	f := newServiceFixture(t)

	m, err := f.svc.Send(context.Background(), f.patient.ID, f.doctor.ID, f.patient.ID, "bonjour docteur")
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, m.ID)
	assert.Equal(t, message.StatusSent, m.Status)
	assert.Equal(t, "bonjour docteur", m.Body)

	stored, err := f.repo.GetByID(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.ID, stored.ID)

	require.Equal(t, 1, f.publisher.count())
	assert.Equal(t, events.TypeMessageCreated, f.publisher.published[0].Type)
	assert.Equal(t, m.ID, f.publisher.published[0].MessageID)
}

func TestSendRejectsEmptyBody(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.Send(context.Background(), f.patient.ID, f.doctor.ID, f.patient.ID, "  \t ")
	assert.ErrorIs(t, err, portal_errors.ErrValidation)
	assert.Zero(t, f.publisher.count())
}

func TestSendRequiresAssignedPair(t *testing.T) {
	f := newServiceFixture(t)

	// The patient is assigned to f.doctor, not to the outsider: the pair
	// {patient, outsider} is not a conversation.
	_, err := f.svc.Send(context.Background(), f.patient.ID, f.outsider.ID, f.patient.ID, "hello?")
	assert.ErrorIs(t, err, portal_errors.ErrNotAssigned)

	// An unknown patient has no assignment at all.
	_, err = f.svc.Send(context.Background(), uuid.New(), f.doctor.ID, f.doctor.ID, "hello?")
	assert.ErrorIs(t, err, portal_errors.ErrNotAssigned)
}

func TestSendRejectsThirdPartySender(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.Send(context.Background(), f.patient.ID, f.doctor.ID, f.outsider.ID, "let me in")
	assert.ErrorIs(t, err, portal_errors.ErrForbidden)
}

func TestSendSucceedsWhenPublishFails(t *testing.T) {
	f := newServiceFixture(t)
	f.publisher.err = errors.New("redis gone")

	// Persistence is the commit point; a lost publish is a designed-for
	// condition covered by subscriber polling.
	m, err := f.svc.Send(context.Background(), f.patient.ID, f.doctor.ID, f.doctor.ID, "still delivered eventually")
	require.NoError(t, err)

	_, err = f.repo.GetByID(context.Background(), m.ID)
	assert.NoError(t, err)
}

func TestAckAdvancesStatusMonotonically(t *testing.T) {
	f := newServiceFixture(t)

	m, err := f.svc.Send(context.Background(), f.patient.ID, f.doctor.ID, f.patient.ID, "read me")
	require.NoError(t, err)

	require.NoError(t, f.svc.MarkDelivered(context.Background(), m.ID, f.doctor.ID))
	require.NoError(t, f.svc.MarkRead(context.Background(), m.ID, f.doctor.ID))

	stored, err := f.repo.GetByID(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, message.StatusRead, stored.Status)

	// A stale delivered ack after read is a silent no-op.
	require.NoError(t, f.svc.MarkDelivered(context.Background(), m.ID, f.doctor.ID))
	stored, err = f.repo.GetByID(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, message.StatusRead, stored.Status)
}

func TestAckRejectedForSenderAndOutsiders(t *testing.T) {
	f := newServiceFixture(t)

	m, err := f.svc.Send(context.Background(), f.patient.ID, f.doctor.ID, f.patient.ID, "mine")
	require.NoError(t, err)

	// The author cannot acknowledge their own message.
	assert.ErrorIs(t, f.svc.MarkDelivered(context.Background(), m.ID, f.patient.ID), portal_errors.ErrForbidden)
	// Neither can a third party.
	assert.ErrorIs(t, f.svc.MarkRead(context.Background(), m.ID, f.outsider.ID), portal_errors.ErrForbidden)
}

func TestListConversationRequiresMembership(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.Send(context.Background(), f.patient.ID, f.doctor.ID, f.patient.ID, "private")
	require.NoError(t, err)

	msgs, err := f.svc.ListConversation(context.Background(), f.patient.ID, f.doctor.ID, f.doctor.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	_, err = f.svc.ListConversation(context.Background(), f.patient.ID, f.doctor.ID, f.outsider.ID)
	assert.ErrorIs(t, err, portal_errors.ErrForbidden)
}
