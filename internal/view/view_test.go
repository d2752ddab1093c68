package view

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"careportal/internal/domain/message"
	"careportal/internal/events"
	portal_errors "careportal/pkg/errors"
	"careportal/pkg/metrics"
)

// fakeStore is an in-memory message store with injectable failures and a
// gate to hold append responses in flight.
type fakeStore struct {
	mu          sync.Mutex
	msgs        []message.Message
	listErr     error
	appendErr   error
	appendGate  chan struct{}
	appendFixed *message.Message // response to return instead of creating
	listCalls   int
	appendCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{}
}

func (s *fakeStore) ListConversation(ctx context.Context, patientID, doctorID uuid.UUID) ([]message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]message.Message, len(s.msgs))
	copy(out, s.msgs)
	return out, nil
}

func (s *fakeStore) Append(ctx context.Context, patientID, doctorID, senderID uuid.UUID, body string) (message.Message, error) {
	s.mu.Lock()
	s.appendCalls++
	gate := s.appendGate
	err := s.appendErr
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return message.Message{}, ctx.Err()
		}
	}
	if err != nil {
		return message.Message{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendFixed != nil {
		return *s.appendFixed, nil
	}
	m := message.Message{
		ID:        uuid.New(),
		PatientID: patientID,
		DoctorID:  doctorID,
		SenderID:  senderID,
		Body:      body,
		Status:    message.StatusSent,
		CreatedAt: time.Now().UTC(),
	}
	s.msgs = append(s.msgs, m)
	return m, nil
}

func (s *fakeStore) put(m message.Message) {
	s.mu.Lock()
	s.msgs = append(s.msgs, m)
	s.mu.Unlock()
}

func (s *fakeStore) setListErr(err error) {
	s.mu.Lock()
	s.listErr = err
	s.mu.Unlock()
}

func (s *fakeStore) appends() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendCalls
}

type fakeSub struct {
	closed chan struct{}
	once   sync.Once
}

func (f *fakeSub) Close() { f.once.Do(func() { close(f.closed) }) }

// fakeChannel hands delivered notifications straight to the subscriber.
type fakeChannel struct {
	mu      sync.Mutex
	handler func(events.Envelope)
	sub     *fakeSub
}

func (c *fakeChannel) Subscribe(ctx context.Context, patientID, doctorID uuid.UUID, handler func(events.Envelope)) (events.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
	c.sub = &fakeSub{closed: make(chan struct{})}
	return c.sub, nil
}

func (c *fakeChannel) Notify(env events.Envelope) {
	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()
	if handler != nil {
		handler(env)
	}
}

var (
	patientID = uuid.MustParse("10000000-0000-0000-0000-000000000001")
	doctorID  = uuid.MustParse("20000000-0000-0000-0000-000000000002")
)

func storedMessage(sender uuid.UUID, body string, at time.Time) message.Message {
	return message.Message{
		ID:        uuid.New(),
		PatientID: patientID,
		DoctorID:  doctorID,
		SenderID:  sender,
		Body:      body,
		Status:    message.StatusSent,
		CreatedAt: at,
	}
}

func openView(t *testing.T, cfg Config) *View {
	t.Helper()
	v := New(cfg)
	require.NoError(t, v.Open(context.Background()))
	t.Cleanup(v.Close)
	return v
}

func confirmedBodies(v *View) []string {
	var out []string
	for _, e := range v.Entries() {
		if e.State == StateConfirmed {
			out = append(out, e.Message.Body)
		}
	}
	return out
}

func TestOpenSeedsFromAuthoritativeSnapshot(t *testing.T) {
	store := newFakeStore()
	now := time.Now().UTC()
	store.put(storedMessage(doctorID, "first", now))
	store.put(storedMessage(patientID, "second", now.Add(time.Second)))

	v := openView(t, Config{
		PatientID:    patientID,
		DoctorID:     doctorID,
		UserID:       patientID,
		Store:        store,
		PollInterval: time.Hour,
	})

	assert.Equal(t, []string{"first", "second"}, confirmedBodies(v))
}

func TestNotificationTriggersRefetch(t *testing.T) {
	store := newFakeStore()
	channel := &fakeChannel{}

	v := openView(t, Config{
		PatientID:    patientID,
		DoctorID:     doctorID,
		UserID:       patientID,
		Store:        store,
		Channel:      channel,
		PollInterval: time.Hour, // only the notification path can drive this test
	})
	require.Empty(t, v.Entries())

	store.put(storedMessage(doctorID, "hello from doctor", time.Now().UTC()))
	channel.Notify(events.Envelope{Type: events.TypeMessageCreated, PatientID: patientID, DoctorID: doctorID})

	assert.Eventually(t, func() bool {
		bodies := confirmedBodies(v)
		return len(bodies) == 1 && bodies[0] == "hello from doctor"
	}, time.Second, 5*time.Millisecond)
}

func TestDuplicateNotificationsAbsorbed(t *testing.T) {
	store := newFakeStore()
	channel := &fakeChannel{}
	store.put(storedMessage(doctorID, "once", time.Now().UTC()))

	v := openView(t, Config{
		PatientID:    patientID,
		DoctorID:     doctorID,
		UserID:       patientID,
		Store:        store,
		Channel:      channel,
		PollInterval: time.Hour,
	})

	env := events.Envelope{Type: events.TypeMessageCreated, PatientID: patientID, DoctorID: doctorID}
	for i := 0; i < 5; i++ {
		channel.Notify(env)
	}

	// Never more than one entry no matter how often the channel repeats.
	assert.Eventually(t, func() bool {
		return len(v.Entries()) == 1
	}, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, v.Entries(), 1)
}

func TestPollBackstopConvergesWithoutNotifications(t *testing.T) {
	store := newFakeStore()

	// No channel at all: every notification is "lost". The poller alone
	// must converge the view.
	v := openView(t, Config{
		PatientID:    patientID,
		DoctorID:     doctorID,
		UserID:       patientID,
		Store:        store,
		PollInterval: 10 * time.Millisecond,
	})
	require.Empty(t, v.Entries())

	store.put(storedMessage(doctorID, "missed push", time.Now().UTC()))

	assert.Eventually(t, func() bool {
		bodies := confirmedBodies(v)
		return len(bodies) == 1 && bodies[0] == "missed push"
	}, time.Second, 5*time.Millisecond)
}

func TestOptimisticSendRoundTrip(t *testing.T) {
	store := newFakeStore()
	gate := make(chan struct{})
	store.appendGate = gate

	v := openView(t, Config{
		PatientID:    patientID,
		DoctorID:     doctorID,
		UserID:       patientID,
		Store:        store,
		PollInterval: time.Hour,
	})

	_, err := v.Send("Hello")
	require.NoError(t, err)

	// Pending entry is visible synchronously, before the store responds.
	entries := v.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, StatePending, entries[0].State)
	assert.Equal(t, "Hello", entries[0].Message.Body)

	close(gate)

	// Once the append resolves, exactly one confirmed entry remains: the
	// optimistic one folds into the authoritative message, never a pair.
	assert.Eventually(t, func() bool {
		entries := v.Entries()
		return len(entries) == 1 &&
			entries[0].State == StateConfirmed &&
			entries[0].Message.ID != uuid.Nil &&
			entries[0].Message.Body == "Hello"
	}, time.Second, 5*time.Millisecond)
}

func TestSnapshotArrivingBeforeAppendResponseDoesNotDuplicate(t *testing.T) {
	store := newFakeStore()
	channel := &fakeChannel{}
	gate := make(chan struct{})
	store.appendGate = gate

	v := openView(t, Config{
		PatientID:    patientID,
		DoctorID:     doctorID,
		UserID:       patientID,
		Store:        store,
		Channel:      channel,
		PollInterval: time.Hour,
	})

	_, err := v.Send("crossing")
	require.NoError(t, err)

	// The message reaches the store and a notification-driven snapshot
	// lands while the append response is still in flight.
	confirmed := storedMessage(patientID, "crossing", time.Now().UTC())
	store.put(confirmed)
	store.mu.Lock()
	store.appendFixed = &confirmed
	store.mu.Unlock()
	channel.Notify(events.Envelope{Type: events.TypeMessageCreated, PatientID: patientID, DoctorID: doctorID})

	assert.Eventually(t, func() bool {
		entries := v.Entries()
		return len(entries) == 1 && entries[0].State == StateConfirmed
	}, time.Second, 5*time.Millisecond)

	close(gate)
	time.Sleep(20 * time.Millisecond)

	// The late append response must not resurrect the optimistic entry.
	entries := v.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, StateConfirmed, entries[0].State)
	assert.Equal(t, confirmed.ID, entries[0].Message.ID)
}

func TestRepeatedTextDoesNotFoldPendingEntry(t *testing.T) {
	store := newFakeStore()
	channel := &fakeChannel{}
	gate := make(chan struct{})
	store.appendGate = gate
	store.appendErr = errors.New("connection reset")

	v := openView(t, Config{
		PatientID:    patientID,
		DoctorID:     doctorID,
		UserID:       patientID,
		Store:        store,
		Channel:      channel,
		PollInterval: time.Hour,
	})

	_, err := v.Send("ok")
	require.NoError(t, err)

	// An older message from the same user with identical text surfaces in
	// a snapshot while the append is still in flight. It is not the
	// counterpart of this send and must not absorb the pending entry.
	store.put(storedMessage(patientID, "ok", time.Now().UTC().Add(-time.Hour)))
	channel.Notify(events.Envelope{Type: events.TypeMessageCreated, PatientID: patientID, DoctorID: doctorID})

	assert.Eventually(t, func() bool {
		entries := v.Entries()
		return len(entries) == 2 &&
			entries[0].State == StateConfirmed &&
			entries[1].State == StatePending
	}, time.Second, 5*time.Millisecond)

	close(gate)

	// The append fails; the entry turns Failed and the draft is
	// recoverable, with the old confirmed message untouched.
	assert.Eventually(t, func() bool {
		entries := v.Entries()
		return len(entries) == 2 && entries[1].State == StateFailed
	}, time.Second, 5*time.Millisecond)

	require.Equal(t, []string{"ok"}, v.RecoverFailed())
	entries := v.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, StateConfirmed, entries[0].State)
}

func TestFailedSendPreservesDraft(t *testing.T) {
	store := newFakeStore()
	store.appendErr = errors.New("connection reset")

	v := openView(t, Config{
		PatientID:    patientID,
		DoctorID:     doctorID,
		UserID:       patientID,
		Store:        store,
		PollInterval: time.Hour,
	})

	_, err := v.Send("do not lose me")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		entries := v.Entries()
		return len(entries) == 1 && entries[0].State == StateFailed
	}, time.Second, 5*time.Millisecond)

	drafts := v.RecoverFailed()
	require.Equal(t, []string{"do not lose me"}, drafts)
	assert.Empty(t, v.Entries())
}

func TestSendWithoutAssignedDoctorShortCircuits(t *testing.T) {
	store := newFakeStore()
	v := New(Config{
		PatientID:    patientID,
		DoctorID:     uuid.Nil, // no assigned doctor
		UserID:       patientID,
		Store:        store,
		PollInterval: time.Hour,
	})

	assert.ErrorIs(t, v.Open(context.Background()), portal_errors.ErrNotAssigned)

	_, err := v.Send("anyone there?")
	assert.ErrorIs(t, err, portal_errors.ErrNotAssigned)
	assert.Zero(t, store.appends(), "store must never be called without a relationship")
}

func TestEmptyBodyRejectedLocally(t *testing.T) {
	store := newFakeStore()
	v := openView(t, Config{
		PatientID:    patientID,
		DoctorID:     doctorID,
		UserID:       patientID,
		Store:        store,
		PollInterval: time.Hour,
	})

	_, err := v.Send("   \n\t ")
	assert.ErrorIs(t, err, portal_errors.ErrValidation)
	assert.Zero(t, store.appends())
	assert.Empty(t, v.Entries())
}

func TestCloseStopsLateArrivals(t *testing.T) {
	store := newFakeStore()
	channel := &fakeChannel{}
	gate := make(chan struct{})
	store.appendGate = gate

	v := openView(t, Config{
		PatientID:    patientID,
		DoctorID:     doctorID,
		UserID:       patientID,
		Store:        store,
		Channel:      channel,
		PollInterval: time.Hour,
	})

	_, err := v.Send("in flight at close")
	require.NoError(t, err)
	before := v.Entries()

	v.Close()

	// Late notification for the old conversation and a late append
	// response must not mutate the dead view.
	store.put(storedMessage(doctorID, "after close", time.Now().UTC()))
	channel.Notify(events.Envelope{Type: events.TypeMessageCreated, PatientID: patientID, DoctorID: doctorID})
	close(gate)
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, before, v.Entries())

	select {
	case <-channel.sub.closed:
	default:
		t.Fatal("delivery channel subscription not released on close")
	}
}

func TestStaleIndicatorAfterConsecutiveFailures(t *testing.T) {
	store := newFakeStore()
	store.put(storedMessage(doctorID, "seed", time.Now().UTC()))

	v := openView(t, Config{
		PatientID:    patientID,
		DoctorID:     doctorID,
		UserID:       patientID,
		Store:        store,
		PollInterval: 5 * time.Millisecond,
		StaleAfter:   3,
	})
	require.False(t, v.Stale())

	store.setListErr(errors.New("network down"))
	assert.Eventually(t, v.Stale, time.Second, 5*time.Millisecond)

	// Content survives staleness; the view degrades, it does not wipe.
	assert.Equal(t, []string{"seed"}, confirmedBodies(v))

	store.setListErr(nil)
	assert.Eventually(t, func() bool { return !v.Stale() }, time.Second, 5*time.Millisecond)
}

func TestOpenViewsGaugeBalancedAcrossLifecycle(t *testing.T) {
	store := newFakeStore()
	before := testutil.ToFloat64(metrics.OpenViews)

	v := openView(t, Config{
		PatientID:    patientID,
		DoctorID:     doctorID,
		UserID:       patientID,
		Store:        store,
		PollInterval: time.Hour,
	})
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.OpenViews))

	v.Close()
	assert.Equal(t, before, testutil.ToFloat64(metrics.OpenViews))

	// A view that never opened must not move the gauge on Close.
	unopened := New(Config{PatientID: patientID, DoctorID: uuid.Nil, UserID: patientID, Store: store})
	require.Error(t, unopened.Open(context.Background()))
	unopened.Close()
	assert.Equal(t, before, testutil.ToFloat64(metrics.OpenViews))
}

func TestPeerMessagesTriggerAcknowledgment(t *testing.T) {
	store := newFakeStore()
	now := time.Now().UTC()
	mine := storedMessage(patientID, "mine", now)
	theirs := storedMessage(doctorID, "theirs", now.Add(time.Second))
	store.put(mine)
	store.put(theirs)

	var mu sync.Mutex
	var acked []uuid.UUID

	openView(t, Config{
		PatientID:    patientID,
		DoctorID:     doctorID,
		UserID:       patientID,
		Store:        store,
		PollInterval: time.Hour,
		OnPeerMessage: func(ctx context.Context, messageID uuid.UUID) {
			mu.Lock()
			acked = append(acked, messageID)
			mu.Unlock()
		},
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []uuid.UUID{theirs.ID}, acked, "only the peer's message is acknowledged")
}
