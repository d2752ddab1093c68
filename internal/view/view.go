package view

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"careportal/internal/domain/message"
	"careportal/internal/events"
	portal_errors "careportal/pkg/errors"
	"careportal/pkg/logger"
	"careportal/pkg/metrics"
)

// Store is the message-store surface a view consumes. Every call is a
// network round trip and may fail transiently.
type Store interface {
	ListConversation(ctx context.Context, patientID, doctorID uuid.UUID) ([]message.Message, error)
	Append(ctx context.Context, patientID, doctorID, senderID uuid.UUID, body string) (message.Message, error)
}

// Channel is the subscribing half of the delivery channel the view uses.
type Channel interface {
	Subscribe(ctx context.Context, patientID, doctorID uuid.UUID, handler func(events.Envelope)) (events.Subscription, error)
}

const (
	defaultPollInterval = 15 * time.Second
	defaultStaleAfter   = 3
)

// Config wires one conversation view. DoctorID may be uuid.Nil for a
// patient with no assigned doctor; such a view refuses all conversation
// operations with ErrNotAssigned.
type Config struct {
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	UserID    uuid.UUID

	Store   Store
	Channel Channel // nil means polling-only operation
	Logger  *logger.Logger

	PollInterval time.Duration
	StaleAfter   int

	// OnPeerMessage, when set, is invoked once for each newly observed
	// message authored by the other party. Used to acknowledge delivery;
	// strictly best-effort.
	OnPeerMessage func(ctx context.Context, messageID uuid.UUID)
}

// View reconciles push notifications with authoritative re-fetches into a
// gap-free, duplicate-free, causally ordered message list, and manages
// local optimistic send state. One goroutine owns all reconciliation; the
// exported methods are safe for concurrent use.
type View struct {
	cfg Config

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	sub    events.Subscription

	// refresh coalesces notification bursts into a single re-fetch.
	refresh chan struct{}

	mu        sync.Mutex
	confirmed []message.Message
	pending   []*pendingEntry
	failures  int
	opened    bool
	closed    bool

	closeOnce sync.Once
}

func New(cfg Config) *View {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = defaultStaleAfter
	}
	return &View{
		cfg:     cfg,
		refresh: make(chan struct{}, 1),
	}
}

// Open seeds the view from an authoritative snapshot, subscribes to the
// delivery channel and starts the poll backstop. It must be called once.
// A failed seed is not fatal: the next poll tick retries.
func (v *View) Open(ctx context.Context) error {
	if v.cfg.DoctorID == uuid.Nil {
		return portal_errors.ErrNotAssigned
	}

	v.mu.Lock()
	if v.opened || v.closed {
		v.mu.Unlock()
		return portal_errors.ErrViewClosed
	}
	v.opened = true
	v.ctx, v.cancel = context.WithCancel(ctx)
	v.wg.Add(1) // run loop; released in run()
	// Same critical section as opened: a racing Close observes either
	// both or neither, so the gauge cannot go negative.
	metrics.OpenViews.Inc()
	v.mu.Unlock()

	v.refreshOnce()

	if v.cfg.Channel != nil {
		sub, err := v.cfg.Channel.Subscribe(v.ctx, v.cfg.PatientID, v.cfg.DoctorID, func(events.Envelope) {
			// Notifications only say "new data may exist"; coalesce and
			// re-fetch. Duplicates collapse into the buffered slot.
			select {
			case v.refresh <- struct{}{}:
			default:
			}
		})
		if err != nil {
			// Polling still converges without the channel.
			if v.cfg.Logger != nil {
				v.cfg.Logger.Warnf("conversation %s/%s: subscribe failed, polling only: %v", v.cfg.PatientID, v.cfg.DoctorID, err)
			}
		} else {
			v.sub = sub
		}
	}

	go v.run()

	return nil
}

func (v *View) run() {
	defer v.wg.Done()
	ticker := time.NewTicker(v.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-v.ctx.Done():
			return
		case <-v.refresh:
			v.refreshOnce()
		case <-ticker.C:
			v.refreshOnce()
		}
	}
}

// refreshOnce fetches the authoritative snapshot and merges it in. Failures
// are absorbed and retried on the next tick; the staleness indicator flips
// after StaleAfter consecutive failures.
func (v *View) refreshOnce() {
	snapshot, err := v.cfg.Store.ListConversation(v.ctx, v.cfg.PatientID, v.cfg.DoctorID)
	if err != nil {
		if v.ctx.Err() != nil {
			return
		}
		metrics.PollFailures.Inc()
		v.mu.Lock()
		v.failures++
		stale := v.failures == v.cfg.StaleAfter
		v.mu.Unlock()
		if stale && v.cfg.Logger != nil {
			v.cfg.Logger.Warnf("conversation %s/%s: %d consecutive refresh failures, view is stale", v.cfg.PatientID, v.cfg.DoctorID, v.cfg.StaleAfter)
		}
		return
	}
	v.applySnapshot(snapshot)
}

// applySnapshot is the single entry point mutating the confirmed list. A
// snapshot arriving after Close is discarded, never merged.
func (v *View) applySnapshot(snapshot []message.Message) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.failures = 0
	merged, added := Merge(v.confirmed, snapshot)
	v.confirmed = merged
	v.foldPendingLocked(added)
	v.mu.Unlock()

	metrics.SnapshotMerges.Inc()

	if v.cfg.OnPeerMessage != nil {
		for _, m := range added {
			if m.SenderID != v.cfg.UserID {
				v.cfg.OnPeerMessage(v.ctx, m.ID)
			}
		}
	}
}

// foldPendingLocked drops pending entries whose authoritative counterpart
// arrived in a snapshot before the append response, so a confirmed send
// never shows as a duplicate pair. A counterpart must be newly observed in
// this merge, authored by this user, carry the same text and be timestamped
// no earlier than the submission; a pre-existing message with identical
// text never absorbs an in-flight send, whose draft must stay recoverable
// if the append fails.
func (v *View) foldPendingLocked(added []message.Message) {
	if len(v.pending) == 0 || len(added) == 0 {
		return
	}
	used := make([]bool, len(added))
	kept := v.pending[:0]
	for _, p := range v.pending {
		folded := false
		if p.state == StatePending {
			for i, m := range added {
				if used[i] || m.SenderID != v.cfg.UserID || m.Body != p.draft || m.CreatedAt.Before(p.submittedAt) {
					continue
				}
				used[i] = true
				folded = true
				break
			}
		}
		if !folded {
			kept = append(kept, p)
		}
	}
	v.pending = kept
}

// Send optimistically appends a pending entry and performs the store
// append asynchronously. The returned id identifies the optimistic entry.
// Validation and precondition failures are synchronous and never reach the
// store; the caller keeps the draft in both cases.
func (v *View) Send(body string) (uuid.UUID, error) {
	if v.cfg.DoctorID == uuid.Nil {
		return uuid.Nil, portal_errors.ErrNotAssigned
	}
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return uuid.Nil, fmt.Errorf("%w: empty message body", portal_errors.ErrValidation)
	}

	p := &pendingEntry{
		localID:     uuid.New(),
		senderID:    v.cfg.UserID,
		draft:       trimmed,
		submittedAt: time.Now().UTC(),
		state:       StatePending,
	}

	v.mu.Lock()
	if v.closed || !v.opened {
		v.mu.Unlock()
		return uuid.Nil, portal_errors.ErrViewClosed
	}
	v.pending = append(v.pending, p)
	// Add under the lock so Close cannot start waiting between the closed
	// check and the goroutine launch.
	v.wg.Add(1)
	v.mu.Unlock()

	go v.append(p)
	return p.localID, nil
}

func (v *View) append(p *pendingEntry) {
	defer v.wg.Done()
	m, err := v.cfg.Store.Append(v.ctx, v.cfg.PatientID, v.cfg.DoctorID, v.cfg.UserID, p.draft)

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	if err != nil {
		p.state = StateFailed
		p.err = err
		if v.cfg.Logger != nil {
			v.cfg.Logger.Errorf("send failed for conversation %s/%s: %v", v.cfg.PatientID, v.cfg.DoctorID, err)
		}
		return
	}

	// Fold immediately: remove the optimistic entry and merge the
	// authoritative message. A later snapshot containing the same id is a
	// no-op for it.
	for i, q := range v.pending {
		if q.localID == p.localID {
			v.pending = append(v.pending[:i], v.pending[i+1:]...)
			break
		}
	}
	v.confirmed, _ = Merge(v.confirmed, []message.Message{m})
}

// Entries returns the current projection: confirmed messages in canonical
// order followed by unresolved optimistic entries in submission order.
func (v *View) Entries() []Entry {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]Entry, 0, len(v.confirmed)+len(v.pending))
	for _, m := range v.confirmed {
		out = append(out, Entry{Message: m, State: StateConfirmed})
	}
	for _, p := range v.pending {
		out = append(out, p.entry())
	}
	return out
}

// RecoverFailed removes failed entries and returns their drafts so the
// caller can restore them into the compose box. Typed text is never lost.
func (v *View) RecoverFailed() []string {
	v.mu.Lock()
	defer v.mu.Unlock()

	var drafts []string
	kept := v.pending[:0]
	for _, p := range v.pending {
		if p.state == StateFailed {
			drafts = append(drafts, p.draft)
			continue
		}
		kept = append(kept, p)
	}
	v.pending = kept
	return drafts
}

// Stale reports whether the view has fallen behind: StaleAfter consecutive
// refresh failures without a success.
func (v *View) Stale() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.failures >= v.cfg.StaleAfter
}

// Close tears the view down: unsubscribes, stops the poller and cancels
// in-flight calls. Responses and notifications arriving afterwards are
// discarded. Safe to call more than once.
func (v *View) Close() {
	v.closeOnce.Do(func() {
		v.mu.Lock()
		wasOpened := v.opened
		v.closed = true
		v.mu.Unlock()

		if !wasOpened {
			return
		}
		v.cancel()
		if v.sub != nil {
			v.sub.Close()
		}
		v.wg.Wait()
		metrics.OpenViews.Dec()
	})
}
