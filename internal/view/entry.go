package view

import (
	"time"

	"github.com/google/uuid"

	"careportal/internal/domain/message"
)

// State is the lifecycle of one entry slot in a conversation view.
type State int

const (
	// StatePending marks a local optimistic entry: the user submitted it but
	// the store has not confirmed it. Never visible to the other party.
	StatePending State = iota

	// StateConfirmed marks an authoritative message observed from the store.
	StateConfirmed

	// StateFailed marks a send the store rejected. The draft text is held
	// for recovery; the entry never becomes visible to the other party.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateConfirmed:
		return "confirmed"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Entry is one displayed row: either a confirmed message or a local
// optimistic placeholder.
type Entry struct {
	// LocalID identifies optimistic entries; zero for confirmed ones.
	LocalID uuid.UUID `json:"local_id,omitempty"`

	Message message.Message `json:"message"`
	State   State           `json:"state"`

	// Err holds the append failure for failed entries.
	Err error `json:"-"`
}

// pendingEntry is the view's internal record of an in-flight send.
type pendingEntry struct {
	localID     uuid.UUID
	senderID    uuid.UUID
	draft       string
	submittedAt time.Time
	state       State
	err         error
}

func (p *pendingEntry) entry() Entry {
	return Entry{
		LocalID: p.localID,
		Message: message.Message{
			SenderID:  p.senderID,
			Body:      p.draft,
			Status:    message.StatusSent,
			CreatedAt: p.submittedAt,
		},
		State: p.state,
		Err:   p.err,
	}
}
