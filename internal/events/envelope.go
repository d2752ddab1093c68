package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type identifies what happened, in domain.action form.
type Type string

const (
	TypeMessageCreated Type = "message.created"
	TypeMessageAcked   Type = "message.acked"
)

// Envelope is the notification published on the delivery channel. It
// identifies the affected conversation but deliberately carries no message
// body: subscribers must re-fetch the authoritative list, never trust the
// notification as content.
type Envelope struct {
	Type       Type      `json:"type"`
	PatientID  uuid.UUID `json:"patient_id"`
	DoctorID   uuid.UUID `json:"doctor_id"`
	MessageID  uuid.UUID `json:"message_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

func ParseEnvelope(payload []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(payload, &e); err != nil {
		return Envelope{}, fmt.Errorf("decode notification: %w", err)
	}
	return e, nil
}

// Conversation channel naming. The patient id comes first; the pair is the
// conversation key.
const ChannelPrefixConversation = "careportal:conv:"

func ConversationChannel(patientID, doctorID uuid.UUID) string {
	return fmt.Sprintf("%s%s:%s", ChannelPrefixConversation, patientID, doctorID)
}

// ConversationPattern matches every conversation channel; used by the
// websocket bridge to fan notifications out to connected browsers.
const ConversationPattern = ChannelPrefixConversation + "*"
