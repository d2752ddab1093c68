package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"careportal/internal/domain/message"
	"careportal/internal/events"
	"careportal/internal/repository"
	portal_errors "careportal/pkg/errors"
	"careportal/pkg/logger"
	"careportal/pkg/metrics"
)

// MessageService is the message store boundary: durable append-only log of
// messages per conversation, plus the best-effort publish side effect.
type MessageService struct {
	messages repository.MessageRepository
	care     *CareService
	channel  events.Publisher
	log      *logger.Logger
}

func NewMessageService(messages repository.MessageRepository, care *CareService, channel events.Publisher, log *logger.Logger) *MessageService {
	return &MessageService{
		messages: messages,
		care:     care,
		channel:  channel,
		log:      log,
	}
}

// Send appends a message to the conversation log. Persistence is the
// commit point; the notification publish that follows is best-effort and
// its loss is compensated by subscriber polling, so a publish error never
// fails the send.
func (s *MessageService) Send(ctx context.Context, patientID, doctorID, senderID uuid.UUID, body string) (message.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return message.Message{}, fmt.Errorf("%w: empty message body", portal_errors.ErrValidation)
	}

	if _, err := s.care.Conversation(ctx, patientID, doctorID, senderID); err != nil {
		return message.Message{}, err
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
	if err := s.messages.Create(ctx, &m); err != nil {
		return message.Message{}, err
	}

	s.publish(ctx, events.Envelope{
		Type:       events.TypeMessageCreated,
		PatientID:  patientID,
		DoctorID:   doctorID,
		MessageID:  m.ID,
		OccurredAt: m.CreatedAt,
	})
	return m, nil
}

// ListConversation returns the authoritative snapshot in canonical order.
// Each call re-reads current state; it is not a live stream.
func (s *MessageService) ListConversation(ctx context.Context, patientID, doctorID, requesterID uuid.UUID) ([]message.Message, error) {
	if _, err := s.care.Conversation(ctx, patientID, doctorID, requesterID); err != nil {
		return nil, err
	}
	return s.messages.ListByConversation(ctx, patientID, doctorID)
}

// MarkDelivered advances a message to delivered. Only the recipient may
// acknowledge; regressions are silent no-ops.
func (s *MessageService) MarkDelivered(ctx context.Context, messageID, userID uuid.UUID) error {
	return s.advance(ctx, messageID, userID, message.StatusDelivered)
}

// MarkRead advances a message to read.
func (s *MessageService) MarkRead(ctx context.Context, messageID, userID uuid.UUID) error {
	return s.advance(ctx, messageID, userID, message.StatusRead)
}

func (s *MessageService) advance(ctx context.Context, messageID, userID uuid.UUID, next message.DeliveryStatus) error {
	m, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if m.SenderID == userID {
		return portal_errors.ErrForbidden
	}
	if m.PatientID != userID && m.DoctorID != userID {
		return portal_errors.ErrForbidden
	}

	if err := s.messages.AdvanceStatus(ctx, messageID, next); err != nil {
		return err
	}

	s.publish(ctx, events.Envelope{
		Type:       events.TypeMessageAcked,
		PatientID:  m.PatientID,
		DoctorID:   m.DoctorID,
		MessageID:  messageID,
		OccurredAt: time.Now().UTC(),
	})
	return nil
}

// ConversationCounts reports per-conversation message totals for the admin
// dashboard.
func (s *MessageService) ConversationCounts(ctx context.Context) ([]repository.ConversationCount, error) {
	return s.messages.CountByConversation(ctx)
}

func (s *MessageService) publish(ctx context.Context, env events.Envelope) {
	if s.channel == nil {
		return
	}
	if err := s.channel.Publish(ctx, env); err != nil {
		metrics.PublishFailures.Inc()
		if s.log != nil {
			s.log.Warnf("notification publish lost (%s %s): %v", env.Type, env.MessageID, err)
		}
	}
}
