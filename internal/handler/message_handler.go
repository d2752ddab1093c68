package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"careportal/internal/config"
	"careportal/internal/services"
	"careportal/internal/transport/httpdto"
)

type MessageHandler struct {
	service *services.MessageService
	chat    config.ChatConfig
}

func NewMessageHandler(service *services.MessageService, chat config.ChatConfig) *MessageHandler {
	return &MessageHandler{service: service, chat: chat}
}

// Settings tells clients how to run their conversation views: how often to
// re-poll the authoritative list and after how many consecutive failures to
// show the stale indicator.
func (h *MessageHandler) Settings(c *gin.Context) {
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{
		"poll_interval_seconds": h.chat.PollIntervalSeconds,
		"stale_after_failures":  h.chat.StaleAfterFailures,
	}))
}

func (h *MessageHandler) Send(c *gin.Context) {
	var req httpdto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	patientID, err := parseUUID(req.PatientID)
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid patient_id", "INVALID_REQUEST"))
		return
	}
	doctorID, err := parseUUID(req.DoctorID)
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid doctor_id", "INVALID_REQUEST"))
		return
	}

	m, err := h.service.Send(c.Request.Context(), patientID, doctorID, userID, req.Body)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(m))
}

func (h *MessageHandler) List(c *gin.Context) {
	patientID, err := parseUUID(c.Query("patient_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid patient_id", "INVALID_REQUEST"))
		return
	}
	doctorID, err := parseUUID(c.Query("doctor_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid doctor_id", "INVALID_REQUEST"))
		return
	}

	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	items, err := h.service.ListConversation(c.Request.Context(), patientID, doctorID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"messages": items}))
}

func (h *MessageHandler) MarkDelivered(c *gin.Context) {
	h.ack(c, h.service.MarkDelivered)
}

func (h *MessageHandler) MarkRead(c *gin.Context) {
	h.ack(c, h.service.MarkRead)
}

func (h *MessageHandler) ack(c *gin.Context, fn func(ctx context.Context, messageID, userID uuid.UUID) error) {
	messageID, err := parseUUID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid message id", "INVALID_REQUEST"))
		return
	}
	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}
	if err := fn(c.Request.Context(), messageID, userID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"acknowledged": true}))
}
