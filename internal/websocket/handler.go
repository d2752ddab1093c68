package websocket

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"careportal/internal/domain/care"
	"careportal/internal/events"
	"careportal/internal/services"
	"careportal/internal/transport/httpdto"
	portal_errors "careportal/pkg/errors"
)

type Handler struct {
	auth *services.AuthService
	care *services.CareService
	hub  *Hub
}

func NewHandler(auth *services.AuthService, care *services.CareService, hub *Hub) *Handler {
	return &Handler{auth: auth, care: care, hub: hub}
}

// Connect upgrades the request and subscribes the browser to its own
// conversation channels: one for a patient, one per patient for a doctor.
// The socket only ever carries "new data may exist" envelopes; the browser
// re-fetches the message list through the HTTP API.
func (h *Handler) Connect(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	claims, err := h.auth.ParseAccessToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	channels, err := h.conversationChannels(c.Request.Context(), userID, care.Role(claims.Role))
	if err != nil {
		respondConnectError(c, err)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	client := NewClient(conn, userID.String())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.hub.Register(client)
	for _, ch := range channels {
		h.hub.Subscribe(client, ch)
	}
	go client.WriteLoop(ctx)

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			break
		}
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	}

	h.hub.Unregister(client)
}

// respondConnectError maps channel-resolution failures before the upgrade.
// Only a missing assignment is the caller's problem; anything else, such as
// a transient lookup failure, degrades to the generic unavailable response.
func respondConnectError(c *gin.Context, err error) {
	if errors.Is(err, portal_errors.ErrNotAssigned) {
		c.JSON(http.StatusConflict, httpdto.NewErrorResponse("no conversations", "NOT_ASSIGNED"))
		return
	}
	c.JSON(http.StatusServiceUnavailable, httpdto.NewErrorResponse("temporarily unavailable", "UNAVAILABLE"))
}

func (h *Handler) conversationChannels(ctx context.Context, userID uuid.UUID, role care.Role) ([]string, error) {
	switch role {
	case care.RolePatient:
		doctor, err := h.care.DoctorOf(ctx, userID)
		if err != nil {
			return nil, err
		}
		return []string{events.ConversationChannel(userID, doctor.ID)}, nil
	case care.RoleDoctor:
		patients, err := h.care.PatientsOf(ctx, userID)
		if err != nil {
			return nil, err
		}
		channels := make([]string, 0, len(patients))
		for _, p := range patients {
			channels = append(channels, events.ConversationChannel(p.ID, userID))
		}
		return channels, nil
	}
	return nil, nil
}
