package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/immxrtalbeast/meetchat/internal/api/http/converter"
	"github.com/immxrtalbeast/meetchat/internal/auth"
	"github.com/immxrtalbeast/meetchat/internal/domain"
	"github.com/immxrtalbeast/meetchat/internal/registry"
	"github.com/immxrtalbeast/meetchat/internal/service"
	"github.com/immxrtalbeast/meetchat/lib/logger/sl"
)

const writeWait = 10 * time.Second

type ChatController struct {
	registry *registry.Registry
	rooms    service.RoomInteractor
	chats    service.ChatInteractor
	verifier *auth.TokenVerifier
	log      *slog.Logger
	upgrader websocket.Upgrader
	pongWait time.Duration
}

func NewChatController(reg *registry.Registry, rooms service.RoomInteractor, chats service.ChatInteractor, verifier *auth.TokenVerifier, idleTimeout time.Duration, log *slog.Logger) *ChatController {
	if log == nil {
		log = slog.Default()
	}
	if idleTimeout <= 0 {
		idleTimeout = 60 * time.Second
	}
	return &ChatController{
		registry: reg,
		rooms:    rooms,
		chats:    chats,
		verifier: verifier,
		log:      log,
		pongWait: idleTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Connect upgrades the request to a websocket event channel. The credential
// is checked before the upgrade: a rejected handshake never carries room or
// message traffic.
func (c *ChatController) Connect(ctx *gin.Context) {
	cred := registry.Credential{
		Token:     bearerToken(ctx),
		GuestName: ctx.Query("name"),
	}

	conn, err := c.registry.Admit(ctx.Request.Context(), cred)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	socket, err := c.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		c.registry.Remove(conn.ID)
		c.log.Error("websocket upgrade failed", sl.Err(err))
		return
	}

	go c.writePump(conn, socket)
	c.readPump(conn, socket)
}

// readPump drives the connection until the peer goes away. A missed pong
// within pongWait counts as an idle disconnect and runs the same cleanup as
// an explicit one.
func (c *ChatController) readPump(conn *domain.Connection, socket *websocket.Conn) {
	defer c.teardown(conn, socket)

	socket.SetReadLimit(64 * 1024)
	_ = socket.SetReadDeadline(time.Now().Add(c.pongWait))
	socket.SetPongHandler(func(string) error {
		return socket.SetReadDeadline(time.Now().Add(c.pongWait))
	})

	for {
		var event domain.Event
		if err := socket.ReadJSON(&event); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("websocket read failed", slog.String("conn_id", conn.ID), sl.Err(err))
			}
			return
		}
		_ = socket.SetReadDeadline(time.Now().Add(c.pongWait))

		if errPayload := c.dispatch(context.Background(), conn, event); errPayload != nil {
			// Failures are reported synchronously to the initiating client
			// only; nobody else sees them.
			conn.Enqueue(domain.NewEvent(domain.EventError, *errPayload))
		}
	}
}

// writePump drains the connection's event queue onto the socket and keeps
// the channel alive with pings.
func (c *ChatController) writePump(conn *domain.Connection, socket *websocket.Conn) {
	ticker := time.NewTicker(c.pongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		socket.Close()
	}()

	for {
		select {
		case event, ok := <-conn.Events():
			_ = socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := socket.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			_ = socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch handles one inbound event. The returned payload, if any, goes
// back to the sender alone.
func (c *ChatController) dispatch(ctx context.Context, conn *domain.Connection, event domain.Event) *domain.ErrorPayload {
	switch event.Name {
	case domain.EventJoinRoom:
		var payload domain.JoinRoomPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil || payload.MeetingID == "" {
			return &domain.ErrorPayload{Error: "join_room requires meeting_id"}
		}
		if err := c.rooms.Join(ctx, conn, payload.MeetingID, payload.UserName); err != nil {
			if errors.Is(err, service.ErrInvalidRoom) {
				return &domain.ErrorPayload{Error: "unknown meeting: " + payload.MeetingID}
			}
			return &domain.ErrorPayload{Error: "failed to join room"}
		}
		c.sendHistorySnapshot(ctx, conn, payload.MeetingID)
		return nil

	case domain.EventLeaveRoom:
		var payload domain.JoinRoomPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil || payload.MeetingID == "" {
			return &domain.ErrorPayload{Error: "leave_room requires meeting_id"}
		}
		_ = c.rooms.Leave(ctx, conn, payload.MeetingID)
		return nil

	case domain.EventChatMessage:
		var payload domain.ChatSendPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil || payload.MeetingID == "" {
			return &domain.ErrorPayload{Error: "chat_message requires meeting_id and message_text"}
		}
		if payload.UserName != "" {
			conn.SetDisplayName(payload.UserName)
		}
		if _, err := c.chats.Send(ctx, conn, payload.MeetingID, payload.MessageText); err != nil {
			if errors.Is(err, service.ErrNotInRoom) {
				return &domain.ErrorPayload{Error: "not a member of meeting " + payload.MeetingID}
			}
			return &domain.ErrorPayload{Error: err.Error()}
		}
		return nil

	default:
		return &domain.ErrorPayload{Error: "unsupported event: " + event.Name}
	}
}

// sendHistorySnapshot delivers the windowed history to a freshly joined
// connection. History failures degrade to an empty room view rather than
// failing the join.
func (c *ChatController) sendHistorySnapshot(ctx context.Context, conn *domain.Connection, meetingID string) {
	messages, err := c.chats.History(ctx, meetingID, 0)
	if err != nil {
		c.log.Warn("failed to load history snapshot",
			slog.String("meeting_id", meetingID),
			sl.Err(err),
		)
		return
	}
	if len(messages) == 0 {
		return
	}
	conn.Enqueue(domain.NewEvent(domain.EventChatHistory, domain.ChatHistoryPayload{
		MeetingID: meetingID,
		Messages:  converter.MessagesToAPI(messages),
	}))
}

func (c *ChatController) teardown(conn *domain.Connection, socket *websocket.Conn) {
	c.rooms.LeaveAll(context.Background(), conn)
	c.registry.Remove(conn.ID)
	socket.Close()
}

// History serves the on-demand windowed history fetch. Requires a bearer
// credential; guests read history through the join snapshot instead.
func (c *ChatController) History(ctx *gin.Context) {
	token := bearerToken(ctx)
	if token == "" {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
		return
	}
	if _, err := c.verifier.Verify(token); err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	meetingID := ctx.Param("meetingID")
	perSenderLimit := 0
	if raw := ctx.Query("per_sender_limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid per_sender_limit"})
			return
		}
		perSenderLimit = parsed
	}

	messages, err := c.chats.History(ctx.Request.Context(), meetingID, perSenderLimit)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch chat history"})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"meeting_id": meetingID,
		"messages":   converter.MessagesToAPI(messages),
	})
}

func bearerToken(ctx *gin.Context) string {
	if token := ctx.Query("token"); token != "" {
		return token
	}
	header := ctx.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}
