package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/immxrtalbeast/meetchat/internal/domain"
	"github.com/immxrtalbeast/meetchat/internal/registry"
)

const (
	defaultPollWait = 25 * time.Second
	maxPollWait     = 55 * time.Second
)

// PollController is the fallback transport for clients that cannot hold a
// websocket open: the same admit/join/send/notify paths, driven by long-poll
// drains of the connection's event queue.
type PollController struct {
	chat        *ChatController
	idleTimeout time.Duration
	log         *slog.Logger

	mu       sync.Mutex
	lastSeen map[string]time.Time
}

func NewPollController(chat *ChatController, idleTimeout time.Duration, log *slog.Logger) *PollController {
	if log == nil {
		log = slog.Default()
	}
	if idleTimeout <= 0 {
		idleTimeout = 60 * time.Second
	}
	return &PollController{
		chat:        chat,
		idleTimeout: idleTimeout,
		log:         log,
		lastSeen:    make(map[string]time.Time),
	}
}

// Connect admits a polling connection and hands back its id.
func (c *PollController) Connect(ctx *gin.Context) {
	var body struct {
		Token string `json:"token"`
		Name  string `json:"name"`
	}
	_ = ctx.ShouldBindJSON(&body)

	cred := registry.Credential{Token: body.Token, GuestName: body.Name}
	if cred.Token == "" {
		cred.Token = bearerToken(ctx)
	}
	if cred.GuestName == "" {
		cred.GuestName = ctx.Query("name")
	}

	conn, err := c.chat.registry.Admit(ctx.Request.Context(), cred)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	c.touch(conn.ID)
	ctx.JSON(http.StatusOK, gin.H{
		"connection_id": conn.ID,
		"user_id":       conn.UserID,
	})
}

// Events long-polls the connection's outbound queue: it blocks until at
// least one event arrives or the wait expires, then drains whatever else is
// already queued.
func (c *PollController) Events(ctx *gin.Context) {
	conn, ok := c.chat.registry.Get(ctx.Param("connID"))
	if !ok {
		ctx.JSON(http.StatusGone, gin.H{"error": "connection closed"})
		return
	}
	c.touch(conn.ID)

	wait := defaultPollWait
	if raw := ctx.Query("wait"); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil && parsed > 0 && parsed <= maxPollWait {
			wait = parsed
		}
	}

	events := make([]domain.Event, 0, 4)
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case event, open := <-conn.Events():
		if !open {
			ctx.JSON(http.StatusGone, gin.H{"error": "connection closed"})
			return
		}
		events = append(events, event)
	case <-timer.C:
	case <-ctx.Request.Context().Done():
		return
	}

drain:
	for {
		select {
		case event, open := <-conn.Events():
			if !open {
				break drain
			}
			events = append(events, event)
		default:
			break drain
		}
	}

	ctx.JSON(http.StatusOK, gin.H{"events": events})
}

// Emit accepts one inbound event, exactly as the websocket read loop would.
func (c *PollController) Emit(ctx *gin.Context) {
	conn, ok := c.chat.registry.Get(ctx.Param("connID"))
	if !ok {
		ctx.JSON(http.StatusGone, gin.H{"error": "connection closed"})
		return
	}
	c.touch(conn.ID)

	var event domain.Event
	if err := ctx.ShouldBindJSON(&event); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid event body"})
		return
	}

	if errPayload := c.chat.dispatch(ctx.Request.Context(), conn, event); errPayload != nil {
		ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": errPayload.Error})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Disconnect tears down a polling connection explicitly.
func (c *PollController) Disconnect(ctx *gin.Context) {
	connID := ctx.Param("connID")
	conn, ok := c.chat.registry.Get(connID)
	if ok {
		c.chat.rooms.LeaveAll(context.Background(), conn)
	}
	c.chat.registry.Remove(connID)

	c.mu.Lock()
	delete(c.lastSeen, connID)
	c.mu.Unlock()

	ctx.JSON(http.StatusOK, gin.H{"status": "disconnected"})
}

// RunJanitor reaps polling connections that stopped polling, applying the
// same idle-liveness rule the websocket path gets from missed pongs.
func (c *PollController) RunJanitor(ctx context.Context) {
	ticker := time.NewTicker(c.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *PollController) sweep() {
	cutoff := time.Now().Add(-c.idleTimeout)

	c.mu.Lock()
	expired := make([]string, 0)
	for connID, seen := range c.lastSeen {
		if seen.Before(cutoff) {
			expired = append(expired, connID)
			delete(c.lastSeen, connID)
		}
	}
	c.mu.Unlock()

	for _, connID := range expired {
		if conn, ok := c.chat.registry.Get(connID); ok {
			c.chat.rooms.LeaveAll(context.Background(), conn)
		}
		c.chat.registry.Remove(connID)
		c.log.Info("idle polling connection reaped", slog.String("conn_id", connID))
	}
}

func (c *PollController) touch(connID string) {
	c.mu.Lock()
	c.lastSeen[connID] = time.Now()
	c.mu.Unlock()
}
