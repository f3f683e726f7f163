// Package client is the client-side half of the chat channel: it
// establishes the connection, attaches credentials, re-joins rooms after a
// reconnect, and keeps a deduplicated local history.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/immxrtalbeast/meetchat/internal/domain"
	"github.com/immxrtalbeast/meetchat/internal/service"
)

// State names the supervisor's connection lifecycle.
type State string

const (
	StateDisconnected  State = "disconnected"
	StateConnecting    State = "connecting"
	StateConnected     State = "connected"
	StateDisconnecting State = "disconnecting"
	StateReconnecting  State = "reconnecting"
)

var (
	// ErrNoCredential is returned when Connect is called without a token or
	// guest name; the supervisor stays Disconnected.
	ErrNoCredential = errors.New("no credential available")

	// ErrReconnectExhausted is the terminal connectivity failure after the
	// attempt budget runs out; recovering requires a manual Connect.
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")

	ErrNotConnected   = errors.New("not connected")
	ErrAlreadyStarted = errors.New("supervisor already started")
	ErrClosed         = errors.New("supervisor closed")
)

// Options configures a Supervisor.
type Options struct {
	URL        string
	Credential Credential

	// UserID and UserName describe the local identity, used for optimistic
	// placeholders. UserID may be empty for guests until known.
	UserID   string
	UserName string

	MaxAttempts    int           // reconnect budget, default 5
	BaseDelay      time.Duration // first backoff delay, default 1s
	MaxDelay       time.Duration // backoff ceiling, default 30s
	DialTimeout    time.Duration // per-attempt handshake timeout, default 10s
	PerSenderLimit int           // history windowing bound, default 5

	Dial   DialFunc
	Logger *slog.Logger

	// OnEvent observes every inbound event after history bookkeeping.
	// OnStateChange observes transitions. Neither may call back into the
	// supervisor.
	OnEvent       func(domain.Event)
	OnStateChange func(State)
}

// Supervisor drives the connection state machine:
// Disconnected -> Connecting -> Connected -> (Disconnecting | Reconnecting)
// -> Disconnected. All state mutation is serialized behind one mutex; socket
// reads happen on a single goroutine per connection generation.
type Supervisor struct {
	opts    Options
	log     *slog.Logger
	history *History

	mu         sync.Mutex
	state      State
	attempts   int
	gen        int
	transport  Transport
	retryTimer *time.Timer
	rooms      map[string]string // meeting id -> display name to re-join with
	closed     bool
	lastErr    error
}

// New validates options and returns a supervisor in the Disconnected state.
func New(opts Options) (*Supervisor, error) {
	if opts.URL == "" {
		return nil, errors.New("url is required")
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 10 * time.Second
	}
	if opts.Dial == nil {
		opts.Dial = DialWebSocket
	}
	if opts.PerSenderLimit <= 0 {
		opts.PerSenderLimit = service.DefaultPerSenderLimit
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Supervisor{
		opts:    opts,
		log:     log,
		history: NewHistory(),
		state:   StateDisconnected,
		rooms:   make(map[string]string),
	}, nil
}

// Connect starts the state machine. It fails immediately, staying
// Disconnected, when no credential is available.
func (s *Supervisor) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.state != StateDisconnected {
		return ErrAlreadyStarted
	}
	if s.opts.Credential.empty() {
		return ErrNoCredential
	}

	s.lastErr = nil
	s.attempts = 0
	s.startDialLocked()
	return nil
}

// Close tears the supervisor down from any state. A pending backoff timer is
// cancelled so no reconnect fires after intentional shutdown, and an open
// transport is closed without triggering automatic reconnection.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	transport := s.transport
	if transport != nil {
		s.setStateLocked(StateDisconnecting)
	}
	s.mu.Unlock()

	if transport != nil {
		transport.Close()
	}

	s.mu.Lock()
	s.transport = nil
	s.setStateLocked(StateDisconnected)
	s.mu.Unlock()
	return nil
}

// State returns the current machine state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err reports the terminal connectivity failure, if any.
func (s *Supervisor) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// History exposes the deduplicated local message view.
func (s *Supervisor) History() *History {
	return s.history
}

// Messages returns the meeting's rendered view bounded by the configured
// per-sender limit.
func (s *Supervisor) Messages(meetingID string) []*domain.ChatMessage {
	return s.history.Messages(meetingID, s.opts.PerSenderLimit)
}

// JoinRoom records the room for post-reconnect re-join and requests
// membership when currently connected.
func (s *Supervisor) JoinRoom(meetingID, userName string) error {
	if userName == "" {
		userName = s.opts.UserName
	}

	s.mu.Lock()
	s.rooms[meetingID] = userName
	transport := s.transport
	connected := s.state == StateConnected
	s.mu.Unlock()

	if !connected {
		return nil
	}
	return transport.WriteEvent(domain.NewEvent(domain.EventJoinRoom, domain.JoinRoomPayload{
		MeetingID: meetingID,
		UserID:    s.opts.UserID,
		UserName:  userName,
	}))
}

// LeaveRoom drops the room from the re-join set and, when connected,
// announces the departure.
func (s *Supervisor) LeaveRoom(meetingID string) error {
	s.mu.Lock()
	userName, member := s.rooms[meetingID]
	delete(s.rooms, meetingID)
	transport := s.transport
	connected := s.state == StateConnected
	s.mu.Unlock()

	s.history.Forget(meetingID)

	if !connected || !member {
		return nil
	}
	return transport.WriteEvent(domain.NewEvent(domain.EventLeaveRoom, domain.JoinRoomPayload{
		MeetingID: meetingID,
		UserID:    s.opts.UserID,
		UserName:  userName,
	}))
}

// SendMessage sends one chat message and records an optimistic placeholder
// in the local history. The placeholder carries a synthesized id; the
// authoritative echo replaces it through the composite-key reconciliation.
func (s *Supervisor) SendMessage(meetingID, text string) (*domain.ChatMessage, error) {
	s.mu.Lock()
	transport := s.transport
	connected := s.state == StateConnected
	s.mu.Unlock()

	if !connected {
		return nil, ErrNotConnected
	}

	placeholder := &domain.ChatMessage{
		ID:        NewLocalID(),
		MeetingID: meetingID,
		UserID:    s.opts.UserID,
		UserName:  s.opts.UserName,
		Content:   text,
		Timestamp: time.Now().UTC(),
	}
	s.history.Add(placeholder)

	err := transport.WriteEvent(domain.NewEvent(domain.EventChatMessage, domain.ChatSendPayload{
		MeetingID:   meetingID,
		MessageText: text,
		UserID:      s.opts.UserID,
		UserName:    s.opts.UserName,
	}))
	if err != nil {
		return nil, err
	}
	return placeholder, nil
}

// startDialLocked moves to Connecting and kicks off one handshake attempt.
// Caller holds the mutex.
func (s *Supervisor) startDialLocked() {
	s.gen++
	s.setStateLocked(StateConnecting)
	go s.dial(s.gen)
}

func (s *Supervisor) dial(gen int) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.DialTimeout)
	transport, err := s.opts.Dial(ctx, s.opts.URL, s.opts.Credential)
	cancel()

	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		if transport != nil {
			transport.Close()
		}
		return
	}

	if err != nil {
		s.log.Debug("handshake failed", slog.Int("attempt", s.attempts+1), slog.Any("error", err))
		s.scheduleRetryLocked()
		s.mu.Unlock()
		return
	}

	s.transport = transport
	s.attempts = 0
	s.setStateLocked(StateConnected)
	rejoin := make(map[string]string, len(s.rooms))
	for meetingID, userName := range s.rooms {
		rejoin[meetingID] = userName
	}
	s.mu.Unlock()

	for meetingID, userName := range rejoin {
		_ = transport.WriteEvent(domain.NewEvent(domain.EventJoinRoom, domain.JoinRoomPayload{
			MeetingID: meetingID,
			UserID:    s.opts.UserID,
			UserName:  userName,
		}))
	}

	go s.readLoop(transport, gen)
}

func (s *Supervisor) readLoop(transport Transport, gen int) {
	for {
		event, err := transport.ReadEvent()
		if err != nil {
			s.transportLost(gen)
			return
		}
		s.handleEvent(event)
	}
}

// transportLost handles a disconnect that was not requested through Close.
func (s *Supervisor) transportLost(gen int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		return
	}
	s.transport = nil

	if s.closed || s.state == StateDisconnecting {
		s.setStateLocked(StateDisconnected)
		return
	}

	s.scheduleRetryLocked()
}

// scheduleRetryLocked arms the backoff timer, or surfaces the terminal
// failure once the budget is exhausted. Caller holds the mutex.
func (s *Supervisor) scheduleRetryLocked() {
	s.attempts++
	if s.attempts > s.opts.MaxAttempts {
		s.lastErr = ErrReconnectExhausted
		s.setStateLocked(StateDisconnected)
		s.log.Warn("reconnect budget exhausted", slog.Int("attempts", s.opts.MaxAttempts))
		return
	}

	s.setStateLocked(StateReconnecting)
	delay := s.backoffDelay(s.attempts)
	gen := s.gen

	s.log.Debug("scheduling reconnect",
		slog.Int("attempt", s.attempts),
		slog.Duration("delay", delay),
	)

	s.retryTimer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed || gen != s.gen || s.state != StateReconnecting {
			return
		}
		s.startDialLocked()
	})
}

// backoffDelay doubles per attempt up to the ceiling.
func (s *Supervisor) backoffDelay(attempt int) time.Duration {
	delay := s.opts.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= s.opts.MaxDelay {
			return s.opts.MaxDelay
		}
	}
	if delay > s.opts.MaxDelay {
		delay = s.opts.MaxDelay
	}
	return delay
}

func (s *Supervisor) setStateLocked(next State) {
	if s.state == next {
		return
	}
	s.state = next
	if s.opts.OnStateChange != nil {
		s.opts.OnStateChange(next)
	}
}

// handleEvent folds inbound events into the local history before handing
// them to the application callback.
func (s *Supervisor) handleEvent(event domain.Event) {
	switch event.Name {
	case domain.EventChatMessage:
		if msg, err := parseMessageEvent(event); err == nil {
			s.history.Add(msg)
		}
	case domain.EventChatHistory:
		if msgs, err := parseHistoryEvent(event); err == nil {
			s.history.Merge(msgs)
		}
	}

	if s.opts.OnEvent != nil {
		s.opts.OnEvent(event)
	}
}

func unmarshalEvent(event domain.Event, dest any) error {
	if len(event.Data) == 0 {
		return errors.New("empty event data")
	}
	return json.Unmarshal(event.Data, dest)
}

func parseMessageEvent(event domain.Event) (*domain.ChatMessage, error) {
	var payload domain.ChatMessagePayload
	if err := unmarshalEvent(event, &payload); err != nil {
		return nil, err
	}
	return domain.MessageFromPayload(payload)
}

func parseHistoryEvent(event domain.Event) ([]*domain.ChatMessage, error) {
	var payload domain.ChatHistoryPayload
	if err := unmarshalEvent(event, &payload); err != nil {
		return nil, err
	}
	msgs := make([]*domain.ChatMessage, 0, len(payload.Messages))
	for _, p := range payload.Messages {
		msg, err := domain.MessageFromPayload(p)
		if err != nil {
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}
