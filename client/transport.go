package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"
	"github.com/immxrtalbeast/meetchat/internal/domain"
)

// Transport is one established event channel. The supervisor owns exactly
// zero or one at a time.
type Transport interface {
	ReadEvent() (domain.Event, error)
	WriteEvent(event domain.Event) error
	Close() error
}

// DialFunc establishes a transport. Swapped out in tests.
type DialFunc func(ctx context.Context, rawURL string, cred Credential) (Transport, error)

// Credential attaches identity to the handshake: a bearer token, or a guest
// display name when no token is available.
type Credential struct {
	Token     string
	GuestName string
}

func (c Credential) empty() bool {
	return c.Token == "" && c.GuestName == ""
}

type wsTransport struct {
	conn *websocket.Conn
}

// DialWebSocket is the production DialFunc over gorilla/websocket.
func DialWebSocket(ctx context.Context, rawURL string, cred Credential) (Transport, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	query := u.Query()
	if cred.GuestName != "" {
		query.Set("name", cred.GuestName)
	}
	u.RawQuery = query.Encode()

	header := http.Header{}
	if cred.Token != "" {
		header.Set("Authorization", "Bearer "+cred.Token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, err
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return &wsTransport{conn: conn}, nil
}

func (t *wsTransport) ReadEvent() (domain.Event, error) {
	var event domain.Event
	err := t.conn.ReadJSON(&event)
	return event, err
}

func (t *wsTransport) WriteEvent(event domain.Event) error {
	return t.conn.WriteJSON(event)
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}
