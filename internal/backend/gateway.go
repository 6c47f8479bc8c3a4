package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// RPC methods understood by the backend gateway.
const (
	methodSessionsCreate  = "sessions.create"
	methodChatSend        = "chat.send"
	methodEventsSubscribe = "events.subscribe"
)

// rpcTimeout bounds an RPC only when the caller set no deadline of its
// own. A var so tests can shrink it.
var rpcTimeout = 30 * time.Second

type requestFrame struct {
	Type   string          `json:"type"`
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type responseFrame struct {
	Type   string          `json:"type"`
	ID     string          `json:"id"`
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *frameError     `json:"error,omitempty"`
}

type frameError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type eventFrame struct {
	Type  string `json:"type"`
	Event Event  `json:"event"`
}

// GatewayClient talks to the backend gateway over JSON websocket frames.
// Each RPC uses a short-lived connection; SubscribeEvents holds a
// dedicated one for the life of the stream.
type GatewayClient struct {
	url    string
	token  string
	dialer *websocket.Dialer
}

// NewGatewayClient creates a client for the gateway at url (ws:// or
// wss://). token, if set, is sent as a bearer Authorization header.
func NewGatewayClient(url, token string) *GatewayClient {
	return &GatewayClient{
		url:    url,
		token:  token,
		dialer: &websocket.Dialer{HandshakeTimeout: 15 * time.Second},
	}
}

func (g *GatewayClient) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if g.token != "" {
		header.Set("Authorization", "Bearer "+g.token)
	}
	conn, _, err := g.dialer.DialContext(ctx, g.url, header)
	if err != nil {
		return nil, fmt.Errorf("gateway dial %s: %w", g.url, err)
	}
	return conn, nil
}

// call performs one request/response RPC on a fresh connection. A
// caller-supplied deadline governs the whole call; the default applies
// only when the caller set none.
func (g *GatewayClient) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rpcTimeout)
		defer cancel()
	}

	conn, err := g.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal %s params: %w", method, err)
	}
	req := requestFrame{
		Type:   "request",
		ID:     uuid.NewString()[:8],
		Method: method,
		Params: paramsJSON,
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
		conn.SetWriteDeadline(deadline)
	}
	if err := conn.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	var resp responseFrame
	if err := conn.ReadJSON(&resp); err != nil {
		return nil, fmt.Errorf("read %s response: %w", method, err)
	}
	if !resp.OK {
		if resp.Error != nil {
			if resp.Error.Code == "not_found" {
				return nil, fmt.Errorf("%s: %w", method, ErrSessionGone)
			}
			return nil, fmt.Errorf("%s rejected: %s: %s", method, resp.Error.Code, resp.Error.Message)
		}
		return nil, fmt.Errorf("%s rejected", method)
	}
	return resp.Result, nil
}

// CreateSession implements Client.
func (g *GatewayClient) CreateSession(ctx context.Context, title string) (string, error) {
	result, err := g.call(ctx, methodSessionsCreate, map[string]string{"title": title})
	if err != nil {
		return "", err
	}
	var out struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(result, &out); err != nil {
		return "", fmt.Errorf("decode sessions.create result: %w", err)
	}
	if out.SessionID == "" {
		return "", fmt.Errorf("sessions.create returned no session id")
	}
	return out.SessionID, nil
}

// Prompt implements Client. The gateway acks receipt; the response
// itself arrives on the event stream.
func (g *GatewayClient) Prompt(ctx context.Context, sessionID, text string) error {
	_, err := g.call(ctx, methodChatSend, map[string]string{
		"sessionId": sessionID,
		"message":   text,
	})
	return err
}

// SubscribeEvents implements Client.
func (g *GatewayClient) SubscribeEvents(ctx context.Context) (EventStream, error) {
	conn, err := g.dial(ctx)
	if err != nil {
		return nil, err
	}

	req := requestFrame{
		Type:   "request",
		ID:     uuid.NewString()[:8],
		Method: methodEventsSubscribe,
	}
	if err := conn.WriteJSON(req); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send events.subscribe: %w", err)
	}
	var resp responseFrame
	if err := conn.ReadJSON(&resp); err != nil {
		conn.Close()
		return nil, fmt.Errorf("read events.subscribe response: %w", err)
	}
	if !resp.OK {
		conn.Close()
		if resp.Error != nil {
			return nil, fmt.Errorf("events.subscribe rejected: %s", resp.Error.Message)
		}
		return nil, fmt.Errorf("events.subscribe rejected")
	}

	return &wsEventStream{conn: conn}, nil
}

// wsEventStream reads event frames off a dedicated connection.
type wsEventStream struct {
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
}

func (s *wsEventStream) Next(ctx context.Context) (Event, error) {
	// Unblock the read when ctx is cancelled by nudging the deadline.
	stop := context.AfterFunc(ctx, func() {
		s.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		var frame eventFrame
		if err := s.conn.ReadJSON(&frame); err != nil {
			if ctx.Err() != nil {
				return Event{}, ctx.Err()
			}
			return Event{}, fmt.Errorf("event stream read: %w", err)
		}
		if frame.Type != "event" {
			continue
		}
		return frame.Event, nil
	}
}

func (s *wsEventStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}
