// Package gateway hosts the server side of the realtime contract: a
// websocket hub that authenticates connections by bearer token, fans
// inbound frames out to the right peers and keeps a shared presence view.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/digital-persona/go-clientcore/pkg/persona"
	"github.com/digital-persona/go-clientcore/pkg/presence"
	"github.com/digital-persona/go-clientcore/pkg/realtime"
)

// TokenValidator authenticates the token query parameter of a connection
// request and resolves it to a user id.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (string, error)
}

// ValidatorFunc adapts a function to the TokenValidator interface.
type ValidatorFunc func(ctx context.Context, token string) (string, error)

// Validate implements TokenValidator.
func (f ValidatorFunc) Validate(ctx context.Context, token string) (string, error) {
	return f(ctx, token)
}

const (
	sendQueueSize = 32
	writeTimeout  = 10 * time.Second
)

// client is one live websocket connection owned by the hub.
type client struct {
	id            string
	userID        string
	ws            *websocket.Conn
	send          chan []byte
	conversations map[string]struct{}
}

// Hub accepts websocket connections and routes frames between them.
// Messages and typing indicators go to the members of their conversation;
// persona statuses and join/leave notices go to everyone.
type Hub struct {
	logger    zerolog.Logger
	validator TokenValidator
	presence  presence.Cache[string, persona.OnlineStatus]
	upgrader  websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*client
}

// NewHub creates a hub. presenceCache may be nil to disable the shared
// presence view.
func NewHub(validator TokenValidator, presenceCache presence.Cache[string, persona.OnlineStatus], logger zerolog.Logger) (*Hub, error) {
	if validator == nil {
		return nil, fmt.Errorf("token validator cannot be nil")
	}
	return &Hub{
		logger:    logger.With().Str("component", "RealtimeHub").Logger(),
		validator: validator,
		presence:  presenceCache,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The gateway sits behind the platform's own origin
			// checks; the hub accepts any origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[string]*client),
	}, nil
}

// HandleWS is the http.Handler for the websocket endpoint. It validates the
// token query parameter, upgrades the connection and serves it until closure.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	userID, err := h.validator.Validate(r.Context(), token)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Rejected connection with invalid token.")
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Websocket upgrade failed.")
		return
	}

	c := &client{
		id:            uuid.NewString(),
		userID:        userID,
		ws:            ws,
		send:          make(chan []byte, sendQueueSize),
		conversations: make(map[string]struct{}),
	}
	h.register(r.Context(), c)

	go c.writePump(h.logger)
	h.readPump(r.Context(), c)
}

// ClientCount reports how many connections are currently registered.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) register(ctx context.Context, c *client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()

	h.logger.Info().Str("user_id", c.userID).Str("conn_id", c.id).Msg("Client connected.")
	if h.presence != nil {
		status := persona.OnlineStatus{UserID: c.userID, Online: true, LastSeen: time.Now().UTC()}
		if err := h.presence.Set(ctx, c.userID, status); err != nil {
			h.logger.Warn().Err(err).Str("user_id", c.userID).Msg("Failed to record presence.")
		}
	}
	h.broadcast(realtime.TypeUserJoined, realtime.UserJoinedEvent{UserID: c.userID}, func(peer *client) bool {
		return peer.id != c.id
	})
}

func (h *Hub) unregister(ctx context.Context, c *client) {
	h.mu.Lock()
	delete(h.clients, c.id)
	close(c.send)
	lastOfUser := true
	for _, peer := range h.clients {
		if peer.userID == c.userID {
			lastOfUser = false
			break
		}
	}
	h.mu.Unlock()

	h.logger.Info().Str("user_id", c.userID).Str("conn_id", c.id).Msg("Client disconnected.")
	if lastOfUser {
		if h.presence != nil {
			if err := h.presence.Delete(ctx, c.userID); err != nil {
				h.logger.Warn().Err(err).Str("user_id", c.userID).Msg("Failed to clear presence.")
			}
		}
		h.broadcast(realtime.TypeUserLeft, realtime.UserLeftEvent{UserID: c.userID}, nil)
	}
}

// readPump consumes frames from one connection until it closes.
func (h *Hub) readPump(ctx context.Context, c *client) {
	defer func() {
		h.unregister(ctx, c)
		_ = c.ws.Close()
	}()

	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug().Err(err).Str("conn_id", c.id).Msg("Read failed; dropping connection.")
			}
			return
		}
		h.handleFrame(c, frame)
	}
}

// handleFrame routes one inbound operation. Unknown types and malformed
// payloads are logged and skipped.
func (h *Hub) handleFrame(c *client, frame []byte) {
	var env realtime.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		h.logger.Warn().Err(err).Str("conn_id", c.id).Msg("Ignoring malformed frame.")
		return
	}

	switch env.Type {
	case realtime.TypeSendMessage:
		var msg persona.ChatMessage
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			h.logger.Warn().Err(err).Msg("Ignoring malformed sendMessage payload.")
			return
		}
		if msg.SenderID == "" {
			msg.SenderID = c.userID
		}
		h.broadcast(realtime.TypeMessage, msg, h.conversationFilter(msg.ConversationID, c.id))
	case realtime.TypeStartTyping, realtime.TypeStopTyping:
		var ts persona.TypingState
		if err := json.Unmarshal(env.Payload, &ts); err != nil {
			h.logger.Warn().Err(err).Msg("Ignoring malformed typing payload.")
			return
		}
		ts.IsTyping = env.Type == realtime.TypeStartTyping
		if ts.UserID == "" {
			ts.UserID = c.userID
		}
		h.broadcast(realtime.TypeTyping, ts, h.conversationFilter(ts.ConversationID, c.id))
	case realtime.TypeUpdatePersonaStatus:
		var st persona.Status
		if err := json.Unmarshal(env.Payload, &st); err != nil {
			h.logger.Warn().Err(err).Msg("Ignoring malformed personaStatus payload.")
			return
		}
		h.broadcast(realtime.TypePersonaStatus, st, func(peer *client) bool {
			return peer.id != c.id
		})
	case realtime.TypeJoinConversation:
		var ref struct {
			ConversationID string `json:"conversationId"`
		}
		if err := json.Unmarshal(env.Payload, &ref); err != nil || ref.ConversationID == "" {
			h.logger.Warn().Msg("Ignoring malformed joinConversation payload.")
			return
		}
		h.mu.Lock()
		c.conversations[ref.ConversationID] = struct{}{}
		h.mu.Unlock()
	case realtime.TypeLeaveConversation:
		var ref struct {
			ConversationID string `json:"conversationId"`
		}
		if err := json.Unmarshal(env.Payload, &ref); err != nil || ref.ConversationID == "" {
			h.logger.Warn().Msg("Ignoring malformed leaveConversation payload.")
			return
		}
		h.mu.Lock()
		delete(c.conversations, ref.ConversationID)
		h.mu.Unlock()
	default:
		h.logger.Warn().Str("type", env.Type).Msg("Ignoring frame with unknown type.")
	}
}

// conversationFilter selects peers that joined the conversation, excluding
// the sender's own connection.
func (h *Hub) conversationFilter(conversationID, senderConnID string) func(*client) bool {
	return func(peer *client) bool {
		if peer.id == senderConnID {
			return false
		}
		_, member := peer.conversations[conversationID]
		return member
	}
}

// broadcast encodes one frame and queues it on every matching connection. A
// peer whose send queue is full drops the frame rather than stalling the hub.
func (h *Hub) broadcast(eventType string, payload any, filter func(*client) bool) {
	frame, err := realtime.EncodeFrame(eventType, payload)
	if err != nil {
		h.logger.Error().Err(err).Str("type", eventType).Msg("Failed to encode broadcast frame.")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, peer := range h.clients {
		if filter != nil && !filter(peer) {
			continue
		}
		select {
		case peer.send <- frame:
		default:
			h.logger.Warn().Str("conn_id", peer.id).Msg("Send queue full; dropping frame.")
		}
	}
}

// writePump drains the client's send queue onto the socket.
func (c *client) writePump(logger zerolog.Logger) {
	for frame := range c.send {
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
			logger.Debug().Err(err).Str("conn_id", c.id).Msg("Write failed.")
			return
		}
	}
}
