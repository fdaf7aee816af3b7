// Package realtime maintains one logical connection to the platform's
// messaging endpoint. It reconnects with exponential backoff after unexpected
// closures, dispatches inbound frames into a closed event union, and keeps a
// derived view (messages, typing indicators, persona statuses, online users)
// that UI code reads instead of handling frames itself.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/digital-persona/go-clientcore/pkg/persona"
	"github.com/digital-persona/go-clientcore/pkg/presence"
)

// ErrChannelClosed is returned by Connect after the channel was torn down.
var ErrChannelClosed = errors.New("realtime: channel is closed")

// ChannelConfig holds the channel's connection settings.
type ChannelConfig struct {
	// URL is the websocket endpoint, e.g. wss://host/ws.
	URL string
	// UserID identifies the local user in outbound typing and message
	// frames.
	UserID string
	// Backoff controls reconnection; zero values take the defaults.
	Backoff BackoffPolicy
	// Presence, when set, mirrors userJoined/userLeft events into a
	// shared presence cache. Optional.
	Presence presence.Cache[string, persona.OnlineStatus]
	// OnEvent, when set, is invoked for every decoded inbound event after
	// the derived state has been updated. Optional.
	OnEvent func(Event)
}

type typingKey struct {
	userID         string
	conversationID string
}

// Channel is a single logical connection with automatic reconnect. All
// methods are safe for concurrent use.
//
// Derived state is reset only by Close, not by reconnect: messages received
// before a drop are retained, and since there is no resync protocol a
// reconnect can leave gaps in the message history. Reconnects() exposes how
// often that may have happened so callers can resynchronize themselves.
type Channel struct {
	cfg     ChannelConfig
	dialer  Dialer
	logger  zerolog.Logger
	backoff BackoffPolicy

	mu             sync.Mutex
	state          ConnectionState
	transport      Transport
	attempts       int
	reconnects     int
	everConnected  bool
	reconnectTimer *time.Timer
	closed         bool
	ctx            context.Context
	token          string

	messages []persona.ChatMessage
	typing   map[typingKey]persona.TypingState
	statuses map[string]persona.Status
	online   map[string]struct{}

	wg sync.WaitGroup
}

// NewChannel creates a Channel. It does not connect.
func NewChannel(cfg ChannelConfig, dialer Dialer, logger zerolog.Logger) (*Channel, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("channel URL cannot be empty")
	}
	if dialer == nil {
		return nil, fmt.Errorf("dialer cannot be nil")
	}
	return &Channel{
		cfg:      cfg,
		dialer:   dialer,
		logger:   logger.With().Str("component", "RealtimeChannel").Logger(),
		backoff:  cfg.Backoff.normalized(),
		state:    Disconnected,
		typing:   make(map[typingKey]persona.TypingState),
		statuses: make(map[string]persona.Status),
		online:   make(map[string]struct{}),
	}, nil
}

// Connect opens the transport with the token embedded in the connection
// request. It is idempotent: a no-op when already connecting or connected.
// A failed dial returns the error and leaves the reconnect policy running in
// the background.
func (c *Channel) Connect(ctx context.Context, token string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	if c.state != Disconnected {
		c.mu.Unlock()
		return nil
	}
	c.state = Connecting
	c.ctx = ctx
	c.token = token
	c.mu.Unlock()

	return c.dialAndRun(ctx)
}

// State returns the current connection state.
func (c *Channel) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Reconnects returns how many times the channel has re-established a dropped
// connection. Each reconnect may mean a gap in the message history.
func (c *Channel) Reconnects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnects
}

// Close tears the channel down: it cancels any pending reconnect timer,
// closes the transport with the normal-closure code and resets the derived
// state. The channel cannot be reused afterwards.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	t := c.transport
	c.transport = nil
	c.state = Disconnected
	c.messages = nil
	c.typing = make(map[typingKey]persona.TypingState)
	c.statuses = make(map[string]persona.Status)
	c.online = make(map[string]struct{})
	c.mu.Unlock()

	var err error
	if t != nil {
		err = t.Close(true)
	}
	c.wg.Wait()
	return err
}

func (c *Channel) connectURL() (string, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("invalid channel URL %q: %w", c.cfg.URL, err)
	}
	q := u.Query()
	q.Set("token", c.token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// dialAndRun performs one connection attempt. The caller must have moved the
// state to Connecting.
func (c *Channel) dialAndRun(ctx context.Context) error {
	c.mu.Lock()
	target, err := c.connectURL()
	c.mu.Unlock()
	if err != nil {
		return err
	}

	t, err := c.dialer.Dial(ctx, target)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Connection attempt failed.")
		c.mu.Lock()
		c.state = Disconnected
		c.scheduleReconnectLocked()
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = t.Close(true)
		return ErrChannelClosed
	}
	c.transport = t
	c.state = Connected
	c.attempts = 0
	if c.everConnected {
		c.reconnects++
	}
	c.everConnected = true
	c.mu.Unlock()

	c.logger.Info().Msg("Connected to realtime endpoint.")
	c.wg.Add(1)
	go c.readLoop(t)
	return nil
}

// scheduleReconnectLocked arms the reconnect timer after an unexpected
// closure. The timer is the only deferred operation in the channel; Close and
// a successful reconnect both cancel it, so at most one attempt is pending.
func (c *Channel) scheduleReconnectLocked() {
	if c.closed {
		return
	}
	if !c.backoff.ShouldRetry(c.attempts) {
		c.logger.Error().Int("attempts", c.attempts).Msg("Reconnect attempts exhausted; staying disconnected.")
		return
	}
	delay := c.backoff.Delay(c.attempts)
	c.attempts++
	c.logger.Info().Dur("delay", delay).Int("attempt", c.attempts).Msg("Scheduling reconnect.")
	c.reconnectTimer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		if c.closed || c.state != Disconnected {
			c.mu.Unlock()
			return
		}
		c.state = Connecting
		c.reconnectTimer = nil
		ctx := c.ctx
		c.mu.Unlock()
		_ = c.dialAndRun(ctx)
	})
}

func (c *Channel) readLoop(t Transport) {
	defer c.wg.Done()
	for {
		frame, err := t.Read()
		if err != nil {
			c.onClosed(err)
			return
		}
		c.handleFrame(frame)
	}
}

func (c *Channel) onClosed(err error) {
	c.mu.Lock()
	c.transport = nil
	c.state = Disconnected
	if c.closed || errors.Is(err, ErrNormalClosure) {
		c.mu.Unlock()
		c.logger.Debug().Msg("Connection closed.")
		return
	}
	c.logger.Warn().Err(err).Msg("Connection closed unexpectedly.")
	c.scheduleReconnectLocked()
	c.mu.Unlock()
}

// handleFrame decodes one inbound frame and folds it into the derived state.
// Malformed frames and unknown types are logged and skipped; neither tears
// the connection down.
func (c *Channel) handleFrame(frame []byte) {
	event, err := DecodeEvent(frame)
	if err != nil {
		if errors.Is(err, ErrUnknownEventType) {
			c.logger.Warn().Err(err).Msg("Ignoring frame with unknown type.")
		} else {
			c.logger.Warn().Err(err).Msg("Ignoring malformed frame.")
		}
		return
	}

	c.mu.Lock()
	switch e := event.(type) {
	case MessageEvent:
		// Append-only, arrival order, no de-duplication by id.
		c.messages = append(c.messages, e.Message)
	case TypingEvent:
		key := typingKey{userID: e.Typing.UserID, conversationID: e.Typing.ConversationID}
		if e.Typing.IsTyping {
			c.typing[key] = e.Typing
		} else {
			delete(c.typing, key)
		}
	case PersonaStatusEvent:
		// Last write wins.
		c.statuses[e.Status.PersonaID] = e.Status
	case UserJoinedEvent:
		c.online[e.UserID] = struct{}{}
	case UserLeftEvent:
		delete(c.online, e.UserID)
	}
	ctx := c.ctx
	c.mu.Unlock()

	c.mirrorPresence(ctx, event)
	if c.cfg.OnEvent != nil {
		c.cfg.OnEvent(event)
	}
}

func (c *Channel) mirrorPresence(ctx context.Context, event Event) {
	if c.cfg.Presence == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	switch e := event.(type) {
	case UserJoinedEvent:
		status := persona.OnlineStatus{UserID: e.UserID, Online: true, LastSeen: time.Now().UTC()}
		if err := c.cfg.Presence.Set(ctx, e.UserID, status); err != nil {
			c.logger.Warn().Err(err).Str("user_id", e.UserID).Msg("Failed to mirror join into presence cache.")
		}
	case UserLeftEvent:
		if err := c.cfg.Presence.Delete(ctx, e.UserID); err != nil {
			c.logger.Warn().Err(err).Str("user_id", e.UserID).Msg("Failed to mirror leave into presence cache.")
		}
	}
}

// send serializes one outbound frame and writes it if connected. When not
// connected the frame is dropped, not queued: outbound delivery is explicitly
// at most once, best effort.
func (c *Channel) send(eventType string, payload any) error {
	c.mu.Lock()
	if c.state != Connected || c.transport == nil {
		c.mu.Unlock()
		c.logger.Debug().Str("type", eventType).Msg("Not connected; dropping outbound frame.")
		return nil
	}
	t := c.transport
	c.mu.Unlock()

	frame, err := EncodeFrame(eventType, payload)
	if err != nil {
		return err
	}
	if err := t.Write(frame); err != nil {
		return fmt.Errorf("failed to write %s frame: %w", eventType, err)
	}
	return nil
}

type conversationRef struct {
	ConversationID string `json:"conversationId"`
}

// SendMessage sends a chat message and returns the locally assigned message.
func (c *Channel) SendMessage(conversationID, content string) (persona.ChatMessage, error) {
	msg := persona.ChatMessage{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       c.cfg.UserID,
		Role:           "user",
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}
	return msg, c.send(TypeSendMessage, msg)
}

// JoinConversation subscribes the connection to a conversation's events.
func (c *Channel) JoinConversation(conversationID string) error {
	return c.send(TypeJoinConversation, conversationRef{ConversationID: conversationID})
}

// LeaveConversation unsubscribes the connection from a conversation.
func (c *Channel) LeaveConversation(conversationID string) error {
	return c.send(TypeLeaveConversation, conversationRef{ConversationID: conversationID})
}

// StartTyping reports that the local user began typing.
func (c *Channel) StartTyping(conversationID string) error {
	return c.send(TypeStartTyping, persona.TypingState{
		UserID:         c.cfg.UserID,
		ConversationID: conversationID,
		IsTyping:       true,
	})
}

// StopTyping reports that the local user stopped typing.
func (c *Channel) StopTyping(conversationID string) error {
	return c.send(TypeStopTyping, persona.TypingState{
		UserID:         c.cfg.UserID,
		ConversationID: conversationID,
		IsTyping:       false,
	})
}

// UpdatePersonaStatus publishes a persona's live availability.
func (c *Channel) UpdatePersonaStatus(personaID, status string) error {
	return c.send(TypeUpdatePersonaStatus, persona.Status{
		PersonaID: personaID,
		Status:    status,
		UpdatedAt: time.Now().UTC(),
	})
}

// Messages returns a copy of the messages received so far, in arrival order.
func (c *Channel) Messages() []persona.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]persona.ChatMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

// TypingUsers returns everyone currently typing, one entry per
// (user, conversation) pair.
func (c *Channel) TypingUsers() []persona.TypingState {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]persona.TypingState, 0, len(c.typing))
	for _, ts := range c.typing {
		out = append(out, ts)
	}
	return out
}

// PersonaStatus returns the last known status for a persona.
func (c *Channel) PersonaStatus(personaID string) (persona.Status, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.statuses[personaID]
	return st, ok
}

// OnlineUsers returns the ids of users currently online.
func (c *Channel) OnlineUsers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.online))
	for id := range c.online {
		out = append(out, id)
	}
	return out
}
