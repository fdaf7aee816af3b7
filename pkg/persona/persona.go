// Package persona defines the domain types shared by the platform's caching
// and realtime components.
package persona

import "time"

// Persona is a user-created AI profile.
type Persona struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	RelationType string    `json:"relationType"`
	UserID       string    `json:"userId"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Live persona status values carried by personaStatus events.
const (
	StatusOnline  = "online"
	StatusBusy    = "busy"
	StatusAway    = "away"
	StatusOffline = "offline"
)

// Status is the live availability of a persona. Updates are last-write-wins.
type Status struct {
	PersonaID string    `json:"personaId"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// ChatMessage is a single message in a conversation with a persona.
type ChatMessage struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	Role           string    `json:"role,omitempty"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
}

// TypingState reports whether a user is typing in a conversation.
type TypingState struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
}

// OnlineStatus records a user's presence as seen by the realtime layer.
type OnlineStatus struct {
	UserID   string    `json:"userId"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"lastSeen"`
}
