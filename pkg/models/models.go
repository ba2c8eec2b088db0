package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Role identifies the author of a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Message is one persisted turn of a conversation. Content is always plain text;
// structured content from clients is flattened at the API boundary.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Conversation is the persisted unit of chat state
type Conversation struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Tags            []string  `json:"tags"`
	Messages        []Message `json:"messages"`
	Summary         string    `json:"summary,omitempty"`
	SummarizedCount int       `json:"summarizedCount,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// NewConversation starts a conversation with a single user message
func NewConversation(prompt string) *Conversation {
	return &Conversation{
		Tags:     []string{},
		Messages: []Message{{Role: RoleUser, Content: prompt}},
	}
}

// Settings is a per-user settings record
type Settings struct {
	UserID    string                 `json:"userId"`
	Settings  map[string]interface{} `json:"settings"`
	CreatedAt time.Time              `json:"createdAt"`
	UpdatedAt time.Time              `json:"updatedAt"`
}

// ContentBlock is one typed block of structured message content
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// MessageContent is the content of an inbound message. Clients send either a
// plain string (TextContent) or a list of typed blocks (StructuredContent).
type MessageContent struct {
	Text   string
	Blocks []ContentBlock
	// Structured is set when the content arrived as a block list
	Structured bool
}

// PlainText flattens the content to a single string. Non-text blocks are dropped.
func (mc MessageContent) PlainText() string {
	if !mc.Structured {
		return mc.Text
	}
	parts := make([]string, 0, len(mc.Blocks))
	for _, b := range mc.Blocks {
		if b.Type == "text" && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// UnmarshalJSON accepts a string or an array of content blocks
func (mc *MessageContent) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*mc = MessageContent{}
		return nil
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*mc = MessageContent{Text: s}
		return nil
	case '[':
		var blocks []ContentBlock
		if err := json.Unmarshal(trimmed, &blocks); err != nil {
			return err
		}
		*mc = MessageContent{Blocks: blocks, Structured: true}
		return nil
	}
	return fmt.Errorf("message content must be a string or a list of blocks")
}

// InboundMessage is a message as submitted by a client
type InboundMessage struct {
	Role    Role           `json:"role"`
	Content MessageContent `json:"content"`
}

// Normalize converts the inbound message to its persisted form
func (m InboundMessage) Normalize() Message {
	return Message{Role: m.Role, Content: m.Content.PlainText()}
}
