package models

import (
	"encoding/json"
	"time"
)

// Role indicates the message author type.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is the unified, append-only unit of a conversation. Content is
// either plain text, a list of tool calls (assistant turns), or a tool
// result payload referencing a prior call id (tool turns). Messages are
// never mutated once appended to a session.
type Message struct {
	ID         string     `json:"id"`
	SessionID  string     `json:"session_id"`
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // set on Role=tool, pairs with the originating ToolCall.ID
	IsError    bool       `json:"is_error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// ToolCall is an LLM's request to execute a tool, emitted by assistant
// messages and paired 1:1 with a subsequent tool message carrying the same
// ID. Arguments are kept as raw JSON; the adapter boundary validates and
// decodes them against the tool's input schema.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolDefinition describes a tool's invocation contract. Immutable for the
// lifetime of the adapter that owns it; names must be unique across a
// registry.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// Session represents a single conversation thread owned by the session
// store. Branching is an optional capability layered on top (see Branch).
type Session struct {
	ID        string         `json:"id"`
	AgentID   string         `json:"agent_id,omitempty"`
	Title     string         `json:"title,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// User represents an authenticated operator of the system.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Agent represents a configured AI agent runtime profile: model, provider,
// system prompt, and the tool names it is allowed to reach for.
type Agent struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	SystemPrompt string         `json:"system_prompt,omitempty"`
	Model        string         `json:"model"`
	Provider     string         `json:"provider"`
	Tools        []string       `json:"tools,omitempty"`
	MaxTurns     int            `json:"max_turns,omitempty"`
	Config       map[string]any `json:"config,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}
