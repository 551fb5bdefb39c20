package models

// Role values for ChatMessage.Role.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ChatMessage struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	Role           string `json:"role"`
	Content        string `json:"content"`
	// ReasoningContent holds auxiliary "thinking" text, kept separate from
	// the final content and mutated in place while streaming completes
	ReasoningContent string `json:"reasoning_content"`
	// Created timestamp (ms since epoch); sole sort key within a conversation
	CreatedAt int64 `json:"createdAt"`
	// Optional provenance metadata
	Model    string `json:"model,omitempty"`
	Provider string `json:"provider,omitempty"`
	// Optional performance/usage metrics, write-once by the caller
	InputTokens       int     `json:"inputTokens,omitempty"`
	OutputTokens      int     `json:"outputTokens,omitempty"`
	FirstResponseTime int64   `json:"firstResponseTime,omitempty"`
	Speed             float64 `json:"speed,omitempty"`
}
