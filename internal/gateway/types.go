package gateway

import "time"

// ConversationMessage is a message as the backend represents it.
type ConversationMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Conversation is a server-side conversation record.
type Conversation struct {
	ID        string                `json:"id"`
	Title     string                `json:"title"`
	CreatedAt time.Time             `json:"createdAt"`
	Messages  []ConversationMessage `json:"messages"`
}

// CreateConversationRequest is the body for POST /conversations/.
type CreateConversationRequest struct {
	Title        string `json:"title,omitempty"`
	FirstMessage string `json:"firstMessage,omitempty"`
}

// InferenceRequest is the body for POST /agent/chat. The backend persists
// both the user turn and the generated assistant turn as a side effect.
type InferenceRequest struct {
	Query          string  `json:"query"`
	Model          string  `json:"model"`
	Temperature    float64 `json:"temperature"`
	MaxTokens      int     `json:"max_tokens"`
	ConversationID string  `json:"conversation_id,omitempty"`
	ImageData      string  `json:"image_data,omitempty"`
}

// InferenceResponse is the reply from POST /agent/chat.
type InferenceResponse struct {
	Answer         string   `json:"answer"`
	ConversationID string   `json:"conversation_id"`
	Sources        []string `json:"sources,omitempty"`
}
