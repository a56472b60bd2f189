package chat

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single chat message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat represents a locally cached conversation. ID is assigned by the
// local store on insert and never reused. ConversationID stays empty until
// the backend conversation exists; once set it is never cleared in place.
type Chat struct {
	ID             int64     `json:"id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Title          string    `json:"title,omitempty"`
	Messages       []Message `json:"messages"`
	CreatedAt      time.Time `json:"created_at"`
	Active         bool      `json:"-"`
}

// Patch holds a partial update for a stored chat. Nil fields are left
// untouched by the merge.
type Patch struct {
	ConversationID *string
	Title          *string
	Messages       []Message
}
