// Package cache keys inference replies by the conversation transcript, so
// re-sending an identical transcript can skip the network round trip.
package cache

import (
	"crypto/sha256"
	"fmt"
	"time"

	"ChatSync/internal/chat"
)

// CachedResponse represents a cached inference reply
type CachedResponse struct {
	Answer    string
	Timestamp time.Time
}

// GenerateCacheKey generates a cache key from the conversation id and the
// message transcript. The backend is conversation-scoped, so an identical
// transcript in a different conversation must not share a key.
func GenerateCacheKey(conversationID string, messages []chat.Message) string {
	h := sha256.New()
	h.Write([]byte(conversationID))
	for _, msg := range messages {
		h.Write([]byte(msg.Role))
		h.Write([]byte(msg.Content))
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
