package cache

import (
	"testing"

	"ChatSync/internal/chat"
)

func TestGenerateCacheKeyDeterministic(t *testing.T) {
	msgs := []chat.Message{
		{Role: chat.RoleUser, Content: "hello"},
		{Role: chat.RoleAssistant, Content: "hi there"},
	}
	k1 := GenerateCacheKey("conv-1", msgs)
	k2 := GenerateCacheKey("conv-1", msgs)
	if k1 != k2 {
		t.Fatalf("same conversation and transcript must key identically: %q vs %q", k1, k2)
	}
}

func TestGenerateCacheKeyScopedToConversation(t *testing.T) {
	msgs := []chat.Message{{Role: chat.RoleUser, Content: "hello"}}
	k1 := GenerateCacheKey("conv-1", msgs)
	k2 := GenerateCacheKey("conv-2", msgs)
	if k1 == k2 {
		t.Fatalf("identical transcripts in different conversations must not share a key")
	}
}

func TestGenerateCacheKeyTranscriptSensitive(t *testing.T) {
	k1 := GenerateCacheKey("conv-1", []chat.Message{{Role: chat.RoleUser, Content: "a"}})
	k2 := GenerateCacheKey("conv-1", []chat.Message{{Role: chat.RoleUser, Content: "b"}})
	if k1 == k2 {
		t.Fatalf("different transcripts must not share a key")
	}
}
