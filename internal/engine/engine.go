// Package engine keeps the local chat cache consistent with the remote
// conversation service. Every UI action funnels through it: it applies the
// optimistic local write first, then performs the remote round trip, and
// republishes the sorted, annotated chat list after every mutation.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"ChatSync/internal/cache"
	"ChatSync/internal/chat"
	"ChatSync/internal/gateway"
	"ChatSync/internal/title"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ErrSendInFlight is returned when AddMessage is called while a previous
// send has not finished. The losing call is dropped, not queued.
var ErrSendInFlight = errors.New("message send already in flight")

// Store is the local chat cache consumed by the engine.
type Store interface {
	Insert(ctx context.Context, c chat.Chat) (int64, error)
	Update(ctx context.Context, id int64, p chat.Patch) error
	Delete(ctx context.Context, id int64) error
	ListAll(ctx context.Context) ([]chat.Chat, error)
	ReplaceAll(ctx context.Context, chats []chat.Chat) error
}

// Gateway is the remote conversation service consumed by the engine.
type Gateway interface {
	CreateConversation(ctx context.Context, req gateway.CreateConversationRequest) (gateway.Conversation, error)
	ListConversations(ctx context.Context) ([]gateway.Conversation, error)
	SendInferenceQuery(ctx context.Context, query, imageData, conversationID string) (gateway.InferenceResponse, error)
}

// Notifier surfaces user-visible error strings.
type Notifier interface {
	Notify(message string)
}

// sendMode classifies an AddMessage call once at entry.
type sendMode int

const (
	// current chat exists but has no remote conversation yet
	sendFirstMessage sendMode = iota
	// current chat already has a remote conversation
	sendEstablished
	// no current chat selected; a new one is bootstrapped from the message
	sendBootstrap
)

// Engine owns the chat-list projection, the current-chat pointer and the
// single-flight send guard.
type Engine struct {
	store    Store
	gateway  Gateway
	notifier Notifier
	logger   *slog.Logger
	tracer   trace.Tracer
	meter    metric.Meter

	respCache sync.Map

	mu            sync.Mutex
	chats         []chat.Chat
	currentChatID int64
	inFlight      bool
}

// New creates an Engine. Call Refresh once afterwards to load the
// projection from the store.
func New(store Store, gw Gateway, notifier Notifier, logger *slog.Logger, tracer trace.Tracer, meter metric.Meter) *Engine {
	return &Engine{
		store:    store,
		gateway:  gw,
		notifier: notifier,
		logger:   logger,
		tracer:   tracer,
		meter:    meter,
	}
}

// Chats returns a snapshot of the projection: all chats sorted newest-first
// with Active set on the current one.
func (e *Engine) Chats() []chat.Chat {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]chat.Chat, len(e.chats))
	copy(out, e.chats)
	return out
}

// CurrentChatID returns the current chat's local id, 0 when none is
// selected.
func (e *Engine) CurrentChatID() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentChatID
}

// Refresh rereads the cache and rebuilds the projection.
func (e *Engine) Refresh(ctx context.Context) error {
	chats, err := e.store.ListAll(ctx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	sort.SliceStable(chats, func(i, j int) bool {
		if chats[i].CreatedAt.Equal(chats[j].CreatedAt) {
			return chats[i].ID > chats[j].ID
		}
		return chats[i].CreatedAt.After(chats[j].CreatedAt)
	})
	for i := range chats {
		chats[i].Active = chats[i].ID == e.currentChatID
	}
	e.chats = chats
	return nil
}

// CreateNewChat inserts a new empty chat and selects it. On storage failure
// no chat is left selected.
func (e *Engine) CreateNewChat(ctx context.Context) (int64, error) {
	e.mu.Lock()
	e.currentChatID = 0
	e.mu.Unlock()

	id, err := e.store.Insert(ctx, chat.Chat{Messages: []chat.Message{}, CreatedAt: time.Now()})
	if err != nil {
		e.notifier.Notify("failed to create chat")
		e.logger.Error("failed to create chat", "error", err)
		return 0, err
	}

	e.mu.Lock()
	e.currentChatID = id
	e.mu.Unlock()

	if err := e.Refresh(ctx); err != nil {
		e.notifier.Notify("failed to create chat")
		e.logger.Error("failed to refresh after create", "error", err)
		return id, err
	}

	e.logger.Info("chat created", "chat_id", id)
	return id, nil
}

// SetCurrentChat selects the chat with the given id; 0 starts a fresh chat.
// Selection only reflags the in-memory projection, the cache is not read
// and no remote fetch happens.
func (e *Engine) SetCurrentChat(ctx context.Context, id int64) error {
	if id == 0 {
		_, err := e.CreateNewChat(ctx)
		return err
	}

	e.mu.Lock()
	e.currentChatID = id
	for i := range e.chats {
		e.chats[i].Active = e.chats[i].ID == id
	}
	e.mu.Unlock()
	return nil
}

// AddMessage applies the user's message locally, then runs the remote round
// trip for whichever of the three send modes applies. At most one send is
// in flight engine-wide; a concurrent call returns ErrSendInFlight without
// touching any state. The optimistic write is never rolled back on remote
// failure.
func (e *Engine) AddMessage(ctx context.Context, msg chat.Message) error {
	ctx, span := e.tracer.Start(ctx, "add_message")
	defer span.End()

	e.mu.Lock()
	if e.inFlight {
		e.mu.Unlock()
		e.count(ctx, "engine.sends.dropped")
		e.logger.Info("message dropped, another send is in flight")
		return ErrSendInFlight
	}
	e.inFlight = true

	mode := sendBootstrap
	var current chat.Chat
	if e.currentChatID != 0 {
		for _, c := range e.chats {
			if c.ID == e.currentChatID {
				current = c
				if c.ConversationID == "" {
					mode = sendFirstMessage
				} else {
					mode = sendEstablished
				}
				break
			}
		}
	}
	e.mu.Unlock()

	defer func() {
		if err := e.Refresh(ctx); err != nil {
			e.logger.Error("failed to refresh projection", "error", err)
		}
		e.mu.Lock()
		e.inFlight = false
		e.mu.Unlock()
	}()

	var err error
	switch mode {
	case sendFirstMessage:
		err = e.sendFirstMessage(ctx, current, msg)
	case sendEstablished:
		err = e.sendEstablished(ctx, current, msg)
	case sendBootstrap:
		err = e.sendBootstrap(ctx, msg)
	}
	if err != nil {
		e.notifier.Notify("failed to send message")
		e.logger.Error("failed to send message", "error", err)
		return err
	}

	e.count(ctx, "engine.sends.completed")
	return nil
}

// sendFirstMessage handles a selected chat whose remote conversation does
// not exist yet: optimistic write with a generated title, then create the
// conversation, backfill its id and fetch the reply.
func (e *Engine) sendFirstMessage(ctx context.Context, current chat.Chat, msg chat.Message) error {
	msgs := append(append([]chat.Message{}, current.Messages...), msg)
	t := title.Generate(msg.Content)
	if err := e.store.Update(ctx, current.ID, chat.Patch{Title: &t, Messages: msgs}); err != nil {
		return err
	}
	if err := e.Refresh(ctx); err != nil {
		return err
	}

	conv, err := e.gateway.CreateConversation(ctx, gateway.CreateConversationRequest{
		Title:        t,
		FirstMessage: msg.Content,
	})
	if err != nil {
		return err
	}
	if err := e.store.Update(ctx, current.ID, chat.Patch{ConversationID: &conv.ID}); err != nil {
		return err
	}

	answer, err := e.inferReply(ctx, msgs, msg.Content, conv.ID)
	if err != nil {
		return err
	}
	msgs = append(msgs, chat.Message{Role: chat.RoleAssistant, Content: answer})
	return e.store.Update(ctx, current.ID, chat.Patch{Messages: msgs})
}

// sendEstablished handles a selected chat with a known remote conversation.
func (e *Engine) sendEstablished(ctx context.Context, current chat.Chat, msg chat.Message) error {
	msgs := append(append([]chat.Message{}, current.Messages...), msg)
	if err := e.store.Update(ctx, current.ID, chat.Patch{Messages: msgs}); err != nil {
		return err
	}
	if err := e.Refresh(ctx); err != nil {
		return err
	}

	answer, err := e.inferReply(ctx, msgs, msg.Content, current.ConversationID)
	if err != nil {
		return err
	}
	msgs = append(msgs, chat.Message{Role: chat.RoleAssistant, Content: answer})
	return e.store.Update(ctx, current.ID, chat.Patch{Messages: msgs})
}

// sendBootstrap handles a send with no chat selected: a new local chat is
// synthesized from the message and becomes current before any network call.
func (e *Engine) sendBootstrap(ctx context.Context, msg chat.Message) error {
	t := title.Generate(msg.Content)
	msgs := []chat.Message{msg}

	id, err := e.store.Insert(ctx, chat.Chat{
		Title:     t,
		Messages:  msgs,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.currentChatID = id
	e.mu.Unlock()

	if err := e.Refresh(ctx); err != nil {
		return err
	}

	conv, err := e.gateway.CreateConversation(ctx, gateway.CreateConversationRequest{
		Title:        t,
		FirstMessage: msg.Content,
	})
	if err != nil {
		return err
	}
	if err := e.store.Update(ctx, id, chat.Patch{ConversationID: &conv.ID}); err != nil {
		return err
	}

	answer, err := e.inferReply(ctx, msgs, msg.Content, conv.ID)
	if err != nil {
		return err
	}
	msgs = append(msgs, chat.Message{Role: chat.RoleAssistant, Content: answer})
	return e.store.Update(ctx, id, chat.Patch{Messages: msgs})
}

// inferReply fetches the assistant reply for the transcript, consulting the
// in-memory response cache first. The key includes the conversation id: the
// backend persists turns per conversation, so a reply generated for one
// conversation is never reused for another.
func (e *Engine) inferReply(ctx context.Context, transcript []chat.Message, query, conversationID string) (string, error) {
	key := cache.GenerateCacheKey(conversationID, transcript)
	if val, ok := e.respCache.Load(key); ok {
		cached := val.(cache.CachedResponse)
		e.logger.Info("inference cache hit", "key", key[:16])
		return cached.Answer, nil
	}

	resp, err := e.gateway.SendInferenceQuery(ctx, query, "", conversationID)
	if err != nil {
		return "", err
	}

	e.respCache.Store(key, cache.CachedResponse{Answer: resp.Answer, Timestamp: time.Now()})
	return resp.Answer, nil
}

// DeleteChat removes the chat from the cache. Deleting the current chat
// immediately starts a fresh one so no dangling selection remains.
func (e *Engine) DeleteChat(ctx context.Context, id int64) error {
	if id == 0 {
		return nil
	}

	if err := e.store.Delete(ctx, id); err != nil {
		e.notifier.Notify("failed to delete chat")
		e.logger.Error("failed to delete chat", "error", err, "chat_id", id)
		return err
	}

	e.mu.Lock()
	wasCurrent := e.currentChatID == id
	e.mu.Unlock()

	if wasCurrent {
		_, err := e.CreateNewChat(ctx)
		return err
	}
	if err := e.Refresh(ctx); err != nil {
		e.notifier.Notify("failed to delete chat")
		e.logger.Error("failed to refresh after delete", "error", err)
		return err
	}
	return nil
}

// FetchAndSyncConversations replaces the whole cache with the remote
// conversation list. The reimport is staged and swapped in one store
// transaction, so a failure leaves the previous cache intact. Local chats
// that never reached the backend are discarded; the remote service is the
// source of truth here.
func (e *Engine) FetchAndSyncConversations(ctx context.Context) error {
	ctx, span := e.tracer.Start(ctx, "fetch_and_sync")
	defer span.End()

	convs, err := e.gateway.ListConversations(ctx)
	if err != nil {
		e.notifier.Notify("failed to sync conversations")
		e.logger.Error("failed to list remote conversations", "error", err)
		return err
	}

	staged := make([]chat.Chat, 0, len(convs))
	for _, conv := range convs {
		msgs := make([]chat.Message, 0, len(conv.Messages))
		for _, m := range conv.Messages {
			msgs = append(msgs, chat.Message{Role: m.Role, Content: m.Content})
		}
		staged = append(staged, chat.Chat{
			ConversationID: conv.ID,
			Title:          conv.Title,
			Messages:       msgs,
			CreatedAt:      conv.CreatedAt,
		})
	}

	if err := e.store.ReplaceAll(ctx, staged); err != nil {
		e.notifier.Notify("failed to sync conversations")
		e.logger.Error("failed to replace cache", "error", err)
		return err
	}

	// Any prior selection is invalidated by the wholesale replacement.
	e.mu.Lock()
	e.currentChatID = 0
	e.mu.Unlock()

	e.count(ctx, "engine.resyncs.completed")
	e.logger.Info("conversations synced", "count", len(staged))

	if err := e.Refresh(ctx); err != nil {
		e.notifier.Notify("failed to sync conversations")
		e.logger.Error("failed to refresh after resync", "error", err)
		return err
	}
	return nil
}

func (e *Engine) count(ctx context.Context, name string) {
	counter, err := e.meter.Int64Counter(name)
	if err != nil {
		e.logger.Warn("failed to create counter", "name", name, "error", err)
		return
	}
	counter.Add(ctx, 1)
}
