package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"app/internal/llm"
	"app/internal/model"
	"app/internal/repository"

	"github.com/rs/zerolog"
)

// fakeChatRepo is an in-memory ChatRepository.
type fakeChatRepo struct {
	chats    map[string]*model.Chat
	messages map[string]*model.Message
	nextID   int
	clock    time.Time
	touched  []string
}

func newFakeChatRepo() *fakeChatRepo {
	return &fakeChatRepo{
		chats:    map[string]*model.Chat{},
		messages: map[string]*model.Message{},
		clock:    time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (r *fakeChatRepo) id() string {
	r.nextID++
	return fmt.Sprintf("id-%d", r.nextID)
}

func (r *fakeChatRepo) tick() time.Time {
	r.clock = r.clock.Add(time.Second)
	return r.clock
}

func (r *fakeChatRepo) CreateChat(ctx context.Context, userID, title string, visibility model.Visibility) (*model.Chat, error) {
	now := r.tick()
	chat := &model.Chat{ID: r.id(), UserID: userID, Title: title, Visibility: visibility, CreatedAt: now, UpdatedAt: now}
	r.chats[chat.ID] = chat
	return chat, nil
}

func (r *fakeChatRepo) GetChat(ctx context.Context, chatID string) (*model.Chat, error) {
	chat, ok := r.chats[chatID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *chat
	return &copied, nil
}

func (r *fakeChatRepo) ListChats(ctx context.Context, userID string, limit, offset int) ([]model.Chat, error) {
	var chats []model.Chat
	for _, chat := range r.chats {
		if chat.UserID == userID {
			chats = append(chats, *chat)
		}
	}
	return chats, nil
}

func (r *fakeChatRepo) CountChats(ctx context.Context, userID string) (int, error) {
	count := 0
	for _, chat := range r.chats {
		if chat.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (r *fakeChatRepo) UpdateChat(ctx context.Context, chatID, title string, visibility model.Visibility) (*model.Chat, error) {
	chat, ok := r.chats[chatID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	chat.Title = title
	chat.Visibility = visibility
	chat.UpdatedAt = r.tick()
	copied := *chat
	return &copied, nil
}

func (r *fakeChatRepo) TouchChat(ctx context.Context, chatID string) error {
	r.touched = append(r.touched, chatID)
	if chat, ok := r.chats[chatID]; ok {
		chat.UpdatedAt = r.tick()
	}
	return nil
}

func (r *fakeChatRepo) DeleteChat(ctx context.Context, chatID string) error {
	if _, ok := r.chats[chatID]; !ok {
		return repository.ErrNotFound
	}
	delete(r.chats, chatID)
	for id, message := range r.messages {
		if message.ChatID == chatID {
			delete(r.messages, id)
		}
	}
	return nil
}

func (r *fakeChatRepo) CreateMessage(ctx context.Context, chatID, role string, parts model.MessageParts) (*model.Message, error) {
	now := r.tick()
	message := &model.Message{ID: r.id(), ChatID: chatID, Role: role, Parts: parts, Attachments: "[]", CreatedAt: now, UpdatedAt: now}
	r.messages[message.ID] = message
	return message, nil
}

func (r *fakeChatRepo) GetMessage(ctx context.Context, messageID string) (*model.Message, error) {
	message, ok := r.messages[messageID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *message
	return &copied, nil
}

func (r *fakeChatRepo) ListMessages(ctx context.Context, chatID string) ([]model.Message, error) {
	var messages []model.Message
	for _, message := range r.messages {
		if message.ChatID == chatID {
			messages = append(messages, *message)
		}
	}
	return messages, nil
}

func (r *fakeChatRepo) UpdateMessageVote(ctx context.Context, messageID string, isUpvoted bool) error {
	message, ok := r.messages[messageID]
	if !ok {
		return repository.ErrNotFound
	}
	message.IsUpvoted = &isUpvoted
	return nil
}

func (r *fakeChatRepo) messagesByRole(chatID, role string) []*model.Message {
	var result []*model.Message
	for _, message := range r.messages {
		if message.ChatID == chatID && message.Role == role {
			result = append(result, message)
		}
	}
	return result
}

// fakeStream replays canned events, then terminates with err (nil means EOF).
type fakeStream struct {
	events []*llm.Event
	err    error
	pos    int
}

func (s *fakeStream) Recv() (*llm.Event, error) {
	if s.pos < len(s.events) {
		event := s.events[s.pos]
		s.pos++
		return event, nil
	}
	if s.err != nil {
		return nil, s.err
	}
	return nil, io.EOF
}

func (s *fakeStream) Close() {}

type fakeLLMClient struct {
	stream  *fakeStream
	openErr error
	request *llm.GenerateRequest
}

func (c *fakeLLMClient) GenerateStream(ctx context.Context, request *llm.GenerateRequest) (llm.Stream, error) {
	c.request = request
	if c.openErr != nil {
		return nil, c.openErr
	}
	return c.stream, nil
}

func newTestService(repo *fakeChatRepo, client *fakeLLMClient) ChatService {
	return NewChatService(repo, client, NewChatTools(), StreamOptions{MaxTokens: 1024}, zerolog.Nop())
}

type eventRecorder struct {
	events  []*StreamEvent
	failAll bool
}

func (r *eventRecorder) emit(event *StreamEvent) error {
	if r.failAll {
		return errors.New("client gone")
	}
	r.events = append(r.events, event)
	return nil
}

func (r *eventRecorder) ofType(eventType string) []*StreamEvent {
	var result []*StreamEvent
	for _, event := range r.events {
		if event.EventType == eventType {
			result = append(result, event)
		}
	}
	return result
}

func seedChat(repo *fakeChatRepo, userID string, visibility model.Visibility) *model.Chat {
	chat, _ := repo.CreateChat(context.Background(), userID, "Test chat", visibility)
	return chat
}

func TestStreamChatResponseHappyPath(t *testing.T) {
	repo := newFakeChatRepo()
	chat := seedChat(repo, "u1", model.VisibilityPrivate)
	client := &fakeLLMClient{stream: &fakeStream{events: []*llm.Event{
		{Type: llm.EventThinking, Content: "pondering"},
		{Type: llm.EventTextDelta, Content: "Hel"},
		{Type: llm.EventTextDelta, Content: "lo"},
	}}}
	svc := newTestService(repo, client)
	rec := &eventRecorder{}

	err := svc.StreamChatResponse(context.Background(), &model.User{ID: "u1"}, chat.ID, "Hi there", "", rec.emit)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The user message is saved before relaying.
	userMessages := repo.messagesByRole(chat.ID, model.RoleUser)
	if len(userMessages) != 1 || userMessages[0].Parts["text"] != "Hi there" {
		t.Fatalf("expected one saved user message, got %v", userMessages)
	}

	// The deltas accumulate into a single assistant message.
	assistantMessages := repo.messagesByRole(chat.ID, model.RoleAssistant)
	if len(assistantMessages) != 1 {
		t.Fatalf("expected one assistant message, got %d", len(assistantMessages))
	}
	if assistantMessages[0].Parts["text"] != "Hello" {
		t.Fatalf("expected accumulated text Hello, got %q", assistantMessages[0].Parts["text"])
	}
	if assistantMessages[0].Parts["thinking"] != "pondering" {
		t.Fatalf("expected thinking part, got %v", assistantMessages[0].Parts)
	}

	if len(repo.touched) != 1 || repo.touched[0] != chat.ID {
		t.Fatalf("expected chat to be touched once, got %v", repo.touched)
	}

	if got := len(rec.ofType("text_delta")); got != 2 {
		t.Fatalf("expected 2 text_delta events, got %d", got)
	}
	last := rec.events[len(rec.events)-1]
	if last.EventType != "stream_end" {
		t.Fatalf("expected final stream_end event, got %s", last.EventType)
	}
}

func TestStreamChatResponseUsesDefaultModel(t *testing.T) {
	repo := newFakeChatRepo()
	chat := seedChat(repo, "u1", model.VisibilityPrivate)
	client := &fakeLLMClient{stream: &fakeStream{}}
	svc := newTestService(repo, client)
	rec := &eventRecorder{}

	if err := svc.StreamChatResponse(context.Background(), &model.User{ID: "u1"}, chat.ID, "Hi", "bogus-model", rec.emit); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.request.Model != llm.DefaultModel {
		t.Fatalf("expected fallback to default model, got %v", client.request.Model)
	}
	if client.request.MaxSteps != 3 {
		t.Fatalf("expected default max steps 3, got %d", client.request.MaxSteps)
	}
}

func TestStreamChatResponseForwardsGenerationSettings(t *testing.T) {
	repo := newFakeChatRepo()
	chat := seedChat(repo, "u1", model.VisibilityPrivate)
	client := &fakeLLMClient{stream: &fakeStream{}}
	svc := NewChatService(repo, client, NewChatTools(), StreamOptions{
		SystemPrompt:   "Be terse.",
		MaxToolSteps:   5,
		MaxTokens:      2048,
		ThinkingBudget: 1024,
	}, zerolog.Nop())
	rec := &eventRecorder{}

	if err := svc.StreamChatResponse(context.Background(), &model.User{ID: "u1"}, chat.ID, "Hi", "", rec.emit); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.request.SystemPrompt != "Be terse." {
		t.Fatalf("system prompt not forwarded: %q", client.request.SystemPrompt)
	}
	if client.request.MaxSteps != 5 || client.request.MaxTokens != 2048 {
		t.Fatalf("limits not forwarded: %+v", client.request)
	}
	if client.request.ThinkingBudget != 1024 {
		t.Fatalf("thinking budget not forwarded: %d", client.request.ThinkingBudget)
	}
}

func TestStreamChatResponseEmptyStreamSavesNothing(t *testing.T) {
	repo := newFakeChatRepo()
	chat := seedChat(repo, "u1", model.VisibilityPrivate)
	client := &fakeLLMClient{stream: &fakeStream{}}
	svc := newTestService(repo, client)
	rec := &eventRecorder{}

	if err := svc.StreamChatResponse(context.Background(), &model.User{ID: "u1"}, chat.ID, "Hi", "", rec.emit); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := repo.messagesByRole(chat.ID, model.RoleAssistant); len(got) != 0 {
		t.Fatalf("expected no assistant message for empty stream, got %d", len(got))
	}
	if len(repo.touched) != 0 {
		t.Fatal("expected no touch for empty stream")
	}
	if len(rec.ofType("stream_end")) != 1 {
		t.Fatal("expected stream_end even for empty stream")
	}
}

func TestStreamChatResponseToolOnlyTurnSavesPlaceholder(t *testing.T) {
	repo := newFakeChatRepo()
	chat := seedChat(repo, "u1", model.VisibilityPrivate)
	client := &fakeLLMClient{stream: &fakeStream{events: []*llm.Event{
		{Type: llm.EventToolCall, ToolName: "get_datetime", Arguments: map[string]any{"format": "iso"}},
		{Type: llm.EventToolResult, ToolName: "get_datetime", Result: `{"iso8601":"2025-04-01T09:00:00Z"}`},
	}}}
	svc := newTestService(repo, client)
	rec := &eventRecorder{}

	if err := svc.StreamChatResponse(context.Background(), &model.User{ID: "u1"}, chat.ID, "What time is it?", "", rec.emit); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assistantMessages := repo.messagesByRole(chat.ID, model.RoleAssistant)
	if len(assistantMessages) != 1 {
		t.Fatalf("expected placeholder assistant message, got %d", len(assistantMessages))
	}
	text, ok := assistantMessages[0].Parts["text"]
	if !ok || text != "" {
		t.Fatalf("expected empty-text placeholder, got %v", assistantMessages[0].Parts)
	}
	if len(rec.ofType("tool_call")) != 1 || len(rec.ofType("tool_result")) != 1 {
		t.Fatalf("expected tool events forwarded, got %v", rec.events)
	}
}

func TestStreamChatResponseMidStreamError(t *testing.T) {
	repo := newFakeChatRepo()
	chat := seedChat(repo, "u1", model.VisibilityPrivate)
	client := &fakeLLMClient{stream: &fakeStream{
		events: []*llm.Event{{Type: llm.EventTextDelta, Content: "partial"}},
		err:    errors.New("provider exploded"),
	}}
	svc := newTestService(repo, client)
	rec := &eventRecorder{}

	if err := svc.StreamChatResponse(context.Background(), &model.User{ID: "u1"}, chat.ID, "Hi", "", rec.emit); err != nil {
		t.Fatalf("expected nil after stream started, got %v", err)
	}

	// Partial output is discarded.
	if got := repo.messagesByRole(chat.ID, model.RoleAssistant); len(got) != 0 {
		t.Fatalf("expected no assistant message after failure, got %d", len(got))
	}

	errorEvents := rec.ofType("error")
	if len(errorEvents) != 1 {
		t.Fatalf("expected one error event, got %d", len(errorEvents))
	}
	if errorEvents[0].Content != "Stream failed: upstream provider error" {
		t.Fatalf("unexpected error content: %q", errorEvents[0].Content)
	}
	if len(rec.ofType("stream_end")) != 0 {
		t.Fatal("expected no stream_end after failure")
	}
}

func TestStreamChatResponseOpenFailureEmitsError(t *testing.T) {
	repo := newFakeChatRepo()
	chat := seedChat(repo, "u1", model.VisibilityPrivate)
	client := &fakeLLMClient{openErr: errors.New("no credentials")}
	svc := newTestService(repo, client)
	rec := &eventRecorder{}

	if err := svc.StreamChatResponse(context.Background(), &model.User{ID: "u1"}, chat.ID, "Hi", "", rec.emit); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if len(rec.ofType("error")) != 1 {
		t.Fatalf("expected one error event, got %v", rec.events)
	}
}

func TestStreamChatResponseAuthorization(t *testing.T) {
	repo := newFakeChatRepo()
	chat := seedChat(repo, "owner", model.VisibilityPublic)
	client := &fakeLLMClient{stream: &fakeStream{}}
	svc := newTestService(repo, client)
	rec := &eventRecorder{}

	// Public visibility grants viewing, not streaming.
	err := svc.StreamChatResponse(context.Background(), &model.User{ID: "stranger"}, chat.ID, "Hi", "", rec.emit)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if len(rec.events) != 0 {
		t.Fatal("expected no events for denied stream")
	}

	err = svc.StreamChatResponse(context.Background(), &model.User{ID: "stranger"}, "missing", "Hi", "", rec.emit)
	if !errors.Is(err, ErrChatNotFound) {
		t.Fatalf("expected ErrChatNotFound, got %v", err)
	}
}

func TestStreamChatResponseClientDisconnect(t *testing.T) {
	repo := newFakeChatRepo()
	chat := seedChat(repo, "u1", model.VisibilityPrivate)
	client := &fakeLLMClient{stream: &fakeStream{events: []*llm.Event{
		{Type: llm.EventTextDelta, Content: "Hello"},
	}}}
	svc := newTestService(repo, client)
	rec := &eventRecorder{failAll: true}

	if err := svc.StreamChatResponse(context.Background(), &model.User{ID: "u1"}, chat.ID, "Hi", "", rec.emit); err != nil {
		t.Fatalf("expected nil on client disconnect, got %v", err)
	}
	if got := repo.messagesByRole(chat.ID, model.RoleAssistant); len(got) != 0 {
		t.Fatalf("expected no assistant message after disconnect, got %d", len(got))
	}
}

func TestCreateChatRequiresUser(t *testing.T) {
	repo := newFakeChatRepo()
	svc := newTestService(repo, &fakeLLMClient{})

	if _, err := svc.CreateChat(context.Background(), nil, "Title", model.VisibilityPrivate); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestCreateChatDefaultsVisibility(t *testing.T) {
	repo := newFakeChatRepo()
	svc := newTestService(repo, &fakeLLMClient{})

	chat, err := svc.CreateChat(context.Background(), &model.User{ID: "u1"}, "Title", "weird")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chat.Visibility != model.VisibilityPrivate {
		t.Fatalf("expected private default, got %s", chat.Visibility)
	}
}

func TestListChatsAnonymousIsEmpty(t *testing.T) {
	repo := newFakeChatRepo()
	seedChat(repo, "u1", model.VisibilityPublic)
	svc := newTestService(repo, &fakeLLMClient{})

	page, err := svc.ListChats(context.Background(), nil, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Chats) != 0 || page.Total != 0 {
		t.Fatalf("expected empty page for anonymous caller, got %+v", page)
	}
	if page.PerPage != ChatsPerPage {
		t.Fatalf("expected per page %d, got %d", ChatsPerPage, page.PerPage)
	}
}

func TestGetChatVisibility(t *testing.T) {
	repo := newFakeChatRepo()
	svc := newTestService(repo, &fakeLLMClient{})
	public := seedChat(repo, "owner", model.VisibilityPublic)
	private := seedChat(repo, "owner", model.VisibilityPrivate)

	if _, _, err := svc.GetChat(context.Background(), nil, public.ID); err != nil {
		t.Fatalf("expected anonymous access to public chat, got %v", err)
	}
	if _, _, err := svc.GetChat(context.Background(), nil, private.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for private chat, got %v", err)
	}
	if _, _, err := svc.GetChat(context.Background(), &model.User{ID: "owner"}, private.ID); err != nil {
		t.Fatalf("expected owner access, got %v", err)
	}
	if _, _, err := svc.GetChat(context.Background(), nil, "missing"); !errors.Is(err, ErrChatNotFound) {
		t.Fatalf("expected ErrChatNotFound, got %v", err)
	}
}

func TestUpdateChatMetadata(t *testing.T) {
	repo := newFakeChatRepo()
	svc := newTestService(repo, &fakeLLMClient{})
	chat := seedChat(repo, "u1", model.VisibilityPrivate)
	owner := &model.User{ID: "u1"}

	title := "Renamed"
	visibility := model.VisibilityPublic
	updated, err := svc.UpdateChat(context.Background(), owner, chat.ID, ChatUpdate{Title: &title, Visibility: &visibility})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Title != "Renamed" || updated.Visibility != model.VisibilityPublic {
		t.Fatalf("unexpected chat after update: %+v", updated)
	}
}

func TestUpdateChatVote(t *testing.T) {
	repo := newFakeChatRepo()
	svc := newTestService(repo, &fakeLLMClient{})
	chat := seedChat(repo, "u1", model.VisibilityPrivate)
	owner := &model.User{ID: "u1"}
	message, _ := repo.CreateMessage(context.Background(), chat.ID, model.RoleAssistant, model.MessageParts{"text": "hi"})

	upvote := true
	if _, err := svc.UpdateChat(context.Background(), owner, chat.ID, ChatUpdate{MessageID: &message.ID, IsUpvoted: &upvote}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stored, _ := repo.GetMessage(context.Background(), message.ID)
	if stored.IsUpvoted == nil || !*stored.IsUpvoted {
		t.Fatalf("expected upvote recorded, got %v", stored.IsUpvoted)
	}
}

func TestUpdateChatVoteSkipsForeignMessage(t *testing.T) {
	repo := newFakeChatRepo()
	svc := newTestService(repo, &fakeLLMClient{})
	chat := seedChat(repo, "u1", model.VisibilityPrivate)
	other := seedChat(repo, "u1", model.VisibilityPrivate)
	owner := &model.User{ID: "u1"}
	message, _ := repo.CreateMessage(context.Background(), other.ID, model.RoleAssistant, model.MessageParts{"text": "hi"})

	upvote := true
	// Voting on a message from another chat is silently skipped.
	if _, err := svc.UpdateChat(context.Background(), owner, chat.ID, ChatUpdate{MessageID: &message.ID, IsUpvoted: &upvote}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stored, _ := repo.GetMessage(context.Background(), message.ID)
	if stored.IsUpvoted != nil {
		t.Fatal("expected vote to be skipped for foreign message")
	}
}

func TestUpdateChatOwnerOnly(t *testing.T) {
	repo := newFakeChatRepo()
	svc := newTestService(repo, &fakeLLMClient{})
	chat := seedChat(repo, "owner", model.VisibilityPublic)

	title := "Hijacked"
	if _, err := svc.UpdateChat(context.Background(), &model.User{ID: "stranger"}, chat.ID, ChatUpdate{Title: &title}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestDeleteChat(t *testing.T) {
	repo := newFakeChatRepo()
	svc := newTestService(repo, &fakeLLMClient{})
	chat := seedChat(repo, "u1", model.VisibilityPrivate)
	repo.CreateMessage(context.Background(), chat.ID, model.RoleUser, model.MessageParts{"text": "hi"})

	if err := svc.DeleteChat(context.Background(), &model.User{ID: "stranger"}, chat.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := svc.DeleteChat(context.Background(), &model.User{ID: "u1"}, chat.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := repo.GetChat(context.Background(), chat.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatal("expected chat to be gone")
	}
	if got, _ := repo.ListMessages(context.Background(), chat.ID); len(got) != 0 {
		t.Fatal("expected messages to be gone")
	}
	if err := svc.DeleteChat(context.Background(), &model.User{ID: "u1"}, chat.ID); !errors.Is(err, ErrChatNotFound) {
		t.Fatalf("expected ErrChatNotFound, got %v", err)
	}
}
