package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"app/internal/llm"
	"app/internal/model"
	"app/internal/policy"
	"app/internal/repository"

	"github.com/rs/zerolog"
)

var (
	ErrChatNotFound = errors.New("chat not found")
	ErrUnauthorized = errors.New("unauthorized access")
)

// ChatsPerPage is the chat history page size.
const ChatsPerPage = 25

// ChatPage is one page of a user's chat history, newest-updated first.
type ChatPage struct {
	Chats   []model.Chat
	Page    int
	PerPage int
	Total   int
}

// ChatUpdate carries the optional sub-operations of a chat update. Vote
// update and metadata update are independent.
type ChatUpdate struct {
	Title      *string
	Visibility *model.Visibility
	MessageID  *string
	IsUpvoted  *bool
}

// StreamEvent is one line of the newline-delimited JSON stream protocol.
type StreamEvent struct {
	EventType string         `json:"eventType"`
	Content   string         `json:"content,omitempty"`
	ToolName  string         `json:"toolName,omitempty"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Result    string         `json:"result,omitempty"`
}

// EmitFunc delivers one stream event to the client. A non-nil error means the
// client is unreachable and the stream must be aborted.
type EmitFunc func(event *StreamEvent) error

// StreamOptions configures the streaming relay.
type StreamOptions struct {
	SystemPrompt   string
	MaxToolSteps   int
	MaxTokens      int
	ThinkingBudget int
}

type ChatService interface {
	CreateChat(ctx context.Context, user *model.User, title string, visibility model.Visibility) (*model.Chat, error)
	ListChats(ctx context.Context, user *model.User, page int) (*ChatPage, error)
	GetChat(ctx context.Context, user *model.User, chatID string) (*model.Chat, []model.Message, error)
	UpdateChat(ctx context.Context, user *model.User, chatID string, update ChatUpdate) (*model.Chat, error)
	DeleteChat(ctx context.Context, user *model.User, chatID string) error
	StreamChatResponse(ctx context.Context, user *model.User, chatID, message, modelID string, emit EmitFunc) error
}

type chatService struct {
	chatRepo  repository.ChatRepository
	llmClient llm.Client
	tools     *ChatTools
	options   StreamOptions
	logger    zerolog.Logger
}

func NewChatService(
	chatRepo repository.ChatRepository,
	llmClient llm.Client,
	tools *ChatTools,
	options StreamOptions,
	logger zerolog.Logger,
) ChatService {
	if options.SystemPrompt == "" {
		options.SystemPrompt = defaultSystemPrompt
	}
	if options.MaxToolSteps <= 0 {
		options.MaxToolSteps = 3
	}
	return &chatService{
		chatRepo:  chatRepo,
		llmClient: llmClient,
		tools:     tools,
		options:   options,
		logger:    logger.With().Str("service", "ChatService").Logger(),
	}
}

func (s *chatService) CreateChat(ctx context.Context, user *model.User, title string, visibility model.Visibility) (*model.Chat, error) {
	if !policy.Create(user) {
		return nil, ErrUnauthorized
	}
	if !visibility.Valid() {
		visibility = model.VisibilityPrivate
	}

	chat, err := s.chatRepo.CreateChat(ctx, user.ID, title, visibility)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", user.ID).Msg("Failed to create chat")
		return nil, fmt.Errorf("creating chat: %w", err)
	}
	return chat, nil
}

func (s *chatService) ListChats(ctx context.Context, user *model.User, page int) (*ChatPage, error) {
	if page < 1 {
		page = 1
	}
	result := &ChatPage{Chats: []model.Chat{}, Page: page, PerPage: ChatsPerPage}

	// Browsing is open to anonymous callers, but history is owner-scoped,
	// so they always see an empty page.
	if user == nil {
		return result, nil
	}

	chats, err := s.chatRepo.ListChats(ctx, user.ID, ChatsPerPage, (page-1)*ChatsPerPage)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", user.ID).Msg("Failed to list chats")
		return nil, fmt.Errorf("listing chats: %w", err)
	}
	total, err := s.chatRepo.CountChats(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("counting chats: %w", err)
	}
	if chats != nil {
		result.Chats = chats
	}
	result.Total = total
	return result, nil
}

func (s *chatService) GetChat(ctx context.Context, user *model.User, chatID string) (*model.Chat, []model.Message, error) {
	chat, err := s.chatRepo.GetChat(ctx, chatID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrChatNotFound
		}
		return nil, nil, fmt.Errorf("getting chat: %w", err)
	}
	if !policy.View(user, chat) {
		return nil, nil, ErrUnauthorized
	}

	messages, err := s.chatRepo.ListMessages(ctx, chat.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("chat_id", chat.ID).Msg("Failed to list messages")
		return nil, nil, fmt.Errorf("listing messages: %w", err)
	}
	return chat, messages, nil
}

func (s *chatService) UpdateChat(ctx context.Context, user *model.User, chatID string, update ChatUpdate) (*model.Chat, error) {
	chat, err := s.chatRepo.GetChat(ctx, chatID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("getting chat: %w", err)
	}
	if !policy.Update(user, chat) {
		return nil, ErrUnauthorized
	}

	// Vote sub-operation. A vote against a message that does not belong to
	// this chat is skipped, not an error.
	if update.MessageID != nil && update.IsUpvoted != nil {
		message, err := s.chatRepo.GetMessage(ctx, *update.MessageID)
		if err == nil && message.ChatID == chat.ID {
			if err := s.chatRepo.UpdateMessageVote(ctx, message.ID, *update.IsUpvoted); err != nil {
				s.logger.Error().Err(err).Str("message_id", message.ID).Msg("Failed to update message vote")
				return nil, fmt.Errorf("updating message vote: %w", err)
			}
		} else if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("getting message: %w", err)
		}
	}

	// Metadata sub-operation.
	title := chat.Title
	if update.Title != nil && *update.Title != "" {
		title = *update.Title
	}
	visibility := chat.Visibility
	if update.Visibility != nil && update.Visibility.Valid() {
		visibility = *update.Visibility
	}
	if title != chat.Title || visibility != chat.Visibility {
		chat, err = s.chatRepo.UpdateChat(ctx, chat.ID, title, visibility)
		if err != nil {
			s.logger.Error().Err(err).Str("chat_id", chatID).Msg("Failed to update chat")
			return nil, fmt.Errorf("updating chat: %w", err)
		}
	}

	return chat, nil
}

func (s *chatService) DeleteChat(ctx context.Context, user *model.User, chatID string) error {
	chat, err := s.chatRepo.GetChat(ctx, chatID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrChatNotFound
		}
		return fmt.Errorf("getting chat: %w", err)
	}
	if !policy.Delete(user, chat) {
		return ErrUnauthorized
	}

	if err := s.chatRepo.DeleteChat(ctx, chat.ID); err != nil {
		s.logger.Error().Err(err).Str("chat_id", chat.ID).Msg("Failed to delete chat")
		return fmt.Errorf("deleting chat: %w", err)
	}
	return nil
}

// StreamChatResponse relays a generation stream to the client. Any error
// returned occurred before the first event was emitted; failures after that
// point are reported in-band as an error event and logged.
func (s *chatService) StreamChatResponse(ctx context.Context, user *model.User, chatID, message, modelID string, emit EmitFunc) error {
	chat, err := s.chatRepo.GetChat(ctx, chatID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrChatNotFound
		}
		return fmt.Errorf("getting chat: %w", err)
	}
	if !policy.Update(user, chat) {
		return ErrUnauthorized
	}

	if _, err := s.chatRepo.CreateMessage(ctx, chat.ID, model.RoleUser, model.MessageParts{"text": message}); err != nil {
		s.logger.Error().Err(err).Str("chat_id", chat.ID).Msg("Failed to create user message")
		return fmt.Errorf("creating user message: %w", err)
	}

	storedMessages, err := s.chatRepo.ListMessages(ctx, chat.ID)
	if err != nil {
		return fmt.Errorf("listing messages: %w", err)
	}
	history, err := buildConversationHistory(storedMessages)
	if err != nil {
		// Data integrity violation; surface it, never coerce.
		return fmt.Errorf("building conversation history: %w", err)
	}

	stream, err := s.llmClient.GenerateStream(ctx, &llm.GenerateRequest{
		Model:          llm.Resolve(modelID),
		SystemPrompt:   s.options.SystemPrompt,
		Messages:       history,
		Tools:          s.tools.AvailableTools(),
		MaxSteps:       s.options.MaxToolSteps,
		MaxTokens:      s.options.MaxTokens,
		ThinkingBudget: s.options.ThinkingBudget,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("chat_id", chat.ID).Msg("Failed to open generation stream")
		s.emitError(chat.ID, emit)
		return nil
	}
	defer stream.Close()

	parts := map[string]string{"text": "", "thinking": ""}
	hasToolCalls := false

	for {
		event, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// The accumulator is discarded: a partial assistant turn is
			// never persisted.
			s.logger.Error().Err(err).Str("chat_id", chat.ID).Msg("Chat stream failed")
			s.emitError(chat.ID, emit)
			return nil
		}

		wireEvent := toStreamEvent(event)
		if wireEvent == nil {
			continue
		}

		switch event.Type {
		case llm.EventTextDelta:
			parts["text"] += event.Content
		case llm.EventThinking:
			parts["thinking"] += event.Content
		case llm.EventToolCall:
			hasToolCalls = true
		}

		if err := emit(wireEvent); err != nil {
			s.logger.Warn().Err(err).Str("chat_id", chat.ID).Msg("Client disconnected mid-stream")
			return nil
		}
	}

	filtered := make(model.MessageParts)
	for kind, content := range parts {
		if content != "" {
			filtered[kind] = content
		}
	}

	if len(filtered) > 0 || hasToolCalls {
		if len(filtered) == 0 {
			// Tool-only turn: keep an empty-text placeholder so the turn is
			// recorded.
			filtered = model.MessageParts{"text": ""}
		}
		if _, err := s.chatRepo.CreateMessage(ctx, chat.ID, model.RoleAssistant, filtered); err != nil {
			s.logger.Error().Err(err).Str("chat_id", chat.ID).Msg("Failed to save assistant message")
			s.emitError(chat.ID, emit)
			return nil
		}
		if err := s.chatRepo.TouchChat(ctx, chat.ID); err != nil {
			s.logger.Error().Err(err).Str("chat_id", chat.ID).Msg("Failed to touch chat")
		}
	}

	if err := emit(&StreamEvent{EventType: "stream_end"}); err != nil {
		s.logger.Warn().Err(err).Str("chat_id", chat.ID).Msg("Client disconnected before stream end")
	}
	return nil
}

func (s *chatService) emitError(chatID string, emit EmitFunc) {
	event := &StreamEvent{
		EventType: "error",
		Content:   "Stream failed: upstream provider error",
	}
	if err := emit(event); err != nil {
		s.logger.Warn().Err(err).Str("chat_id", chatID).Msg("Failed to emit error event")
	}
}

// toStreamEvent translates a generation event to its wire form. Unknown event
// kinds are dropped, not forwarded.
func toStreamEvent(event *llm.Event) *StreamEvent {
	switch event.Type {
	case llm.EventTextDelta:
		return &StreamEvent{EventType: "text_delta", Content: event.Content}
	case llm.EventThinking:
		return &StreamEvent{EventType: "thinking", Content: event.Content}
	case llm.EventToolCall:
		return &StreamEvent{EventType: "tool_call", ToolName: event.ToolName, Arguments: event.Arguments}
	case llm.EventToolResult:
		return &StreamEvent{EventType: "tool_result", ToolName: event.ToolName, Result: event.Result}
	default:
		return nil
	}
}
