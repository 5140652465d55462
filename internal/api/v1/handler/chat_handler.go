package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"app/internal/api/v1/dto"
	"app/internal/middleware"
	"app/internal/model"
	"app/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

type ChatHandler struct {
	chatService service.ChatService
	validate    *validator.Validate
	logger      zerolog.Logger
}

func NewChatHandler(chatService service.ChatService, validate *validator.Validate, logger zerolog.Logger) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		validate:    validate,
		logger:      logger,
	}
}

func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux, authMw, optionalAuthMw func(http.Handler) http.Handler) {
	mux.Handle("GET /chats", optionalAuthMw(http.HandlerFunc(h.listChats)))
	mux.Handle("POST /chats", authMw(http.HandlerFunc(h.createChat)))
	mux.Handle("GET /chats/{chat}", optionalAuthMw(http.HandlerFunc(h.getChat)))
	mux.Handle("PATCH /chats/{chat}", authMw(http.HandlerFunc(h.updateChat)))
	mux.Handle("DELETE /chats/{chat}", authMw(http.HandlerFunc(h.deleteChat)))
	mux.Handle("POST /chats/{chat}/stream", authMw(http.HandlerFunc(h.streamChat)))
}

// createChat godoc
// @Summary Create a new chat
// @Description Creates a chat titled after the first message. Visibility defaults to private.
// @Tags chats
// @Accept json
// @Produce json
// @Param chat body dto.ChatCreateDTO true "Chat creation request"
// @Success 201 {object} dto.ChatResponseDTO
// @Failure 400 {string} string "Invalid JSON payload or validation failed"
// @Failure 401 {string} string "Unauthorized"
// @Router /chats [post]
func (h *ChatHandler) createChat(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req dto.ChatCreateDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	chat, err := h.chatService.CreateChat(r.Context(), user, req.Message, model.Visibility(req.Visibility))
	if err != nil {
		if errors.Is(err, service.ErrUnauthorized) {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		http.Error(w, "Failed to create chat", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusCreated, toChatDTO(chat))
}

// listChats godoc
// @Summary List the caller's chats
// @Description Returns the caller's chat history, newest-updated first, 25 per page. Anonymous callers get an empty page.
// @Tags chats
// @Produce json
// @Param page query int false "Page number" default(1)
// @Success 200 {object} dto.ChatListResponseDTO
// @Router /chats [get]
func (h *ChatHandler) listChats(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())

	page := 1
	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		if parsedPage, err := strconv.Atoi(pageStr); err == nil && parsedPage > 0 {
			page = parsedPage
		}
	}

	chatPage, err := h.chatService.ListChats(r.Context(), user, page)
	if err != nil {
		http.Error(w, "Failed to list chats", http.StatusInternalServerError)
		return
	}

	items := make([]dto.ChatResponseDTO, len(chatPage.Chats))
	for i, chat := range chatPage.Chats {
		items[i] = toChatDTO(&chat)
	}
	h.writeJSON(w, http.StatusOK, dto.ChatListResponseDTO{
		Items:   items,
		Page:    chatPage.Page,
		PerPage: chatPage.PerPage,
		Total:   chatPage.Total,
	})
}

// getChat godoc
// @Summary Get a chat with its messages
// @Description Retrieves a chat and its messages in conversation order. Public chats are readable without authentication.
// @Tags chats
// @Produce json
// @Param chat path string true "Chat ID"
// @Success 200 {object} dto.ChatShowResponseDTO
// @Failure 403 {string} string "Forbidden"
// @Failure 404 {string} string "Chat not found"
// @Router /chats/{chat} [get]
func (h *ChatHandler) getChat(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	chatID := r.PathValue("chat")

	chat, messages, err := h.chatService.GetChat(r.Context(), user, chatID)
	if err != nil {
		h.writeChatError(w, err, "Failed to get chat")
		return
	}

	resp := dto.ChatShowResponseDTO{
		Chat:     toChatDTO(chat),
		Messages: make([]dto.MessageResponseDTO, len(messages)),
	}
	for i, message := range messages {
		resp.Messages[i] = toMessageDTO(&message)
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// updateChat godoc
// @Summary Update a chat
// @Description Updates chat metadata (title, visibility) and/or a message vote. The two sub-operations are independent.
// @Tags chats
// @Accept json
// @Produce json
// @Param chat path string true "Chat ID"
// @Param request body dto.ChatUpdateDTO true "Chat update request"
// @Success 200 {object} dto.ChatResponseDTO
// @Failure 400 {string} string "Invalid JSON payload or validation failed"
// @Failure 403 {string} string "Forbidden"
// @Failure 404 {string} string "Chat not found"
// @Router /chats/{chat} [patch]
func (h *ChatHandler) updateChat(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	chatID := r.PathValue("chat")

	var req dto.ChatUpdateDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	update := service.ChatUpdate{
		Title:     req.Title,
		MessageID: req.MessageID,
		IsUpvoted: req.IsUpvoted,
	}
	if req.Visibility != nil {
		visibility := model.Visibility(*req.Visibility)
		update.Visibility = &visibility
	}

	chat, err := h.chatService.UpdateChat(r.Context(), user, chatID, update)
	if err != nil {
		h.writeChatError(w, err, "Failed to update chat")
		return
	}

	h.writeJSON(w, http.StatusOK, toChatDTO(chat))
}

// deleteChat godoc
// @Summary Delete a chat
// @Description Deletes a chat and all of its messages.
// @Tags chats
// @Param chat path string true "Chat ID"
// @Success 204 {string} string "No Content"
// @Failure 403 {string} string "Forbidden"
// @Failure 404 {string} string "Chat not found"
// @Router /chats/{chat} [delete]
func (h *ChatHandler) deleteChat(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	chatID := r.PathValue("chat")

	if err := h.chatService.DeleteChat(r.Context(), user, chatID); err != nil {
		h.writeChatError(w, err, "Failed to delete chat")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// streamChat godoc
// @Summary Stream an assistant response
// @Description Sends a user message and streams the assistant's response as newline-delimited JSON events. The user message is saved immediately; the assistant message is saved when the stream completes.
// @Tags chats
// @Accept json
// @Produce application/x-ndjson
// @Param chat path string true "Chat ID"
// @Param request body dto.ChatStreamRequestDTO true "Message and optional model id"
// @Success 200 {string} string "Newline-delimited JSON event stream"
// @Failure 400 {string} string "Invalid JSON payload or validation failed"
// @Failure 403 {string} string "Forbidden"
// @Failure 404 {string} string "Chat not found"
// @Router /chats/{chat}/stream [post]
func (h *ChatHandler) streamChat(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	chatID := r.PathValue("chat")

	var req dto.ChatStreamRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	// Headers take effect on the first write; until then error responses can
	// still replace them.
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	emit := func(event *service.StreamEvent) error {
		line, err := json.Marshal(event)
		if err != nil {
			return err
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	err := h.chatService.StreamChatResponse(r.Context(), user, chatID, req.Message, req.Model, emit)
	if err != nil {
		h.writeChatError(w, err, "Failed to stream chat response")
	}
}

func (h *ChatHandler) writeChatError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrChatNotFound):
		http.Error(w, "Chat not found", http.StatusNotFound)
	case errors.Is(err, service.ErrUnauthorized):
		http.Error(w, "Forbidden", http.StatusForbidden)
	default:
		http.Error(w, fallback, http.StatusInternalServerError)
	}
}

func (h *ChatHandler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func toChatDTO(chat *model.Chat) dto.ChatResponseDTO {
	return dto.ChatResponseDTO{
		ID:         chat.ID,
		UserID:     chat.UserID,
		Title:      chat.Title,
		Visibility: string(chat.Visibility),
		CreatedAt:  chat.CreatedAt,
		UpdatedAt:  chat.UpdatedAt,
	}
}

func toMessageDTO(message *model.Message) dto.MessageResponseDTO {
	return dto.MessageResponseDTO{
		ID:        message.ID,
		ChatID:    message.ChatID,
		Role:      message.Role,
		Parts:     message.Parts,
		IsUpvoted: message.IsUpvoted,
		CreatedAt: message.CreatedAt,
	}
}
