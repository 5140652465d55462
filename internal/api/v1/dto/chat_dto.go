package dto

import "time"

type ChatCreateDTO struct {
	Message    string `json:"message" validate:"required,max=255"`
	Visibility string `json:"visibility,omitempty" validate:"omitempty,oneof=public private"`
}

type ChatUpdateDTO struct {
	Title      *string `json:"title,omitempty" validate:"omitempty,min=1,max=255"`
	Visibility *string `json:"visibility,omitempty" validate:"omitempty,oneof=public private"`
	MessageID  *string `json:"message_id,omitempty" validate:"omitempty,uuid"`
	IsUpvoted  *bool   `json:"is_upvoted,omitempty"`
}

type ChatStreamRequestDTO struct {
	Message string `json:"message" validate:"required,max=255"`
	Model   string `json:"model,omitempty"`
}

type ChatResponseDTO struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Title      string    `json:"title"`
	Visibility string    `json:"visibility"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type MessageResponseDTO struct {
	ID        string            `json:"id"`
	ChatID    string            `json:"chat_id"`
	Role      string            `json:"role"`
	Parts     map[string]string `json:"parts"`
	IsUpvoted *bool             `json:"is_upvoted"`
	CreatedAt time.Time         `json:"created_at"`
}

type ChatShowResponseDTO struct {
	Chat     ChatResponseDTO      `json:"chat"`
	Messages []MessageResponseDTO `json:"messages"`
}

type ChatListResponseDTO struct {
	Items   []ChatResponseDTO `json:"items"`
	Page    int               `json:"page"`
	PerPage int               `json:"per_page"`
	Total   int               `json:"total"`
}
