package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"app/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("not found")

type ChatRepository interface {
	CreateChat(ctx context.Context, userID, title string, visibility model.Visibility) (*model.Chat, error)
	GetChat(ctx context.Context, chatID string) (*model.Chat, error)
	ListChats(ctx context.Context, userID string, limit, offset int) ([]model.Chat, error)
	CountChats(ctx context.Context, userID string) (int, error)
	UpdateChat(ctx context.Context, chatID, title string, visibility model.Visibility) (*model.Chat, error)
	TouchChat(ctx context.Context, chatID string) error
	DeleteChat(ctx context.Context, chatID string) error
	CreateMessage(ctx context.Context, chatID, role string, parts model.MessageParts) (*model.Message, error)
	GetMessage(ctx context.Context, messageID string) (*model.Message, error)
	ListMessages(ctx context.Context, chatID string) ([]model.Message, error)
	UpdateMessageVote(ctx context.Context, messageID string, isUpvoted bool) error
}

type chatRepo struct {
	pool *pgxpool.Pool
}

func NewChatRepo(pool *pgxpool.Pool) ChatRepository {
	return &chatRepo{pool: pool}
}

func (r *chatRepo) CreateChat(ctx context.Context, userID, title string, visibility model.Visibility) (*model.Chat, error) {
	query := `
		INSERT INTO chats (id, user_id, title, visibility)
		VALUES ($1, $2, $3, $4)
		RETURNING id, user_id, title, visibility, created_at, updated_at
	`
	var chat model.Chat
	err := r.pool.QueryRow(ctx, query, uuid.NewString(), userID, title, visibility).Scan(
		&chat.ID,
		&chat.UserID,
		&chat.Title,
		&chat.Visibility,
		&chat.CreatedAt,
		&chat.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("creating chat: %w", err)
	}
	return &chat, nil
}

func (r *chatRepo) GetChat(ctx context.Context, chatID string) (*model.Chat, error) {
	query := `
		SELECT id, user_id, title, visibility, created_at, updated_at
		FROM chats
		WHERE id = $1
	`
	var chat model.Chat
	err := r.pool.QueryRow(ctx, query, chatID).Scan(
		&chat.ID,
		&chat.UserID,
		&chat.Title,
		&chat.Visibility,
		&chat.CreatedAt,
		&chat.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting chat: %w", err)
	}
	return &chat, nil
}

func (r *chatRepo) ListChats(ctx context.Context, userID string, limit, offset int) ([]model.Chat, error) {
	query := `
		SELECT id, user_id, title, visibility, created_at, updated_at
		FROM chats
		WHERE user_id = $1
		ORDER BY updated_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying chats: %w", err)
	}
	defer rows.Close()

	var chats []model.Chat
	for rows.Next() {
		var chat model.Chat
		if err := rows.Scan(
			&chat.ID,
			&chat.UserID,
			&chat.Title,
			&chat.Visibility,
			&chat.CreatedAt,
			&chat.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning chat row: %w", err)
		}
		chats = append(chats, chat)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chat rows: %w", err)
	}

	return chats, nil
}

func (r *chatRepo) CountChats(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM chats WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting chats: %w", err)
	}
	return count, nil
}

func (r *chatRepo) UpdateChat(ctx context.Context, chatID, title string, visibility model.Visibility) (*model.Chat, error) {
	query := `
		UPDATE chats
		SET title = $1, visibility = $2, updated_at = NOW()
		WHERE id = $3
		RETURNING id, user_id, title, visibility, created_at, updated_at
	`
	var chat model.Chat
	err := r.pool.QueryRow(ctx, query, title, visibility, chatID).Scan(
		&chat.ID,
		&chat.UserID,
		&chat.Title,
		&chat.Visibility,
		&chat.CreatedAt,
		&chat.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("updating chat: %w", err)
	}
	return &chat, nil
}

func (r *chatRepo) TouchChat(ctx context.Context, chatID string) error {
	_, err := r.pool.Exec(ctx, `UPDATE chats SET updated_at = NOW() WHERE id = $1`, chatID)
	if err != nil {
		return fmt.Errorf("touching chat: %w", err)
	}
	return nil
}

// DeleteChat removes a chat and all of its messages in one transaction.
func (r *chatRepo) DeleteChat(ctx context.Context, chatID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM messages WHERE chat_id = $1`, chatID); err != nil {
		return fmt.Errorf("deleting messages: %w", err)
	}

	result, err := tx.Exec(ctx, `DELETE FROM chats WHERE id = $1`, chatID)
	if err != nil {
		return fmt.Errorf("deleting chat: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return tx.Commit(ctx)
}

func (r *chatRepo) CreateMessage(ctx context.Context, chatID, role string, parts model.MessageParts) (*model.Message, error) {
	partsJSON, err := json.Marshal(parts)
	if err != nil {
		return nil, fmt.Errorf("marshaling message parts: %w", err)
	}

	query := `
		INSERT INTO messages (id, chat_id, role, parts, attachments)
		VALUES ($1, $2, $3, $4::jsonb, '[]')
		RETURNING id, chat_id, role, parts, attachments, is_upvoted, created_at, updated_at
	`
	var message model.Message
	err = r.pool.QueryRow(ctx, query, uuid.NewString(), chatID, role, partsJSON).Scan(
		&message.ID,
		&message.ChatID,
		&message.Role,
		&message.Parts,
		&message.Attachments,
		&message.IsUpvoted,
		&message.CreatedAt,
		&message.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("creating message: %w", err)
	}
	return &message, nil
}

func (r *chatRepo) GetMessage(ctx context.Context, messageID string) (*model.Message, error) {
	query := `
		SELECT id, chat_id, role, parts, attachments, is_upvoted, created_at, updated_at
		FROM messages
		WHERE id = $1
	`
	var message model.Message
	err := r.pool.QueryRow(ctx, query, messageID).Scan(
		&message.ID,
		&message.ChatID,
		&message.Role,
		&message.Parts,
		&message.Attachments,
		&message.IsUpvoted,
		&message.CreatedAt,
		&message.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting message: %w", err)
	}
	return &message, nil
}

// ListMessages returns all messages of a chat in conversation order
// (created_at ascending).
func (r *chatRepo) ListMessages(ctx context.Context, chatID string) ([]model.Message, error) {
	query := `
		SELECT id, chat_id, role, parts, attachments, is_upvoted, created_at, updated_at
		FROM messages
		WHERE chat_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.pool.Query(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		var message model.Message
		if err := rows.Scan(
			&message.ID,
			&message.ChatID,
			&message.Role,
			&message.Parts,
			&message.Attachments,
			&message.IsUpvoted,
			&message.CreatedAt,
			&message.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		messages = append(messages, message)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}

	return messages, nil
}

func (r *chatRepo) UpdateMessageVote(ctx context.Context, messageID string, isUpvoted bool) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE messages SET is_upvoted = $1, updated_at = NOW() WHERE id = $2`,
		isUpvoted, messageID)
	if err != nil {
		return fmt.Errorf("updating message vote: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
