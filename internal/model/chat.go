package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Visibility controls non-owner read access to a chat.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

func (v Visibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityPrivate
}

// Chat represents a conversation thread owned by a user.
type Chat struct {
	ID         string     `db:"id" json:"id"`
	UserID     string     `db:"user_id" json:"user_id"`
	Title      string     `db:"title" json:"title"`
	Visibility Visibility `db:"visibility" json:"visibility"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// Message represents one turn within a chat.
type Message struct {
	ID          string       `db:"id" json:"id"`
	ChatID      string       `db:"chat_id" json:"chat_id"`
	Role        string       `db:"role" json:"role"` // 'user' or 'assistant'
	Parts       MessageParts `db:"parts" json:"parts"`
	Attachments string       `db:"attachments" json:"attachments"`
	IsUpvoted   *bool        `db:"is_upvoted" json:"is_upvoted"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at" json:"updated_at"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// MessageParts maps a content kind ("text", "thinking") to its content (JSONB).
type MessageParts map[string]string

// Value implements the driver.Valuer interface for JSONB
func (m MessageParts) Value() (driver.Value, error) {
	if m == nil {
		return json.Marshal(map[string]string{})
	}
	return json.Marshal(m)
}

// Scan implements the sql.Scanner interface for JSONB
func (m *MessageParts) Scan(value interface{}) error {
	if value == nil {
		*m = make(MessageParts)
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		*m = make(MessageParts)
		return fmt.Errorf("cannot scan %T into MessageParts", value)
	}

	if len(bytes) == 0 {
		*m = make(MessageParts)
		return nil
	}

	return json.Unmarshal(bytes, m)
}
