package service

import (
	"fmt"
	"sort"

	"app/internal/llm"
	"app/internal/model"
)

// buildConversationHistory maps stored messages to the minimal role/text
// pairs replayed to the model. Only the "text" part is replayed; thinking and
// attachments are not. A role outside user/assistant means the store is
// corrupt and is a hard error.
func buildConversationHistory(messages []model.Message) ([]*llm.Message, error) {
	sorted := make([]model.Message, len(messages))
	copy(sorted, messages)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	history := make([]*llm.Message, 0, len(sorted))
	for _, message := range sorted {
		var role string
		switch message.Role {
		case model.RoleUser:
			role = llm.UserRole
		case model.RoleAssistant:
			role = llm.AssistantRole
		default:
			return nil, fmt.Errorf("unexpected message role %q on message %s", message.Role, message.ID)
		}
		history = append(history, &llm.Message{
			Role:    role,
			Content: message.Parts["text"],
		})
	}
	return history, nil
}
