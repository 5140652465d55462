// Package policy holds the authorization predicates for chats. A nil user is
// an anonymous caller.
package policy

import (
	"app/internal/model"
)

// ViewAny allows anyone, including anonymous callers, to browse.
func ViewAny(user *model.User) bool {
	return true
}

// View allows reading a public chat, or any chat the caller owns.
func View(user *model.User, chat *model.Chat) bool {
	if chat.Visibility == model.VisibilityPublic {
		return true
	}
	return user != nil && user.ID == chat.UserID
}

// Create requires an authenticated caller.
func Create(user *model.User) bool {
	return user != nil
}

// Update is owner-only. Visibility is irrelevant for mutation: public chats
// owned by others remain immutable to non-owners.
func Update(user *model.User, chat *model.Chat) bool {
	return user != nil && user.ID == chat.UserID
}

// Delete is owner-only.
func Delete(user *model.User, chat *model.Chat) bool {
	return user != nil && user.ID == chat.UserID
}

// Restore is owner-only.
func Restore(user *model.User, chat *model.Chat) bool {
	return user != nil && user.ID == chat.UserID
}

// ForceDelete is owner-only.
func ForceDelete(user *model.User, chat *model.Chat) bool {
	return user != nil && user.ID == chat.UserID
}
