package repository

import (
	"context"

	"rapidride/internal/domain"
)

// SupportFilter selects support chats. Empty fields match everything.
type SupportFilter struct {
	AccountID string
	Status    domain.ChatStatus
	UserType  string
}

// SupportRepository defines the persistence operations for support chats.
type SupportRepository interface {
	// Create stores a new chat.
	Create(ctx context.Context, chat *domain.SupportChat) error

	// Get retrieves a chat by ID.
	Get(ctx context.Context, id string) (*domain.SupportChat, error)

	// Update applies fn to the stored chat atomically and returns the result.
	// Nothing is stored when fn fails.
	Update(ctx context.Context, id string, fn func(chat *domain.SupportChat) error) (*domain.SupportChat, error)

	// List returns the matching chats, most recently updated first.
	List(ctx context.Context, filter SupportFilter) ([]*domain.SupportChat, error)
}
