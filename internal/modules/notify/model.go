// README: Notification message model and the sender contract shared by the push backends.
package notify

import (
	"context"
	"time"

	"tripshare/internal/types"
)

type Message struct {
	UserID    types.ID  `json:"user_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Sender delivers one message to one user. It may block up to ctx's deadline.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// TokenStore resolves the device tokens registered for a user.
type TokenStore interface {
	Tokens(ctx context.Context, userID types.ID) ([]string, error)
	Save(ctx context.Context, userID types.ID, token string) error
	Delete(ctx context.Context, userID types.ID, token string) error
}
