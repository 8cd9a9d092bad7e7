package session

import (
	"context"
	"errors"
	"time"

	"github.com/opsdesk/deskbot/internal/models"
)

// ErrUnavailable is returned when the backing store cannot be reached. The
// dialogue engine treats it as "no session" so a store outage degrades the
// bot to single-turn behavior instead of failing the request.
var ErrUnavailable = errors.New("session store unavailable")

// Store persists one Session per conversation thread with a hard TTL: a Get
// after the TTL has elapsed since the last Put reports the session as absent.
// Put is a full overwrite; the store carries no merge or conversation logic.
type Store interface {
	Get(ctx context.Context, threadID string) (*models.Session, bool, error)
	Put(ctx context.Context, threadID string, s *models.Session, ttl time.Duration) error
	Delete(ctx context.Context, threadID string) error
	Close() error
}
