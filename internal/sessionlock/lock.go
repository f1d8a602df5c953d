package sessionlock

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/avenlabs/chat-scheduler/internal/httperr"
)

const lockPrefix = "chat:turnlock:"

// unlockScript releases the lock only if this locker still owns it, so a
// slow turn that outlived its TTL cannot free a successor's lock.
var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
end
return 0
`)

// Locker serializes turns per session. A session's state is a
// single-writer resource: slot merges and phase transitions are not
// commutative, so a second in-flight turn is rejected rather than
// interleaved.
type Locker struct {
	client *redis.Client
	ttl    time.Duration
}

func New(client *redis.Client, ttl time.Duration) *Locker {
	return &Locker{client: client, ttl: ttl}
}

// Acquire takes the per-session mutex. It returns a release function on
// success and the session_busy business error when another turn for the
// same session is still in flight.
func (l *Locker) Acquire(ctx context.Context, sessionID string) (func(), error) {
	key := lockPrefix + sessionID
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, httperr.ErrBusiness("session_busy")
	}

	release := func() {
		// Best effort; the TTL reclaims the lock if this fails.
		unlockScript.Run(context.Background(), l.client, []string{key}, token)
	}
	return release, nil
}
