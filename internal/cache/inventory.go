package cache

import (
	"fmt"
	"time"
)

const (
	StreamCodeKeyPrefix = "stream_code:%s"
)

const (
	// StreamCodeTTL caps how long a resolved record may be served from cache.
	StreamCodeTTL = 10 * time.Minute
)

// StreamCodeKey returns the cache key for a normalized code.
func StreamCodeKey(code string) string {
	return fmt.Sprintf(StreamCodeKeyPrefix, code)
}

// BoundedTTL returns the smaller of ceiling and the time left until expiresAt.
// It returns zero when nothing should be cached.
func BoundedTTL(ceiling time.Duration, now, expiresAt time.Time) time.Duration {
	remaining := expiresAt.Sub(now)
	if remaining <= 0 || ceiling <= 0 {
		return 0
	}
	if remaining < ceiling {
		return remaining
	}
	return ceiling
}
