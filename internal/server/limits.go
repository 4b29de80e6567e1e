package server

import "time"

// Per-connection limits on client input.
const (
	// MaxInputMessageSize caps a single binary input frame. Larger frames
	// are dropped.
	MaxInputMessageSize = 64 * 1024

	// MaxTermCols and MaxTermRows clamp client resize requests.
	MaxTermCols = 500
	MaxTermRows = 200

	// MessageRateLimit is the sustained number of client frames per second;
	// MessageRateBurst allows short bursts such as a paste.
	MessageRateLimit = 200
	MessageRateBurst = 200
)

// tokenBucket drops client frames beyond the allowed rate. It is owned by a
// single read loop.
type tokenBucket struct {
	tokens     int
	maxTokens  int
	refillRate int // tokens per second
	lastRefill time.Time
	now        func() time.Time
}

func newTokenBucket(maxTokens, refillRate int) *tokenBucket {
	return &tokenBucket{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
		now:        time.Now,
	}
}

// allow consumes a token if one is available.
func (tb *tokenBucket) allow() bool {
	now := tb.now()

	refill := int(now.Sub(tb.lastRefill).Seconds() * float64(tb.refillRate))
	if refill > 0 {
		tb.tokens += refill
		tb.lastRefill = now
	}

	if tb.tokens > tb.maxTokens {
		tb.tokens = tb.maxTokens
	}

	if tb.tokens <= 0 {
		return false
	}

	tb.tokens--

	return true
}

func clampSize(cols, rows int) (int, int) {
	return min(cols, MaxTermCols), min(rows, MaxTermRows)
}
