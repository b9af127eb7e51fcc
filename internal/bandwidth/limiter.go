package bandwidth

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/engineercoding/dedupe/util"
)

// Limiter caps read throughput using a token bucket.
type Limiter struct {
	rateLimiter *rate.Limiter
	limit       string // Original limit string for display purposes
}

// NewLimiter creates a limiter from a rate string such as "50MB" or "1GiB".
// An empty string disables limiting and returns a nil *Limiter.
func NewLimiter(limitStr string) (*Limiter, error) {
	if limitStr == "" {
		return nil, nil
	}

	bytesPerSecond, err := util.ParseSize(limitStr)
	if err != nil {
		return nil, fmt.Errorf("invalid io limit '%s': %w", limitStr, err)
	}

	if bytesPerSecond <= 0 {
		return nil, fmt.Errorf("io limit must be positive, got %d bytes/second", bytesPerSecond)
	}

	// Burst holds one second of data, with a floor so tiny limits still make progress
	burst := int(bytesPerSecond)
	if burst < 1024 {
		burst = 1024
	}

	return &Limiter{
		rateLimiter: rate.NewLimiter(rate.Limit(bytesPerSecond), burst),
		limit:       limitStr,
	}, nil
}

// WaitN blocks until n bytes may be read. Requests larger than the burst are
// split so they never fail outright.
func (l *Limiter) WaitN(ctx context.Context, n int) error {
	if l == nil || l.rateLimiter == nil {
		return nil
	}

	burst := l.rateLimiter.Burst()
	for n > 0 {
		step := n
		if step > burst {
			step = burst
		}
		if err := l.rateLimiter.WaitN(ctx, step); err != nil {
			return err
		}
		n -= step
	}
	return nil
}

// Limit returns the configured rate as given, or "" when unlimited.
func (l *Limiter) Limit() string {
	if l == nil {
		return ""
	}
	return l.limit
}
