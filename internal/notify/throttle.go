package notify

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"
)

// Throttle splits long messages into parts the channel accepts and paces
// sends so bursts of new items do not trip provider rate limits.
type Throttle struct {
	next    Notifier
	limiter *rate.Limiter
	maxLen  int
	timeout time.Duration
}

// NewThrottle wraps next. perSecond <= 0 disables pacing, maxLen <= 0
// disables splitting, and timeout <= 0 leaves the caller's deadline alone.
func NewThrottle(next Notifier, perSecond float64, maxLen int, timeout time.Duration) *Throttle {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &Throttle{
		next:    next,
		limiter: rate.NewLimiter(limit, 1),
		maxLen:  maxLen,
		timeout: timeout,
	}
}

func (t *Throttle) Name() string { return t.next.Name() }

// Send delivers every part of text in order and stops at the first
// failure. The returned SendError records how many parts were already
// delivered.
func (t *Throttle) Send(ctx context.Context, text string) error {
	parts := []string{text}
	if t.maxLen > 0 {
		parts = SplitMessage(text, t.maxLen)
	}

	for i, part := range parts {
		err := t.limiter.Wait(ctx)
		if err != nil {
			err = &SendError{Channel: t.Name(), Err: err}
		} else {
			err = t.sendOne(ctx, part)
		}
		if err == nil {
			continue
		}

		var se *SendError
		if errors.As(err, &se) && len(parts) > 1 {
			se.Delivered, se.Parts = i, len(parts)
		}
		return err
	}
	return nil
}

func (t *Throttle) sendOne(ctx context.Context, text string) error {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	err := t.next.Send(ctx, text)
	if err == nil {
		return nil
	}
	var se *SendError
	if errors.As(err, &se) {
		return err
	}
	return &SendError{Channel: t.Name(), Err: err}
}
