package rate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Window names the period a checkout limit is counted over.
type Window string

const (
	WindowMinute Window = "minute"
	WindowHour   Window = "hour"
)

var ErrInvalidBuyer = errors.New("invalid buyer id")

type Counter interface {
	IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// Decision is the outcome of one checkout attempt. Window and RetryAfter are set only when the
// attempt was refused.
type Decision struct {
	Allowed    bool
	Window     Window
	RetryAfter time.Duration
}

type limit struct {
	window Window
	period time.Duration
	max    int64
}

// CheckoutLimiter caps how many PIX charges one buyer may open in each window.
type CheckoutLimiter struct {
	counter Counter
	limits  []limit
}

// NewCheckoutLimiter builds a limiter over the given per-minute and per-hour caps. A cap of
// zero or less leaves that window unchecked.
func NewCheckoutLimiter(counter Counter, perMinute, perHour int) *CheckoutLimiter {
	l := &CheckoutLimiter{counter: counter}
	if perMinute > 0 {
		l.limits = append(l.limits, limit{window: WindowMinute, period: time.Minute, max: int64(perMinute)})
	}
	if perHour > 0 {
		l.limits = append(l.limits, limit{window: WindowHour, period: time.Hour, max: int64(perHour)})
	}
	return l
}

// Check counts one attempt in every window. When more than one window is exhausted the
// decision reports the one with the longest wait.
func (l *CheckoutLimiter) Check(ctx context.Context, buyerID int64) (Decision, error) {
	if buyerID <= 0 {
		return Decision{}, ErrInvalidBuyer
	}
	if l.counter == nil {
		return Decision{}, fmt.Errorf("checkout limiter has no counter")
	}

	out := Decision{Allowed: true}
	for _, lim := range l.limits {
		count, ttl, err := l.counter.IncrementWindow(ctx, checkoutKey(lim.window, buyerID), lim.period)
		if err != nil {
			return Decision{}, fmt.Errorf("count %s checkouts: %w", lim.window, err)
		}
		if count <= lim.max {
			continue
		}
		wait := wholeSeconds(ttl, lim.period)
		if out.Allowed || wait > out.RetryAfter {
			out = Decision{Window: lim.window, RetryAfter: wait}
		}
	}
	return out, nil
}

func checkoutKey(w Window, buyerID int64) string {
	return "rate:checkout:" + string(w) + ":" + strconv.FormatInt(buyerID, 10)
}

// wholeSeconds rounds ttl up to the second; a window without a lifetime waits a full period.
func wholeSeconds(ttl, period time.Duration) time.Duration {
	if ttl <= 0 {
		return period
	}
	return (ttl + time.Second - 1) / time.Second * time.Second
}
