package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Policy decides whether a failed operation may be attempted again. Policies
// carry state, callers Clone a prototype for every logical operation and
// never share a live instance.
type Policy interface {
	// OnFailure records err and reports whether another attempt is allowed.
	OnFailure(err error) bool
	IsExhausted() bool
	IsPermanentFailure(err error) bool
	Clone() Policy
}

// BackoffPolicy yields the delay before the next attempt.
type BackoffPolicy interface {
	OnCompletion() time.Duration
	Clone() BackoffPolicy
}

// IsTransient reports whether the status code of err is worth retrying. An
// expired or canceled caller context is never transient.
func IsTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Internal:
		return true
	default:
		return false
	}
}

type LimitedErrorCountPolicy struct {
	maxFailures  int
	failureCount int
}

func NewLimitedErrorCountPolicy(maxFailures int) *LimitedErrorCountPolicy {
	return &LimitedErrorCountPolicy{
		maxFailures: maxFailures,
	}
}

func (p *LimitedErrorCountPolicy) OnFailure(err error) bool {
	if p.IsPermanentFailure(err) {
		return false
	}

	p.failureCount++
	return !p.IsExhausted()
}

func (p *LimitedErrorCountPolicy) IsExhausted() bool {
	return p.failureCount > p.maxFailures
}

func (p *LimitedErrorCountPolicy) IsPermanentFailure(err error) bool {
	return !IsTransient(err)
}

func (p *LimitedErrorCountPolicy) Clone() Policy {
	return NewLimitedErrorCountPolicy(p.maxFailures)
}

type LimitedTimePolicy struct {
	maxDuration time.Duration
	deadline    time.Time
	now         func() time.Time
}

func NewLimitedTimePolicy(maxDuration time.Duration) *LimitedTimePolicy {
	return newLimitedTimePolicy(maxDuration, time.Now)
}

func newLimitedTimePolicy(maxDuration time.Duration, now func() time.Time) *LimitedTimePolicy {
	return &LimitedTimePolicy{
		maxDuration: maxDuration,
		deadline:    now().Add(maxDuration),
		now:         now,
	}
}

func (p *LimitedTimePolicy) OnFailure(err error) bool {
	if p.IsPermanentFailure(err) {
		return false
	}

	return !p.IsExhausted()
}

func (p *LimitedTimePolicy) IsExhausted() bool {
	return p.now().After(p.deadline)
}

func (p *LimitedTimePolicy) IsPermanentFailure(err error) bool {
	return !IsTransient(err)
}

func (p *LimitedTimePolicy) Clone() Policy {
	return newLimitedTimePolicy(p.maxDuration, p.now)
}

// CombinedPolicy is exhausted as soon as any of its parts is.
type CombinedPolicy struct {
	policies []Policy
}

func NewCombinedPolicy(policies ...Policy) *CombinedPolicy {
	return &CombinedPolicy{
		policies: policies,
	}
}

func (p *CombinedPolicy) OnFailure(err error) bool {
	result := true
	for _, policy := range p.policies {
		if !policy.OnFailure(err) {
			result = false
		}
	}
	return result
}

func (p *CombinedPolicy) IsExhausted() bool {
	for _, policy := range p.policies {
		if policy.IsExhausted() {
			return true
		}
	}
	return false
}

func (p *CombinedPolicy) IsPermanentFailure(err error) bool {
	for _, policy := range p.policies {
		if policy.IsPermanentFailure(err) {
			return true
		}
	}
	return false
}

func (p *CombinedPolicy) Clone() Policy {
	clones := make([]Policy, len(p.policies))
	for i, policy := range p.policies {
		clones[i] = policy.Clone()
	}
	return NewCombinedPolicy(clones...)
}

type ExponentialBackoffPolicy struct {
	initialDelay time.Duration
	maxDelay     time.Duration
	scaling      float64
	currentDelay time.Duration
}

func NewExponentialBackoffPolicy(initialDelay, maxDelay time.Duration, scaling float64) *ExponentialBackoffPolicy {
	if scaling < 1 {
		panic("scaling factor of an exponential backoff must be >= 1")
	}

	return &ExponentialBackoffPolicy{
		initialDelay: initialDelay,
		maxDelay:     maxDelay,
		scaling:      scaling,
		currentDelay: initialDelay,
	}
}

// OnCompletion returns a delay drawn uniformly from the upper half of the
// current range and then grows the range.
func (p *ExponentialBackoffPolicy) OnCompletion() time.Duration {
	upper := p.currentDelay
	lower := upper / 2

	delay := lower
	if upper > lower {
		delay += rand.N(upper - lower + 1)
	}

	next := time.Duration(float64(p.currentDelay) * p.scaling)
	if next > p.maxDelay || next < p.currentDelay {
		next = p.maxDelay
	}
	p.currentDelay = next

	return delay
}

func (p *ExponentialBackoffPolicy) Clone() BackoffPolicy {
	return NewExponentialBackoffPolicy(p.initialDelay, p.maxDelay, p.scaling)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
