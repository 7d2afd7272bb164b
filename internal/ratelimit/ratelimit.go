// Package ratelimit implements the per-identity TTL state machine:
// free identities get a cool-down counter, repeat offenders within the
// window are silently dropped, and identities that exceed the attempt cap
// are blacklisted until an operator removes the key.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Status is the outcome of a rate-limit check.
type Status int

const (
	// Free: the identity may proceed; a cool-down window has been opened.
	Free Status = iota
	// RateLimitedNow: first attempt inside the window; notify the user once.
	RateLimitedNow
	// RateLimitedAgain: repeat attempt inside the window; stay silent.
	RateLimitedAgain
	// Blacklisted: the key persists without a TTL; only operator action clears it.
	Blacklisted
)

func (s Status) String() string {
	switch s {
	case Free:
		return "FREE"
	case RateLimitedNow:
		return "RATE_LIMITED_NOW"
	case RateLimitedAgain:
		return "RATE_LIMITED_AGAIN"
	case Blacklisted:
		return "BLACKLISTED"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// checkScript performs the whole TTL-branch-increment sequence server-side,
// in a single round-trip, so two concurrent checks cannot interleave between
// the TTL read and the INCR/SETEX.
//
// TTL semantics: -2 the key does not exist (identity is new), -1 the key
// exists without an expiry (identity is blacklisted), >= 0 the identity is
// cooling down. Promotion to the blacklist rewrites the key with a plain SET,
// which discards the TTL.
const checkScript = `
local ttl = redis.call('TTL', KEYS[1])
if ttl == -1 then
  return 'BLACKLISTED'
end
if ttl == -2 then
  redis.call('SETEX', KEYS[1], tonumber(ARGV[1]), 0)
  return 'FREE'
end
local n = redis.call('INCR', KEYS[1])
if n >= tonumber(ARGV[2]) then
  redis.call('SET', KEYS[1], n)
  return 'BLACKLISTED'
elseif n == 1 then
  return 'RATE_LIMITED_NOW'
end
return 'RATE_LIMITED_AGAIN'
`

// Limiter evaluates the state machine for counter keys in Redis.
type Limiter struct {
	client      *redis.Client
	script      *redis.Script
	coolDown    time.Duration
	maxAttempts int
}

// New returns a limiter with the given cool-down window and attempt cap.
func New(client *redis.Client, coolDown time.Duration, maxAttempts int) *Limiter {
	return &Limiter{
		client:      client,
		script:      redis.NewScript(checkScript),
		coolDown:    coolDown,
		maxAttempts: maxAttempts,
	}
}

// CoolDown returns the configured window, for user-facing notices.
func (l *Limiter) CoolDown() time.Duration {
	return l.coolDown
}

// Check runs the state machine for the given counter key.
func (l *Limiter) Check(ctx context.Context, key string) (Status, error) {
	coolDownSeconds := int64(l.coolDown / time.Second)
	if coolDownSeconds < 1 {
		coolDownSeconds = 1
	}

	result, err := l.script.Run(ctx, l.client, []string{key}, coolDownSeconds, l.maxAttempts).Text()
	if err != nil {
		return Free, fmt.Errorf("rate limit check: %w", err)
	}

	switch result {
	case "FREE":
		return Free, nil
	case "RATE_LIMITED_NOW":
		return RateLimitedNow, nil
	case "RATE_LIMITED_AGAIN":
		return RateLimitedAgain, nil
	case "BLACKLISTED":
		return Blacklisted, nil
	}
	return Free, fmt.Errorf("rate limit check: unexpected script result %q", result)
}
