// Package bus is the queueing layer between the frontends and the render
// worker: one shared "requests" list plus one "<medium>_responses" list per
// medium, all backed by Redis.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const requestsKey = "requests"

// popInterval bounds each BRPOP so a blocked pop can observe context
// cancellation between attempts.
const popInterval = time.Second

// Bus wraps the Redis client carrying the request and response lists.
type Bus struct {
	client *redis.Client
}

// New connects to Redis and verifies the connection.
func New(addr, password string) (*Bus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	slog.Info("redis connected", "addr", addr)
	return &Bus{client: client}, nil
}

// NewWithClient wraps an existing Redis client (shared with the rate limiter).
func NewWithClient(client *redis.Client) *Bus {
	return &Bus{client: client}
}

// Close shuts down the Redis connection.
func (b *Bus) Close() error {
	return b.client.Close()
}

// Client returns the underlying redis client so collaborators (the rate
// limiter, queue-depth sampling) can share the connection pool.
func (b *Bus) Client() *redis.Client {
	return b.client
}

func responsesKey(medium string) string {
	return medium + "_responses"
}

// PushRequest appends a request envelope to the shared requests list.
func (b *Bus) PushRequest(ctx context.Context, req *Request) error {
	if err := req.Validate(); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	raw, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	if err := b.client.LPush(ctx, requestsKey, raw).Err(); err != nil {
		return fmt.Errorf("push request: %w", err)
	}
	return nil
}

// PopRequest blocks until a request envelope is available. Malformed entries
// are logged and skipped; the call returns only a valid envelope or the
// context's error.
func (b *Bus) PopRequest(ctx context.Context) (*Request, error) {
	for {
		raw, err := b.pop(ctx, requestsKey)
		if err != nil {
			return nil, err
		}
		var req Request
		if err := json.Unmarshal([]byte(raw), &req); err != nil {
			slog.Warn("dropping malformed request", "error", err)
			continue
		}
		if err := req.Validate(); err != nil {
			slog.Warn("dropping invalid request", "url", req.URL, "error", err)
			continue
		}
		return &req, nil
	}
}

// PushResponse appends a response envelope to the medium's response list.
func (b *Bus) PushResponse(ctx context.Context, medium string, resp *Response) error {
	if err := resp.Validate(); err != nil {
		return fmt.Errorf("invalid response: %w", err)
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	if err := b.client.LPush(ctx, responsesKey(medium), raw).Err(); err != nil {
		return fmt.Errorf("push response: %w", err)
	}
	return nil
}

// PopResponse blocks until a response envelope for the medium is available.
func (b *Bus) PopResponse(ctx context.Context, medium string) (*Response, error) {
	for {
		raw, err := b.pop(ctx, responsesKey(medium))
		if err != nil {
			return nil, err
		}
		var resp Response
		if err := json.Unmarshal([]byte(raw), &resp); err != nil {
			slog.Warn("dropping malformed response", "medium", medium, "error", err)
			continue
		}
		if err := resp.Validate(); err != nil {
			slog.Warn("dropping invalid response", "medium", medium, "error", err)
			continue
		}
		return &resp, nil
	}
}

// RequestQueueDepth reports the number of requests waiting in the shared list.
func (b *Bus) RequestQueueDepth(ctx context.Context) (int64, error) {
	n, err := b.client.LLen(ctx, requestsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("queue depth: %w", err)
	}
	return n, nil
}

// pop runs bounded BRPOPs in a loop so cancellation is honoured even while
// the list stays empty.
func (b *Bus) pop(ctx context.Context, key string) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		result, err := b.client.BRPop(ctx, popInterval, key).Result()
		switch {
		case err == redis.Nil:
			continue
		case err != nil:
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", fmt.Errorf("brpop %s: %w", key, err)
		}
		if len(result) != 2 {
			return "", fmt.Errorf("brpop %s: unexpected reply of %d elements", key, len(result))
		}
		return result[1], nil
	}
}
