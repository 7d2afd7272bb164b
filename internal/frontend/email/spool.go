package email

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// QueueSource reads incoming mail from a Redis list. The mail-receiving
// glue (an SES/SNS bridge, an IMAP poller, ...) parses each message into a
// Mail and deposits it as JSON on the list.
type QueueSource struct {
	client *redis.Client
	list   string
}

// NewQueueSource wraps the given list on an existing Redis connection.
func NewQueueSource(client *redis.Client, list string) *QueueSource {
	return &QueueSource{client: client, list: list}
}

// Receive blocks until at least one mail arrives. Entries that fail to
// decode are logged and dropped.
func (s *QueueSource) Receive(ctx context.Context) ([]Mail, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result, err := s.client.BRPop(ctx, time.Second, s.list).Result()
		switch {
		case err == redis.Nil:
			continue
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("brpop %s: %w", s.list, err)
		}
		if len(result) != 2 {
			return nil, fmt.Errorf("brpop %s: unexpected reply of %d elements", s.list, len(result))
		}

		var m Mail
		if err := json.Unmarshal([]byte(result[1]), &m); err != nil {
			slog.Warn("dropping malformed inbound mail", "error", err)
			continue
		}
		return []Mail{m}, nil
	}
}
