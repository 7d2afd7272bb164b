package email

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestSource(t *testing.T) (*QueueSource, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewQueueSource(client, "email_inbound"), s
}

func TestQueueSourceReceive(t *testing.T) {
	src, s := newTestSource(t)

	s.Lpush("email_inbound", `{"from":"alice@example.com","subject":"https://example.com/","message_id":"<m@x>"}`)

	mails, err := src.Receive(context.Background())
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(mails) != 1 {
		t.Fatalf("expected one mail, got %d", len(mails))
	}
	if mails[0].From != "alice@example.com" || mails[0].Subject != "https://example.com/" {
		t.Errorf("unexpected mail: %+v", mails[0])
	}
}

func TestQueueSourceDropsMalformed(t *testing.T) {
	src, s := newTestSource(t)

	// Garbage sits at the consuming end of the list.
	s.Lpush("email_inbound", "not json")
	s.Lpush("email_inbound", `{"from":"bob@example.com","subject":"https://example.com/"}`)

	mails, err := src.Receive(context.Background())
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(mails) != 1 || mails[0].From != "bob@example.com" {
		t.Errorf("expected the valid mail, got %+v", mails)
	}
}

func TestQueueSourceHonoursCancellation(t *testing.T) {
	src, _ := newTestSource(t)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	if _, err := src.Receive(ctx); err == nil {
		t.Fatal("expected an error from a cancelled receive")
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("receive took %v to notice cancellation", elapsed)
	}
}
