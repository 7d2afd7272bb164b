package telegram

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/cecibot/cecibot/internal/audit"
	"github.com/cecibot/cecibot/internal/bus"
	"github.com/cecibot/cecibot/internal/ratelimit"
)

type sentMessage struct {
	chatID  int64
	text    string
	replyTo int64
}

type sentDocument struct {
	chatID   int64
	filePath string
	filename string
	replyTo  int64
}

// fakeBot records outgoing calls instead of talking to the Bot API.
type fakeBot struct {
	messages  []sentMessage
	documents []sentDocument
	actions   []string
}

func (b *fakeBot) Updates(ctx context.Context) ([]Update, error) { return nil, nil }

func (b *fakeBot) SendMessage(ctx context.Context, chatID int64, text string, replyTo int64) error {
	b.messages = append(b.messages, sentMessage{chatID, text, replyTo})
	return nil
}

func (b *fakeBot) SendDocument(ctx context.Context, chatID int64, filePath, filename string, replyTo int64) error {
	b.documents = append(b.documents, sentDocument{chatID, filePath, filename, replyTo})
	return nil
}

func (b *fakeBot) SendChatAction(ctx context.Context, chatID int64, action string) error {
	b.actions = append(b.actions, action)
	return nil
}

func newTestFrontend(t *testing.T) (*Frontend, *fakeBot, *bus.Bus) {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { client.Close() })

	b := bus.NewWithClient(client)
	limiter := ratelimit.New(client, 15*time.Second, 10)
	auditLog, err := audit.New(t.TempDir(), 1)
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	t.Cleanup(func() { auditLog.Close() })

	bot := &fakeBot{}
	return New(bot, b, limiter, auditLog), bot, b
}

func urlMessage(text string, userID int64) *Message {
	return &Message{
		MessageID: 13,
		From:      &User{ID: userID},
		Chat:      Chat{ID: 7},
		Text:      text,
		Entities: []Entity{{
			Type:   "url",
			Offset: 0,
			Length: len(text),
		}},
	}
}

func TestExtractLinks(t *testing.T) {
	text := "see https://example.com/ here"
	links := ExtractLinks(text, []Entity{{Type: "url", Offset: 4, Length: 20}})
	if len(links) != 1 || links[0] != "https://example.com/" {
		t.Errorf("unexpected links: %v", links)
	}
}

// Entity offsets count UTF-16 code units; an emoji before the URL shifts
// them relative to bytes and runes.
func TestExtractLinksUTF16Offsets(t *testing.T) {
	text := "\U0001F600 https://example.com/"
	links := ExtractLinks(text, []Entity{{Type: "url", Offset: 3, Length: 20}})
	if len(links) != 1 || links[0] != "https://example.com/" {
		t.Errorf("unexpected links: %v", links)
	}
}

func TestExtractLinksIgnoresOtherEntities(t *testing.T) {
	text := "bold https://example.com/"
	entities := []Entity{
		{Type: "bold", Offset: 0, Length: 4},
		{Type: "url", Offset: 5, Length: 20},
		{Type: "url", Offset: 100, Length: 50},
	}
	links := ExtractLinks(text, entities)
	if len(links) != 1 || links[0] != "https://example.com/" {
		t.Errorf("unexpected links: %v", links)
	}
}

func TestHandleMessageEnqueuesRequest(t *testing.T) {
	f, bot, b := newTestFrontend(t)
	ctx := context.Background()

	if err := f.handleMessage(ctx, urlMessage("https://example.com/doc.pdf", 42)); err != nil {
		t.Fatalf("handle: %v", err)
	}

	req, err := b.PopRequest(ctx)
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	if req.URL != "https://example.com/doc.pdf" {
		t.Errorf("unexpected url: %s", req.URL)
	}
	if req.Medium != Medium {
		t.Errorf("unexpected medium: %s", req.Medium)
	}

	var op opaque
	if err := json.Unmarshal(req.Opaque, &op); err != nil {
		t.Fatalf("opaque: %v", err)
	}
	if op.ChatID != 7 || op.MessageID != 13 {
		t.Errorf("unexpected opaque: %+v", op)
	}

	if len(bot.actions) != 1 || bot.actions[0] != "typing" {
		t.Errorf("expected a typing action, got %v", bot.actions)
	}
}

func TestHandleMessageStart(t *testing.T) {
	f, bot, b := newTestFrontend(t)
	ctx := context.Background()

	if err := f.handleMessage(ctx, &Message{
		MessageID: 13,
		From:      &User{ID: 42},
		Chat:      Chat{ID: 7},
		Text:      "/start",
	}); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if len(bot.messages) != 1 || !strings.HasPrefix(bot.messages[0].text, "Welcome to the cecibot!") {
		t.Errorf("expected the welcome reply, got %v", bot.messages)
	}
	if n, _ := b.RequestQueueDepth(ctx); n != 0 {
		t.Errorf("expected no request, found %d", n)
	}
}

func TestHandleMessageRateLimited(t *testing.T) {
	f, bot, b := newTestFrontend(t)
	ctx := context.Background()

	msg := urlMessage("https://example.com/a.pdf", 42)
	if err := f.handleMessage(ctx, msg); err != nil {
		t.Fatalf("first message: %v", err)
	}

	// Second within the window: notice, no request.
	if err := f.handleMessage(ctx, msg); err != nil {
		t.Fatalf("second message: %v", err)
	}
	if len(bot.messages) != 1 || bot.messages[0].text != "You are trying too fast! Wait for 15 seconds..." {
		t.Errorf("expected the rate-limit notice, got %v", bot.messages)
	}

	// Third within the window: silence.
	if err := f.handleMessage(ctx, msg); err != nil {
		t.Fatalf("third message: %v", err)
	}
	if len(bot.messages) != 1 {
		t.Errorf("expected silence after the notice, got %v", bot.messages)
	}

	if n, _ := b.RequestQueueDepth(ctx); n != 1 {
		t.Errorf("expected exactly one enqueued request, found %d", n)
	}
}

func TestHandleMessageLinkCounts(t *testing.T) {
	f, bot, _ := newTestFrontend(t)
	ctx := context.Background()

	if err := f.handleMessage(ctx, &Message{
		MessageID: 13,
		From:      &User{ID: 1},
		Chat:      Chat{ID: 7},
		Text:      "hello there",
	}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(bot.messages) != 1 || bot.messages[0].text != "Send some links!" {
		t.Errorf("expected 'Send some links!', got %v", bot.messages)
	}

	text := "https://a.example/ https://b.example/"
	if err := f.handleMessage(ctx, &Message{
		MessageID: 14,
		From:      &User{ID: 2},
		Chat:      Chat{ID: 7},
		Text:      text,
		Entities: []Entity{
			{Type: "url", Offset: 0, Length: 18},
			{Type: "url", Offset: 19, Length: 18},
		},
	}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if got := bot.messages[len(bot.messages)-1].text; got != "Send one link per message!" {
		t.Errorf("expected 'Send one link per message!', got %q", got)
	}
}

func TestHandleMessageRejectsBadScheme(t *testing.T) {
	f, bot, b := newTestFrontend(t)
	ctx := context.Background()

	text := "ftp://example.com/file"
	if err := f.handleMessage(ctx, &Message{
		MessageID: 13,
		From:      &User{ID: 42},
		Chat:      Chat{ID: 7},
		Text:      text,
		Entities:  []Entity{{Type: "url", Offset: 0, Length: len(text)}},
	}); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if len(bot.messages) != 1 || !strings.HasPrefix(bot.messages[0].text, "A URL must start with a protocol") {
		t.Errorf("expected the protocol hint, got %v", bot.messages)
	}
	if n, _ := b.RequestQueueDepth(ctx); n != 0 {
		t.Errorf("expected no request, found %d", n)
	}
}

func TestDispatchFile(t *testing.T) {
	f, bot, _ := newTestFrontend(t)

	path := filepath.Join(t.TempDir(), "artefact.pdf")
	if err := os.WriteFile(path, []byte("%PDF"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	f.dispatch(context.Background(), &bus.Response{
		Kind:   bus.KindFile,
		Opaque: []byte(`{"chat_id":7,"message_id":13}`),
		URL:    "https://example.com/doc.pdf",
		File:   &bus.FileInfo{Title: "doc.pdf", Path: path, Extension: ".pdf", Size: 4},
	})

	if len(bot.documents) != 1 {
		t.Fatalf("expected one document, got %v", bot.documents)
	}
	d := bot.documents[0]
	if d.chatID != 7 || d.replyTo != 13 || d.filename != "doc.pdf" {
		t.Errorf("unexpected document call: %+v", d)
	}

	// The artefact is deleted after delivery.
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected the artefact to be removed")
	}
}

func TestDispatchError(t *testing.T) {
	f, bot, _ := newTestFrontend(t)

	f.dispatch(context.Background(), &bus.Response{
		Kind:   bus.KindError,
		Opaque: []byte(`{"chat_id":7,"message_id":13}`),
		URL:    "https://example.com/",
		Error:  &bus.ErrorInfo{Message: "timeout"},
	})

	if len(bot.messages) != 1 {
		t.Fatalf("expected one message, got %v", bot.messages)
	}
	if bot.messages[0].text != "cecibot error: timeout" {
		t.Errorf("unexpected reply: %q", bot.messages[0].text)
	}
	if bot.messages[0].replyTo != 13 {
		t.Errorf("expected a reply to message 13, got %d", bot.messages[0].replyTo)
	}
}
