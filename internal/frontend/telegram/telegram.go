// Package telegram is the Telegram frontend: ingress turns incoming
// messages into request envelopes, egress delivers artefacts and errors
// back as replies.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/cecibot/cecibot/internal/audit"
	"github.com/cecibot/cecibot/internal/bus"
	"github.com/cecibot/cecibot/internal/frontend"
	"github.com/cecibot/cecibot/internal/ratelimit"
)

// Medium tags request envelopes originating here.
const Medium = "telegram"

const identifierVersion = 1

const welcomeText = `Welcome to the cecibot!
Any message that contains a (single!) URL will be considered a request, and the referenced file/web-page will be sent back to you.
See https://cecibot.com/ for details.`

// opaque correlates a response with the chat message to reply to.
type opaque struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int64 `json:"message_id"`
}

// identifier names sender and message for the audit log.
type identifier struct {
	UserID    int64 `json:"user_id"`
	ChatID    int64 `json:"chat_id"`
	MessageID int64 `json:"message_id"`
}

// Frontend runs the ingress and egress tasks for Telegram.
type Frontend struct {
	bot     Bot
	bus     *bus.Bus
	limiter *ratelimit.Limiter
	audit   *audit.Logger
}

// New wires the frontend to its collaborators.
func New(bot Bot, b *bus.Bus, limiter *ratelimit.Limiter, auditLog *audit.Logger) *Frontend {
	return &Frontend{
		bot:     bot,
		bus:     b,
		limiter: limiter,
		audit:   auditLog,
	}
}

// CounterKey is the rate-limiting key for a Telegram user.
func CounterKey(userID int64) string {
	return fmt.Sprintf("telegram.rate_limiting.counter.(%d)", userID)
}

// RunIngress polls for updates and turns valid ones into requests. Failures
// to enqueue or to reach the rate limiter are fatal; the supervisor restarts
// the process.
func (f *Frontend) RunIngress(ctx context.Context) error {
	slog.Info("cecibot telegram ingress is ready")

	for {
		if ctx.Err() != nil {
			return nil
		}

		updates, err := f.bot.Updates(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Error("fetching updates", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		for _, u := range updates {
			if u.Message == nil {
				continue
			}
			if err := f.handleMessage(ctx, u.Message); err != nil {
				return err
			}
		}
	}
}

func (f *Frontend) handleMessage(ctx context.Context, msg *Message) error {
	if msg.From == nil {
		return nil
	}

	if strings.HasPrefix(msg.Text, "/start") {
		f.reply(ctx, msg, welcomeText)
		return nil
	}

	status, err := f.limiter.Check(ctx, CounterKey(msg.From.ID))
	if err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	switch status {
	case ratelimit.RateLimitedNow:
		f.reply(ctx, msg, fmt.Sprintf("You are trying too fast! Wait for %d seconds...",
			int(f.limiter.CoolDown()/time.Second)))
		return nil
	case ratelimit.RateLimitedAgain, ratelimit.Blacklisted:
		return nil
	}

	links := ExtractLinks(msg.Text, msg.Entities)
	if len(links) == 0 {
		f.reply(ctx, msg, "Send some links!")
		return nil
	}
	if len(links) > 1 {
		f.reply(ctx, msg, "Send one link per message!")
		return nil
	}
	if !frontend.ValidScheme(links[0]) {
		f.reply(ctx, msg, "A URL must start with a protocol (i.e. `http://` or `https://`, which are currently the only protocols we support).")
		return nil
	}

	if err := f.bot.SendChatAction(ctx, msg.Chat.ID, "typing"); err != nil {
		slog.Warn("sending chat action", "error", err)
	}

	op, err := json.Marshal(opaque{ChatID: msg.Chat.ID, MessageID: msg.MessageID})
	if err != nil {
		return fmt.Errorf("marshal opaque: %w", err)
	}
	id, err := json.Marshal(identifier{UserID: msg.From.ID, ChatID: msg.Chat.ID, MessageID: msg.MessageID})
	if err != nil {
		return fmt.Errorf("marshal identifier: %w", err)
	}

	req := &bus.Request{
		URL:               links[0],
		Medium:            Medium,
		Opaque:            op,
		IdentifierVersion: identifierVersion,
		Identifier:        id,
	}
	if err := f.bus.PushRequest(ctx, req); err != nil {
		return fmt.Errorf("enqueue request: %w", err)
	}

	// Audit failures do not abort the request.
	if err := f.audit.Log(req.URL, Medium, identifierVersion, string(id)); err != nil {
		slog.Error("audit log", "url", req.URL, "error", err)
	}
	return nil
}

func (f *Frontend) reply(ctx context.Context, msg *Message, text string) {
	if err := f.bot.SendMessage(ctx, msg.Chat.ID, text, msg.MessageID); err != nil {
		slog.Error("replying", "chat_id", msg.Chat.ID, "error", err)
	}
}

// RunEgress consumes the telegram response queue and delivers each response
// to its chat.
func (f *Frontend) RunEgress(ctx context.Context) error {
	slog.Info("cecibot telegram is ready for responses")

	for {
		resp, err := f.bus.PopResponse(ctx, Medium)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		f.dispatch(context.WithoutCancel(ctx), resp)
	}
}

func (f *Frontend) dispatch(ctx context.Context, resp *bus.Response) {
	var op opaque
	if err := json.Unmarshal(resp.Opaque, &op); err != nil {
		slog.Error("undeliverable response", "url", resp.URL, "error", err)
		return
	}

	switch resp.Kind {
	case bus.KindFile:
		if err := f.bot.SendDocument(ctx, op.ChatID, resp.File.Path, resp.File.Title, op.MessageID); err != nil {
			slog.Error("sending document", "chat_id", op.ChatID, "error", err)
		}
		if err := os.Remove(resp.File.Path); err != nil {
			slog.Warn("removing artefact", "path", resp.File.Path, "error", err)
		}
	case bus.KindError:
		if err := f.bot.SendMessage(ctx, op.ChatID, frontend.UserError(resp.Error.Message), op.MessageID); err != nil {
			slog.Error("sending error reply", "chat_id", op.ChatID, "error", err)
		}
	}
}

// ExtractLinks collects the url-entity substrings of a message. Entity
// offsets are in UTF-16 code units, so the text is sliced in that encoding.
func ExtractLinks(text string, entities []Entity) []string {
	var links []string
	units := utf16.Encode([]rune(text))
	for _, e := range entities {
		if e.Type != "url" {
			continue
		}
		if e.Offset < 0 || e.Length <= 0 || e.Offset+e.Length > len(units) {
			continue
		}
		links = append(links, string(utf16.Decode(units[e.Offset:e.Offset+e.Length])))
	}
	return links
}
