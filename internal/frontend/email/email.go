// Package email is the e-mail frontend: the requested URL arrives as the
// subject line, and the artefact (or the error) goes back as a reply.
package email

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/cecibot/cecibot/internal/address"
	"github.com/cecibot/cecibot/internal/audit"
	"github.com/cecibot/cecibot/internal/bus"
	"github.com/cecibot/cecibot/internal/frontend"
	"github.com/cecibot/cecibot/internal/ratelimit"
)

// Medium tags request envelopes originating here.
const Medium = "email"

const identifierVersion = 1

// opaque correlates a response with the mail to reply to.
type opaque struct {
	To        string `json:"to"`
	InReplyTo string `json:"in_reply_to,omitempty"`
}

// identifier keeps the full header set for the audit log.
type identifier struct {
	Headers map[string]string `json:"headers"`
}

// Frontend runs the ingress and egress tasks for e-mail.
type Frontend struct {
	source  Source
	sender  Sender
	bus     *bus.Bus
	limiter *ratelimit.Limiter
	audit   *audit.Logger
}

// New wires the frontend to its collaborators.
func New(source Source, sender Sender, b *bus.Bus, limiter *ratelimit.Limiter, auditLog *audit.Logger) *Frontend {
	return &Frontend{
		source:  source,
		sender:  sender,
		bus:     b,
		limiter: limiter,
		audit:   auditLog,
	}
}

// RunIngress consumes incoming mail and turns requests into envelopes.
// Failures to enqueue or to reach the rate limiter are fatal.
func (f *Frontend) RunIngress(ctx context.Context) error {
	slog.Info("cecibot email ingress is ready")

	for {
		mails, err := f.source.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		for i := range mails {
			if err := f.handleMail(ctx, &mails[i]); err != nil {
				return err
			}
		}
	}
}

func (f *Frontend) handleMail(ctx context.Context, mail *Mail) error {
	key, _, err := address.CounterKey(mail.From)
	if err != nil {
		slog.Warn("ignoring mail with malformed sender", "error", err)
		return nil
	}

	status, err := f.limiter.Check(ctx, key)
	if err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	switch status {
	case ratelimit.RateLimitedNow:
		// Notify once, and do not enqueue.
		f.send(ctx, OutgoingMail{
			To:        mail.From,
			InReplyTo: mail.MessageID,
			Subject:   frontend.ErrorPrefix + "rate-limited",
			Body:      rateLimitedBody(mail.Subject, f.limiter.CoolDown()),
		})
		return nil
	case ratelimit.RateLimitedAgain, ratelimit.Blacklisted:
		return nil
	}

	if !frontend.ValidScheme(mail.Subject) {
		// Not a request; stay silent.
		return nil
	}

	op, err := json.Marshal(opaque{To: mail.From, InReplyTo: mail.MessageID})
	if err != nil {
		return fmt.Errorf("marshal opaque: %w", err)
	}
	id, err := json.Marshal(identifier{Headers: mail.Headers})
	if err != nil {
		return fmt.Errorf("marshal identifier: %w", err)
	}

	req := &bus.Request{
		URL:               mail.Subject,
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

// RunEgress consumes the email response queue and replies to each sender.
func (f *Frontend) RunEgress(ctx context.Context) error {
	slog.Info("cecibot email is ready for responses")

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
		if _, err := os.Stat(resp.File.Path); err != nil {
			slog.Error("artefact missing at delivery", "path", resp.File.Path, "error", err)
			f.send(ctx, OutgoingMail{
				To:        op.To,
				InReplyTo: op.InReplyTo,
				Subject:   frontend.UserError("internal error"),
				Body:      errorBody(resp.URL, "internal error"),
			})
			return
		}
		name := resp.File.Title
		if !strings.HasSuffix(name, resp.File.Extension) {
			name += resp.File.Extension
		}
		f.send(ctx, OutgoingMail{
			To:             op.To,
			InReplyTo:      op.InReplyTo,
			Subject:        resp.File.Title,
			AttachmentPath: resp.File.Path,
			AttachmentName: name,
		})
		if err := os.Remove(resp.File.Path); err != nil {
			slog.Warn("removing artefact", "path", resp.File.Path, "error", err)
		}
	case bus.KindError:
		f.send(ctx, OutgoingMail{
			To:        op.To,
			InReplyTo: op.InReplyTo,
			Subject:   frontend.UserError(resp.Error.Message),
			Body:      errorBody(resp.URL, resp.Error.Message),
		})
	}
}

func (f *Frontend) send(ctx context.Context, m OutgoingMail) {
	if err := f.sender.Send(ctx, m); err != nil {
		slog.Error("sending mail", "to", m.To, "error", err)
	}
}

func rateLimitedBody(subject string, coolDown time.Duration) string {
	return fmt.Sprintf(`Your request

	%s

has been unsuccessful due to rate-limiting. Please try again in %d seconds.

Apologies for the inconvenience,
cecibot.com
`, subject, int(coolDown/time.Second))
}

func errorBody(url, message string) string {
	return fmt.Sprintf(`Your request

	%s

has been unsuccessful due to following error:

	%s

Apologies for the inconvenience,
cecibot.com
`, url, message)
}
