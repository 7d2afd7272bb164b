package email

import "context"

// Mail is one incoming message, already parsed by the mail-receiving glue.
type Mail struct {
	// From is the sender address, e.g. "a.b+tag@gmail.com".
	From string `json:"from"`
	// Subject carries the requested URL.
	Subject string `json:"subject"`
	// MessageID threads our reply via In-Reply-To.
	MessageID string `json:"message_id"`
	// Headers are kept verbatim for the audit identifier.
	Headers map[string]string `json:"headers"`
}

// OutgoingMail is one reply to send.
type OutgoingMail struct {
	To             string
	Subject        string
	InReplyTo      string
	Body           string
	AttachmentPath string
	AttachmentName string
}

// Source yields incoming mail. The concrete inbox glue (cloud queue, IMAP,
// ...) lives behind this interface.
type Source interface {
	Receive(ctx context.Context) ([]Mail, error)
}

// Sender delivers outgoing mail.
type Sender interface {
	Send(ctx context.Context, m OutgoingMail) error
}
