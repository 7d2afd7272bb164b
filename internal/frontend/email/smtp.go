package email

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"os"
)

// SMTPSender delivers outgoing mail through a relay host.
type SMTPSender struct {
	addr string
	from string
}

// NewSMTPSender sends from the given address via the relay at addr.
func NewSMTPSender(addr, from string) *SMTPSender {
	return &SMTPSender{addr: addr, from: from}
}

// Send builds the MIME message and hands it to the relay.
func (s *SMTPSender) Send(_ context.Context, m OutgoingMail) error {
	msg, err := buildMessage(s.from, m)
	if err != nil {
		return err
	}
	if err := smtp.SendMail(s.addr, nil, s.from, []string{m.To}, msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", m.To, err)
	}
	return nil
}

// buildMessage renders an RFC 5322 message, multipart when an attachment is
// present.
func buildMessage(from string, m OutgoingMail) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", m.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", m.Subject))
	if m.InReplyTo != "" {
		fmt.Fprintf(&buf, "In-Reply-To: %s\r\n", m.InReplyTo)
	}
	buf.WriteString("MIME-Version: 1.0\r\n")

	if m.AttachmentPath == "" {
		buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		buf.WriteString(m.Body)
		return buf.Bytes(), nil
	}

	data, err := os.ReadFile(m.AttachmentPath)
	if err != nil {
		return nil, fmt.Errorf("read attachment: %w", err)
	}

	mw := multipart.NewWriter(&buf)
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%s\r\n\r\n", mw.Boundary())

	text, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/plain; charset=utf-8"},
	})
	if err != nil {
		return nil, err
	}
	if _, err := text.Write([]byte(m.Body)); err != nil {
		return nil, err
	}

	name := m.AttachmentName
	if name == "" {
		name = "attachment"
	}
	attachment, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"application/octet-stream"},
		"Content-Transfer-Encoding": {"base64"},
		"Content-Disposition":       {fmt.Sprintf("attachment; filename=%q", name)},
	})
	if err != nil {
		return nil, err
	}
	if _, err := attachment.Write([]byte(base64.StdEncoding.EncodeToString(data))); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
