package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Update is one entry from getUpdates.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

// Message is the subset of a Telegram message the frontend needs.
type Message struct {
	MessageID int64    `json:"message_id"`
	From      *User    `json:"from"`
	Chat      Chat     `json:"chat"`
	Text      string   `json:"text"`
	Entities  []Entity `json:"entities"`
}

type User struct {
	ID int64 `json:"id"`
}

type Chat struct {
	ID int64 `json:"id"`
}

// Entity marks a span of the message text; offsets and lengths are in UTF-16
// code units.
type Entity struct {
	Type   string `json:"type"`
	Offset int    `json:"offset"`
	Length int    `json:"length"`
}

// Bot is the platform glue the frontend talks through.
type Bot interface {
	Updates(ctx context.Context) ([]Update, error)
	SendMessage(ctx context.Context, chatID int64, text string, replyTo int64) error
	SendDocument(ctx context.Context, chatID int64, filePath, filename string, replyTo int64) error
	SendChatAction(ctx context.Context, chatID int64, action string) error
}

// APIBot is a minimal long-polling Bot API client.
type APIBot struct {
	token   string
	baseURL string
	client  *http.Client
	offset  int64
}

// NewAPIBot returns a client for the hosted Bot API.
func NewAPIBot(token string) *APIBot {
	return &APIBot{
		token:   token,
		baseURL: "https://api.telegram.org",
		// Longer than the long-poll timeout below.
		client: &http.Client{Timeout: 50 * time.Second},
	}
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
}

// Updates long-polls for new updates and advances the acknowledged offset.
func (b *APIBot) Updates(ctx context.Context) ([]Update, error) {
	params := url.Values{
		"timeout":         {"30"},
		"allowed_updates": {`["message"]`},
	}
	if b.offset != 0 {
		params.Set("offset", strconv.FormatInt(b.offset, 10))
	}

	raw, err := b.call(ctx, "getUpdates", params)
	if err != nil {
		return nil, err
	}

	var updates []Update
	if err := json.Unmarshal(raw, &updates); err != nil {
		return nil, fmt.Errorf("getUpdates: %w", err)
	}
	if len(updates) > 0 {
		b.offset = updates[len(updates)-1].UpdateID + 1
	}
	return updates, nil
}

// SendMessage sends text as a reply to the given message.
func (b *APIBot) SendMessage(ctx context.Context, chatID int64, text string, replyTo int64) error {
	params := url.Values{
		"chat_id": {strconv.FormatInt(chatID, 10)},
		"text":    {text},
	}
	if replyTo != 0 {
		params.Set("reply_to_message_id", strconv.FormatInt(replyTo, 10))
	}
	_, err := b.call(ctx, "sendMessage", params)
	return err
}

// SendChatAction shows e.g. "typing..." while a request is being processed.
func (b *APIBot) SendChatAction(ctx context.Context, chatID int64, action string) error {
	_, err := b.call(ctx, "sendChatAction", url.Values{
		"chat_id": {strconv.FormatInt(chatID, 10)},
		"action":  {action},
	})
	return err
}

// SendDocument uploads the artefact as a document reply.
func (b *APIBot) SendDocument(ctx context.Context, chatID int64, filePath, filename string, replyTo int64) error {
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("sendDocument: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("chat_id", strconv.FormatInt(chatID, 10)); err != nil {
		return fmt.Errorf("sendDocument: %w", err)
	}
	if replyTo != 0 {
		if err := mw.WriteField("reply_to_message_id", strconv.FormatInt(replyTo, 10)); err != nil {
			return fmt.Errorf("sendDocument: %w", err)
		}
	}
	part, err := mw.CreateFormFile("document", filename)
	if err != nil {
		return fmt.Errorf("sendDocument: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("sendDocument: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("sendDocument: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.methodURL("sendDocument"), &body)
	if err != nil {
		return fmt.Errorf("sendDocument: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("sendDocument: %w", err)
	}
	defer resp.Body.Close()
	_, err = decodeAPIResponse(resp.Body)
	if err != nil {
		return fmt.Errorf("sendDocument: %w", err)
	}
	return nil
}

func (b *APIBot) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", b.baseURL, b.token, method)
}

func (b *APIBot) call(ctx context.Context, method string, params url.Values) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.methodURL(method), bytes.NewBufferString(params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	result, err := decodeAPIResponse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return result, nil
}

func decodeAPIResponse(r io.Reader) (json.RawMessage, error) {
	var api apiResponse
	if err := json.NewDecoder(r).Decode(&api); err != nil {
		return nil, err
	}
	if !api.OK {
		return nil, fmt.Errorf("bot API: %s", api.Description)
	}
	return api.Result, nil
}
