package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultTelegramAPI = "https://api.telegram.org"

// TelegramNotifier posts messages through the Bot API sendMessage method.
type TelegramNotifier struct {
	Token   string
	ChatID  string
	APIBase string
	Client  *http.Client
	// Limit is the per-message budget; longer text is split on lines.
	Limit int
}

func NewTelegramNotifier(token, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		Token:   token,
		ChatID:  chatID,
		APIBase: DefaultTelegramAPI,
		Client:  &http.Client{Timeout: 10 * time.Second},
		Limit:   MaxMessageLen,
	}
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

// Send implements Notifier. Every chunk is attempted even if an earlier one
// failed.
func (t *TelegramNotifier) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var errs []error
	for _, chunk := range SplitMessage(text, t.Limit) {
		if err := t.sendOne(ctx, chunk); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *TelegramNotifier) sendOne(ctx context.Context, text string) error {
	payload, err := json.Marshal(sendMessageRequest{
		ChatID:                t.ChatID,
		Text:                  text,
		DisableWebPagePreview: true,
	})
	if err != nil {
		return &DeliveryError{Channel: "telegram", Err: err}
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(t.APIBase, "/"), t.Token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return &DeliveryError{Channel: "telegram", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		// The URL carries the token; keep it out of logs.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return &DeliveryError{Channel: "telegram", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &DeliveryError{Channel: "telegram", StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return nil
}
