// Package notify is the outbound message channel. Delivery is best-effort
// per recipient: one refusal never blocks the rest of the fan-out.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"bitbucket.org/mmdatafocus/shiftcheck_backend/config"
	"github.com/sirupsen/logrus"
)

type Notifier interface {
	Send(ctx context.Context, chatId int64, text string) error
}

const telegramAPIBase = "https://api.telegram.org"

type TelegramNotifier struct {
	token   string
	baseURL string
	client  *http.Client
}

func NewTelegramNotifier(token string) *TelegramNotifier {
	return &TelegramNotifier{
		token:   token,
		baseURL: telegramAPIBase,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// NewTelegramNotifierWithBase lets tests point the sender at a local server.
func NewTelegramNotifierWithBase(token, baseURL string) *TelegramNotifier {
	n := NewTelegramNotifier(token)
	n.baseURL = baseURL
	return n
}

type sendMessageRequest struct {
	ChatId    int64  `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type sendMessageResponse struct {
	Ok          bool   `json:"ok"`
	Description string `json:"description"`
}

func (t *TelegramNotifier) Send(ctx context.Context, chatId int64, text string) error {
	body, err := json.Marshal(sendMessageRequest{ChatId: chatId, Text: text, ParseMode: "HTML"})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	var parsed sendMessageResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("telegram response status %d: %w", resp.StatusCode, err)
	}
	if !parsed.Ok {
		return fmt.Errorf("telegram send rejected (status %d): %s", resp.StatusCode, parsed.Description)
	}
	return nil
}

// SendToMany fans text out to the deduplicated chat ids. Returns true if at
// least one recipient accepted the message; failures are logged and do not
// stop the loop.
func SendToMany(ctx context.Context, notifier Notifier, chatIds []int64, text string) bool {
	logger := config.GetLogger()
	delivered := false
	seen := make(map[int64]bool, len(chatIds))
	for _, chatId := range chatIds {
		if chatId == 0 || seen[chatId] {
			continue
		}
		seen[chatId] = true
		if err := notifier.Send(ctx, chatId, text); err != nil {
			logger.WithFields(logrus.Fields{
				"module":  "notify",
				"chat_id": chatId,
			}).Error("failed to send message: " + err.Error())
			continue
		}
		delivered = true
	}
	return delivered
}
