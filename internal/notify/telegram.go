package notify

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/willianribas/bots/internal/config"
	"github.com/willianribas/bots/internal/logger"
	"github.com/willianribas/bots/internal/metrics"
	"golang.org/x/time/rate"
)

// APIError is a response the Bot API answered with ok=false.
type APIError struct {
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram api error %d: %s", e.Code, e.Description)
}

// apiResponse is the envelope of every Bot API reply.
type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

// InlineButton is one button of an inline keyboard.
type InlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

// InlineKeyboard is attached to a message as reply_markup.
type InlineKeyboard struct {
	Rows [][]InlineButton `json:"inline_keyboard"`
}

type sendMessageRequest struct {
	ChatID      int64           `json:"chat_id"`
	Text        string          `json:"text"`
	ReplyMarkup *InlineKeyboard `json:"reply_markup,omitempty"`
}

// Telegram talks to the Bot API over resty.
type Telegram struct {
	client     *resty.Client
	chatID     int64
	maxRetries int
	backoff    time.Duration
	limiter    *rate.Limiter

	pending sync.WaitGroup
}

// NewTelegram creates a client for cfg.Token that alerts cfg.ChatID.
func NewTelegram(cfg config.TelegramConfig) *Telegram {
	perMinute := cfg.RatePerMinute
	if perMinute <= 0 {
		perMinute = 20
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 1
	}

	client := resty.New().
		SetBaseURL(fmt.Sprintf("%s/bot%s", cfg.APIURL, cfg.Token)).
		SetHeader("Content-Type", "application/json").
		SetTimeout(cfg.PollTimeout + 10*time.Second)

	return &Telegram{
		client:     client,
		chatID:     cfg.ChatID,
		maxRetries: retries,
		backoff:    cfg.RetryBackoff,
		limiter:    rate.NewLimiter(rate.Limit(float64(perMinute)/60), 3),
	}
}

// Client exposes the underlying resty client for other Bot API calls.
func (t *Telegram) Client() *resty.Client {
	return t.client
}

// ChatID is the chat that receives alerts.
func (t *Telegram) ChatID() int64 {
	return t.chatID
}

// Notify sends text to the alert chat.
func (t *Telegram) Notify(ctx context.Context, text string) error {
	return t.Send(ctx, t.chatID, text, nil)
}

// Alert sends in the background. Wait blocks until pending alerts finish.
func (t *Telegram) Alert(ctx context.Context, text string) {
	ctx = context.WithoutCancel(ctx)
	t.pending.Add(1)
	go func() {
		defer t.pending.Done()
		if err := t.Notify(ctx, text); err != nil {
			logger.FromContext(ctx).WithError(err).Warn("alert dropped")
		}
	}()
}

// Wait blocks until background alerts complete.
func (t *Telegram) Wait() {
	t.pending.Wait()
}

// Send delivers text to chatID, retrying only connectivity failures with a
// linearly growing pause.
func (t *Telegram) Send(ctx context.Context, chatID int64, text string, keyboard *InlineKeyboard) error {
	req := sendMessageRequest{ChatID: chatID, Text: text, ReplyMarkup: keyboard}

	var lastErr error
	for attempt := 1; attempt <= t.maxRetries; attempt++ {
		if err := t.limiter.Wait(ctx); err != nil {
			return err
		}

		lastErr = t.call(ctx, "/sendMessage", req, nil)
		if lastErr == nil {
			metrics.AlertsTotal.WithLabelValues("sent").Inc()
			return nil
		}
		if !IsConnectivityError(lastErr) || attempt == t.maxRetries {
			break
		}

		logger.FromContext(ctx).WithFields(logger.Fields{
			logger.FieldAttempt: attempt,
			logger.FieldChatID:  strconv.FormatInt(chatID, 10),
		}).WithError(lastErr).Warn("telegram unreachable, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.backoff * time.Duration(attempt)):
		}
	}

	metrics.AlertsTotal.WithLabelValues("failed").Inc()
	return fmt.Errorf("send telegram message: %w", lastErr)
}

// call posts body to a Bot API method and decodes the result field into out.
func (t *Telegram) call(ctx context.Context, method string, body interface{}, out interface{}) error {
	envelope := struct {
		apiResponse
		Result interface{} `json:"result"`
	}{Result: out}

	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&envelope).
		SetError(&envelope).
		Post(method)
	if err != nil {
		return err
	}
	if !envelope.OK {
		return &APIError{Code: resp.StatusCode(), Description: envelope.Description}
	}
	return nil
}

// Call invokes any Bot API method. out receives the "result" field.
func (t *Telegram) Call(ctx context.Context, method string, body interface{}, out interface{}) error {
	return t.call(ctx, method, body, out)
}
