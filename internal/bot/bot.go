// Package bot is the Telegram command surface of the monitor: an inline
// keyboard menu restricted to the authorized chat.
package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/willianribas/bots/internal/clock"
	"github.com/willianribas/bots/internal/domain"
	"github.com/willianribas/bots/internal/logger"
	"github.com/willianribas/bots/internal/notify"
	"github.com/willianribas/bots/internal/service"
)

// Callback data carried by the menu buttons.
const (
	ActionStart      = "start"
	ActionStop       = "stop"
	ActionRestart    = "restart"
	ActionStatus     = "status"
	ActionStats      = "stats"
	ActionSearch     = "search_os"
	ActionClearCache = "clear_cache"
	ActionExit       = "exit"
)

// Commands is the monitor control the bot drives. *service.Controller implements it.
type Commands interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Restart(ctx context.Context) error
	Status() service.Status
	Search(ctx context.Context, number string) (*domain.ServiceOrder, string, error)
	ClearCache(ctx context.Context) (int, error)
	Stats(ctx context.Context) (domain.MonitorStats, error)
}

// API is the part of the Bot API client the bot needs. *notify.Telegram implements it.
type API interface {
	Send(ctx context.Context, chatID int64, text string, keyboard *notify.InlineKeyboard) error
	Call(ctx context.Context, method string, body interface{}, out interface{}) error
}

// Options tunes polling and the search prompt.
type Options struct {
	ChatID        int64
	PollTimeout   time.Duration
	SearchTimeout time.Duration
	RetryDelay    time.Duration
}

// Bot long-polls getUpdates and dispatches messages and button presses.
type Bot struct {
	api      API
	commands Commands
	zone     *clock.Zone
	opts     Options

	// owned by the Run goroutine
	offset      int64
	searchUntil time.Time
}

func New(api API, commands Commands, zone *clock.Zone, opts Options) *Bot {
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 30 * time.Second
	}
	if opts.SearchTimeout <= 0 {
		opts.SearchTimeout = 5 * time.Minute
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 3 * time.Second
	}
	return &Bot{api: api, commands: commands, zone: zone, opts: opts}
}

// Menu is the control keyboard.
func Menu() *notify.InlineKeyboard {
	return &notify.InlineKeyboard{Rows: [][]notify.InlineButton{
		{{Text: "▶️ Start monitor", CallbackData: ActionStart}, {Text: "⏹ Stop monitor", CallbackData: ActionStop}},
		{{Text: "🔄 Restart monitor", CallbackData: ActionRestart}, {Text: "ℹ️ Status", CallbackData: ActionStatus}},
		{{Text: "📊 Statistics", CallbackData: ActionStats}, {Text: "🔍 Search order", CallbackData: ActionSearch}},
		{{Text: "🧹 Clear cache", CallbackData: ActionClearCache}, {Text: "❌ Close", CallbackData: ActionExit}},
	}}
}

type update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *message       `json:"message,omitempty"`
	CallbackQuery *callbackQuery `json:"callback_query,omitempty"`
}

type message struct {
	MessageID int64  `json:"message_id"`
	Chat      chat   `json:"chat"`
	Text      string `json:"text"`
}

type chat struct {
	ID int64 `json:"id"`
}

type callbackQuery struct {
	ID      string   `json:"id"`
	Message *message `json:"message,omitempty"`
	Data    string   `json:"data"`
}

type getUpdatesRequest struct {
	Offset         int64    `json:"offset"`
	Timeout        int      `json:"timeout"`
	AllowedUpdates []string `json:"allowed_updates"`
}

type answerCallbackRequest struct {
	CallbackQueryID string `json:"callback_query_id"`
	Text            string `json:"text,omitempty"`
	ShowAlert       bool   `json:"show_alert,omitempty"`
}

// Run polls until ctx is cancelled. Poll failures are logged and retried.
func (b *Bot) Run(ctx context.Context) error {
	ctx = logger.SetComponent(ctx, "bot")
	logger.CtxInfo(ctx, "telegram bot polling for chat %d", b.opts.ChatID)

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		updates, err := b.poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.FromContext(ctx).WithError(err).Warn("getUpdates failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(b.opts.RetryDelay):
			}
			continue
		}
		for _, u := range updates {
			b.offset = u.UpdateID + 1
			b.handle(ctx, u)
		}
	}
}

func (b *Bot) poll(ctx context.Context) ([]update, error) {
	var updates []update
	err := b.api.Call(ctx, "/getUpdates", getUpdatesRequest{
		Offset:         b.offset,
		Timeout:        int(b.opts.PollTimeout.Seconds()),
		AllowedUpdates: []string{"message", "callback_query"},
	}, &updates)
	return updates, err
}

func (b *Bot) handle(ctx context.Context, u update) {
	switch {
	case u.CallbackQuery != nil:
		b.handleCallback(ctx, u.CallbackQuery)
	case u.Message != nil:
		b.handleMessage(ctx, u.Message)
	}
}

func (b *Bot) authorized(chatID int64) bool {
	return chatID == b.opts.ChatID
}

func (b *Bot) handleMessage(ctx context.Context, msg *message) {
	ctx = logger.WithField(ctx, logger.FieldChatID, strconv.FormatInt(msg.Chat.ID, 10))
	if !b.authorized(msg.Chat.ID) {
		logger.CtxWarn(ctx, "message from unauthorized chat")
		b.reply(ctx, msg.Chat.ID, "🚫 Access denied. This chat is not authorized to use this bot.", nil)
		return
	}

	text := strings.TrimSpace(msg.Text)
	if b.searching() && text != "" && !strings.HasPrefix(text, "/") {
		b.searchUntil = time.Time{}
		b.reply(ctx, msg.Chat.ID, b.search(ctx, text), nil)
		return
	}

	command, arg, _ := strings.Cut(text, " ")
	// "/status@SomeBot" in group chats
	command, _, _ = strings.Cut(strings.ToLower(command), "@")
	switch action := strings.TrimPrefix(command, "/"); {
	case !strings.HasPrefix(command, "/") || action == "menu":
		b.reply(ctx, msg.Chat.ID, "📋 Monitor control menu\n\nChoose an option below:", Menu())
	case action == ActionSearch || action == "search":
		if arg = strings.TrimSpace(arg); arg == "" {
			b.reply(ctx, msg.Chat.ID, b.dispatch(ctx, ActionSearch), nil)
			return
		}
		b.reply(ctx, msg.Chat.ID, b.search(ctx, arg), nil)
	default:
		b.reply(ctx, msg.Chat.ID, b.dispatch(ctx, action), nil)
	}
}

func (b *Bot) handleCallback(ctx context.Context, q *callbackQuery) {
	if q.Message == nil {
		return
	}
	chatID := q.Message.Chat.ID
	ctx = logger.WithFields(ctx, logger.Fields{
		logger.FieldChatID:  strconv.FormatInt(chatID, 10),
		logger.FieldCommand: q.Data,
	})

	if !b.authorized(chatID) {
		logger.CtxWarn(ctx, "callback from unauthorized chat")
		b.answer(ctx, answerCallbackRequest{CallbackQueryID: q.ID, Text: "🚫 Access denied.", ShowAlert: true})
		return
	}

	b.reply(ctx, chatID, b.dispatch(ctx, q.Data), nil)
	b.answer(ctx, answerCallbackRequest{CallbackQueryID: q.ID})
}

// dispatch runs one menu action and returns the reply text.
func (b *Bot) dispatch(ctx context.Context, action string) string {
	logger.CtxInfo(ctx, "command %s", action)

	switch action {
	case ActionStart:
		switch err := b.commands.Start(ctx); {
		case errors.Is(err, service.ErrAlreadyRunning):
			return "⚠️ The monitor is already running."
		case err != nil:
			return "❌ Could not start the monitor: " + err.Error()
		}
		return "▶️ Monitor started."
	case ActionStop:
		switch err := b.commands.Stop(ctx); {
		case errors.Is(err, service.ErrNotRunning):
			return "⚠️ The monitor is not running."
		case err != nil:
			return "❌ Could not stop the monitor: " + err.Error()
		}
		return "⏹ Monitor stopped."
	case ActionRestart:
		if err := b.commands.Restart(ctx); err != nil {
			return "❌ Could not restart the monitor: " + err.Error()
		}
		return "🔄 Monitor restarted."
	case ActionStatus:
		return formatStatus(b.commands.Status())
	case ActionStats:
		stats, err := b.commands.Stats(ctx)
		if err != nil {
			logger.FromContext(ctx).WithError(err).Error("stats query failed")
			return "❌ Could not load statistics."
		}
		return formatStats(stats)
	case ActionSearch:
		b.searchUntil = b.zone.Now().Add(b.opts.SearchTimeout)
		return "🔍 Type the order number to search (e.g. 25.1234):"
	case ActionClearCache:
		n, err := b.commands.ClearCache(ctx)
		if err != nil {
			logger.FromContext(ctx).WithError(err).Error("clear cache failed")
			return "❌ Could not clear the cache. Try again."
		}
		return formatCleared(n)
	case ActionExit:
		b.searchUntil = time.Time{}
		return "❌ Menu closed. Send any message to open it again."
	default:
		return "❌ Unknown command."
	}
}

func (b *Bot) searching() bool {
	return !b.searchUntil.IsZero() && b.zone.Now().Before(b.searchUntil)
}

func (b *Bot) search(ctx context.Context, number string) string {
	order, src, err := b.commands.Search(ctx, number)
	switch {
	case errors.Is(err, service.ErrInvalidOrderNumber):
		return "❌ Invalid format. Use an order number like 25.1234."
	case errors.Is(err, service.ErrNotFound):
		return "🔍 Order " + strings.TrimSpace(number) + " not found in the cache or the database."
	case err != nil:
		logger.FromContext(ctx).WithError(err).Error("order search failed")
		return "❌ Internal error while searching."
	}
	return formatOrder(order, src)
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string, keyboard *notify.InlineKeyboard) {
	if err := b.api.Send(ctx, chatID, text, keyboard); err != nil {
		logger.FromContext(ctx).WithError(err).Warn("reply not delivered")
	}
}

func (b *Bot) answer(ctx context.Context, req answerCallbackRequest) {
	if err := b.api.Call(ctx, "/answerCallbackQuery", req, nil); err != nil {
		logger.FromContext(ctx).WithError(err).Debug("answerCallbackQuery failed")
	}
}
