package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/arqma/arqbot/internal/bot"
	"github.com/arqma/arqbot/internal/metrics"
)

const (
	telegramAPI = "https://api.telegram.org"
	pollTimeout = 30
)

type Bot struct {
	token    string
	baseURL  string
	router   *bot.Router
	status   *bot.Status
	logger   *slog.Logger
	client   *http.Client
	offset   int64
	username string
	retry    time.Duration
	wg       sync.WaitGroup
}

type Option func(*Bot)

// WithBaseURL points the bot at another Bot API host (tests use httptest).
func WithBaseURL(u string) Option {
	return func(b *Bot) { b.baseURL = strings.TrimRight(u, "/") }
}

func WithClient(c *http.Client) Option {
	return func(b *Bot) { b.client = c }
}

func WithStatus(s *bot.Status) Option {
	return func(b *Bot) { b.status = s }
}

func NewBot(token string, router *bot.Router, logger *slog.Logger, opts ...Option) *Bot {
	b := &Bot{
		token:   token,
		baseURL: telegramAPI,
		router:  router,
		logger:  logger.With("platform", bot.Telegram.Name),
		client:  &http.Client{Timeout: (pollTimeout + 10) * time.Second},
		retry:   5 * time.Second,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bot) method(name string) string {
	return b.baseURL + "/bot" + b.token + "/" + name
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

func (b *Bot) call(ctx context.Context, req *http.Request, out interface{}) error {
	resp, err := b.client.Do(req.WithContext(ctx))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var r apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || !r.OK {
		return fmt.Errorf("telegram API error %d: %s", resp.StatusCode, r.Description)
	}
	if out != nil {
		return json.Unmarshal(r.Result, out)
	}
	return nil
}

// SendMessage sends a Markdown text message to a Telegram chat.
func (b *Bot) SendMessage(ctx context.Context, chatID int64, text string) error {
	payload := map[string]interface{}{
		"chat_id":                  chatID,
		"text":                     text,
		"parse_mode":               "Markdown",
		"disable_web_page_preview": true,
	}
	body, _ := json.Marshal(payload)

	req, err := http.NewRequest(http.MethodPost, b.method("sendMessage"), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := b.call(ctx, req, nil); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func (b *Bot) getMe(ctx context.Context) error {
	req, err := http.NewRequest(http.MethodGet, b.method("getMe"), nil)
	if err != nil {
		return err
	}
	var me struct {
		Username string `json:"username"`
	}
	if err := b.call(ctx, req, &me); err != nil {
		return fmt.Errorf("getMe: %w", err)
	}
	b.username = me.Username
	return nil
}

// Run checks the token, then long-polls for updates until ctx is done.
// Each update is answered in its own goroutine.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.getMe(ctx); err != nil {
		return err
	}
	b.logger.Info("telegram bot started", "username", b.username)
	b.status.Set(bot.Telegram.Name, true)
	defer func() {
		b.wg.Wait()
		b.status.Set(bot.Telegram.Name, false)
		b.logger.Info("telegram bot stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			b.poll(ctx)
		}
	}
}

type update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		Text string `json:"text"`
	} `json:"message"`
}

func (b *Bot) poll(ctx context.Context) {
	url := fmt.Sprintf("%s?offset=%d&timeout=%d", b.method("getUpdates"), b.offset, pollTimeout)
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		b.logger.Error("create poll request", "error", err)
		return
	}

	var updates []update
	if err := b.call(ctx, req, &updates); err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return
		}
		b.logger.Error("poll updates", "error", err)
		select {
		case <-ctx.Done():
		case <-time.After(b.retry):
		}
		return
	}

	for _, u := range updates {
		b.offset = u.UpdateID + 1
		if u.Message == nil || u.Message.Text == "" {
			continue
		}
		b.wg.Add(1)
		go func(chatID int64, text string) {
			defer b.wg.Done()
			b.handle(ctx, chatID, text)
		}(u.Message.Chat.ID, u.Message.Text)
	}
}

func (b *Bot) handle(ctx context.Context, chatID int64, text string) {
	cmd, ok := bot.ParseCommand(bot.Telegram.Prefix, text)
	if !ok {
		return
	}
	if cmd.Mention != "" && b.username != "" && !strings.EqualFold(cmd.Mention, b.username) {
		return
	}
	msg, ok := b.router.Reply(ctx, bot.Telegram, cmd.Name)
	if !ok {
		return
	}
	for _, chunk := range bot.SplitMessage(msg, bot.TelegramMaxMessage) {
		if err := b.SendMessage(ctx, chatID, chunk); err != nil {
			metrics.RepliesFailedTotal.WithLabelValues(bot.Telegram.Name).Inc()
			b.logger.Error("reply failed", "chat_id", chatID, "command", cmd.Name, "error", err)
			return
		}
	}
}
