package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"FuelPriceMonitor/internal/config"
	"FuelPriceMonitor/internal/domain"
	"FuelPriceMonitor/internal/notify"
	"FuelPriceMonitor/internal/ports"
)

const maxMessageLength = 4096

// Notifier sends run summaries to a Telegram chat via the bot API.
type Notifier struct {
	botToken string
	chatID   string
	endpoint string
	client   *http.Client

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

var _ ports.Sink = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier. The bot is created lazily
// because the client library calls getMe on construction.
func NewNotifier(cfg config.TelegramConfig) *Notifier {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	return &Notifier{
		botToken: cfg.BotToken,
		chatID:   cfg.ChatID,
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (n *Notifier) Name() string { return "telegram" }

// Deliver posts the Markdown rendering of summary.
func (n *Notifier) Deliver(ctx context.Context, summary domain.RunReportSummary) error {
	if n.botToken == "" || n.chatID == "" {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	bot, err := n.botLocked(ctx)
	if err != nil {
		return err
	}

	msg, err := n.message(truncate(notify.RenderMarkdown(summary), maxMessageLength))
	if err != nil {
		return err
	}

	bot.Client = contextDoer{ctx: ctx, client: n.client}
	if _, err := bot.Send(msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func (n *Notifier) botLocked(ctx context.Context) (*tgbotapi.BotAPI, error) {
	if n.bot != nil {
		return n.bot, nil
	}
	bot, err := tgbotapi.NewBotAPIWithClient(n.botToken, n.endpoint, contextDoer{ctx: ctx, client: n.client})
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	n.bot = bot
	return bot, nil
}

func (n *Notifier) message(text string) (tgbotapi.MessageConfig, error) {
	var msg tgbotapi.MessageConfig
	if strings.HasPrefix(n.chatID, "@") {
		msg = tgbotapi.NewMessageToChannel(n.chatID, text)
	} else {
		id, err := strconv.ParseInt(n.chatID, 10, 64)
		if err != nil {
			return msg, fmt.Errorf("invalid telegram chat id %q: %w", n.chatID, err)
		}
		msg = tgbotapi.NewMessage(id, text)
	}
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableWebPagePreview = true
	return msg, nil
}

// contextDoer binds the library's context-free requests to the delivery context.
type contextDoer struct {
	ctx    context.Context
	client *http.Client
}

func (d contextDoer) Do(req *http.Request) (*http.Response, error) {
	return d.client.Do(req.WithContext(d.ctx))
}

func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit-1]) + "…"
}
