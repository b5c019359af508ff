// Package notify delivers alert and research notifications over Telegram,
// email, and webhooks.
package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/nocliffcapital/alithos/internal/logger"
	"github.com/nocliffcapital/alithos/internal/models"
)

// AlertLister exposes the scheduler's current registry to the /alerts command.
type AlertLister interface {
	List() []*models.Alert
}

// Researcher runs the research pipeline for the /research command.
type Researcher interface {
	Run(ctx context.Context, marketID string) (*models.ResearchRun, error)
}

// TelegramClient pushes notifications to a Telegram chat and serves a small
// set of bot commands.
type TelegramClient struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration

	alerts     AlertLister
	researcher Researcher
}

// NewTelegramClient creates a Telegram client. alerts and researcher may be
// nil; the corresponding commands then report that the feature is off.
func NewTelegramClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*TelegramClient, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &TelegramClient{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// AttachCommands wires the data sources used by bot commands.
func (c *TelegramClient) AttachCommands(alerts AlertLister, researcher Researcher) {
	c.alerts = alerts
	c.researcher = researcher
}

// Push sends a short notification. Implements the dispatcher's push sink.
func (c *TelegramClient) Push(_ context.Context, title, message string) error {
	text := fmt.Sprintf("🔔 *%s*\n%s", escapeMarkdownV2(title), escapeMarkdownV2(message))
	return c.sendMarkdownV2(text)
}

// SendVerdict sends a formatted research verdict to the chat.
func (c *TelegramClient) SendVerdict(run *models.ResearchRun) error {
	return c.sendMarkdownV2(formatVerdict(run))
}

// ListenForCommands starts a goroutine that polls for Telegram updates and
// handles bot commands. It returns immediately; the goroutine stops when ctx
// is cancelled.
func (c *TelegramClient) ListenForCommands(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil && update.Message.IsCommand() {
					c.handleCommand(ctx, update.Message)
				}
			}
		}
	}()
}

func (c *TelegramClient) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "ping":
		c.reply(msg.Chat.ID, "Pong")
	case "alerts":
		c.replyMarkdownV2(msg.Chat.ID, c.formatAlertList())
	case "research":
		marketID := strings.TrimSpace(msg.CommandArguments())
		if marketID == "" {
			c.reply(msg.Chat.ID, "Usage: /research <marketID>")
			return
		}
		if c.researcher == nil {
			c.reply(msg.Chat.ID, "Research is not configured")
			return
		}
		c.reply(msg.Chat.ID, "Researching "+marketID+", this can take a few minutes...")
		// Runs are long; answer asynchronously so the listener keeps serving.
		go func() {
			run, err := c.researcher.Run(ctx, marketID)
			if err != nil {
				logger.Error("Research command for %s failed: %v", marketID, err)
				c.reply(msg.Chat.ID, "Research failed: "+err.Error())
				return
			}
			c.replyMarkdownV2(msg.Chat.ID, formatVerdict(run))
		}()
	}
}

func (c *TelegramClient) formatAlertList() string {
	if c.alerts == nil {
		return escapeMarkdownV2("Alerts are not configured")
	}
	alerts := c.alerts.List()
	if len(alerts) == 0 {
		return escapeMarkdownV2("No alerts registered")
	}

	var b strings.Builder
	b.WriteString("📋 *Registered alerts*\n\n")
	for i, a := range alerts {
		status := "inactive"
		if a.IsActive {
			status = "active"
		}
		fmt.Fprintf(&b, "%d\\. *%s* \\(%s, %d condition\\(s\\)\\)\n",
			i+1, escapeMarkdownV2(a.Name), status, len(a.Conditions))
		if a.LastTriggered != nil {
			fmt.Fprintf(&b, "   last triggered %s\n",
				escapeMarkdownV2(a.LastTriggered.Format("2006-01-02 15:04:05")))
		}
	}
	return b.String()
}

func formatVerdict(run *models.ResearchRun) string {
	emoji := "❓"
	switch run.Verdict {
	case models.VerdictYes:
		emoji = "✅"
	case models.VerdictNo:
		emoji = "❌"
	}

	p := run.Result.Probabilities
	var b strings.Builder
	fmt.Fprintf(&b, "%s *Research verdict: %s*\n\n", emoji, run.Verdict)
	fmt.Fprintf(&b, "❔ %s\n\n", escapeMarkdownV2(run.Question))
	fmt.Fprintf(&b, "YES %s \\| NO %s \\| UNCERTAIN %s\n",
		escapeMarkdownV2(fmt.Sprintf("%.1f%%", p.Yes*100)),
		escapeMarkdownV2(fmt.Sprintf("%.1f%%", p.No*100)),
		escapeMarkdownV2(fmt.Sprintf("%.1f%%", p.Uncertain*100)))
	fmt.Fprintf(&b, "Confidence %s from %d source\\(s\\)\n",
		escapeMarkdownV2(fmt.Sprintf("%.2f", run.Result.Confidence)), run.SourceCount)
	return b.String()
}

func (c *TelegramClient) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	c.bot.Send(msg) //nolint:errcheck
}

func (c *TelegramClient) replyMarkdownV2(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "MarkdownV2"
	c.bot.Send(msg) //nolint:errcheck
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *TelegramClient) sendMarkdownV2(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if _, err := c.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
