// Package telegram sends scan notifications via the Telegram Bot API and
// answers a few operator commands.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/polyscan/internal/logger"
	"github.com/rewired-gh/polyscan/internal/models"
	"github.com/rewired-gh/polyscan/internal/scanner"
)

type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Config configures the notifier.
type Config struct {
	BotToken       string
	ChatID         string
	MaxRetries     int
	RetryDelayBase time.Duration
	MinLevel       models.NotificationLevel
	MaxMoves       int
}

// Client handles Telegram notifications. It implements scanner.Observer
// and scanner.ErrorObserver; messages are queued and sent by Run so the
// scan loop never waits on Telegram.
type Client struct {
	bot            *tgbotapi.BotAPI
	api            botAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
	minLevel       models.NotificationLevel
	maxMoves       int
	sleep          func(context.Context, time.Duration) error

	status func() models.Status
	rescan func() bool

	queue chan string

	mu       sync.Mutex
	failures int
}

// NewClient creates a new Telegram client.
func NewClient(cfg Config) (*Client, error) {
	chatID, err := strconv.ParseInt(cfg.ChatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	c := newClient(bot, chatID, cfg)
	c.bot = bot
	return c, nil
}

func newClient(api botAPI, chatID int64, cfg Config) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelayBase <= 0 {
		cfg.RetryDelayBase = time.Second
	}
	if cfg.MinLevel == models.LevelNone {
		cfg.MinLevel = models.LevelHigh
	}
	if cfg.MaxMoves <= 0 {
		cfg.MaxMoves = 10
	}
	return &Client{
		api:            api,
		chatID:         chatID,
		maxRetries:     cfg.MaxRetries,
		retryDelayBase: cfg.RetryDelayBase,
		minLevel:       cfg.MinLevel,
		maxMoves:       cfg.MaxMoves,
		sleep:          sleepContext,
		queue:          make(chan string, 32),
	}
}

// Bind connects the /status and /rescan commands to the engine.
func (c *Client) Bind(status func() models.Status, rescan func() bool) {
	c.status = status
	c.rescan = rescan
}

// Run sends queued messages until ctx is cancelled.
func (c *Client) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-c.queue:
			if err := c.sendMarkdownV2(ctx, text); err != nil && ctx.Err() == nil {
				logger.Error("Failed to send Telegram message: %v", err)
			}
		}
	}
}

func (c *Client) enqueue(text string) {
	select {
	case c.queue <- text:
	default:
		logger.Warn("Telegram queue full, dropping message")
	}
}

// OnTick queues a move notification when the tick's tier reaches the
// configured minimum, and a recovery notice after failed ticks.
func (c *Client) OnTick(result scanner.TickResult) {
	c.mu.Lock()
	failures := c.failures
	c.failures = 0
	c.mu.Unlock()

	if failures > 0 {
		c.enqueue(formatRecovery(failures))
	}

	n := result.Notification
	if n == nil || n.Level.Rank() < c.minLevel.Rank() {
		return
	}
	c.enqueue(c.formatMessage(result))
}

// OnTickError queues an error notice on the first failure of a run.
func (c *Client) OnTickError(err error) {
	c.mu.Lock()
	c.failures++
	first := c.failures == 1
	c.mu.Unlock()

	if first {
		c.enqueue(formatError(err))
	}
}

// ListenForCommands starts a goroutine that polls for Telegram updates and handles bot commands.
// It returns immediately; the goroutine stops when ctx is cancelled.
func (c *Client) ListenForCommands(ctx context.Context) {
	if c.bot == nil {
		return
	}
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
					c.handleCommand(update.Message)
				}
			}
		}
	}()
}

func (c *Client) handleCommand(msg *tgbotapi.Message) {
	var text string
	switch msg.Command() {
	case "ping":
		text = "Pong"
	case "status":
		if c.status == nil {
			return
		}
		text = formatStatus(c.status())
	case "rescan":
		if c.rescan == nil {
			return
		}
		if c.rescan() {
			text = "Rescan queued"
		} else {
			text = "Rescan already pending"
		}
	default:
		return
	}
	reply := tgbotapi.NewMessage(msg.Chat.ID, text)
	c.api.Send(reply) //nolint:errcheck
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *Client) sendMarkdownV2(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		_, err := c.api.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		if i == c.maxRetries-1 {
			break
		}
		if err := c.sleep(ctx, c.retryDelayBase*time.Duration(i+1)); err != nil {
			return err
		}
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

func formatError(err error) string {
	return fmt.Sprintf("⚠️ *Scan error*\n`%s`", escapeMarkdownV2(err.Error()))
}

func formatRecovery(failures int) string {
	return fmt.Sprintf("✅ *Scanning recovered* after %d consecutive failure\\(s\\)", failures)
}

func formatStatus(s models.Status) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\nphase: %s\nevents: %d, moves: %d", s.Text, s.Phase, s.Events, s.Moves)
	if !s.LastUpdate.IsZero() {
		fmt.Fprintf(&b, "\nlast update: %s", s.LastUpdate.UTC().Format("2006-01-02 15:04:05 MST"))
	}
	return b.String()
}

var levelEmoji = map[models.NotificationLevel]string{
	models.LevelLow:    "🟡",
	models.LevelMedium: "🔵",
	models.LevelHigh:   "🚨",
}

// formatMessage lists a tick's largest moves, grouped by event in order of
// each event's largest move.
func (c *Client) formatMessage(result scanner.TickResult) string {
	moves := append([]models.Move(nil), result.Moves...)
	scanner.SortMovesByMagnitude(moves)
	if len(moves) > c.maxMoves {
		moves = moves[:c.maxMoves]
	}

	var b strings.Builder
	emoji := "🚨"
	if result.Notification != nil {
		emoji = levelEmoji[result.Notification.Level]
	}
	fmt.Fprintf(&b, "%s *Notable Odds Movements*\n\n", emoji)
	if !result.At.IsZero() {
		dateStr := escapeMarkdownV2(result.At.UTC().Format("2006-01-02 15:04:05"))
		fmt.Fprintf(&b, "📅 Detected: %s\n\n", dateStr)
	}

	var order []string
	byEvent := make(map[string][]models.Move)
	for _, m := range moves {
		if _, ok := byEvent[m.EventID]; !ok {
			order = append(order, m.EventID)
		}
		byEvent[m.EventID] = append(byEvent[m.EventID], m)
	}

	for i, eventID := range order {
		group := byEvent[eventID]
		head := group[0]
		title := escapeMarkdownV2(head.EventTitle)
		if head.EventLink != "" {
			title = fmt.Sprintf("[%s](%s)", title, escapeLinkURL(head.EventLink))
		}
		fmt.Fprintf(&b, "%d\\. %s\n", i+1, title)

		for _, m := range group {
			if m.Question != "" && m.Question != head.EventTitle {
				fmt.Fprintf(&b, "   🎯 %s\n", escapeMarkdownV2(m.Question))
			}
			directionEmoji := "📈"
			if m.YesDir == models.Down {
				directionEmoji = "📉"
			}
			oldPct := m.YesPrice*100 - m.YesChange
			deltaStr := escapeMarkdownV2(fmt.Sprintf("%+.1f%%", m.YesChange))
			oldStr := escapeMarkdownV2(fmt.Sprintf("%.1f%%", oldPct))
			newStr := escapeMarkdownV2(fmt.Sprintf("%.1f%%", m.YesPrice*100))
			fmt.Fprintf(&b, "   %s *%s* \\(%s → %s\\)\n", directionEmoji, deltaStr, oldStr, newStr)
		}
		b.WriteString("\n")
	}

	return b.String()
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

// escapeLinkURL escapes the characters MarkdownV2 reserves inside (...).
func escapeLinkURL(url string) string {
	return strings.NewReplacer(`\`, `\\`, `)`, `\)`).Replace(url)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
