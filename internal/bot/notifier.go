package bot

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/romanzzaa/catalog-price-watcher/internal/domain"
)

// Sender is the part of *tgbotapi.BotAPI the notifier needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier posts a short summary of every run that produced changes or new
// products.
type Notifier struct {
	bot      Sender
	chatID   int64
	maxLines int
	printer  *message.Printer
	logger   *slog.Logger
}

func NewNotifier(bot Sender, chatID int64, maxLines int, logger *slog.Logger) *Notifier {
	return &Notifier{
		bot:      bot,
		chatID:   chatID,
		maxLines: maxLines,
		printer:  message.NewPrinter(language.Japanese),
		logger:   logger,
	}
}

// NewTelegramNotifier авторизует бота по токену.
func NewTelegramNotifier(token string, chatID int64, maxLines int, logger *slog.Logger) (*Notifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	api.Debug = false
	logger.Info("Telegram bot authorized", slog.String("username", api.Self.UserName))
	return NewNotifier(api, chatID, maxLines, logger), nil
}

func (n *Notifier) RunFinished(ctx context.Context, src domain.Source, result domain.RunResult) {
	if !result.Noteworthy() {
		return
	}

	// Plain text: product names may contain Markdown control characters.
	msg := tgbotapi.NewMessage(n.chatID, n.Format(src, result))
	msg.DisableWebPagePreview = true

	if _, err := n.bot.Send(msg); err != nil {
		n.logger.Error("Failed to send telegram notification",
			slog.String("source", src.Name),
			slog.String("run_id", result.RunID.String()),
			slog.String("error", err.Error()))
	}
}

func (n *Notifier) Format(src domain.Source, result domain.RunResult) string {
	falls, rises := result.Counts()

	var sb strings.Builder
	sb.WriteString(n.printer.Sprintf("%s: ▼ %d / ▲ %d\n", src.Name, falls, rises))
	if len(result.NewItems) > 0 {
		sb.WriteString(n.printer.Sprintf("New: %d\n", len(result.NewItems)))
	}

	for i, e := range result.Events {
		if n.maxLines > 0 && i == n.maxLines {
			sb.WriteString(n.printer.Sprintf("… and %d more\n", len(result.Events)-i))
			break
		}
		sb.WriteString(n.printer.Sprintf("%s %s %d → %d (min %d)\n",
			e.Direction.Arrow(), e.Item.Name, e.OldPrice, e.NewPrice, e.LowestPriceEver))
	}

	if result.ReportPath != "" {
		sb.WriteString("Report: " + filepath.Base(result.ReportPath))
	}
	return strings.TrimRight(sb.String(), "\n")
}
