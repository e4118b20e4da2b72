package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romanzzaa/catalog-price-watcher/internal/domain"
)

type fakeSender struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ev(name string, dir domain.Direction, oldPrice, newPrice, lowest int64) domain.ChangeEvent {
	return domain.ChangeEvent{
		Direction:       dir,
		OldPrice:        oldPrice,
		NewPrice:        newPrice,
		LowestPriceEver: lowest,
		Item:            domain.Item{Name: name},
	}
}

func TestNotifierFormatsSummary(t *testing.T) {
	sender := &fakeSender{}
	n := NewNotifier(sender, 42, 2, testLogger())

	result := domain.RunResult{
		Events: []domain.ChangeEvent{
			ev("Ultra Light Down", domain.DirectionFall, 1990, 1490, 1490),
			ev("Airism Tee", domain.DirectionRise, 990, 1290, 790),
			ev("Socks", domain.DirectionFall, 590, 390, 390),
		},
		ReportPath: "reports/UNIQLO_2024-05-01_03-03-04.html",
	}
	n.RunFinished(context.Background(), domain.Source{Name: "UNIQLO"}, result)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, int64(42), sender.sent[0].ChatID)
	assert.Equal(t,
		"UNIQLO: ▼ 2 / ▲ 1\n"+
			"▼ Ultra Light Down 1,990 → 1,490 (min 1,490)\n"+
			"▲ Airism Tee 990 → 1,290 (min 790)\n"+
			"… and 1 more\n"+
			"Report: UNIQLO_2024-05-01_03-03-04.html",
		sender.sent[0].Text)
}

func TestNotifierSkipsEmptyRunsAndSurvivesSendErrors(t *testing.T) {
	sender := &fakeSender{err: errors.New("telegram is down")}
	n := NewNotifier(sender, 1, 10, testLogger())

	n.RunFinished(context.Background(), domain.Source{Name: "GU"}, domain.RunResult{})
	require.Empty(t, sender.sent)

	n.RunFinished(context.Background(), domain.Source{Name: "GU"}, domain.RunResult{
		Events: []domain.ChangeEvent{ev("Jeans", domain.DirectionFall, 2990, 1990, 1990)},
	})
	require.Len(t, sender.sent, 1)
	assert.NotContains(t, sender.sent[0].Text, "Report:")
}

func TestNotifierReportsNewProducts(t *testing.T) {
	sender := &fakeSender{}
	n := NewNotifier(sender, 7, 5, testLogger())

	n.RunFinished(context.Background(), domain.Source{Name: "GU"}, domain.RunResult{
		NewItems: []domain.Item{{Name: "Jeans"}, {Name: "Parka"}},
	})

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "GU: ▼ 0 / ▲ 0\nNew: 2", sender.sent[0].Text)
}
