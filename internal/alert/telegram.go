package alert

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// TelegramNotifier pushes critical alerts to a Telegram chat. Delivery is
// best effort; a failed send is logged, never propagated into the
// evaluation path.
type TelegramNotifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramNotifier connects the bot and verifies the token.
func NewTelegramNotifier(token string, chatID int64) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, errors.Wrap(err, "create telegram bot")
	}
	return &TelegramNotifier{api: bot, chatID: chatID}, nil
}

// Notify sends the alert as a plain text message.
func (n *TelegramNotifier) Notify(a Alert) {
	text := fmt.Sprintf("🚨 [%s] %s\n%s\nvalue=%s threshold=%s",
		a.Level, a.Metric, a.Message, a.Value, a.Threshold)
	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.api.Send(msg); err != nil {
		logs.Errorf("telegram alert send failed: %v", err)
	}
}
