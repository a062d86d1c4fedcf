package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramSink forwards notifications to the admin reports channel.
type TelegramSink struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

func NewTelegramSink(token string, chatID int64) (*TelegramSink, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}

	return &TelegramSink{
		bot:    bot,
		chatID: chatID,
	}, nil
}

func (s *TelegramSink) Deliver(n Notification) error {
	msg := tgbotapi.NewMessage(s.chatID, fmt.Sprintf("%s %s", n.Level.Icon(), n.Message))

	_, err := s.bot.Send(msg)
	return err
}
