// internal/infra/telegram/client.go
package telegram

import (
	"fmt"
	"net/http"
	"time"

	"gopkg.in/telebot.v3"
)

const httpTimeout = 15 * time.Second

// TelebotAdapter delivers messages through gopkg.in/telebot.v3.
type TelebotAdapter struct {
	bot *telebot.Bot
}

// NewBot creates the telebot instance. With polling disabled the bot never calls getUpdates
// and skips the startup getMe round trip, which is all a send-only notifier needs.
func NewBot(token string, polling bool, onError func(error, telebot.Context)) (*telebot.Bot, error) {
	pref := telebot.Settings{
		Token:   token,
		Client:  &http.Client{Timeout: httpTimeout},
		OnError: onError,
	}
	if polling {
		pref.Poller = &telebot.LongPoller{Timeout: 10 * time.Second}
	} else {
		pref.Offline = true
	}
	bot, err := telebot.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return bot, nil
}

func NewTelebotAdapter(b *telebot.Bot) *TelebotAdapter {
	return &TelebotAdapter{bot: b}
}

// SendHTML sends an HTML formatted message to a chat (user, group or channel) with link previews off.
func (tba *TelebotAdapter) SendHTML(chatID int64, text string) error {
	_, err := tba.bot.Send(telebot.ChatID(chatID), text, &telebot.SendOptions{
		ParseMode:             telebot.ModeHTML,
		DisableWebPagePreview: true,
	})
	return err
}
