// internal/infra/telegram/bot_commands_handler.go
package telegram

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"

	"booking_notification_bot/internal/app"
	"booking_notification_bot/internal/infra/config"
)

// StatusProvider exposes poller progress for /status.
type StatusProvider interface {
	Status() app.PollStatus
}

// DeliveryStats exposes dispatcher counters for /status.
type DeliveryStats interface {
	Stats() (delivered, failed int64)
}

// DigestSender sends the digest to a single chat on demand.
type DigestSender interface {
	SendTo(ctx context.Context, chatID int64) error
}

// CommandHandlers answers the operator commands. Only configured chats and the admin
// may use /status and /digest.
type CommandHandlers struct {
	ctx      context.Context
	cfg      *config.AppConfig
	poll     StatusProvider
	delivery DeliveryStats
	digest   DigestSender
	logger   *logrus.Entry
	now      func() time.Time
}

func NewCommandHandlers(ctx context.Context, cfg *config.AppConfig, poll StatusProvider, delivery DeliveryStats, digest DigestSender, logger *logrus.Entry) *CommandHandlers {
	return &CommandHandlers{
		ctx:      ctx,
		cfg:      cfg,
		poll:     poll,
		delivery: delivery,
		digest:   digest,
		logger:   logger.WithField("handler_group", "bot_commands"),
		now:      time.Now,
	}
}

// RegisterBotCommands wires the handlers onto b.
func RegisterBotCommands(b *telebot.Bot, h *CommandHandlers) {
	b.Handle("/start", h.Start)
	b.Handle("/help", h.Help)
	b.Handle("/status", h.Status)
	b.Handle("/digest", h.Digest)
}

func (h *CommandHandlers) Start(c telebot.Context) error {
	h.logCtx(c, "/start").Info("Processing /start command")
	if !h.authorized(c) {
		return c.Send("Привет! Я присылаю уведомления о бронированиях в рабочие чаты. У этого чата нет доступа.")
	}
	return c.Send("Привет! Я слежу за заявками, отменами и контрактами и присылаю уведомления в этот чат. Используйте /help для списка команд.")
}

func (h *CommandHandlers) Help(c telebot.Context) error {
	h.logCtx(c, "/help").Info("Processing /help command")
	if !h.authorized(c) {
		return c.Send("Доступных команд для вас нет.")
	}
	var helpText strings.Builder
	helpText.WriteString("Доступные команды:\n\n")
	helpText.WriteString("/status - состояние опроса базы и доставки сообщений\n")
	helpText.WriteString("/digest - прислать сводку за сегодня в этот чат\n")
	helpText.WriteString("/help - показать это сообщение")
	return c.Send(helpText.String())
}

func (h *CommandHandlers) Status(c telebot.Context) error {
	logCtx := h.logCtx(c, "/status")
	if !h.authorized(c) {
		logCtx.Warn("Unauthorized /status attempt")
		return c.Send("Эта команда недоступна.")
	}
	logCtx.Info("Processing /status command")
	delivered, failed := h.delivery.Stats()
	text := FormatStatus(h.poll.Status(), delivered, failed, h.cfg.Timezone, h.now())
	return c.Send(text, &telebot.SendOptions{ParseMode: telebot.ModeHTML})
}

func (h *CommandHandlers) Digest(c telebot.Context) error {
	logCtx := h.logCtx(c, "/digest")
	if !h.authorized(c) {
		logCtx.Warn("Unauthorized /digest attempt")
		return c.Send("Эта команда недоступна.")
	}
	logCtx.Info("Processing /digest command")
	ctx, cancel := context.WithTimeout(h.ctx, 2*time.Minute)
	defer cancel()
	if err := h.digest.SendTo(ctx, c.Chat().ID); err != nil {
		logCtx.WithError(err).Error("Failed to send digest on demand")
		return c.Send("Не удалось сформировать сводку. Попробуйте позже.")
	}
	return nil
}

func (h *CommandHandlers) authorized(c telebot.Context) bool {
	if s := c.Sender(); s != nil && h.cfg.AdminTelegramID != 0 && s.ID == h.cfg.AdminTelegramID {
		return true
	}
	chat := c.Chat()
	if chat == nil {
		return false
	}
	for _, id := range h.cfg.ChatIDs {
		if id == chat.ID {
			return true
		}
	}
	return false
}

func (h *CommandHandlers) logCtx(c telebot.Context, command string) *logrus.Entry {
	fields := logrus.Fields{"command": command}
	if s := c.Sender(); s != nil {
		fields["sender_id"] = s.ID
	}
	if chat := c.Chat(); chat != nil {
		fields["chat_id"] = chat.ID
	}
	return h.logger.WithFields(fields)
}

// FormatStatus renders the /status reply.
func FormatStatus(st app.PollStatus, delivered, failed int64, loc *time.Location, now time.Time) string {
	if loc == nil {
		loc = time.UTC
	}
	var b strings.Builder
	b.WriteString("📟 <b>Состояние</b>\n")
	if st.LastCycleAt.IsZero() {
		b.WriteString("Последний опрос: <b>ещё не было</b>\n")
	} else {
		fmt.Fprintf(&b, "Последний опрос: <b>%s</b> (%s)\n",
			st.LastCycleAt.In(loc).Format("02.01.2006 15:04:05"), humanize.RelTime(st.LastCycleAt, now, "назад", "вперёд"))
	}
	fmt.Fprintf(&b, "Циклов: <b>%d</b>, событий: <b>%d</b>\n", st.Cycles, st.Events)
	fmt.Fprintf(&b, "Доставлено: <b>%d</b>, ошибок доставки: <b>%d</b>\n", delivered, failed)
	for _, k := range st.Kinds {
		b.WriteString("\n")
		if !k.Seeded {
			fmt.Fprintf(&b, "%s: <i>ожидает первую запись</i>", html.EscapeString(string(k.Kind)))
			continue
		}
		fmt.Fprintf(&b, "%s: метка <code>%s</code>, отслеживается %d, ожидают выезда %d",
			html.EscapeString(string(k.Kind)), k.Watermark.In(loc).Format("02.01.2006 15:04:05"), k.Tracked, k.Deferred)
	}
	return b.String()
}
