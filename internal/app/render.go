// internal/app/render.go
package app

import (
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/dustin/go-humanize"

	"booking_notification_bot/internal/domain/notification"
)

// ErrNoLayout is returned when an event kind has no message layout.
var ErrNoLayout = errors.New("no message layout for event kind")

const defaultTitle = "Квартира"

// section is one group of lines in a message. Sections marked attached continue the
// previous paragraph, the rest start a new one.
type section struct {
	attached bool
	render   func(v View) string
}

var (
	secCreated = section{attached: true, render: func(v View) string {
		return "🕒 Создано: <b>" + esc(v.CreatedAt) + "</b>"
	}}
	secUpdated = section{attached: true, render: func(v View) string {
		return "🕒 Обновлено: <b>" + esc(v.UpdatedAt) + "</b>"
	}}
	secPeople = section{render: func(v View) string {
		return "👤 Гость: <b>" + esc(orPlaceholder(v.Tenant.Name)) + "</b>\n📞 " + esc(orPlaceholder(v.Tenant.Phone)) +
			"\n\n🏡 Собственник: <b>" + esc(orPlaceholder(v.Landlord.Name)) + "</b>\n📞 " + esc(orPlaceholder(v.Landlord.Phone))
	}}
	secListing = section{render: func(v View) string {
		title := v.Title
		if title == "" {
			title = defaultTitle
		}
		return "🏠 Квартира: <b>" + esc(title) + "</b>\n🌆 " + esc(orPlaceholder(v.City))
	}}
	secDates = section{render: func(v View) string {
		return "📅 " + esc(v.Arrival) + " → " + esc(v.Departure)
	}}
	secPrice = section{attached: true, render: func(v View) string {
		return "💰 Цена: <b>" + FormatMoney(v.Price) + " ₸</b>"
	}}
	secCancel = section{render: func(v View) string {
		return "От: <b>" + esc(orPlaceholder(v.SenderRole)) + "</b>\nПричина: " + esc(orPlaceholder(v.Reason))
	}}
	secID = section{attached: true, render: func(v View) string {
		return "ID: <code>" + esc(v.ID) + "</code>"
	}}
	secRetries = section{attached: true, render: func(v View) string {
		return fmt.Sprintf("🔁 Повторных попыток оплаты: <b>%d</b>", v.RetryAttempts)
	}}
	secLink = section{attached: true, render: func(v View) string {
		if v.Link == "" {
			return ""
		}
		return `🔗 <a href="` + esc(v.Link) + `">Открыть объявление</a>`
	}}
)

type layout struct {
	header   string
	sections []section
}

// layouts is the single table of message shapes, one entry per event kind.
var layouts = map[notification.EventKind]layout{
	notification.EventRequestCreated: {"✉️ <b>Заявка отправлена</b>",
		[]section{secCreated, secPeople, secListing, secDates, secPrice, secLink}},
	notification.EventRequestAccepted: {"✅ <b>Заявка принята собственником</b>",
		[]section{secCreated, secUpdated, secPeople, secListing, secDates, secPrice, secLink}},
	notification.EventRequestRejected: {"❌ <b>Заявка отклонена</b>",
		[]section{secCreated, secUpdated, secPeople, secListing, secDates, secPrice, secLink}},

	notification.EventCancelProcessing: {"⚠️ <b>Запрос на отмену</b>",
		[]section{secCreated, secCancel}},
	notification.EventCancelApproved: {"🟢 <b>Отмена одобрена</b>",
		[]section{secUpdated, secCancel}},
	notification.EventCancelDeclined: {"🔴 <b>Отмена отклонена</b>",
		[]section{secUpdated, secCancel}},

	notification.EventContractCreated: {"📄 <b>Контракт создан</b>",
		[]section{secCreated, secPeople, secListing, secDates, secPrice, secLink}},
	notification.EventContractPaid: {"💳 <b>Бронь оплачена</b>",
		[]section{secUpdated, secListing, secPeople, secDates, secPrice, secLink}},
	notification.EventPaymentFailedFirst: {"⚠️ <b>Оплата не прошла</b>",
		[]section{secUpdated, secListing, secPeople, secDates, secPrice, secLink}},
	notification.EventPaymentRetryFailed: {"🔁 <b>Повторная оплата не прошла</b>",
		[]section{secUpdated, secRetries, secListing, secPeople, secDates, secPrice, secLink}},
	notification.EventContractCompleted: {"🏁 <b>Проживание завершено</b>",
		[]section{secUpdated, secListing, secPeople, secLink}},
	notification.EventContractCancelled: {"❌ <b>Контракт отменён</b>",
		[]section{secUpdated, secListing, secPeople, secLink}},
	notification.EventContractRejectedUnpaid: {"❌ <b>Контракт отменён: оплата так и не прошла</b>",
		[]section{secUpdated, secRetries, secListing, secPeople, secLink}},
	notification.EventContractFrozen: {"🧊 <b>Контракт заморожен</b>",
		[]section{secUpdated, secID, secListing, secLink}},
}

// Render produces the HTML message for an event kind.
func Render(kind notification.EventKind, v View) (string, error) {
	l, ok := layouts[kind]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoLayout, kind)
	}
	var b strings.Builder
	b.WriteString(l.header)
	for _, s := range l.sections {
		text := s.render(v)
		if text == "" {
			continue
		}
		if s.attached {
			b.WriteString("\n")
		} else {
			b.WriteString("\n\n")
		}
		b.WriteString(text)
	}
	return b.String(), nil
}

// FormatMoney prints a whole amount with thousands separators.
func FormatMoney(amount int64) string {
	return humanize.Comma(amount)
}

func esc(s string) string {
	return html.EscapeString(s)
}

func orPlaceholder(s string) string {
	if strings.TrimSpace(s) == "" {
		return Placeholder
	}
	return s
}
