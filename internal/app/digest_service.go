// internal/app/digest_service.go
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"booking_notification_bot/internal/domain/booking"
	"booking_notification_bot/internal/infra/metrics"
)

// Digest is the once-daily aggregate over contracts, bucketed by local calendar day.
type Digest struct {
	Day           time.Time // local midnight of "today"
	PaidYesterday int
	Arrivals      []*booking.Record
	Payouts       []*booking.Record
	PayoutTotal   int64
}

// BuildDigest buckets contracts against the local day containing now.
// A contract is an arrival when its local arrival date is today, and due a payout when
// its local arrival date plus one day is today.
func BuildDigest(contracts []*booking.Record, now time.Time, loc *time.Location) Digest {
	today := localDay(now, loc)
	yesterday := today.AddDate(0, 0, -1)
	d := Digest{Day: today}

	for _, c := range contracts {
		if c.PaymentDate.Valid && localDay(c.PaymentDate.Time, loc).Equal(yesterday) {
			d.PaidYesterday++
		}
		if !c.ArrivalDate.Valid {
			continue
		}
		arrival := localDay(c.ArrivalDate.Time, loc)
		if arrival.Equal(today) {
			d.Arrivals = append(d.Arrivals, c)
		}
		if arrival.AddDate(0, 0, 1).Equal(today) {
			d.Payouts = append(d.Payouts, c)
			d.PayoutTotal += booking.ComputePayout(c.Cost)
		}
	}
	return d
}

// localDay truncates t to midnight of its calendar day in loc.
func localDay(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}

// DigestService composes and sends the daily summary.
type DigestService struct {
	repo       booking.DigestRepository
	resolver   *Resolver
	dispatcher *Dispatcher
	logger     *logrus.Entry
	now        func() time.Time
}

func NewDigestService(repo booking.DigestRepository, resolver *Resolver, dispatcher *Dispatcher, logger *logrus.Entry) *DigestService {
	return &DigestService{repo: repo, resolver: resolver, dispatcher: dispatcher, logger: logger, now: time.Now}
}

// Compose reads the contracts around today and renders the digest text.
func (s *DigestService) Compose(ctx context.Context) (string, error) {
	loc := s.resolver.Location()
	now := s.now()
	today := localDay(now, loc)
	from := today.AddDate(0, 0, -1)
	to := today.AddDate(0, 0, 1)

	contracts, err := s.repo.ContractsForDigest(ctx, from, to)
	if err != nil {
		return "", fmt.Errorf("failed to load digest contracts: %w", err)
	}
	d := BuildDigest(contracts, now, loc)
	s.logger.WithFields(logrus.Fields{
		"day":            d.Day.Format(dateLayout),
		"paid_yesterday": d.PaidYesterday,
		"arrivals":       len(d.Arrivals),
		"payouts":        len(d.Payouts),
	}).Info("Digest computed")
	return s.render(ctx, d), nil
}

// Run composes the digest and sends it to every configured chat.
func (s *DigestService) Run(ctx context.Context) error {
	text, err := s.Compose(ctx)
	if err != nil {
		metrics.DigestRuns.WithLabelValues("failed").Inc()
		return err
	}
	delivered := s.dispatcher.Dispatch(ctx, text)
	metrics.DigestRuns.WithLabelValues("ok").Inc()
	s.logger.WithField("delivered", delivered).Info("Digest dispatched")
	return nil
}

// SendTo composes the digest and sends it to one chat only.
func (s *DigestService) SendTo(ctx context.Context, chatID int64) error {
	text, err := s.Compose(ctx)
	if err != nil {
		return err
	}
	return s.dispatcher.SendTo(ctx, chatID, text)
}

func (s *DigestService) render(ctx context.Context, d Digest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 <b>Сводка на %s</b>\n\n", d.Day.Format(dateLayout))
	fmt.Fprintf(&b, "💳 Оплачено вчера: <b>%d</b>\n\n", d.PaidYesterday)

	fmt.Fprintf(&b, "🛬 Заезды сегодня: <b>%d</b>", len(d.Arrivals))
	for i, c := range d.Arrivals {
		v := s.resolver.Enrich(ctx, c)
		title := v.Title
		if title == "" {
			title = defaultTitle
		}
		fmt.Fprintf(&b, "\n\n%d. <b>%s</b>, %s", i+1, esc(title), esc(orPlaceholder(v.City)))
		fmt.Fprintf(&b, "\n👤 Гость: <b>%s</b>, %s", esc(v.Tenant.Name), esc(v.Tenant.Phone))
		fmt.Fprintf(&b, "\n🏡 Собственник: <b>%s</b>, %s", esc(v.Landlord.Name), esc(v.Landlord.Phone))
		fmt.Fprintf(&b, "\n📅 %s → %s", esc(v.Arrival), esc(v.Departure))
		fmt.Fprintf(&b, "\n💰 %s ₸", FormatMoney(v.Price))
		if v.Link != "" {
			fmt.Fprintf(&b, "\n🔗 <a href=\"%s\">Открыть объявление</a>", esc(v.Link))
		}
	}

	fmt.Fprintf(&b, "\n\n💸 Выплаты сегодня: <b>%d</b>", len(d.Payouts))
	for i, c := range d.Payouts {
		title := c.ListingSnapshot().Title
		if title == "" {
			title = defaultTitle
		}
		landlord := s.resolver.ResolvePerson(ctx, c.LandlordInfo, c.LandlordID.String)
		fmt.Fprintf(&b, "\n%d. %s, %s: <b>%s ₸</b>", i+1, esc(title), esc(landlord.Name), FormatMoney(booking.ComputePayout(c.Cost)))
	}
	fmt.Fprintf(&b, "\nИтого к выплате: <b>%s ₸</b>", FormatMoney(d.PayoutTotal))
	return b.String()
}
