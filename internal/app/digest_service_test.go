package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"booking_notification_bot/internal/domain/booking"
	"booking_notification_bot/internal/infra/logger"
)

type fakeDigestRepo struct {
	contracts []*booking.Record
	err       error
	from, to  time.Time
}

func (f *fakeDigestRepo) ContractsForDigest(_ context.Context, from, to time.Time) ([]*booking.Record, error) {
	f.from, f.to = from, to
	return f.contracts, f.err
}

func at(y int, m time.Month, d, h, mi int) sql.NullTime {
	return sql.NullTime{Time: time.Date(y, m, d, h, mi, 0, 0, time.UTC), Valid: true}
}

// digestNow is 10:00 on 10.06.2025 in Almaty.
var digestNow = time.Date(2025, 6, 10, 5, 0, 0, 0, time.UTC)

func digestContracts() []*booking.Record {
	return []*booking.Record{
		{ID: "c1", Kind: booking.KindContract, Cost: 10000, PaymentDate: at(2025, 6, 9, 10, 0), ArrivalDate: at(2025, 6, 15, 9, 0)},
		// Paid 20:00 UTC on the 8th is already the 9th locally.
		{ID: "c2", Kind: booking.KindContract, Cost: 10000, PaymentDate: at(2025, 6, 8, 20, 0), ArrivalDate: at(2025, 6, 9, 19, 30),
			AdData: json.RawMessage(`{"title":"Loft","address":{"city":"Astana"}}`)},
		{ID: "c3", Kind: booking.KindContract, Cost: 2500000, PaymentDate: at(2025, 6, 1, 9, 0), ArrivalDate: at(2025, 6, 9, 3, 0),
			LandlordInfo: json.RawMessage(`{"firstName":"Aigerim"}`)},
		{ID: "c4", Kind: booking.KindContract, Cost: 15050, PaymentDate: at(2025, 6, 2, 9, 0), ArrivalDate: at(2025, 6, 8, 22, 0)},
		{ID: "c5", Kind: booking.KindContract, Cost: 10000, PaymentDate: at(2025, 6, 10, 1, 0)},
	}
}

func TestBuildDigestBucketsByLocalDay(t *testing.T) {
	d := BuildDigest(digestContracts(), digestNow, almaty)

	assert.Equal(t, time.Date(2025, 6, 10, 0, 0, 0, 0, almaty), d.Day)
	assert.Equal(t, 2, d.PaidYesterday)
	require.Len(t, d.Arrivals, 1)
	assert.Equal(t, "c2", d.Arrivals[0].ID)
	require.Len(t, d.Payouts, 2)
	assert.Equal(t, "c3", d.Payouts[0].ID)
	assert.Equal(t, "c4", d.Payouts[1].ID)
	assert.Equal(t, int64(24250+146), d.PayoutTotal)
}

func TestBuildDigestEmpty(t *testing.T) {
	d := BuildDigest(nil, digestNow, almaty)
	assert.Zero(t, d.PaidYesterday)
	assert.Empty(t, d.Arrivals)
	assert.Empty(t, d.Payouts)
	assert.Zero(t, d.PayoutTotal)
}

func newTestDigestService(repo *fakeDigestRepo, sender *fakeSender) *DigestService {
	dispatcher := NewDispatcher(sender, []int64{-1, -2}, 100, logger.Discard())
	s := NewDigestService(repo, newTestResolver(nil, nil), dispatcher, logger.Discard())
	s.now = func() time.Time { return digestNow }
	return s
}

func TestDigestComposeQueriesLocalWindow(t *testing.T) {
	repo := &fakeDigestRepo{contracts: digestContracts()}
	s := newTestDigestService(repo, &fakeSender{})

	text, err := s.Compose(context.Background())
	require.NoError(t, err)

	assert.Equal(t, time.Date(2025, 6, 9, 0, 0, 0, 0, almaty), repo.from)
	assert.Equal(t, time.Date(2025, 6, 11, 0, 0, 0, 0, almaty), repo.to)

	assert.Contains(t, text, "Сводка на 10.06.2025")
	assert.Contains(t, text, "Оплачено вчера: <b>2</b>")
	assert.Contains(t, text, "Заезды сегодня: <b>1</b>")
	assert.Contains(t, text, "<b>Loft</b>, Astana")
	assert.Contains(t, text, "Выплаты сегодня: <b>2</b>")
	assert.Contains(t, text, "Aigerim: <b>24,250 ₸</b>")
	assert.Contains(t, text, "Итого к выплате: <b>24,396 ₸</b>")
}

func TestDigestRunSendsToEveryChat(t *testing.T) {
	sender := &fakeSender{}
	s := newTestDigestService(&fakeDigestRepo{}, sender)

	require.NoError(t, s.Run(context.Background()))
	msgs := sender.messages()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0].text, "Итого к выплате: <b>0 ₸</b>")
}

func TestDigestRunReportsQueryFailure(t *testing.T) {
	sender := &fakeSender{}
	s := newTestDigestService(&fakeDigestRepo{err: errors.New("connection reset")}, sender)

	assert.Error(t, s.Run(context.Background()))
	assert.Empty(t, sender.messages())
}

func TestDigestSendToSingleChat(t *testing.T) {
	sender := &fakeSender{}
	s := newTestDigestService(&fakeDigestRepo{}, sender)

	require.NoError(t, s.SendTo(context.Background(), 777))
	msgs := sender.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(777), msgs[0].chatID)
}

func TestDigestComposeReadsClockOnce(t *testing.T) {
	repo := &fakeDigestRepo{}
	s := newTestDigestService(repo, &fakeSender{})
	// 23:59:59 in Almaty, then the clock crosses midnight.
	ticks := []time.Time{
		time.Date(2025, 6, 9, 18, 59, 59, 0, time.UTC),
		time.Date(2025, 6, 9, 19, 0, 1, 0, time.UTC),
	}
	s.now = func() time.Time {
		tick := ticks[0]
		if len(ticks) > 1 {
			ticks = ticks[1:]
		}
		return tick
	}

	text, err := s.Compose(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 8, 0, 0, 0, 0, almaty), repo.from)
	assert.Contains(t, text, "Сводка на 09.06.2025")
}
