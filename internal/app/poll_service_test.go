package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"booking_notification_bot/internal/domain/booking"
	"booking_notification_bot/internal/infra/logger"
)

// fakeReader keeps one in-memory table per kind and answers with the same ordering and
// filtering rules as the Postgres reader.
type fakeReader struct {
	mu     sync.Mutex
	tables map[booking.Kind]map[string]*booking.Record
	errs   map[booking.Kind]error
	pages  []string
	idArgs [][]string
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		tables: map[booking.Kind]map[string]*booking.Record{},
		errs:   map[booking.Kind]error{},
	}
}

// upsert writes rows as the database would after an UPDATE or INSERT.
func (f *fakeReader) upsert(rows ...*booking.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range rows {
		if f.tables[r.Kind] == nil {
			f.tables[r.Kind] = map[string]*booking.Record{}
		}
		f.tables[r.Kind][r.ID] = r
	}
}

func (f *fakeReader) sorted(kind booking.Kind) []*booking.Record {
	rows := make([]*booking.Record, 0, len(f.tables[kind]))
	for _, r := range f.tables[kind] {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].UpdatedAt.Equal(rows[j].UpdatedAt) {
			return rows[i].ID < rows[j].ID
		}
		return rows[i].UpdatedAt.Before(rows[j].UpdatedAt)
	})
	return rows
}

func (f *fakeReader) Latest(_ context.Context, kind booking.Kind) (*booking.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[kind]; err != nil {
		return nil, err
	}
	rows := f.sorted(kind)
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[len(rows)-1], nil
}

func (f *fakeReader) ChangedSince(_ context.Context, kind booking.Kind, since time.Time, afterID string, limit int) ([]*booking.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[kind]; err != nil {
		return nil, err
	}
	f.pages = append(f.pages, string(kind)+"@"+afterID)
	var out []*booking.Record
	for _, r := range f.sorted(kind) {
		if r.UpdatedAt.After(since) || (r.UpdatedAt.Equal(since) && r.ID > afterID) {
			out = append(out, r)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeReader) ByIDs(_ context.Context, kind booking.Kind, ids []string) ([]*booking.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.idArgs = append(f.idArgs, ids)
	var out []*booking.Record
	for _, id := range ids {
		if r, ok := f.tables[kind][id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

type stubEnricher struct{}

func (stubEnricher) Enrich(_ context.Context, rec *booking.Record) View {
	return View{ID: rec.ID, Title: "Studio"}
}

type recordingNotifier struct {
	texts []string
}

func (n *recordingNotifier) Dispatch(_ context.Context, text string) int {
	n.texts = append(n.texts, text)
	return 1
}

var pollStart = time.Date(2025, 6, 10, 7, 0, 0, 0, time.UTC)

func newTestPollService(reader *fakeReader, notifier *recordingNotifier, now *time.Time, limit int) *PollService {
	s := NewPollService(reader, stubEnricher{}, notifier, limit, logger.Discard())
	s.now = func() time.Time { return *now }
	return s
}

func TestPollSeedsSilentlyThenNotifiesOnChange(t *testing.T) {
	now := pollStart
	reader := newFakeReader()
	notifier := &recordingNotifier{}
	s := newTestPollService(reader, notifier, &now, 50)

	reader.upsert(&booking.Record{
		Kind: booking.KindRequest, ID: "r-1", Status: booking.StatusCreated, UpdatedAt: pollStart.Add(-time.Hour),
	})
	s.RunCycle(context.Background())
	assert.Empty(t, notifier.texts)

	now = now.Add(10 * time.Second)
	reader.upsert(&booking.Record{
		Kind: booking.KindRequest, ID: "r-1", Status: booking.StatusAccepted, UpdatedAt: pollStart.Add(5 * time.Second),
	})
	s.RunCycle(context.Background())
	require.Len(t, notifier.texts, 1)
	assert.Contains(t, notifier.texts[0], "Заявка принята")

	// Row still sits at the watermark and is read again: nothing new.
	now = now.Add(10 * time.Second)
	s.RunCycle(context.Background())
	assert.Len(t, notifier.texts, 1)

	status := s.Status()
	assert.Equal(t, int64(3), status.Cycles)
	assert.Equal(t, int64(1), status.Events)
	require.Len(t, status.Kinds, len(booking.Kinds))
	assert.True(t, status.Kinds[0].Seeded)
	assert.Equal(t, pollStart.Add(5*time.Second), status.Kinds[0].Watermark)
	assert.False(t, status.Kinds[1].Seeded)
}

func TestPollFailureInOneKindDoesNotBlockOthers(t *testing.T) {
	now := pollStart
	reader := newFakeReader()
	notifier := &recordingNotifier{}
	s := newTestPollService(reader, notifier, &now, 50)

	reader.errs[booking.KindCancellation] = errors.New("connection refused")
	reader.upsert(&booking.Record{
		Kind: booking.KindContract, ID: "c-1", Status: booking.StatusOffering, UpdatedAt: pollStart.Add(-time.Minute),
	})
	s.RunCycle(context.Background())

	now = now.Add(10 * time.Second)
	reader.upsert(&booking.Record{
		Kind: booking.KindContract, ID: "c-1", Status: booking.StatusFreeze, UpdatedAt: pollStart.Add(time.Second),
	})
	s.RunCycle(context.Background())

	require.Len(t, notifier.texts, 1)
	assert.Contains(t, notifier.texts[0], "Контракт заморожен")
	assert.False(t, s.Status().Kinds[1].Seeded)
}

func TestPollRereadsDeferredCompletion(t *testing.T) {
	now := pollStart
	reader := newFakeReader()
	notifier := &recordingNotifier{}
	s := newTestPollService(reader, notifier, &now, 50)

	departure := sql.NullTime{Time: pollStart.Add(time.Hour), Valid: true}
	paidAt := sql.NullTime{Time: pollStart.Add(-48 * time.Hour), Valid: true}
	reader.upsert(&booking.Record{
		Kind: booking.KindContract, ID: "c-1", Status: booking.StatusConcluded,
		IsPaymentSuccess: true, PaymentDate: paidAt, DepartureDate: departure, UpdatedAt: pollStart.Add(-24 * time.Hour),
	})
	s.RunCycle(context.Background())

	now = now.Add(10 * time.Second)
	reader.upsert(&booking.Record{
		Kind: booking.KindContract, ID: "c-1", Status: booking.StatusCompleted,
		IsPaymentSuccess: true, PaymentDate: paidAt, DepartureDate: departure, UpdatedAt: pollStart.Add(time.Second),
	})
	s.RunCycle(context.Background())
	assert.Empty(t, notifier.texts)
	assert.Equal(t, 1, s.Status().Kinds[2].Deferred)

	// Row is untouched in the database but the departure has now passed.
	now = pollStart.Add(2 * time.Hour)
	s.RunCycle(context.Background())

	require.Len(t, notifier.texts, 1)
	assert.Contains(t, notifier.texts[0], "Проживание завершено")
	assert.Contains(t, reader.idArgs, []string{"c-1"})
	assert.Zero(t, s.Status().Kinds[2].Deferred)

	now = now.Add(time.Hour)
	s.RunCycle(context.Background())
	assert.Len(t, notifier.texts, 1)
}

func TestPollQuietCyclesAcrossDepartureSendNothingNew(t *testing.T) {
	now := pollStart
	reader := newFakeReader()
	notifier := &recordingNotifier{}
	s := newTestPollService(reader, notifier, &now, 50)

	departure := sql.NullTime{Time: pollStart.Add(time.Minute), Valid: true}
	reader.upsert(&booking.Record{Kind: booking.KindContract, ID: "c-0", Status: booking.StatusOffering, UpdatedAt: pollStart.Add(-time.Hour)})
	s.RunCycle(context.Background())

	statuses := []booking.Status{booking.StatusCreated, booking.StatusRejected, booking.StatusFreeze}
	for i, st := range statuses {
		reader.upsert(&booking.Record{
			Kind: booking.KindContract, ID: fmt.Sprintf("c-%d", i+1), Status: st,
			DepartureDate: departure, UpdatedAt: pollStart,
		})
	}
	now = now.Add(10 * time.Second)
	s.RunCycle(context.Background())
	require.Len(t, notifier.texts, len(statuses))

	// The rows stay at the watermark and get re-read while the departure goes by.
	for i := 0; i < 12; i++ {
		now = now.Add(10 * time.Second)
		s.RunCycle(context.Background())
	}
	assert.Len(t, notifier.texts, len(statuses))
}

func TestPollPagesThroughRowsSharingOneTimestamp(t *testing.T) {
	now := pollStart
	reader := newFakeReader()
	notifier := &recordingNotifier{}
	s := newTestPollService(reader, notifier, &now, 2)

	reader.upsert(&booking.Record{Kind: booking.KindRequest, ID: "r-0", Status: booking.StatusCreated, UpdatedAt: pollStart.Add(-time.Hour)})
	s.RunCycle(context.Background())

	burst := pollStart.Add(time.Second)
	for i := 1; i <= 5; i++ {
		reader.upsert(&booking.Record{Kind: booking.KindRequest, ID: fmt.Sprintf("r-%d", i), Status: booking.StatusCreated, UpdatedAt: burst})
	}
	now = now.Add(10 * time.Second)
	reader.pages = nil
	s.RunCycle(context.Background())

	assert.Len(t, notifier.texts, 5)
	// The row already at the watermark fills the first page slot.
	assert.Equal(t, []string{"REQUEST@", "REQUEST@r-1", "REQUEST@r-3", "REQUEST@r-5"}, reader.pages)

	now = now.Add(10 * time.Second)
	s.RunCycle(context.Background())
	assert.Len(t, notifier.texts, 5)
}
