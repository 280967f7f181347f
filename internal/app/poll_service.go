// internal/app/poll_service.go
package app

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"booking_notification_bot/internal/domain/booking"
	"booking_notification_bot/internal/domain/notification"
	"booking_notification_bot/internal/infra/metrics"
)

// maxPagesPerCycle bounds how many reader pages one entity type may consume per cycle.
const maxPagesPerCycle = 50

// Enricher turns a record into the data a message needs.
type Enricher interface {
	Enrich(ctx context.Context, rec *booking.Record) View
}

// Notifier delivers a rendered message to every destination.
type Notifier interface {
	Dispatch(ctx context.Context, text string) int
}

// KindStatus is a point-in-time view of one tracker, for the /status command.
type KindStatus struct {
	Kind      booking.Kind
	Seeded    bool
	Watermark time.Time
	Tracked   int
	Deferred  int
}

// PollStatus summarises the poller for the /status command.
type PollStatus struct {
	LastCycleAt time.Time
	Cycles      int64
	Events      int64
	Kinds       []KindStatus
}

// PollService runs the read, compare, classify, enrich, render and dispatch cycle.
// Tracker state lives here, one value per entity type, and is replaced after each Step.
type PollService struct {
	reader   booking.SnapshotReader
	enricher Enricher
	notifier Notifier
	logger   *logrus.Entry
	limit    int
	now      func() time.Time

	mu     sync.Mutex
	states map[booking.Kind]notification.TrackerState
	status PollStatus
}

func NewPollService(reader booking.SnapshotReader, enricher Enricher, notifier Notifier, changedRowsLimit int, logger *logrus.Entry) *PollService {
	if changedRowsLimit <= 0 {
		changedRowsLimit = 200
	}
	states := make(map[booking.Kind]notification.TrackerState, len(booking.Kinds))
	for _, k := range booking.Kinds {
		states[k] = notification.NewTrackerState(k)
	}
	return &PollService{
		reader:   reader,
		enricher: enricher,
		notifier: notifier,
		logger:   logger,
		limit:    changedRowsLimit,
		now:      time.Now,
		states:   states,
	}
}

// RunCycle processes every watched entity type once. A failure in one type is logged
// and the remaining types still run.
func (s *PollService) RunCycle(ctx context.Context) {
	start := s.now()
	events := 0
	for _, kind := range booking.Kinds {
		if ctx.Err() != nil {
			return
		}
		n, err := s.pollKind(ctx, kind)
		if err != nil {
			s.logger.WithField("entity", kind).WithError(err).Error("Poll failed for entity type")
			continue
		}
		events += n
	}
	metrics.PollCycleDuration.Observe(time.Since(start).Seconds())

	s.mu.Lock()
	s.status.LastCycleAt = start
	s.status.Cycles++
	s.status.Events += int64(events)
	s.mu.Unlock()
}

func (s *PollService) pollKind(ctx context.Context, kind booking.Kind) (int, error) {
	logCtx := s.logger.WithField("entity", kind)
	state := s.state(kind)
	now := s.now()

	rows, err := s.snapshot(ctx, state)
	if err != nil {
		metrics.PollErrors.WithLabelValues(string(kind), "read").Inc()
		return 0, err
	}

	next, events := notification.Step(state, rows, now)
	// State is committed before delivery: a crash mid-dispatch loses the message rather than repeating it.
	s.setState(kind, next)

	if !state.Seeded && next.Seeded {
		logCtx.WithField("watermark", next.Watermark).Info("Tracker seeded")
	}

	for _, ev := range events {
		metrics.EventsEmitted.WithLabelValues(string(ev.Kind)).Inc()
		view := s.enricher.Enrich(ctx, ev.Record)
		text, err := Render(ev.Kind, view)
		if err != nil {
			metrics.PollErrors.WithLabelValues(string(kind), "render").Inc()
			logCtx.WithField("event", ev.Kind).WithError(err).Error("Failed to render notification")
			continue
		}
		delivered := s.notifier.Dispatch(ctx, text)
		logCtx.WithFields(logrus.Fields{
			"event":     ev.Kind,
			"record_id": ev.Record.ID,
			"delivered": delivered,
		}).Info("Notification dispatched")
	}
	return len(events), nil
}

// snapshot reads the rows to fold into state. An unseeded tracker only looks at the
// latest row; a seeded one reads everything changed since its watermark plus the rows
// deferred until their departure passes.
func (s *PollService) snapshot(ctx context.Context, state notification.TrackerState) ([]*booking.Record, error) {
	if !state.Seeded {
		rec, err := s.reader.Latest(ctx, state.Kind)
		if err != nil || rec == nil {
			return nil, err
		}
		return []*booking.Record{rec}, nil
	}

	rows, err := s.changedSince(ctx, state.Kind, state.Watermark)
	if err != nil {
		return nil, err
	}
	if deferred := state.Deferred(); len(deferred) > 0 {
		again, err := s.reader.ByIDs(ctx, state.Kind, deferred)
		if err != nil {
			// Deferred rows are picked up on a later cycle; changed rows still go through.
			metrics.PollErrors.WithLabelValues(string(state.Kind), "deferred").Inc()
			s.logger.WithField("entity", state.Kind).WithError(err).Warn("Failed to re-read deferred rows")
		} else {
			rows = append(rows, again...)
		}
	}
	return rows, nil
}

// changedSince pages through every row at or after since, keyed on (updatedAt, id), so
// a burst of rows sharing one timestamp cannot pin the reader to a single page.
func (s *PollService) changedSince(ctx context.Context, kind booking.Kind, since time.Time) ([]*booking.Record, error) {
	var rows []*booking.Record
	afterID := ""
	for page := 0; page < maxPagesPerCycle; page++ {
		batch, err := s.reader.ChangedSince(ctx, kind, since, afterID, s.limit)
		if err != nil {
			return nil, err
		}
		rows = append(rows, batch...)
		if len(batch) < s.limit {
			return rows, nil
		}
		last := batch[len(batch)-1]
		since, afterID = last.UpdatedAt, last.ID
	}
	s.logger.WithFields(logrus.Fields{"entity": kind, "rows": len(rows)}).
		Warn("Changed rows exceed the per-cycle page budget, continuing next cycle")
	return rows, nil
}

func (s *PollService) state(kind booking.Kind) notification.TrackerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[kind]
}

func (s *PollService) setState(kind booking.Kind, st notification.TrackerState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[kind] = st
}

// Status reports the poller's progress.
func (s *PollService) Status() PollStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status
	st.Kinds = make([]KindStatus, 0, len(booking.Kinds))
	for _, k := range booking.Kinds {
		ts := s.states[k]
		st.Kinds = append(st.Kinds, KindStatus{
			Kind:      k,
			Seeded:    ts.Seeded,
			Watermark: ts.Watermark,
			Tracked:   ts.Tracked(),
			Deferred:  len(ts.Deferred()),
		})
	}
	return st
}
