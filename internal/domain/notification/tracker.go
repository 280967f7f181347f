// internal/domain/notification/tracker.go
package notification

import (
	"sort"
	"time"

	"booking_notification_bot/internal/domain/booking"
)

// ObservationRetention bounds how long fingerprints of rows behind the watermark are kept.
// Rows older than this that get touched again are treated as new changes.
const ObservationRetention = 72 * time.Hour

type observation struct {
	fingerprint Fingerprint
	updatedAt   time.Time
}

// TrackerState is the last observed state of one watched entity type.
// It is a value: Step never mutates its input and returns a fresh state.
type TrackerState struct {
	Kind      booking.Kind
	Seeded    bool
	Watermark time.Time

	observed map[string]observation
	deferred map[string]struct{}
}

// NewTrackerState returns the unseeded state a process starts with.
func NewTrackerState(kind booking.Kind) TrackerState {
	return TrackerState{
		Kind:     kind,
		observed: map[string]observation{},
		deferred: map[string]struct{}{},
	}
}

// Compare checks fp against the last fingerprint observed for the same row.
func (s TrackerState) Compare(fp Fingerprint) Comparison {
	if !s.Seeded {
		return FirstSeen
	}
	if obs, ok := s.observed[fp.ID]; ok && obs.fingerprint == fp {
		return Unchanged
	}
	return Changed
}

// Observed returns the stored fingerprint for a row id.
func (s TrackerState) Observed(id string) (Fingerprint, bool) {
	obs, ok := s.observed[id]
	return obs.fingerprint, ok
}

// Deferred returns the ids that must be re-read every cycle, sorted.
func (s TrackerState) Deferred() []string {
	ids := make([]string, 0, len(s.deferred))
	for id := range s.deferred {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Tracked is the number of rows whose fingerprint is currently held.
func (s TrackerState) Tracked() int {
	return len(s.observed)
}

func (s TrackerState) clone() TrackerState {
	next := s
	next.observed = make(map[string]observation, len(s.observed))
	for id, obs := range s.observed {
		next.observed[id] = obs
	}
	next.deferred = make(map[string]struct{}, len(s.deferred))
	for id := range s.deferred {
		next.deferred[id] = struct{}{}
	}
	return next
}

func (s *TrackerState) record(r *booking.Record, fp Fingerprint, now time.Time) {
	s.observed[r.ID] = observation{fingerprint: fp, updatedAt: r.UpdatedAt}
	if awaitsDeparture(r, now) {
		s.deferred[r.ID] = struct{}{}
	} else {
		delete(s.deferred, r.ID)
	}
	if r.UpdatedAt.After(s.Watermark) {
		s.Watermark = r.UpdatedAt
	}
}

func (s *TrackerState) prune() {
	cutoff := s.Watermark.Add(-ObservationRetention)
	for id, obs := range s.observed {
		if _, keep := s.deferred[id]; keep {
			continue
		}
		if obs.updatedAt.Before(cutoff) {
			delete(s.observed, id)
		}
	}
}

// Step folds one snapshot of rows into the tracker state and returns the events to notify.
//
// An unseeded state is seeded silently from the snapshot. Afterwards every row whose
// fingerprint differs from the stored one is classified, and its fingerprint is stored
// whether or not an event came out of it. Rows with an unchanged fingerprint leave the
// stored observation as is.
func Step(prev TrackerState, rows []*booking.Record, now time.Time) (TrackerState, []Event) {
	next := prev.clone()
	rows = latestPerID(rows)
	if len(rows) == 0 {
		return next, nil
	}

	if !prev.Seeded {
		for _, r := range rows {
			next.record(r, FingerprintOf(r, now), now)
		}
		next.Seeded = true
		next.prune()
		return next, nil
	}

	var events []Event
	for _, r := range rows {
		fp := FingerprintOf(r, now)
		if next.Compare(fp) == Unchanged {
			if r.UpdatedAt.After(next.Watermark) {
				next.Watermark = r.UpdatedAt
			}
			continue
		}
		if kind, ok := Classify(r, now); ok {
			events = append(events, Event{Kind: kind, Record: r})
		}
		next.record(r, fp, now)
	}
	next.prune()
	return next, events
}

// latestPerID drops duplicate ids, keeping the most recently updated copy, and orders
// the result by updatedAt ascending so events go out in the order changes happened.
func latestPerID(rows []*booking.Record) []*booking.Record {
	byID := make(map[string]*booking.Record, len(rows))
	for _, r := range rows {
		if r == nil {
			continue
		}
		if cur, ok := byID[r.ID]; !ok || r.UpdatedAt.After(cur.UpdatedAt) {
			byID[r.ID] = r
		}
	}
	out := make([]*booking.Record, 0, len(byID))
	for _, r := range byID {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})
	return out
}
