// internal/domain/notification/classifier.go
package notification

import (
	"time"

	"booking_notification_bot/internal/domain/booking"
)

// Classify maps a changed row to at most one event kind.
// ok is false when the row's current state must not notify.
func Classify(r *booking.Record, now time.Time) (kind EventKind, ok bool) {
	switch r.Kind {
	case booking.KindRequest:
		return classifyRequest(r)
	case booking.KindCancellation:
		return classifyCancellation(r)
	case booking.KindContract:
		return classifyContract(r, now)
	}
	return "", false
}

func classifyRequest(r *booking.Record) (EventKind, bool) {
	switch r.Status {
	case booking.StatusCreated:
		return EventRequestCreated, true
	case booking.StatusAccepted:
		return EventRequestAccepted, true
	case booking.StatusRejected:
		return EventRequestRejected, true
	}
	return "", false
}

func classifyCancellation(r *booking.Record) (EventKind, bool) {
	switch r.Status {
	case booking.StatusProcessing:
		return EventCancelProcessing, true
	case booking.StatusApproved:
		return EventCancelApproved, true
	case booking.StatusDeclined:
		return EventCancelDeclined, true
	}
	return "", false
}

func classifyContract(r *booking.Record, now time.Time) (EventKind, bool) {
	switch r.Status {
	case booking.StatusOffering:
		// Interim state between request and contract; never announced.
		return "", false
	case booking.StatusCreated:
		return EventContractCreated, true
	case booking.StatusConcluded:
		switch {
		case r.IsPaymentSuccess && r.PaymentDate.Valid:
			return EventContractPaid, true
		case !r.IsPaymentSuccess && r.RetryAttempts == 0:
			return EventPaymentFailedFirst, true
		case !r.IsPaymentSuccess && r.RetryAttempts >= 1:
			return EventPaymentRetryFailed, true
		}
		// Marked paid but the payment timestamp has not landed yet.
		return "", false
	case booking.StatusCompleted:
		if !r.DeparturePassed(now) {
			return "", false
		}
		return EventContractCompleted, true
	case booking.StatusRejected:
		if !r.IsPaymentSuccess && r.RetryAttempts >= 1 {
			return EventContractRejectedUnpaid, true
		}
		return EventContractCancelled, true
	case booking.StatusFreeze:
		return EventContractFrozen, true
	}
	return "", false
}

// awaitsDeparture reports whether r must be re-read every cycle until its departure passes.
func awaitsDeparture(r *booking.Record, now time.Time) bool {
	return r.Kind == booking.KindContract &&
		r.Status == booking.StatusCompleted &&
		r.DepartureDate.Valid &&
		!r.DeparturePassed(now)
}
