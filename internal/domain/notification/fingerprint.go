// internal/domain/notification/fingerprint.go
package notification

import (
	"time"

	"booking_notification_bot/internal/domain/booking"
)

// Fingerprint captures only the fields that drive notification decisions.
// Requests and cancellations use (ID, Status); contracts fill the remaining fields too.
type Fingerprint struct {
	ID              string
	Status          booking.Status
	PaymentSuccess  bool
	HasPaymentDate  bool
	RetryAttempts   int
	DeparturePassed bool
}

// FingerprintOf computes the fingerprint of r as evaluated at now.
// The departure flag depends on now and is only set for COMPLETED contracts, the one
// status whose outcome it decides; an untouched COMPLETED row changes fingerprint once
// its departure passes, any other row never changes by time alone.
func FingerprintOf(r *booking.Record, now time.Time) Fingerprint {
	fp := Fingerprint{ID: r.ID, Status: r.Status}
	if r.Kind != booking.KindContract {
		return fp
	}
	fp.PaymentSuccess = r.IsPaymentSuccess
	fp.HasPaymentDate = r.PaymentDate.Valid
	fp.RetryAttempts = r.RetryAttempts
	if r.Status == booking.StatusCompleted {
		fp.DeparturePassed = r.DeparturePassed(now)
	}
	return fp
}

// Comparison is the result of checking a fingerprint against tracker state.
type Comparison int

const (
	FirstSeen Comparison = iota
	Unchanged
	Changed
)

func (c Comparison) String() string {
	switch c {
	case FirstSeen:
		return "FIRST_SEEN"
	case Unchanged:
		return "UNCHANGED"
	case Changed:
		return "CHANGED"
	default:
		return "UNKNOWN"
	}
}
