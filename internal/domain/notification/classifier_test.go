package notification

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"booking_notification_bot/internal/domain/booking"
)

var testNow = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

func contract(status booking.Status, mutate ...func(*booking.Record)) *booking.Record {
	r := &booking.Record{
		Kind:      booking.KindContract,
		ID:        "c-1",
		Status:    status,
		Cost:      10000,
		UpdatedAt: testNow.Add(-time.Minute),
	}
	for _, m := range mutate {
		m(r)
	}
	return r
}

func paid(r *booking.Record) {
	r.IsPaymentSuccess = true
	r.PaymentDate = sql.NullTime{Time: testNow.Add(-time.Hour), Valid: true}
}

func retries(n int) func(*booking.Record) {
	return func(r *booking.Record) { r.RetryAttempts = n }
}

func departure(at time.Time) func(*booking.Record) {
	return func(r *booking.Record) { r.DepartureDate = sql.NullTime{Time: at, Valid: true} }
}

func TestClassifyRequestAndCancellation(t *testing.T) {
	tests := []struct {
		kind   booking.Kind
		status booking.Status
		want   EventKind
		ok     bool
	}{
		{booking.KindRequest, booking.StatusCreated, EventRequestCreated, true},
		{booking.KindRequest, booking.StatusAccepted, EventRequestAccepted, true},
		{booking.KindRequest, booking.StatusRejected, EventRequestRejected, true},
		{booking.KindRequest, "PENDING", "", false},
		{booking.KindCancellation, booking.StatusProcessing, EventCancelProcessing, true},
		{booking.KindCancellation, booking.StatusApproved, EventCancelApproved, true},
		{booking.KindCancellation, booking.StatusDeclined, EventCancelDeclined, true},
		{booking.KindCancellation, booking.StatusCreated, "", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind)+"/"+string(tt.status), func(t *testing.T) {
			got, ok := Classify(&booking.Record{Kind: tt.kind, ID: "x", Status: tt.status}, testNow)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifyContract(t *testing.T) {
	tests := []struct {
		name   string
		record *booking.Record
		want   EventKind
		ok     bool
	}{
		{"created", contract(booking.StatusCreated), EventContractCreated, true},
		{"concluded paid", contract(booking.StatusConcluded, paid), EventContractPaid, true},
		{"concluded first attempt failed", contract(booking.StatusConcluded), EventPaymentFailedFirst, true},
		{"concluded retry failed", contract(booking.StatusConcluded, retries(2)), EventPaymentRetryFailed, true},
		{"concluded paid without timestamp", contract(booking.StatusConcluded, func(r *booking.Record) { r.IsPaymentSuccess = true }), "", false},
		{"completed before departure", contract(booking.StatusCompleted, departure(testNow.Add(time.Hour))), "", false},
		{"completed at departure", contract(booking.StatusCompleted, departure(testNow)), EventContractCompleted, true},
		{"completed without departure", contract(booking.StatusCompleted), "", false},
		{"rejected cancelled", contract(booking.StatusRejected), EventContractCancelled, true},
		{"rejected after paid", contract(booking.StatusRejected, paid, retries(1)), EventContractCancelled, true},
		{"rejected unpaid after retries", contract(booking.StatusRejected, retries(3)), EventContractRejectedUnpaid, true},
		{"freeze", contract(booking.StatusFreeze), EventContractFrozen, true},
		{"unknown", contract("ARCHIVED"), "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Classify(tt.record, testNow)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifyOfferingNeverNotifies(t *testing.T) {
	combos := []func(*booking.Record){
		func(*booking.Record) {},
		paid,
		retries(0),
		retries(4),
		departure(testNow.Add(-24 * time.Hour)),
		departure(testNow.Add(24 * time.Hour)),
	}
	for _, a := range combos {
		for _, b := range combos {
			_, ok := Classify(contract(booking.StatusOffering, a, b), testNow)
			assert.False(t, ok)
		}
	}
}

func TestFingerprintOf(t *testing.T) {
	req := &booking.Record{Kind: booking.KindRequest, ID: "r-1", Status: booking.StatusCreated, RetryAttempts: 3, IsPaymentSuccess: true}
	assert.Equal(t, Fingerprint{ID: "r-1", Status: booking.StatusCreated}, FingerprintOf(req, testNow))

	c := contract(booking.StatusCompleted, paid, retries(1), departure(testNow.Add(-time.Second)))
	assert.Equal(t, Fingerprint{
		ID:              "c-1",
		Status:          booking.StatusCompleted,
		PaymentSuccess:  true,
		HasPaymentDate:  true,
		RetryAttempts:   1,
		DeparturePassed: true,
	}, FingerprintOf(c, testNow))

	future := contract(booking.StatusCompleted, departure(testNow.Add(time.Hour)))
	assert.NotEqual(t, FingerprintOf(future, testNow), FingerprintOf(future, testNow.Add(2*time.Hour)))
}
