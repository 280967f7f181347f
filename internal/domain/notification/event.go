// internal/domain/notification/event.go
package notification

import "booking_notification_bot/internal/domain/booking"

// EventKind is the tagged outcome of classifying a changed row.
type EventKind string

const (
	EventRequestCreated  EventKind = "request_created"
	EventRequestAccepted EventKind = "request_accepted"
	EventRequestRejected EventKind = "request_rejected"

	EventCancelProcessing EventKind = "cancel_processing"
	EventCancelApproved   EventKind = "cancel_approved"
	EventCancelDeclined   EventKind = "cancel_declined"

	EventContractCreated        EventKind = "contract_created"
	EventContractPaid           EventKind = "contract_paid"
	EventPaymentFailedFirst     EventKind = "payment_failed_first"
	EventPaymentRetryFailed     EventKind = "payment_retry_failed"
	EventContractCompleted      EventKind = "contract_completed"
	EventContractCancelled      EventKind = "contract_cancelled"
	EventContractRejectedUnpaid EventKind = "contract_rejected_unpaid"
	EventContractFrozen         EventKind = "contract_frozen"
)

// AllEventKinds lists every kind the classifier can emit.
var AllEventKinds = []EventKind{
	EventRequestCreated, EventRequestAccepted, EventRequestRejected,
	EventCancelProcessing, EventCancelApproved, EventCancelDeclined,
	EventContractCreated, EventContractPaid, EventPaymentFailedFirst, EventPaymentRetryFailed,
	EventContractCompleted, EventContractCancelled, EventContractRejectedUnpaid, EventContractFrozen,
}

// Event is a notification decision for one row.
type Event struct {
	Kind   EventKind
	Record *booking.Record
}
