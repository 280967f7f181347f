// internal/domain/booking/record.go
package booking

import (
	"database/sql"
	"encoding/json"
	"time"
)

// Kind identifies one of the watched tables.
type Kind string

const (
	KindRequest      Kind = "REQUEST"      // contract_requests
	KindCancellation Kind = "CANCELLATION" // contract_cancel_requests
	KindContract     Kind = "CONTRACT"     // contracts
)

// Kinds lists every watched entity type in the order a poll cycle visits them.
var Kinds = []Kind{KindRequest, KindCancellation, KindContract}

// Status is the lifecycle status column. Values are shared as plain strings across
// tables, so the same constant may be valid for more than one Kind.
type Status string

const (
	StatusCreated    Status = "CREATED"
	StatusAccepted   Status = "ACCEPTED"
	StatusRejected   Status = "REJECTED"
	StatusProcessing Status = "PROCESSING"
	StatusApproved   Status = "APPROVED"
	StatusDeclined   Status = "DECLINED"
	StatusOffering   Status = "OFFERING"
	StatusConcluded  Status = "CONCLUDED"
	StatusCompleted  Status = "COMPLETED"
	StatusFreeze     Status = "FREEZE"
)

// Record is a single row read from one of the watched tables.
// Columns a table does not have are left at their zero value.
type Record struct {
	Kind   Kind
	ID     string
	Status Status

	Cost          int64 // minor units
	ArrivalDate   sql.NullTime
	DepartureDate sql.NullTime

	TenantID     sql.NullString
	LandlordID   sql.NullString
	TenantInfo   json.RawMessage // tenantInformation
	LandlordInfo json.RawMessage // landlordInformation
	AdData       json.RawMessage // baseApartmentAdData
	ListingID    sql.NullString  // apartmentAdId

	IsPaymentSuccess bool
	PaymentDate      sql.NullTime
	RetryAttempts    int

	SenderRole   sql.NullString // cancellation only
	RejectReason sql.NullString // cancellation only

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DeparturePassed reports whether the departure date is at or before now.
// A record without a departure date never passes.
func (r *Record) DeparturePassed(now time.Time) bool {
	return r.DepartureDate.Valid && !r.DepartureDate.Time.After(now)
}

// Listing is the subset of the embedded listing snapshot used in messages.
type Listing struct {
	Title string
	City  string
}

// ListingSnapshot decodes baseApartmentAdData. Malformed or missing JSON yields an empty Listing.
func (r *Record) ListingSnapshot() Listing {
	if len(r.AdData) == 0 {
		return Listing{}
	}
	var raw struct {
		Title   string `json:"title"`
		Address struct {
			City string `json:"city"`
		} `json:"address"`
	}
	if err := json.Unmarshal(r.AdData, &raw); err != nil {
		return Listing{}
	}
	return Listing{Title: raw.Title, City: raw.Address.City}
}

// User is a row of the users table used for contact fallback.
type User struct {
	ID        string
	FirstName sql.NullString
	LastName  sql.NullString
	Phone     sql.NullString
}
