// internal/app/enrichment.go
package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"booking_notification_bot/internal/domain/booking"
	idb "booking_notification_bot/internal/infra/database"
)

// Placeholder stands in for any person field that could not be resolved.
const Placeholder = "—"

const (
	dateLayout      = "02.01.2006"
	timestampLayout = "02.01.2006 15:04"
	missingTime     = "-"
)

// Person is a display name and phone derived from embedded JSON or the users table.
type Person struct {
	Name  string
	Phone string
}

// View is a record enriched with everything a message template may print.
type View struct {
	ID            string
	Tenant        Person
	Landlord      Person
	Title         string
	City          string
	Link          string
	Price         int64
	Arrival       string
	Departure     string
	CreatedAt     string
	UpdatedAt     string
	SenderRole    string
	Reason        string
	RetryAttempts int
}

// Resolver augments raw records with contacts, listing links, prices and local times.
// Lookup failures never propagate; they degrade to placeholders and are logged.
type Resolver struct {
	users    booking.UserRepository
	listings booking.ListingRepository
	baseURL  string
	loc      *time.Location
	logger   *logrus.Entry
}

func NewResolver(users booking.UserRepository, listings booking.ListingRepository, baseURL string, loc *time.Location, logger *logrus.Entry) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	return &Resolver{users: users, listings: listings, baseURL: baseURL, loc: loc, logger: logger}
}

// Location is the zone used for every displayed date.
func (r *Resolver) Location() *time.Location {
	return r.loc
}

// ResolvePerson reads firstName/lastName and phoneNumber (or phone) from the embedded
// JSON. When a field is still missing and fallbackUserID is set, the users table fills
// the gap; embedded values always win.
func (r *Resolver) ResolvePerson(ctx context.Context, embedded json.RawMessage, fallbackUserID string) Person {
	p := Person{Name: Placeholder, Phone: Placeholder}

	var info map[string]any
	if len(embedded) > 0 && json.Unmarshal(embedded, &info) == nil {
		full := strings.TrimSpace(stringField(info, "firstName") + " " + stringField(info, "lastName"))
		if full != "" {
			p.Name = full
		}
		if phone := firstNonEmpty(stringField(info, "phoneNumber"), stringField(info, "phone")); phone != "" {
			p.Phone = phone
		}
	}

	if fallbackUserID == "" || (p.Name != Placeholder && p.Phone != Placeholder) {
		return p
	}

	u, err := r.users.UserByID(ctx, fallbackUserID)
	if err != nil {
		if !errors.Is(err, idb.ErrUserNotFound) {
			r.logger.WithField("user_id", fallbackUserID).WithError(err).Warn("User lookup failed")
		}
		return p
	}
	if p.Name == Placeholder {
		if full := strings.TrimSpace(u.FirstName.String + " " + u.LastName.String); full != "" {
			p.Name = full
		}
	}
	if p.Phone == Placeholder && u.Phone.String != "" {
		p.Phone = u.Phone.String
	}
	return p
}

// ResolveListingLink returns the public listing URL, or "" when no slug is known.
func (r *Resolver) ResolveListingLink(ctx context.Context, listingID string) string {
	if listingID == "" {
		return ""
	}
	slug, err := r.listings.ListingSlug(ctx, listingID)
	if err != nil {
		if !errors.Is(err, idb.ErrListingNotFound) {
			r.logger.WithField("listing_id", listingID).WithError(err).Warn("Listing link lookup failed")
		}
		return ""
	}
	return r.baseURL + slug
}

// Enrich builds the View for a record. Cancellation rows carry no people or listing
// data, so no lookups are made for them.
func (r *Resolver) Enrich(ctx context.Context, rec *booking.Record) View {
	v := View{
		ID:            rec.ID,
		CreatedAt:     r.FormatTimestamp(rec.CreatedAt),
		UpdatedAt:     r.FormatTimestamp(rec.UpdatedAt),
		SenderRole:    rec.SenderRole.String,
		Reason:        rec.RejectReason.String,
		RetryAttempts: rec.RetryAttempts,
	}
	if rec.Kind == booking.KindCancellation {
		return v
	}

	listing := rec.ListingSnapshot()
	v.Title = listing.Title
	v.City = listing.City
	v.Price = booking.ComputePrice(rec.Cost)
	v.Arrival = r.FormatDate(rec.ArrivalDate)
	v.Departure = r.FormatDate(rec.DepartureDate)
	v.Tenant = r.ResolvePerson(ctx, rec.TenantInfo, rec.TenantID.String)
	v.Landlord = r.ResolvePerson(ctx, rec.LandlordInfo, rec.LandlordID.String)
	v.Link = r.ResolveListingLink(ctx, rec.ListingID.String)
	return v
}

// FormatDate renders a nullable date as dd.mm.yyyy in the configured zone.
func (r *Resolver) FormatDate(t sql.NullTime) string {
	if !t.Valid {
		return missingTime
	}
	return t.Time.In(r.loc).Format(dateLayout)
}

// FormatTimestamp renders t as dd.mm.yyyy HH:MM in the configured zone.
func (r *Resolver) FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		return missingTime
	}
	return t.In(r.loc).Format(timestampLayout)
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		// Phone numbers occasionally arrive as JSON numbers.
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
