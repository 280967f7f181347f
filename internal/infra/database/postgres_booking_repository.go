// internal/infra/database/postgres_booking_repository.go
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq" // For pq.Array and driver registration

	"booking_notification_bot/internal/domain/booking"
)

// Custom errors
var ErrUserNotFound = errors.New("user not found")
var ErrListingNotFound = errors.New("listing slug not found")
var ErrUnknownKind = errors.New("unknown entity kind")

const requestColumns = `id, status, cost, "arrivalDate", "departureDate", "baseApartmentAdData",
	"tenantId", "tenantInformation", "landlordInformation", "apartmentAdId", "createdAt", "updatedAt"`

const contractColumns = `id, status, cost, "arrivalDate", "departureDate", "baseApartmentAdData",
	"tenantId", "landlordId", "tenantInformation", "landlordInformation", "apartmentAdId",
	"isPaymentSuccess", "paymentDate", "retryAttempts", "createdAt", "updatedAt"`

// table describes how one watched table is selected and scanned.
type table struct {
	name    string
	columns string
	scan    func(s scanner, r *booking.Record) error
}

type scanner interface {
	Scan(dest ...any) error
}

var tables = map[booking.Kind]table{
	booking.KindRequest: {
		name:    "contract_requests",
		columns: requestColumns,
		scan:    scanRequest,
	},
	booking.KindCancellation: {
		name:    "contract_cancel_requests",
		columns: `id, "senderRole", "rejectReason", status, "createdAt", "updatedAt"`,
		scan:    scanCancellation,
	},
	booking.KindContract: {
		name:    "contracts",
		columns: contractColumns,
		scan:    scanContract,
	},
}

type PostgresBookingRepository struct {
	db    *sql.DB
	retry *Retrier
}

func NewPostgresBookingRepository(db *sql.DB, retry *Retrier) *PostgresBookingRepository {
	return &PostgresBookingRepository{db: db, retry: retry}
}

func (r *PostgresBookingRepository) Latest(ctx context.Context, kind booking.Kind) (*booking.Record, error) {
	t, ok := tables[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY "updatedAt" DESC LIMIT 1`, t.columns, t.name)

	var rec *booking.Record
	err := r.retry.Do(ctx, "latest "+t.name, func(ctx context.Context) error {
		rec = &booking.Record{Kind: kind}
		err := t.scan(r.db.QueryRowContext(ctx, query), rec)
		if err == sql.ErrNoRows {
			rec = nil
			return nil
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("error getting latest %s row: %w", t.name, err)
	}
	return rec, nil
}

func (r *PostgresBookingRepository) ChangedSince(ctx context.Context, kind booking.Kind, since time.Time, afterID string, limit int) ([]*booking.Record, error) {
	t, ok := tables[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	// Keyset on ("updatedAt", id): with afterID = '' every row at since qualifies.
	query := fmt.Sprintf(`SELECT %s FROM %s
               WHERE "updatedAt" > $1 OR ("updatedAt" = $1 AND id::text > $2)
               ORDER BY "updatedAt" ASC, id::text ASC LIMIT $3`, t.columns, t.name)
	return r.list(ctx, kind, t, "changed "+t.name, query, since, afterID, limit)
}

func (r *PostgresBookingRepository) ByIDs(ctx context.Context, kind booking.Kind, ids []string) ([]*booking.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	t, ok := tables[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id::text = ANY($1)`, t.columns, t.name)
	return r.list(ctx, kind, t, "by ids "+t.name, query, pq.Array(ids))
}

func (r *PostgresBookingRepository) ContractsForDigest(ctx context.Context, from, to time.Time) ([]*booking.Record, error) {
	t := tables[booking.KindContract]
	query := fmt.Sprintf(`SELECT %s FROM %s
               WHERE "isPaymentSuccess" = TRUE
                 AND (("arrivalDate" >= $1 AND "arrivalDate" < $2)
                   OR ("paymentDate" >= $1 AND "paymentDate" < $2))
               ORDER BY "arrivalDate" ASC, id`, t.columns, t.name)
	return r.list(ctx, booking.KindContract, t, "digest contracts", query, from, to)
}

func (r *PostgresBookingRepository) list(ctx context.Context, kind booking.Kind, t table, operation, query string, args ...any) ([]*booking.Record, error) {
	var records []*booking.Record
	err := r.retry.Do(ctx, operation, func(ctx context.Context) error {
		records = records[:0]
		rows, err := r.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			rec := &booking.Record{Kind: kind}
			if err := t.scan(rows, rec); err != nil {
				return fmt.Errorf("error scanning %s row: %w", t.name, err)
			}
			records = append(records, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("error listing %s: %w", t.name, err)
	}
	return records, nil
}

func (r *PostgresBookingRepository) UserByID(ctx context.Context, id string) (*booking.User, error) {
	query := `SELECT id, "firstName", "lastName", phone FROM users WHERE id::text = $1 LIMIT 1`
	u := &booking.User{}
	err := r.retry.Do(ctx, "user by id", func(ctx context.Context) error {
		return r.db.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.FirstName, &u.LastName, &u.Phone)
	})
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("error getting user by ID: %w", err)
	}
	return u, nil
}

func (r *PostgresBookingRepository) ListingSlug(ctx context.Context, listingID string) (string, error) {
	query := `SELECT slug FROM apartment_identificator
               WHERE "apartmentId"::text = $1
               ORDER BY "createdAt" DESC LIMIT 1`
	var slug sql.NullString
	err := r.retry.Do(ctx, "listing slug", func(ctx context.Context) error {
		return r.db.QueryRowContext(ctx, query, listingID).Scan(&slug)
	})
	if err != nil {
		if err == sql.ErrNoRows {
			return "", ErrListingNotFound
		}
		return "", fmt.Errorf("error getting listing slug: %w", err)
	}
	if !slug.Valid || slug.String == "" {
		return "", ErrListingNotFound
	}
	return slug.String, nil
}

func scanRequest(s scanner, r *booking.Record) error {
	var cost sql.NullInt64
	var adData, tenantInfo, landlordInfo []byte
	err := s.Scan(&r.ID, &r.Status, &cost, &r.ArrivalDate, &r.DepartureDate, &adData,
		&r.TenantID, &tenantInfo, &landlordInfo, &r.ListingID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return err
	}
	r.Cost = cost.Int64
	r.AdData = json.RawMessage(adData)
	r.TenantInfo = json.RawMessage(tenantInfo)
	r.LandlordInfo = json.RawMessage(landlordInfo)
	return nil
}

func scanCancellation(s scanner, r *booking.Record) error {
	return s.Scan(&r.ID, &r.SenderRole, &r.RejectReason, &r.Status, &r.CreatedAt, &r.UpdatedAt)
}

func scanContract(s scanner, r *booking.Record) error {
	var cost, retries sql.NullInt64
	var paid sql.NullBool
	var adData, tenantInfo, landlordInfo []byte
	err := s.Scan(&r.ID, &r.Status, &cost, &r.ArrivalDate, &r.DepartureDate, &adData,
		&r.TenantID, &r.LandlordID, &tenantInfo, &landlordInfo, &r.ListingID,
		&paid, &r.PaymentDate, &retries, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return err
	}
	r.Cost = cost.Int64
	r.IsPaymentSuccess = paid.Bool
	r.RetryAttempts = int(retries.Int64)
	r.AdData = json.RawMessage(adData)
	r.TenantInfo = json.RawMessage(tenantInfo)
	r.LandlordInfo = json.RawMessage(landlordInfo)
	return nil
}
