package booking

import (
	"context"
	"time"
)

// SnapshotReader fetches watched rows. Implementations are read-only.
type SnapshotReader interface {
	// Latest returns the most recently updated row of the given kind, or nil when the table is empty.
	Latest(ctx context.Context, kind Kind) (*Record, error)
	// ChangedSince returns rows ordered by (updatedAt, id) that sort after (since, afterID),
	// at most limit rows. An empty afterID includes every row updated exactly at since.
	ChangedSince(ctx context.Context, kind Kind, since time.Time, afterID string, limit int) ([]*Record, error)
	// ByIDs re-reads specific rows. Missing ids are silently skipped.
	ByIDs(ctx context.Context, kind Kind, ids []string) ([]*Record, error)
}

// UserRepository resolves contact data for the person fallback.
type UserRepository interface {
	UserByID(ctx context.Context, id string) (*User, error)
}

// ListingRepository resolves the public slug of a listing.
type ListingRepository interface {
	ListingSlug(ctx context.Context, listingID string) (string, error)
}

// DigestRepository reads the contracts relevant to a daily digest.
type DigestRepository interface {
	// ContractsForDigest returns successfully paid contracts whose arrival date or payment
	// date falls in [from, to).
	ContractsForDigest(ctx context.Context, from, to time.Time) ([]*Record, error)
}

// Repository groups every read the service performs against the booking database.
type Repository interface {
	SnapshotReader
	UserRepository
	ListingRepository
	DigestRepository
}
