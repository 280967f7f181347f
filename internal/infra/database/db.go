package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

const (
	defaultMaxOpenConns    = 4 // poll job, digest job and bot commands each hold at most one
	defaultMaxIdleConns    = 4
	defaultConnMaxLifetime = 5 * time.Minute
	defaultConnMaxIdleTime = 1 * time.Minute

	connectAttempts = 10
	connectDelay    = 2 * time.Second
)

// NewPostgresConnection creates and returns a new PostgreSQL connection pool.
// It pings the database, retrying for a while so the service can start alongside the database.
func NewPostgresConnection(ctx context.Context, dataSourceName string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	for i := 0; i < connectAttempts; i++ {
		if err = db.PingContext(ctx); err == nil {
			return db, nil
		}
		select {
		case <-ctx.Done():
			db.Close()
			return nil, fmt.Errorf("failed to ping database: %w", ctx.Err())
		case <-time.After(connectDelay):
		}
	}
	db.Close() // Close the pool if ping keeps failing
	return nil, fmt.Errorf("failed to ping database after %d attempts: %w", connectAttempts, err)
}
