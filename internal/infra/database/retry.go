package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"booking_notification_bot/internal/infra/metrics"
)

const maxRetryDelay = 30 * time.Second

// Pinger is the part of *sql.DB the retrier needs to probe the connection.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Retrier re-runs a query with exponential back-off while the failure looks like a lost
// connection. database/sql re-dials on the next use, so a successful ping before the
// retry means the pool has reconnected.
type Retrier struct {
	db        Pinger
	attempts  int
	baseDelay time.Duration
	logger    *logrus.Entry
	sleep     func(ctx context.Context, d time.Duration) error
}

func NewRetrier(db Pinger, attempts int, baseDelay time.Duration, logger *logrus.Entry) *Retrier {
	if attempts < 1 {
		attempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	return &Retrier{db: db, attempts: attempts, baseDelay: baseDelay, logger: logger, sleep: sleepContext}
}

// Do executes fn, retrying connection-class failures up to the configured attempts.
// Any other error is returned immediately.
func (r *Retrier) Do(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	delay := r.baseDelay
	var err error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		err = fn(ctx)
		if err == nil || !IsConnectionError(err) {
			return err
		}
		if attempt == r.attempts {
			break
		}

		r.logger.WithFields(logrus.Fields{
			"operation": operation,
			"attempt":   attempt,
			"max":       r.attempts,
			"delay":     delay.String(),
		}).WithError(err).Warn("Database connection lost, retrying")
		metrics.DBRetries.Inc()

		if sleepErr := r.sleep(ctx, delay); sleepErr != nil {
			return fmt.Errorf("%s: %w", operation, sleepErr)
		}
		delay *= 2
		if delay > maxRetryDelay {
			delay = maxRetryDelay
		}
		if pingErr := r.db.PingContext(ctx); pingErr != nil {
			r.logger.WithField("operation", operation).WithError(pingErr).Warn("Database still unreachable")
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", operation, r.attempts, err)
}

// IsConnectionError reports whether err indicates the connection, not the query, failed.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code.Class() == "08": // connection_exception
			return true
		case pqErr.Code == "57P01", pqErr.Code == "57P02", pqErr.Code == "57P03": // admin/crash shutdown, cannot connect now
			return true
		}
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
