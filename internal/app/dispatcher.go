// internal/app/dispatcher.go
package app

import (
	"context"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"booking_notification_bot/internal/infra/metrics"
)

// Sender delivers one HTML message to one chat.
type Sender interface {
	SendHTML(chatID int64, text string) error
}

// Dispatcher fans a message out to every configured chat, one after another.
// Delivery is best effort: a failed chat is logged and skipped, nothing is retried.
type Dispatcher struct {
	sender    Sender
	chatIDs   []int64
	limiter   *rate.Limiter
	logger    *logrus.Entry
	delivered atomic.Int64
	failed    atomic.Int64
}

func NewDispatcher(sender Sender, chatIDs []int64, ratePerSec int, logger *logrus.Entry) *Dispatcher {
	if ratePerSec <= 0 {
		ratePerSec = 20
	}
	// Token bucket: burst = rate per sec, so one message to a handful of chats never waits.
	limiter := rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec)
	return &Dispatcher{
		sender:  sender,
		chatIDs: append([]int64(nil), chatIDs...),
		limiter: limiter,
		logger:  logger,
	}
}

// ChatIDs returns the configured destinations.
func (d *Dispatcher) ChatIDs() []int64 {
	return append([]int64(nil), d.chatIDs...)
}

// Dispatch sends text to every configured chat and returns how many deliveries succeeded.
func (d *Dispatcher) Dispatch(ctx context.Context, text string) int {
	ok := 0
	for _, chatID := range d.chatIDs {
		if err := d.SendTo(ctx, chatID, text); err != nil {
			if ctx.Err() != nil {
				break
			}
			continue
		}
		ok++
	}
	return ok
}

// SendTo delivers text to a single chat, logging and counting the outcome.
func (d *Dispatcher) SendTo(ctx context.Context, chatID int64, text string) error {
	logCtx := d.logger.WithField("chat_id", chatID)
	if err := d.limiter.Wait(ctx); err != nil {
		logCtx.WithError(err).Warn("Delivery skipped, rate limiter wait aborted")
		d.failed.Add(1)
		metrics.Deliveries.WithLabelValues("skipped").Inc()
		return err
	}
	if err := d.sender.SendHTML(chatID, text); err != nil {
		logCtx.WithError(err).Error("Failed to deliver message")
		d.failed.Add(1)
		metrics.Deliveries.WithLabelValues("failed").Inc()
		return err
	}
	logCtx.Debug("Message delivered")
	d.delivered.Add(1)
	metrics.Deliveries.WithLabelValues("ok").Inc()
	return nil
}

// Stats returns the delivered and failed counts since start.
func (d *Dispatcher) Stats() (delivered, failed int64) {
	return d.delivered.Load(), d.failed.Load()
}
