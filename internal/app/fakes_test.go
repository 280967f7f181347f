package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"booking_notification_bot/internal/domain/booking"
	idb "booking_notification_bot/internal/infra/database"
	"booking_notification_bot/internal/infra/logger"
)

var almaty = time.FixedZone("Asia/Almaty", 5*60*60)

type fakeUsers struct {
	users map[string]*booking.User
	err   error
	calls int
}

func (f *fakeUsers) UserByID(_ context.Context, id string) (*booking.User, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, idb.ErrUserNotFound
	}
	return u, nil
}

type fakeListings struct {
	slugs map[string]string
	err   error
}

func (f *fakeListings) ListingSlug(_ context.Context, id string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	slug, ok := f.slugs[id]
	if !ok {
		return "", idb.ErrListingNotFound
	}
	return slug, nil
}

type sent struct {
	chatID int64
	text   string
}

type fakeSender struct {
	mu      sync.Mutex
	failFor map[int64]bool
	sent    []sent
}

func (f *fakeSender) SendHTML(chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[chatID] {
		return errors.New("telegram: chat not found (400)")
	}
	f.sent = append(f.sent, sent{chatID: chatID, text: text})
	return nil
}

func (f *fakeSender) messages() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.sent...)
}

func newTestResolver(users *fakeUsers, listings *fakeListings) *Resolver {
	if users == nil {
		users = &fakeUsers{}
	}
	if listings == nil {
		listings = &fakeListings{}
	}
	return NewResolver(users, listings, "https://livin.kz/apartment/", almaty, logger.Discard())
}
