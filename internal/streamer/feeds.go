package streamer

import (
	"context"
	"sync"
)

// Feed is an account-wide stream that is either on or off.
type Feed struct {
	requester
	name              string
	subscribeTarget   string
	unsubscribeTarget string
	conn              func() (Connection, bool)
	subscription      func() Subscription

	mu     sync.Mutex
	active bool
}

func newFeed(name, subscribeTarget, unsubscribeTarget string, req requester, conn func() (Connection, bool), subscription func() Subscription) *Feed {
	return &Feed{
		requester:         req,
		name:              name,
		subscribeTarget:   subscribeTarget,
		unsubscribeTarget: unsubscribeTarget,
		conn:              conn,
		subscription:      subscription,
	}
}

func newNewsFeed(req requester, conn func() (Connection, bool), subscription func() Subscription) *Feed {
	return newFeed("news", TargetSubscribeNews, TargetUnSubscribeNews, req, conn, subscription)
}

func newOrdersFeed(req requester, conn func() (Connection, bool), subscription func() Subscription) *Feed {
	return newFeed("orders", TargetSubscribeOrders, TargetUnSubscribeOrders, req, conn, subscription)
}

// Name returns "news" or "orders".
func (f *Feed) Name() string {
	return f.name
}

// IsActive reports whether the server confirmed the last Activate.
func (f *Feed) IsActive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

// Activate subscribes the active account to the feed. The feed is marked
// active only when the server confirms.
func (f *Feed) Activate(ctx context.Context) error {
	conn, ok := f.conn()
	if !ok {
		f.logger.Info("not connected, feed not activated", "feed", f.name)
		return nil
	}

	account := f.subscription().ActiveAccountNumber
	f.logger.Info("activating feed", "feed", f.name, "account", account)
	if _, err := f.invoke(ctx, conn, f.subscribeTarget, f.name+" feed of account "+account, account); err != nil {
		return err
	}

	f.setActive(true)
	f.logger.Info("feed activated", "feed", f.name)
	return nil
}

// DeActivate unsubscribes from the feed. The flag is cleared on any answer
// that is not an explicit rejection.
func (f *Feed) DeActivate(ctx context.Context) error {
	conn, ok := f.conn()
	if !ok {
		f.logger.Info("not connected, feed not deactivated", "feed", f.name)
		return nil
	}

	f.logger.Info("deactivating feed", "feed", f.name)
	if err := f.release(ctx, conn, f.unsubscribeTarget, f.name+" feed"); err != nil {
		return err
	}

	f.setActive(false)
	f.logger.Info("feed deactivated", "feed", f.name)
	return nil
}

// reset forgets the feed after an intentional stop.
func (f *Feed) reset() {
	f.setActive(false)
}

func (f *Feed) setActive(active bool) {
	f.mu.Lock()
	f.active = active
	f.mu.Unlock()
}
