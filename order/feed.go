package order

import (
	"sync"

	"bybot/core"
)

// FeedConsumer is a function type that processes order events
type FeedConsumer func(order core.Order)

// DataFeed carries order updates for one contract
type DataFeed struct {
	Data chan core.Order
	Err  chan error
}

// Subscription represents a consumer subscription to order updates
type Subscription struct {
	onlyNewOrder bool
	consumer     FeedConsumer
}

// Feed distributes order updates to subscribers, keyed by symbol
type Feed struct {
	mu                    sync.RWMutex
	OrderFeeds            map[string]*DataFeed
	SubscriptionsBySymbol map[string][]Subscription
}

// NewOrderFeed creates a new order feed manager
func NewOrderFeed() *Feed {
	return &Feed{
		OrderFeeds:            make(map[string]*DataFeed),
		SubscriptionsBySymbol: make(map[string][]Subscription),
	}
}

// Subscribe registers a consumer to receive order updates for a symbol
func (f *Feed) Subscribe(symbol string, consumer FeedConsumer, onlyNewOrder bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.OrderFeeds[symbol]; !ok {
		f.OrderFeeds[symbol] = &DataFeed{
			Data: make(chan core.Order, 100), // buffered to prevent blocking
			Err:  make(chan error, 100),
		}
	}

	f.SubscriptionsBySymbol[symbol] = append(f.SubscriptionsBySymbol[symbol], Subscription{
		onlyNewOrder: onlyNewOrder,
		consumer:     consumer,
	})
}

// Publish sends an order update to all subscribers for the symbol.
// The send never blocks; updates are dropped when no one is draining.
func (f *Feed) Publish(order core.Order, _ bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if feed, ok := f.OrderFeeds[order.Symbol]; ok {
		select {
		case feed.Data <- order:
		default:
		}
	}
}

// Start begins processing order updates for all registered feeds
func (f *Feed) Start() {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for symbol, feed := range f.OrderFeeds {
		go f.processOrdersForSymbol(symbol, feed)
	}
}

func (f *Feed) processOrdersForSymbol(symbol string, feed *DataFeed) {
	for order := range feed.Data {
		f.mu.RLock()
		subscriptions := f.SubscriptionsBySymbol[symbol]
		f.mu.RUnlock()

		for _, subscription := range subscriptions {
			subscription.consumer(order)
		}
	}
}

// Stop gracefully shuts down all feed channels
func (f *Feed) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for symbol, feed := range f.OrderFeeds {
		close(feed.Data)
		close(feed.Err)
		delete(f.OrderFeeds, symbol)
	}

	f.SubscriptionsBySymbol = make(map[string][]Subscription)
}
