package order

import (
	"testing"

	"github.com/stretchr/testify/require"

	"bybot/core"
)

func TestFeed_NewOrderFeed(t *testing.T) {
	feed := NewOrderFeed()
	require.NotEmpty(t, feed)
}

func TestFeed_Subscribe(t *testing.T) {
	feed, symbol := NewOrderFeed(), "APTUSDT"
	called := make(chan bool, 1)

	feed.Subscribe(symbol, func(_ core.Order) {
		called <- true
	}, false)

	feed.Start()
	feed.Publish(core.Order{Symbol: symbol}, false)
	require.True(t, <-called)
}

func TestFeed_PublishWithoutSubscriberDoesNotBlock(t *testing.T) {
	feed := NewOrderFeed()
	feed.Publish(core.Order{Symbol: "BTCUSDT"}, true)
}
