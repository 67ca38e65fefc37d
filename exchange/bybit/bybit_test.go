package bybit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"bybot/core"
	"bybot/logger/zerolog"
)

func testLog(t *testing.T) *zerolog.Adapter {
	t.Helper()
	log, err := zerolog.New("error", "2006-01-02 15:04:05", false, false)
	require.NoError(t, err)
	return log
}

func testExchange(t *testing.T, handler http.Handler) *Exchange {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	e, err := NewExchange(testLog(t), Config{
		APIKey:    "key",
		APISecret: "secret",
		Testnet:   true,
	}, WithHost(server.URL))
	require.NoError(t, err)

	return e
}

func envelope(result string) string {
	return `{"retCode":0,"retMsg":"OK","result":` + result + `}`
}

func TestSign(t *testing.T) {
	c := newClient("api-key", "api-secret", true)

	// Fixed inputs make the HMAC deterministic; recomputing the same
	// message must yield the same signature, and a different payload a
	// different one.
	sig := c.sign("1700000000000", "category=linear&symbol=BTCUSDT")
	require.Len(t, sig, 64)
	require.Equal(t, sig, c.sign("1700000000000", "category=linear&symbol=BTCUSDT"))
	require.NotEqual(t, sig, c.sign("1700000000000", "category=linear&symbol=ETHUSDT"))
}

func TestAuthHeaders(t *testing.T) {
	var captured http.Header
	e := testExchange(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Header.Clone()
		w.Write([]byte(envelope(`{"list":[]}`)))
	}))

	_, err := e.Balance(context.Background())
	require.NoError(t, err)

	require.Equal(t, "key", captured.Get("X-BAPI-API-KEY"))
	require.Equal(t, "5000", captured.Get("X-BAPI-RECV-WINDOW"))
	require.NotEmpty(t, captured.Get("X-BAPI-TIMESTAMP"))
	require.Len(t, captured.Get("X-BAPI-SIGN"), 64)
}

func TestInstrumentInfoCaches(t *testing.T) {
	calls := 0
	e := testExchange(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		require.Equal(t, "/v5/market/instruments-info", r.URL.Path)
		require.Equal(t, "linear", r.URL.Query().Get("category"))
		w.Write([]byte(envelope(`{"list":[{
			"symbol":"APTUSDT","baseCoin":"APT","quoteCoin":"USDT",
			"lotSizeFilter":{"qtyStep":"0.01","minOrderQty":"0.01","maxOrderQty":"10000"},
			"priceFilter":{"tickSize":"0.0001"},
			"leverageFilter":{"maxLeverage":"25"}}]}`)))
	}))

	ctx := context.Background()
	info, err := e.InstrumentInfo(ctx, "APTUSDT")
	require.NoError(t, err)
	require.Equal(t, 0.01, info.QtyStep)
	require.Equal(t, 0.0001, info.TickSize)
	require.Equal(t, 25.0, info.MaxLeverage)

	_, err = e.InstrumentInfo(ctx, "APTUSDT")
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestLastQuote(t *testing.T) {
	e := testExchange(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v5/market/tickers", r.URL.Path)
		w.Write([]byte(envelope(`{"list":[{"symbol":"BTCUSDT","lastPrice":"64250.5"}]}`)))
	}))

	price, err := e.LastQuote(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.Equal(t, 64250.5, price)
}

func TestBalance(t *testing.T) {
	e := testExchange(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "UNIFIED", r.URL.Query().Get("accountType"))
		w.Write([]byte(envelope(`{"list":[{
			"totalAvailableBalance":"812.44",
			"coin":[{"coin":"USDT","walletBalance":"1000.5"}]}]}`)))
	}))

	balance, err := e.Balance(context.Background())
	require.NoError(t, err)
	require.Equal(t, "USDT", balance.Coin)
	require.Equal(t, 1000.5, balance.WalletBalance)
	require.Equal(t, 812.44, balance.Available)
}

func TestPositionsFiltersFlat(t *testing.T) {
	e := testExchange(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(envelope(`{"list":[
			{"symbol":"APTUSDT","side":"Buy","size":"100","avgPrice":"8.844",
			 "markPrice":"9.1","liqPrice":"7.2","unrealisedPnl":"25.6",
			 "positionValue":"884.4","leverage":"5","createdTime":"1700000000000"},
			{"symbol":"BTCUSDT","side":"","size":"0","avgPrice":"0"}]}`)))
	}))

	positions, err := e.Positions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	require.Equal(t, "APTUSDT", positions[0].Symbol)
	require.Equal(t, core.SideTypeBuy, positions[0].Side)
	require.Equal(t, 8.844, positions[0].EntryPrice)
	require.Equal(t, int64(1700000000000), positions[0].CreatedAt)
}

func TestSetLeverageToleratesNotModified(t *testing.T) {
	e := testExchange(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"retCode":110043,"retMsg":"leverage not modified","result":{}}`))
	}))

	require.NoError(t, e.SetLeverage(context.Background(), "APTUSDT", 5))
}

func TestSetLeverageSurfacesOtherErrors(t *testing.T) {
	e := testExchange(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"retCode":10001,"retMsg":"params error","result":{}}`))
	}))

	err := e.SetLeverage(context.Background(), "APTUSDT", 5)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, 10001, apiErr.Code)
}

func TestCreateOrder(t *testing.T) {
	var body map[string]string
	e := testExchange(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v5/market/instruments-info":
			w.Write([]byte(envelope(`{"list":[{
				"symbol":"APTUSDT","baseCoin":"APT","quoteCoin":"USDT",
				"lotSizeFilter":{"qtyStep":"0.01","minOrderQty":"0.01","maxOrderQty":"10000"},
				"priceFilter":{"tickSize":"0.0001"},
				"leverageFilter":{"maxLeverage":"25"}}]}`)))
		case "/v5/order/create":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			w.Write([]byte(envelope(`{"orderId":"abc-123","orderLinkId":""}`)))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))

	order, err := e.CreateOrder(context.Background(), core.OrderRequest{
		Symbol:   "APTUSDT",
		Side:     core.SideTypeBuy,
		Type:     core.OrderTypeLimit,
		Quantity: 56.567,
		Price:    8.844,
		StopLoss: 8.4,
	})
	require.NoError(t, err)

	require.Equal(t, "abc-123", order.ExchangeID)
	require.Equal(t, 56.56, order.Quantity)
	require.NotNil(t, order.Stop)
	require.Equal(t, 8.4, *order.Stop)

	require.Equal(t, "56.56", body["qty"])
	require.Equal(t, "Buy", body["side"])
	require.Equal(t, "Limit", body["orderType"])
	require.Equal(t, "8.844", body["price"])
	require.Equal(t, "8.4", body["stopLoss"])
	require.Equal(t, "0", body["positionIdx"])
	require.Equal(t, "GTC", body["timeInForce"])
}

func TestCreateOrderTriggerDirection(t *testing.T) {
	var body map[string]string
	e := testExchange(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v5/market/instruments-info":
			w.Write([]byte(envelope(`{"list":[{
				"symbol":"APTUSDT",
				"lotSizeFilter":{"qtyStep":"0.01","minOrderQty":"0.01","maxOrderQty":"10000"},
				"priceFilter":{"tickSize":"0.0001"},
				"leverageFilter":{"maxLeverage":"25"}}]}`)))
		case "/v5/order/create":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			w.Write([]byte(envelope(`{"orderId":"tp-1","orderLinkId":""}`)))
		}
	}))

	order, err := e.CreateOrder(context.Background(), core.OrderRequest{
		Symbol:       "APTUSDT",
		Side:         core.SideTypeSell,
		Type:         core.OrderTypeLimit,
		Quantity:     10,
		Price:        9,
		TriggerPrice: 9,
		ReduceOnly:   true,
	})
	require.NoError(t, err)

	require.Equal(t, core.OrderStatusTypeUntriggered, order.Status)
	require.Equal(t, "1", body["triggerDirection"])
	require.Equal(t, "true", body["reduceOnly"])
	require.Equal(t, "9", body["triggerPrice"])
}

func TestCreateOrderRejectsTinyQuantity(t *testing.T) {
	e := testExchange(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(envelope(`{"list":[{
			"symbol":"APTUSDT",
			"lotSizeFilter":{"qtyStep":"0.01","minOrderQty":"1","maxOrderQty":"10000"},
			"priceFilter":{"tickSize":"0.0001"},
			"leverageFilter":{"maxLeverage":"25"}}]}`)))
	}))

	_, err := e.CreateOrder(context.Background(), core.OrderRequest{
		Symbol:   "APTUSDT",
		Side:     core.SideTypeBuy,
		Type:     core.OrderTypeMarket,
		Quantity: 0.5,
	})
	require.ErrorIs(t, err, core.ErrInvalidQuantity)
}

func TestOrderFallsBackToHistory(t *testing.T) {
	e := testExchange(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v5/order/realtime":
			w.Write([]byte(envelope(`{"list":[]}`)))
		case "/v5/order/history":
			w.Write([]byte(envelope(`{"list":[{
				"orderId":"abc-123","symbol":"APTUSDT","side":"Buy",
				"orderType":"Limit","orderStatus":"Filled",
				"price":"8.844","qty":"56.56","reduceOnly":false,
				"createdTime":"1700000000000","updatedTime":"1700000100000"}]}`)))
		}
	}))

	order, err := e.Order(context.Background(), "APTUSDT", "abc-123")
	require.NoError(t, err)
	require.True(t, order.IsFilled())
	require.Equal(t, 56.56, order.Quantity)
}

func TestOrderNotFound(t *testing.T) {
	e := testExchange(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(envelope(`{"list":[]}`)))
	}))

	_, err := e.Order(context.Background(), "APTUSDT", "missing")
	require.ErrorIs(t, err, ErrOrderNotFound)
}
