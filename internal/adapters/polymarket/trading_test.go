package polymarket_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polybridge/internal/adapters/polymarket"
	"github.com/alejandrodnm/polybridge/internal/auth"
	"github.com/alejandrodnm/polybridge/internal/domain"
)

func newTradingClient(t *testing.T, srv *httptest.Server) (*polymarket.TradingClient, *auth.Context) {
	t.Helper()
	ac, authCtx, _ := newAuthClient(t, srv)
	installCreds(authCtx)
	return polymarket.NewTradingClient(ac), authCtx
}

// capturedOrder mirrors the POST /order body for assertions.
type capturedOrder struct {
	Order struct {
		Salt          json.Number `json:"salt"`
		Maker         string      `json:"maker"`
		Signer        string      `json:"signer"`
		Taker         string      `json:"taker"`
		TokenID       string      `json:"tokenId"`
		MakerAmount   string      `json:"makerAmount"`
		TakerAmount   string      `json:"takerAmount"`
		Side          string      `json:"side"`
		SignatureType int         `json:"signatureType"`
		Signature     string      `json:"signature"`
	} `json:"order"`
	Owner     string `json:"owner"`
	OrderType string `json:"orderType"`
}

// --- PlaceOrder ---

func TestPlaceOrder_Buy(t *testing.T) {
	var got capturedOrder
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/order", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusOK, `{
			"success": true, "orderID": "0xorder1", "status": "live",
			"takingAmount": "0", "makingAmount": "10000000"
		}`)
	}))
	defer srv.Close()

	tc, _ := newTradingClient(t, srv)

	// BUY: size is USDC to spend. 10 USDC at 0.50 → 20 shares.
	placed, err := tc.PlaceOrder(context.Background(), domain.PlaceOrderRequest{
		TokenID: "123456",
		Side:    "BUY",
		Price:   0.50,
		Size:    10.0,
	})
	require.NoError(t, err)

	assert.Equal(t, "0xorder1", placed.CLOBOrderID)
	assert.Equal(t, "live", placed.Status)
	assert.InDelta(t, 10.0, placed.MadeAmount, 0.001)
	assert.InDelta(t, 0.0, placed.TakenAmount, 0.001)

	assert.Equal(t, "key-1", got.Owner)
	assert.Equal(t, "GTC", got.OrderType)
	assert.Equal(t, "BUY", got.Order.Side)
	assert.Equal(t, "123456", got.Order.TokenID)
	// EOA: maker and signer are both the wallet address.
	assert.Equal(t, testSigner, got.Order.Maker)
	assert.Equal(t, testSigner, got.Order.Signer)
	assert.Equal(t, 0, got.Order.SignatureType)
	// 10 USDC maker side, 20 shares taker side, both in micro units.
	assert.Equal(t, "10000000", got.Order.MakerAmount)
	assert.Equal(t, "20000000", got.Order.TakerAmount)
	assert.True(t, len(got.Order.Signature) > 2 && got.Order.Signature[:2] == "0x")
}

func TestPlaceOrder_Sell(t *testing.T) {
	var got capturedOrder
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusOK, `{"success": true, "orderID": "0xorder2", "status": "live"}`)
	}))
	defer srv.Close()

	tc, _ := newTradingClient(t, srv)

	// SELL: size is shares. 20 shares at 0.50 → 10 USDC.
	_, err := tc.PlaceOrder(context.Background(), domain.PlaceOrderRequest{
		TokenID: "123456",
		Side:    "SELL",
		Price:   0.50,
		Size:    20.0,
	})
	require.NoError(t, err)

	assert.Equal(t, "SELL", got.Order.Side)
	// Maker gives shares, taker side is the USDC owed back.
	assert.Equal(t, "20000000", got.Order.MakerAmount)
	assert.Equal(t, "10000000", got.Order.TakerAmount)
}

func TestPlaceOrder_ThreeDecimalTick(t *testing.T) {
	var got capturedOrder
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusOK, `{"success": true, "orderID": "0x3", "status": "live"}`)
	}))
	defer srv.Close()

	tc, _ := newTradingClient(t, srv)

	// 0.673 needs the 0.001 tick. 5 USDC at 0.673 buys 7.4294 shares,
	// floored to 742 share-cents.
	_, err := tc.PlaceOrder(context.Background(), domain.PlaceOrderRequest{
		TokenID: "99",
		Side:    "BUY",
		Price:   0.673,
		Size:    5.0,
	})
	require.NoError(t, err)

	// makerAmount = 742 * 673 * 10 = 4993660 micro-USDC,
	// takerAmount = 742 * 10000 = 7420000 micro-shares.
	assert.Equal(t, "4993660", got.Order.MakerAmount)
	assert.Equal(t, "7420000", got.Order.TakerAmount)
}

func TestPlaceOrder_CLOBRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"success": false, "errorMsg": "not enough balance / allowance"}`)
	}))
	defer srv.Close()

	tc, _ := newTradingClient(t, srv)
	_, err := tc.PlaceOrder(context.Background(), domain.PlaceOrderRequest{
		TokenID: "123456", Side: "BUY", Price: 0.5, Size: 10,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not enough balance / allowance")
}

func TestPlaceOrder_InvalidSide(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	tc, _ := newTradingClient(t, srv)
	_, err := tc.PlaceOrder(context.Background(), domain.PlaceOrderRequest{
		TokenID: "123456", Side: "HOLD", Price: 0.5, Size: 10,
	})
	assert.Error(t, err)
}

func TestPlaceOrder_NoCredentials(t *testing.T) {
	ac, _, _ := newAuthClient(t, nil)
	tc := polymarket.NewTradingClient(ac)

	_, err := tc.PlaceOrder(context.Background(), domain.PlaceOrderRequest{
		TokenID: "123456", Side: "BUY", Price: 0.5, Size: 10,
	})
	assert.ErrorIs(t, err, auth.ErrNoCredentials)
}

// --- CancelOrder / CancelAll ---

func TestCancelOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/order/0xdead", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("POLY_SIGNATURE"))
		writeJSON(w, http.StatusOK, `{"canceled": "0xdead"}`)
	}))
	defer srv.Close()

	tc, _ := newTradingClient(t, srv)
	assert.NoError(t, tc.CancelOrder(context.Background(), "0xdead"))
}

func TestCancelAll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/orders", r.URL.Path)
		writeJSON(w, http.StatusOK, `{}`)
	}))
	defer srv.Close()

	tc, _ := newTradingClient(t, srv)
	assert.NoError(t, tc.CancelAll(context.Background()))
}

// --- GetOpenOrders ---

func TestGetOpenOrders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/orders", r.URL.Path)
		writeJSON(w, http.StatusOK, `{
			"data": [
				{
					"id": "0xaaa", "asset_id": "tok1", "market": "0xcond1",
					"side": "buy", "original_size": "20", "size_matched": "5.5",
					"price": "0.55", "status": "LIVE",
					"created_at": "1764581122", "outcome": "Yes"
				},
				{
					"id": "0xbbb", "asset_id": "tok2", "market": "0xcond2",
					"side": "SELL", "original_size": "10", "size_matched": "10",
					"price": "0.30", "status": "MATCHED",
					"created_at": "2025-06-01T12:00:00Z", "outcome": "No"
				}
			],
			"next_cursor": "LTE="
		}`)
	}))
	defer srv.Close()

	tc, _ := newTradingClient(t, srv)
	orders, err := tc.GetOpenOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 2)

	first := orders[0]
	assert.Equal(t, "0xaaa", first.CLOBOrderID)
	assert.Equal(t, "0xcond1", first.ConditionID)
	assert.Equal(t, "tok1", first.TokenID)
	assert.Equal(t, "BUY", first.Side)
	assert.InDelta(t, 0.55, first.Price, 0.001)
	assert.InDelta(t, 20.0, first.Size, 0.001)
	assert.InDelta(t, 5.5, first.FilledSize, 0.001)
	assert.Equal(t, domain.LiveStatusOpen, first.Status)
	assert.Equal(t, "Yes", first.Outcome)
	assert.Equal(t, int64(1764581122), first.PlacedAt.Unix())

	second := orders[1]
	assert.Equal(t, "SELL", second.Side)
	assert.Equal(t, domain.LiveStatusFilled, second.Status)
	assert.Equal(t, 2025, second.PlacedAt.Year())
}

// --- IsNegRisk ---

func TestIsNegRisk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/neg-risk", r.URL.Path)
		assert.Equal(t, "tok1", r.URL.Query().Get("token_id"))
		// Unauthenticated: no L2 headers expected.
		assert.Empty(t, r.Header.Get("POLY_SIGNATURE"))
		writeJSON(w, http.StatusOK, `{"neg_risk": true}`)
	}))
	defer srv.Close()

	tc, _ := newTradingClient(t, srv)
	neg, err := tc.IsNegRisk(context.Background(), "tok1")
	require.NoError(t, err)
	assert.True(t, neg)
}
