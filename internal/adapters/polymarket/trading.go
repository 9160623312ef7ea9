package polymarket

// trading.go — Real order execution via Polymarket CLOB API.
//
// Implements ports.OrderExecutor on top of AuthClient. Every call here
// requires a negotiated signing context: doL2 refuses to sign without
// installed credentials. All orders are placed as GTC limit orders.

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/polybridge/internal/auth"
	"github.com/alejandrodnm/polybridge/internal/domain"
)

// TradingClient implements ports.OrderExecutor.
type TradingClient struct {
	auth *AuthClient
}

// NewTradingClient creates a TradingClient over an authenticated CLOB client.
func NewTradingClient(ac *AuthClient) *TradingClient {
	return &TradingClient{auth: ac}
}

// PlaceOrder signs and submits a limit order to the CLOB.
func (tc *TradingClient) PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (domain.PlacedOrder, error) {
	creds, ok := tc.auth.authCtx.Creds()
	if !ok {
		return domain.PlacedOrder{}, fmt.Errorf("place order: %w", auth.ErrNoCredentials)
	}

	signed, err := tc.auth.buildSignedOrder(req)
	if err != nil {
		return domain.PlacedOrder{}, fmt.Errorf("place order: sign: %w", err)
	}

	body := clobOrderRequest{
		Order: clobOrderBody{
			Salt:          json.Number(signed.Order.Salt.String()),
			Maker:         signed.Order.Maker.Hex(),
			Signer:        signed.Order.Signer.Hex(),
			Taker:         signed.Order.Taker.Hex(),
			TokenID:       req.TokenID,
			MakerAmount:   signed.Order.MakerAmount.String(),
			TakerAmount:   signed.Order.TakerAmount.String(),
			Expiration:    signed.Order.Expiration.String(),
			Nonce:         signed.Order.Nonce.String(),
			FeeRateBps:    signed.Order.FeeRateBps.String(),
			Side:          req.Side,
			SignatureType: int(signed.Order.SignatureType.Int64()),
			Signature:     "0x" + hex.EncodeToString(signed.Signature),
		},
		Owner:     creds.Key,
		OrderType: "GTC",
	}

	var resp clobOrderResponse
	if err := tc.auth.doL2(ctx, http.MethodPost, "/order", body, &resp); err != nil {
		return domain.PlacedOrder{}, fmt.Errorf("place order: post: %w", err)
	}

	if !resp.Success || resp.ErrorMsg != "" {
		return domain.PlacedOrder{}, fmt.Errorf("place order: clob error: %s", resp.ErrorMsg)
	}

	return domain.PlacedOrder{
		CLOBOrderID: resp.OrderID,
		Status:      resp.Status,
		TakenAmount: parseUSDC(resp.TakingAmount),
		MadeAmount:  parseUSDC(resp.MakingAmount),
	}, nil
}

// CancelOrder cancels a single order by its CLOB order ID.
func (tc *TradingClient) CancelOrder(ctx context.Context, clobOrderID string) error {
	path := "/order/" + clobOrderID
	if err := tc.auth.doL2(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("cancel order %s: %w", clobOrderID, err)
	}
	return nil
}

// CancelAll cancels all open orders for this wallet.
func (tc *TradingClient) CancelAll(ctx context.Context) error {
	if err := tc.auth.doL2(ctx, http.MethodDelete, "/orders", nil, nil); err != nil {
		return fmt.Errorf("cancel all: %w", err)
	}
	return nil
}

// GetOpenOrders returns all currently open orders from the CLOB.
func (tc *TradingClient) GetOpenOrders(ctx context.Context) ([]domain.LiveOrder, error) {
	var resp clobOrdersResponse
	if err := tc.auth.doL2(ctx, http.MethodGet, "/orders", nil, &resp); err != nil {
		return nil, fmt.Errorf("get orders: %w", err)
	}

	orders := make([]domain.LiveOrder, 0, len(resp.Data))
	for _, o := range resp.Data {
		orders = append(orders, clobOpenOrderToLiveOrder(o))
	}
	return orders, nil
}

// IsNegRisk queries the CLOB to determine if a token uses the NegRisk adapter.
// Unauthenticated endpoint — works before the signing context is negotiated.
func (tc *TradingClient) IsNegRisk(ctx context.Context, tokenID string) (bool, error) {
	url := fmt.Sprintf("%s/neg-risk?token_id=%s", tc.auth.clobBase, tokenID)

	var resp clobNegRiskResponse
	if err := tc.auth.getJSON(ctx, tc.auth.clobLimiter, url, &resp); err != nil {
		return false, fmt.Errorf("neg-risk check: %w", err)
	}
	return resp.NegRisk, nil
}

// clobOpenOrderToLiveOrder converts a CLOB API order to our domain type.
// Sizes come back as plain share counts, prices as decimal strings.
func clobOpenOrderToLiveOrder(o clobOpenOrder) domain.LiveOrder {
	status := domain.LiveStatusOpen
	upper := strings.ToUpper(o.Status)
	switch {
	case strings.Contains(upper, "MATCHED"):
		status = domain.LiveStatusFilled
	case strings.Contains(upper, "CANCEL") || strings.Contains(upper, "INVALID"):
		status = domain.LiveStatusCancelled
	}

	return domain.LiveOrder{
		CLOBOrderID: o.ID,
		ConditionID: o.Market,
		TokenID:     o.AssetID,
		Side:        strings.ToUpper(o.Side),
		Price:       parseFloat(o.Price),
		Size:        parseFloat(o.OriginalSize),
		FilledSize:  parseFloat(o.SizeMatched),
		Status:      status,
		PlacedAt:    parseTimestamp(o.CreatedAt),
		Outcome:     o.Outcome,
	}
}

// parseUSDC converts a micro-USDC string (e.g., "1000000") to USDC float.
func parseUSDC(s string) float64 {
	if s == "" {
		return 0
	}
	n := new(big.Int)
	n.SetString(s, 10)
	f, _ := new(big.Float).SetInt(n).Float64()
	return f / 1_000_000
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	var f float64
	fmt.Sscanf(s, "%f", &f)
	return f
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	// Unix seconds or milliseconds; the CLOB mixes both with ISO strings.
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		if ts > 1e12 {
			return time.UnixMilli(ts).UTC()
		}
		return time.Unix(ts, 0).UTC()
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
