package ports

import (
	"context"

	"github.com/alejandrodnm/polybridge/internal/domain"
)

// OrderExecutor places, cancels, and monitors real orders on the CLOB.
// Implementations must refuse nothing here — gating live trading is the
// caller's job via the LiveGate.
type OrderExecutor interface {
	// PlaceOrder signs and submits a limit order to the CLOB.
	PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (domain.PlacedOrder, error)

	// CancelOrder cancels a specific order by its CLOB order ID.
	CancelOrder(ctx context.Context, clobOrderID string) error

	// CancelAll cancels all open orders for this wallet.
	CancelAll(ctx context.Context) error

	// GetOpenOrders returns all currently open orders from the CLOB.
	GetOpenOrders(ctx context.Context) ([]domain.LiveOrder, error)

	// IsNegRisk returns true if the given token/market uses the NegRisk adapter.
	IsNegRisk(ctx context.Context, tokenID string) (bool, error)
}
