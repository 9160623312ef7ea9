package polymarket

// clob.go — endpoints REST del CLOB que no son de trading.

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

const timePath = "/time"

// ServerTime devuelve el reloj del servidor CLOB en segundos Unix.
// Es el endpoint más barato de la API y no requiere auth, así que
// sirve como health check de conectividad.
func (c *Client) ServerTime(ctx context.Context) (int64, error) {
	var ts int64
	if err := c.getJSON(ctx, c.clobLimiter, c.clobBase+timePath, &ts); err != nil {
		return 0, fmt.Errorf("clob.ServerTime: %w", err)
	}
	return ts, nil
}

// GetBalanceAllowance devuelve el balance de colateral (USDC) disponible
// para trading, ya convertido de micro-USDC a USDC.
// Requiere un signing context negociado: el path se firma con query incluida.
func (ac *AuthClient) GetBalanceAllowance(ctx context.Context) (decimal.Decimal, error) {
	sigType, _ := ac.authCtx.AuthMode()
	path := balanceAllowancePath(sigType)

	var resp clobBalanceResponse
	if err := ac.doL2(ctx, "GET", path, nil, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("clob.GetBalanceAllowance: %w", err)
	}

	bal, err := decimal.NewFromString(resp.Balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("clob.GetBalanceAllowance: parse balance %q: %w", resp.Balance, err)
	}
	// La API devuelve micro-USDC (6 decimales).
	return bal.Shift(-6), nil
}
