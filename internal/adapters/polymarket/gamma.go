package polymarket

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/polybridge/internal/domain"
)

const gammaMarketsPath = "/markets"

// ListMarkets devuelve los mercados abiertos ordenados por volumen 24h.
// limit acota cuántos pedir; 0 usa el máximo por página de Gamma.
func (c *Client) ListMarkets(ctx context.Context, limit int) ([]domain.Market, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	url := fmt.Sprintf("%s%s?closed=false&active=true&limit=%d&order=volume24hr&ascending=false",
		c.gammaBase, gammaMarketsPath, limit)

	var resp gammaMarketsResponse
	if err := c.getJSON(ctx, c.gammaLimiter, url, &resp); err != nil {
		return nil, fmt.Errorf("gamma.ListMarkets: %w", err)
	}

	markets := make([]domain.Market, 0, len(resp))
	for _, gm := range resp {
		m, err := gammaToMarket(gm)
		if err != nil {
			// Mercados con metadata rota se saltan, no tiran la lista entera
			slog.Debug("skipping unparseable gamma market", "condition_id", gm.ConditionID, "err", err)
			continue
		}
		markets = append(markets, m)
	}

	slog.Debug("gamma markets listed", "requested", limit, "returned", len(markets))
	return markets, nil
}
