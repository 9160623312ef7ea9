package polymarket

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/alejandrodnm/polybridge/internal/domain"
)

// gammaToMarket convierte un gammaMarket DTO a domain.Market.
// Gamma serializa clobTokenIds y outcomes como JSON strings anidados
// (`"[\"123\",\"456\"]"`), así que hay que parsearlos en dos pasos.
func gammaToMarket(gm gammaMarket) (domain.Market, error) {
	var tokenIDs []string
	if err := json.Unmarshal([]byte(gm.ClobTokenIDs), &tokenIDs); err != nil {
		return domain.Market{}, fmt.Errorf("clobTokenIds %q: %w", gm.ClobTokenIDs, err)
	}
	if len(tokenIDs) < 2 {
		return domain.Market{}, fmt.Errorf("expected 2 token ids, got %d", len(tokenIDs))
	}

	var outcomes []string
	if err := json.Unmarshal([]byte(gm.Outcomes), &outcomes); err != nil {
		return domain.Market{}, fmt.Errorf("outcomes %q: %w", gm.Outcomes, err)
	}
	if len(outcomes) < 2 {
		return domain.Market{}, fmt.Errorf("expected 2 outcomes, got %d", len(outcomes))
	}

	m := domain.Market{
		ConditionID: gm.ConditionID,
		Question:    gm.Question,
		Slug:        gm.Slug,
		NegRisk:     gm.NegRisk,
		Active:      gm.Active,
		Closed:      gm.Closed,
	}

	for i := 0; i < 2; i++ {
		m.Tokens[i] = domain.Token{
			TokenID: tokenIDs[i],
			Outcome: outcomes[i],
		}
	}

	if v, err := gm.Volume24h.Float64(); err == nil {
		m.Volume24h = v
	}

	if gm.EndDateISO != "" {
		// Polymarket usa varios formatos; intentamos los más comunes
		for _, layout := range []string{
			time.RFC3339,
			"2006-01-02T15:04:05.000Z",
			"2006-01-02T15:04:05Z",
			"2006-01-02",
		} {
			if t, err := time.Parse(layout, gm.EndDateISO); err == nil {
				m.EndDate = t.UTC()
				break
			}
		}
	}

	return m, nil
}
