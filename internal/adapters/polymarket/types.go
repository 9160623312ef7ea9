package polymarket

import "encoding/json"

// DTOs raw de la API de Polymarket. Solo se usan dentro de este paquete.
// La conversión a domain entities se hace en mapping.go.

// --- CLOB auth ---

// apiCredsResponse es la respuesta de GET /auth/derive-api-key y
// POST /auth/api-key.
type apiCredsResponse struct {
	APIKey     string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

// apiErrorBody es el body de error que devuelve el CLOB en los 4xx.
// Según el endpoint usa "error" o "message".
type apiErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// --- CLOB trading ---

// clobBalanceResponse es la respuesta de GET /balance-allowance.
// Los importes vienen en micro-USDC como strings.
type clobBalanceResponse struct {
	Balance    string            `json:"balance"`
	Allowances map[string]string `json:"allowances"`
}

// clobOrderRequest es el body de POST /order.
type clobOrderRequest struct {
	Order     clobOrderBody `json:"order"`
	Owner     string        `json:"owner"`
	OrderType string        `json:"orderType"`
}

type clobOrderBody struct {
	Salt          json.Number `json:"salt"`
	Maker         string      `json:"maker"`
	Signer        string      `json:"signer"`
	Taker         string      `json:"taker"`
	TokenID       string      `json:"tokenId"`
	MakerAmount   string      `json:"makerAmount"`
	TakerAmount   string      `json:"takerAmount"`
	Expiration    string      `json:"expiration"`
	Nonce         string      `json:"nonce"`
	FeeRateBps    string      `json:"feeRateBps"`
	Side          string      `json:"side"`
	SignatureType int         `json:"signatureType"`
	Signature     string      `json:"signature"`
}

type clobOrderResponse struct {
	ErrorMsg     string `json:"errorMsg"`
	OrderID      string `json:"orderID"`
	TakingAmount string `json:"takingAmount"`
	MakingAmount string `json:"makingAmount"`
	Status       string `json:"status"`
	Success      bool   `json:"success"`
}

// clobOpenOrder es una orden viva tal y como la devuelve GET /orders.
type clobOpenOrder struct {
	ID           string `json:"id"`
	AssetID      string `json:"asset_id"`
	Market       string `json:"market"`
	Side         string `json:"side"`
	OriginalSize string `json:"original_size"`
	SizeMatched  string `json:"size_matched"`
	Price        string `json:"price"`
	Status       string `json:"status"`
	CreatedAt    string `json:"created_at"`
	Outcome      string `json:"outcome"`
}

type clobOrdersResponse struct {
	Data       []clobOpenOrder `json:"data"`
	NextCursor string          `json:"next_cursor"`
}

type clobNegRiskResponse struct {
	NegRisk bool `json:"neg_risk"`
}

// --- Gamma API ---

// gammaMarketsResponse es la respuesta de GET /markets de Gamma.
type gammaMarketsResponse []gammaMarket

// gammaMarket contiene la metadata enriquecida de un mercado.
// Gamma devuelve los token IDs y outcomes como strings JSON anidados,
// y algunos números como strings; usamos json.Number.
type gammaMarket struct {
	ConditionID  string      `json:"conditionId"`
	Question     string      `json:"question"`
	Slug         string      `json:"slug"`
	EndDateISO   string      `json:"endDateIso"`
	Volume24h    json.Number `json:"volume24hr"`
	ClobTokenIDs string      `json:"clobTokenIds"`
	Outcomes     string      `json:"outcomes"`
	NegRisk      bool        `json:"negRisk"`
	Active       bool        `json:"active"`
	Closed       bool        `json:"closed"`
}
