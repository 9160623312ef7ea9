package domain

import "time"

// LiveOrderStatus represents the lifecycle of a real order on the CLOB.
type LiveOrderStatus string

const (
	LiveStatusOpen      LiveOrderStatus = "OPEN"
	LiveStatusFilled    LiveOrderStatus = "FILLED"
	LiveStatusCancelled LiveOrderStatus = "CANCELLED"
)

// LiveOrder is a real order resting on the CLOB.
type LiveOrder struct {
	CLOBOrderID string // Polymarket order hash (0x...)
	ConditionID string
	TokenID     string
	Side        string // "BUY" or "SELL"
	Price       float64
	Size        float64 // shares
	FilledSize  float64 // shares filled so far
	Status      LiveOrderStatus
	PlacedAt    time.Time
	Outcome     string // "Yes" or "No"
}

// PlaceOrderRequest is sent to the CLOB order executor.
type PlaceOrderRequest struct {
	TokenID string
	Side    string // "BUY" or "SELL"
	Price   float64
	Size    float64 // USDC for BUY, shares for SELL
	NegRisk bool
}

// PlacedOrder is the response from the CLOB after placing an order.
type PlacedOrder struct {
	CLOBOrderID string
	Status      string
	TakenAmount float64 // immediately filled (taker portion)
	MadeAmount  float64 // resting in book (maker portion)
}
