package domain

import "time"

// Market representa un mercado de predicción binario en Polymarket.
// Solo los campos que el bridge necesita para listar y operar.
type Market struct {
	ConditionID string
	Question    string
	Slug        string
	EndDate     time.Time // fecha de resolución
	Volume24h   float64   // volumen últimas 24h en USDC
	Tokens      [2]Token
	NegRisk     bool
	Active      bool
	Closed      bool
}

// Token es uno de los dos lados del mercado (YES/NO).
type Token struct {
	TokenID string
	Outcome string  // "Yes" | "No"
	Price   float64 // último precio del CLOB
}

// YesToken devuelve el token YES del mercado.
func (m Market) YesToken() Token {
	for _, t := range m.Tokens {
		if t.Outcome == "Yes" {
			return t
		}
	}
	return m.Tokens[0]
}

// NoToken devuelve el token NO del mercado.
func (m Market) NoToken() Token {
	for _, t := range m.Tokens {
		if t.Outcome == "No" {
			return t
		}
	}
	return m.Tokens[1]
}
