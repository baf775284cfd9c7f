package model

import "github.com/shopspring/decimal"

// Position is one row of a point-in-time portfolio snapshot.
type Position struct {
	Symbol        string          `json:"symbol"`
	ConID         int64           `json:"conId,omitempty"`
	Position      decimal.Decimal `json:"position"`
	MarketPrice   decimal.Decimal `json:"marketPrice"`
	MarketValue   decimal.Decimal `json:"marketValue"`
	AverageCost   decimal.Decimal `json:"averageCost"`
	UnrealizedPNL decimal.Decimal `json:"unrealizedPNL"`
	RealizedPNL   decimal.Decimal `json:"realizedPNL"`
	Account       string          `json:"accountName,omitempty"`
}
