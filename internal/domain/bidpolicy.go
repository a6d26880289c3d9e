package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ProfitBand identifica el tramo de beneficio exigido.
type ProfitBand string

const (
	BandLow  ProfitBand = "low"
	BandMid  ProfitBand = "mid"
	BandHigh ProfitBand = "high"
)

// ProfitSchedule es la tabla de beneficio mínimo por tramo de valor.
// Las fronteras usan "<": un valor igual al umbral cae en el tramo superior.
type ProfitSchedule struct {
	LowThreshold float64 // market_value < LowThreshold  → LowFlat
	LowFlat      float64
	MidThreshold float64 // market_value < MidThreshold  → MidFlat
	MidFlat      float64
	HighPercent  float64 // resto                        → HighPercent × market_value
}

// Band devuelve el tramo que corresponde a marketValue.
func (s ProfitSchedule) Band(marketValue float64) ProfitBand {
	switch {
	case marketValue < s.LowThreshold:
		return BandLow
	case marketValue < s.MidThreshold:
		return BandMid
	default:
		return BandHigh
	}
}

// RequiredProfit devuelve el beneficio exigido y el tramo aplicado.
func (s ProfitSchedule) RequiredProfit(marketValue float64) (float64, ProfitBand) {
	band := s.Band(marketValue)
	return s.profitFor(band, marketValue), band
}

func (s ProfitSchedule) profitFor(band ProfitBand, marketValue float64) float64 {
	switch band {
	case BandLow:
		return s.LowFlat
	case BandMid:
		return s.MidFlat
	default:
		return s.HighPercent * marketValue
	}
}

// LogisticsMode define cómo se estima el coste logístico de un lote.
type LogisticsMode string

const (
	LogisticsPickup   LogisticsMode = "pickup"
	LogisticsShipping LogisticsMode = "shipping"
	// LogisticsPerLot usa ShippingCost si el lote admite envío, si no PickupCost.
	LogisticsPerLot LogisticsMode = "per_lot"
)

// ParseLogisticsMode valida el modo configurado. No hay default: el modo es obligatorio.
func ParseLogisticsMode(s string) (LogisticsMode, error) {
	switch m := LogisticsMode(s); m {
	case LogisticsPickup, LogisticsShipping, LogisticsPerLot:
		return m, nil
	}
	return "", fmt.Errorf("domain.ParseLogisticsMode: unknown mode %q (want pickup|shipping|per_lot)", s)
}

// LogisticsConfig es el coste de recoger o enviar un lote.
type LogisticsConfig struct {
	Mode         LogisticsMode
	PickupCost   float64
	ShippingCost float64
}

// Cost devuelve el coste logístico para un lote.
func (c LogisticsConfig) Cost(shippingAvailable bool) float64 {
	switch c.Mode {
	case LogisticsShipping:
		return c.ShippingCost
	case LogisticsPerLot:
		if shippingAvailable {
			return c.ShippingCost
		}
		return c.PickupCost
	default:
		return c.PickupCost
	}
}

// PolicyConfig agrupa los parámetros económicos de la política de puja.
type PolicyConfig struct {
	Schedule           ProfitSchedule
	MarketplaceFeeRate float64 // fee del marketplace de reventa (ej. 0.13)
	TaxRate            float64
	HardBidCeiling     float64 // 0 = sin techo
	Logistics          LogisticsConfig
}

// BidInput son las entradas del calculador de puja máxima.
type BidInput struct {
	MarketValue        float64
	CurrentBid         float64
	BuyersPremium      float64
	LogisticsCost      float64
	TaxRate            float64
	MarketplaceFeeRate float64
	Schedule           ProfitSchedule
	HardBidCeiling     float64
}

// BidDecision es el resultado del calculador, con los pasos intermedios.
type BidDecision struct {
	Band           ProfitBand
	RequiredProfit float64
	NetRevenue     float64
	AllowableSpend float64
	MaxBid         float64
	Recommendation Recommendation
}

// InputFor arma el BidInput de un lote. ok=false si el lote no tiene market_value > 0.
func (c PolicyConfig) InputFor(lot Lot) (BidInput, bool) {
	if lot.MarketValue <= 0 {
		return BidInput{}, false
	}
	return BidInput{
		MarketValue:        lot.MarketValue,
		CurrentBid:         lot.CurrentBid,
		BuyersPremium:      lot.EffectiveBuyersPremium(),
		LogisticsCost:      c.Logistics.Cost(lot.ShippingAvailable),
		TaxRate:            c.TaxRate,
		MarketplaceFeeRate: c.MarketplaceFeeRate,
		Schedule:           c.Schedule,
		HardBidCeiling:     c.HardBidCeiling,
	}, true
}

// EvaluateBid calcula la puja máxima que respeta el beneficio exigido.
//
//	required_profit = tramo(market_value)
//	net_revenue     = market_value × (1 - fee)
//	allowable_spend = net_revenue - required_profit - logistics
//	max_bid         = allowable_spend / (1 + BP + tax), con techo HardBidCeiling
//
// allowable_spend ≤ 0 da max_bid = 0 (lote no rentable a ningún precio).
// max_bid es monótono dentro de cada tramo; al cruzar una frontera puede bajar
// si el beneficio exigido salta más de lo que sube net_revenue.
// Función pura, sin I/O.
func EvaluateBid(in BidInput) BidDecision {
	d := BidDecision{Recommendation: RecommendIgnore}
	if in.MarketValue <= 0 {
		return d
	}

	d.RequiredProfit, d.Band = in.Schedule.RequiredProfit(in.MarketValue)
	d.NetRevenue = in.MarketValue * (1 - in.MarketplaceFeeRate)
	d.AllowableSpend = d.NetRevenue - d.RequiredProfit - in.LogisticsCost

	if d.AllowableSpend > 0 {
		if divisor := 1 + in.BuyersPremium + in.TaxRate; divisor > 0 {
			maxBid := d.AllowableSpend / divisor
			if in.HardBidCeiling > 0 && maxBid > in.HardBidCeiling {
				maxBid = in.HardBidCeiling
			}
			d.MaxBid = roundCents(maxBid)
		}
	}

	if in.CurrentBid < d.MaxBid {
		d.Recommendation = RecommendPursue
	}
	return d
}

func roundCents(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
