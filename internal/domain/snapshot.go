package domain

import (
	"strings"
	"time"
)

// Snapshot es un listado crudo tal como lo entrega el scraper.
type Snapshot struct {
	LotID             string   `json:"lot_id"`
	Title             string   `json:"title"`
	CurrentBid        float64  `json:"current_bid"`
	BidCount          *int     `json:"bid_count"`
	TimeRemaining     *string  `json:"time_remaining"`
	URL               string   `json:"url"`
	ImageURL          string   `json:"image_url"`
	BuyersPremium     *float64 `json:"buyers_premium,omitempty"`
	ShippingAvailable bool     `json:"shipping_available,omitempty"`
}

// Normalize convierte un Snapshot en un Lot canónico en estado pending.
// minutes_left se recalcula siempre desde el texto; el BP faltante vale 0.15.
func Normalize(s Snapshot, now time.Time) Lot {
	bp := DefaultBuyersPremium
	if s.BuyersPremium != nil && *s.BuyersPremium > 0 {
		bp = *s.BuyersPremium
	}

	var raw string
	if s.TimeRemaining != nil {
		raw = strings.TrimSpace(*s.TimeRemaining)
	}

	bid := s.CurrentBid
	if bid < 0 {
		bid = 0
	}

	return Lot{
		LotID:             strings.TrimSpace(s.LotID),
		Title:             strings.TrimSpace(s.Title),
		URL:               strings.TrimSpace(s.URL),
		ImageURL:          strings.TrimSpace(s.ImageURL),
		CurrentBid:        bid,
		BidCount:          s.BidCount,
		TimeRemaining:     raw,
		MinutesLeft:       ParseTimeRemaining(s.TimeRemaining),
		Status:            StatusPending,
		BuyersPremium:     bp,
		ShippingAvailable: s.ShippingAvailable,
		FirstSeen:         now,
		LastSeen:          now,
	}
}

// FinalPrice es el precio de cierre de un lote terminado, aportado por el lookup externo.
type FinalPrice struct {
	LotID      string  `json:"lot_id"`
	FinalPrice float64 `json:"final_price"`
}

// Classification es la categoría predicha por el clasificador de imágenes.
type Classification struct {
	LotID             string  `json:"lot_id"`
	PredictedCategory string  `json:"predicted_category"`
	Confidence        float64 `json:"confidence"`
}

// Valuation es la estimación de valor de reventa a partir de comparables.
type Valuation struct {
	LotID          string  `json:"lot_id"`
	MarketValue    float64 `json:"market_value"`
	PredictedValue float64 `json:"predicted_value,omitempty"`
}

// FeedBatch agrupa todo lo que los colaboradores externos dejaron para un ciclo.
type FeedBatch struct {
	Snapshots       []Snapshot
	FinalPrices     []FinalPrice
	Classifications []Classification
	Valuations      []Valuation
}

// Empty devuelve true si el batch no trae nada.
func (b FeedBatch) Empty() bool {
	return len(b.Snapshots) == 0 && len(b.FinalPrices) == 0 &&
		len(b.Classifications) == 0 && len(b.Valuations) == 0
}
