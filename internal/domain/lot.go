package domain

import (
	"fmt"
	"time"
)

// DefaultBuyersPremium es el buyer's premium que se asume cuando el listado no lo informa.
const DefaultBuyersPremium = 0.15

// Status es el estado del ciclo de vida de un lote.
type Status string

const (
	StatusPending     Status = "pending"
	StatusEnded       Status = "ended"
	StatusSoldHistory Status = "sold_history"
	StatusWon         Status = "won"
	StatusArchived    Status = "archived"
)

// ParseStatus valida un status leído de la base de datos o de la CLI.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusEnded, StatusSoldHistory, StatusWon, StatusArchived:
		return st, nil
	}
	return "", fmt.Errorf("domain.ParseStatus: unknown status %q", s)
}

// IsTerminal devuelve true para los estados de los que no se sale automáticamente.
func (s Status) IsTerminal() bool {
	return s == StatusSoldHistory || s == StatusWon || s == StatusArchived
}

// Recommendation es la acción sugerida por la política de puja.
type Recommendation string

const (
	RecommendPursue Recommendation = "pursue"
	RecommendIgnore Recommendation = "ignore"
)

// Lot es un lote de subasta seguido por el sistema.
type Lot struct {
	LotID    string
	Title    string
	URL      string
	ImageURL string

	// --- Campos volátiles (se sobreescriben en cada ingest) ---
	CurrentBid    float64
	BidCount      *int   // nil = el listado no informó pujas
	TimeRemaining string // texto crudo
	MinutesLeft   MinutesLeft

	Status Status

	// --- Colaboradores externos (valoración / clasificación) ---
	MarketValue       float64 // 0 = sin valorar
	PredictedValue    float64
	PredictedCategory string // "" = sin clasificar
	Confidence        float64

	// --- Señales derivadas, solo mientras Status == pending ---
	Velocity       *float64
	EdgeScore      *float64
	MaxBid         *float64
	Recommendation Recommendation

	BuyersPremium     float64
	ShippingAvailable bool
	FinalPrice        *float64

	FirstSeen time.Time
	LastSeen  time.Time
	EndedAt   *time.Time
}

// ValueEstimate devuelve el valor de reventa utilizable para el lote:
// market_value si existe, si no predicted_value. ok=false si ninguno es > 0.
func (l Lot) ValueEstimate() (float64, bool) {
	if l.MarketValue > 0 {
		return l.MarketValue, true
	}
	if l.PredictedValue > 0 {
		return l.PredictedValue, true
	}
	return 0, false
}

// EffectiveBuyersPremium devuelve el BP del lote, o el default si falta.
func (l Lot) EffectiveBuyersPremium() float64 {
	if l.BuyersPremium > 0 {
		return l.BuyersPremium
	}
	return DefaultBuyersPremium
}

// CategoryStats son las estadísticas históricas de venta de una categoría.
type CategoryStats struct {
	Category    string
	MedianPrice float64
	AvgPrice    float64
	AvgBidCount float64
	TotalSold   int
	UpdatedAt   time.Time
}

// Float y Int son helpers para construir campos opcionales.
func Float(v float64) *float64 { return &v }

func Int(v int) *int { return &v }
