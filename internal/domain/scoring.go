package domain

import (
	"sort"
)

// TimeTier es un escalón del bonus por cierre próximo: lotes con
// minutes_left ≤ MaxMinutes reciben Bonus.
type TimeTier struct {
	MaxMinutes int     `yaml:"max_minutes"`
	Bonus      float64 `yaml:"bonus"`
}

// ScoreConfig son los pesos y escalones del edge score.
type ScoreConfig struct {
	UndervalueWeight float64
	VelocityWeight   float64
	Tiers            []TimeTier
}

// ScoreBreakdown desglosa las tres componentes del edge score.
type ScoreBreakdown struct {
	Undervaluation float64
	Velocity       float64
	TimeBonus      float64
}

// Total suma las componentes.
func (b ScoreBreakdown) Total() float64 {
	return b.Undervaluation + b.Velocity + b.TimeBonus
}

// EdgeScore calcula el score de un lote pending con valor utilizable.
//
// Fórmula:
//
//	undervaluation = ((value - current_bid) / value) × W1
//	velocity       = velocity × W2   (0 si la velocidad no está definida)
//	time bonus     = escalón de minutes_left (0 si indeterminado)
//
// ok=false si el lote no es pending o no tiene market_value/predicted_value > 0.
func EdgeScore(lot Lot, cfg ScoreConfig) (float64, bool) {
	b, ok := ScoreComponents(lot, cfg)
	if !ok {
		return 0, false
	}
	return b.Total(), true
}

// ScoreComponents devuelve el desglose del edge score; mismas condiciones que EdgeScore.
func ScoreComponents(lot Lot, cfg ScoreConfig) (ScoreBreakdown, bool) {
	if lot.Status != StatusPending {
		return ScoreBreakdown{}, false
	}
	value, ok := lot.ValueEstimate()
	if !ok {
		return ScoreBreakdown{}, false
	}

	var b ScoreBreakdown
	b.Undervaluation = Undervaluation(value, lot.CurrentBid) * cfg.UndervalueWeight
	if lot.Velocity != nil {
		b.Velocity = *lot.Velocity * cfg.VelocityWeight
	}
	b.TimeBonus = TimeBonus(lot.MinutesLeft, cfg.Tiers)
	return b, true
}

// Undervaluation devuelve (value - bid) / value, o 0 si value ≤ 0.
func Undervaluation(value, currentBid float64) float64 {
	if value <= 0 {
		return 0
	}
	return (value - currentBid) / value
}

// TimeBonus devuelve el bonus del escalón más corto que contiene minutes.
// Los escalones se evalúan de menor a mayor MaxMinutes.
func TimeBonus(minutes MinutesLeft, tiers []TimeTier) float64 {
	m, ok := minutes.Value()
	if !ok {
		return 0
	}
	sorted := append([]TimeTier(nil), tiers...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MaxMinutes < sorted[j].MaxMinutes })
	for _, t := range sorted {
		if m <= t.MaxMinutes {
			return t.Bonus
		}
	}
	return 0
}

// Rank devuelve los lotes pending con edge score, ordenados por score descendente.
// Empates: primero el que cierra antes (minutes_left ascendente, indeterminado al final),
// y por último lot_id para que el orden sea estable entre ciclos.
func Rank(lots []Lot) []Lot {
	ranked := make([]Lot, 0, len(lots))
	for _, l := range lots {
		if l.Status == StatusPending && l.EdgeScore != nil {
			ranked = append(ranked, l)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if *a.EdgeScore != *b.EdgeScore {
			return *a.EdgeScore > *b.EdgeScore
		}
		if a.MinutesLeft.Less(b.MinutesLeft) != b.MinutesLeft.Less(a.MinutesLeft) {
			return a.MinutesLeft.Less(b.MinutesLeft)
		}
		return a.LotID < b.LotID
	})
	return ranked
}

// AboveThreshold filtra un ranking dejando los lotes con score > threshold (máx. limit, 0 = sin límite).
func AboveThreshold(ranked []Lot, threshold float64, limit int) []Lot {
	var out []Lot
	for _, l := range ranked {
		if l.EdgeScore == nil || *l.EdgeScore <= threshold {
			continue
		}
		out = append(out, l)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
