package domain

import (
	"sort"
)

// Velocity calcula la velocidad de pujas: bid_count / (minutes_left + 1).
// El +1 evita dividir por cero con minutes_left = 0.
// ok=false si bid_count falta o el tiempo es indeterminado: la señal queda sin definir.
func Velocity(bidCount *int, minutes MinutesLeft) (float64, bool) {
	if bidCount == nil {
		return 0, false
	}
	m, ok := minutes.Value()
	if !ok || m < 0 {
		return 0, false
	}
	return float64(*bidCount) / float64(m+1), true
}

// ComputeCategoryStats recalcula desde cero las estadísticas por categoría a partir
// de los lotes sold_history. Categorías vacías o sin precios finales se omiten.
// El resultado sale ordenado por categoría.
func ComputeCategoryStats(sold []Lot) []CategoryStats {
	type acc struct {
		prices []float64
		bids   []int
	}
	byCat := make(map[string]*acc)

	for _, l := range sold {
		if l.Status != StatusSoldHistory || l.PredictedCategory == "" {
			continue
		}
		a, ok := byCat[l.PredictedCategory]
		if !ok {
			a = &acc{}
			byCat[l.PredictedCategory] = a
		}
		if l.FinalPrice != nil {
			a.prices = append(a.prices, *l.FinalPrice)
		}
		if l.BidCount != nil {
			a.bids = append(a.bids, *l.BidCount)
		}
	}

	stats := make([]CategoryStats, 0, len(byCat))
	for cat, a := range byCat {
		if len(a.prices) == 0 {
			continue
		}
		stats = append(stats, CategoryStats{
			Category:    cat,
			MedianPrice: Median(a.prices),
			AvgPrice:    mean(a.prices),
			AvgBidCount: meanInts(a.bids),
			TotalSold:   len(a.prices),
		})
	}

	sort.Slice(stats, func(i, j int) bool { return stats[i].Category < stats[j].Category })
	return stats
}

// Median devuelve la mediana (promedio de los dos centrales si n es par). 0 si vacío.
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func meanInts(values []int) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0
	for _, v := range values {
		sum += v
	}
	return float64(sum) / float64(len(values))
}
