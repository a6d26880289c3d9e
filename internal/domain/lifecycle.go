package domain

import "time"

// LifecycleConfig controla las transiciones automáticas.
type LifecycleConfig struct {
	// StaleAfter: un lote pending con tiempo indeterminado y last_seen más
	// antiguo que esto pasa a ended.
	StaleAfter time.Duration
}

// transitions es el grafo completo de estados, incluidas las acciones externas
// (won, archived). Ningún estado vuelve a pending.
var transitions = map[Status][]Status{
	StatusPending: {StatusEnded, StatusWon, StatusArchived},
	StatusEnded:   {StatusSoldHistory, StatusArchived},
}

// CanTransition devuelve true si from → to es una arista válida del grafo.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Advance evalúa las transiciones automáticas de un lote en el instante now:
//
//	pending → ended        minutes_left ≤ 0, o indeterminado y last_seen > StaleAfter
//	ended   → sold_history final_price conocido
//
// Aplica reglas hasta el punto fijo, así que Advance(Advance(l)) == Advance(l).
// changed=false si el status no se mueve.
func Advance(lot Lot, now time.Time, cfg LifecycleConfig) (Status, bool) {
	path := Path(lot, now, cfg)
	if len(path) == 0 {
		return lot.Status, false
	}
	return path[len(path)-1], true
}

// Path devuelve los status que atraviesa el lote hasta el punto fijo, sin incluir
// el actual. Cada par consecutivo es una arista válida del grafo, así que el
// ciclo puede persistirlos uno a uno.
func Path(lot Lot, now time.Time, cfg LifecycleConfig) []Status {
	var path []Status
	status := lot.Status
	for {
		next, ok := step(lot, status, now, cfg)
		if !ok {
			return path
		}
		path = append(path, next)
		status = next
	}
}

func step(lot Lot, status Status, now time.Time, cfg LifecycleConfig) (Status, bool) {
	switch status {
	case StatusPending:
		if isExpired(lot, now, cfg) {
			return StatusEnded, true
		}
	case StatusEnded:
		if lot.FinalPrice != nil {
			return StatusSoldHistory, true
		}
	}
	return status, false
}

func isExpired(lot Lot, now time.Time, cfg LifecycleConfig) bool {
	if m, ok := lot.MinutesLeft.Value(); ok {
		return m <= 0
	}
	if cfg.StaleAfter <= 0 || lot.LastSeen.IsZero() {
		return false
	}
	return now.Sub(lot.LastSeen) > cfg.StaleAfter
}
