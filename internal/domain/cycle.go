package domain

import "time"

// Signals son los campos derivados que el ciclo escribe sobre un lote pending.
type Signals struct {
	Velocity       *float64
	EdgeScore      *float64
	MaxBid         *float64
	Recommendation Recommendation
}

// CycleSummary es el resumen persistido de un ciclo.
type CycleSummary struct {
	ID              string
	StartedAt       time.Time
	Duration        time.Duration
	Ingested        int
	Transitions     int
	Scored          int
	Alerts          int
	PersistFailures int
	Cancelled       bool
}
