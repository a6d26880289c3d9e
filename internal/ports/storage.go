package ports

import (
	"context"
	"errors"
	"time"

	"github.com/alejandrodnm/lotbot/internal/domain"
)

var (
	// ErrNotFound: el lote no existe.
	ErrNotFound = errors.New("storage: lot not found")
	// ErrStatusConflict: el lote ya no está en el status esperado (otro escritor se adelantó).
	ErrStatusConflict = errors.New("storage: lot status changed concurrently")
	// ErrInvalidTransition: la transición no existe en el grafo de estados.
	ErrInvalidTransition = errors.New("storage: invalid status transition")
)

// LotStore persiste lotes, estadísticas por categoría y resúmenes de ciclo.
// Todas las escrituras son por lote o por batch de estadísticas: nunca a nivel ciclo.
type LotStore interface {
	// UpsertSnapshot inserta el lote en su primer avistamiento o sobreescribe
	// solo los campos volátiles (puja, tiempo, last_seen, url/imagen).
	UpsertSnapshot(ctx context.Context, lot domain.Lot) error

	// RecordFinalPrice, SetClassification y SetValuation guardan hechos aportados
	// por colaboradores externos; no cambian el status.
	RecordFinalPrice(ctx context.Context, lotID string, price float64) error
	SetClassification(ctx context.Context, c domain.Classification) error
	SetValuation(ctx context.Context, v domain.Valuation) error

	GetLot(ctx context.Context, lotID string) (domain.Lot, error)
	LotsByStatus(ctx context.Context, statuses ...domain.Status) ([]domain.Lot, error)

	// CommitTransition mueve un lote de from a to si sigue en from.
	// Al salir de pending limpia velocity/edge_score/max_bid en la misma sentencia.
	CommitTransition(ctx context.Context, lotID string, from, to domain.Status, at time.Time) error

	// UpdateSignals escribe las señales derivadas, solo si el lote sigue pending.
	UpdateSignals(ctx context.Context, lotID string, s domain.Signals) error

	// ReplaceCategoryStats lee todos los sold_history, aplica compute y reemplaza
	// la tabla completa en una sola transacción, sellando updated_at con at.
	// Devuelve cuántas categorías quedaron.
	ReplaceCategoryStats(ctx context.Context, at time.Time, compute func(sold []domain.Lot) []domain.CategoryStats) (int, error)
	CategoryStats(ctx context.Context) ([]domain.CategoryStats, error)

	SaveCycle(ctx context.Context, c domain.CycleSummary) error

	Close() error
}

// LotMaintenance son las acciones explícitas del operador.
type LotMaintenance interface {
	// Transition aplica una transición externa (won, archived) validada contra el grafo.
	Transition(ctx context.Context, lotID string, to domain.Status, at time.Time) error
	// PurgeArchived borra definitivamente los lotes archived. Devuelve cuántos.
	PurgeArchived(ctx context.Context) (int64, error)
}
