// Package cycle orquesta un ciclo batch completo: ingesta, lifecycle,
// estadísticas por categoría, señales, ranking y alertas.
package cycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/lotbot/internal/domain"
	"github.com/alejandrodnm/lotbot/internal/ports"
	"github.com/google/uuid"
)

// Pasos del ciclo, usados como label de fallos de persistencia.
const (
	StepUpsert        = "upsert"
	StepFacts         = "facts"
	StepLifecycle     = "lifecycle"
	StepCategoryStats = "category_stats"
	StepSignals       = "signals"
	StepAlert         = "alert"
	StepSummary       = "summary"
)

// Config contiene la configuración del loop.
type Config struct {
	Interval time.Duration
	Once     bool
}

// DefaultConfig devuelve una configuración sensata para producción.
func DefaultConfig() Config {
	return Config{Interval: 15 * time.Minute}
}

// Result es lo que produce un ciclo.
type Result struct {
	Summary domain.CycleSummary
	Ranked  []domain.Lot // lotes pending con score, ya ordenados
	Alerted []domain.Lot // prefijo de Ranked que superó el umbral
}

// Runner es el orquestador del ciclo.
type Runner struct {
	cfg     Config
	store   ports.LotStore
	feed    ports.Feed
	alerter ports.Alerter
	metrics ports.Metrics
	tuning  ports.TuningSource
	now     func() time.Time
}

// New crea un Runner con todas las dependencias inyectadas. metrics puede ser nil.
func New(
	cfg Config,
	store ports.LotStore,
	feed ports.Feed,
	alerter ports.Alerter,
	metrics ports.Metrics,
	tuning ports.TuningSource,
) *Runner {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Runner{
		cfg:     cfg,
		store:   store,
		feed:    feed,
		alerter: alerter,
		metrics: metrics,
		tuning:  tuning,
		now:     time.Now,
	}
}

// WithClock reemplaza el reloj del runner. Pensado para tests.
func (r *Runner) WithClock(now func() time.Time) *Runner {
	r.now = now
	return r
}

// Run ejecuta ciclos hasta que el contexto se cancele.
// Si cfg.Once está activo, solo ejecuta un ciclo.
func (r *Runner) Run(ctx context.Context) error {
	slog.Info("lotbot starting", "interval", r.cfg.Interval, "once", r.cfg.Once)

	if err := r.runCycle(ctx); err != nil {
		if r.cfg.Once {
			return err
		}
	}
	if r.cfg.Once {
		return nil
	}

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("lotbot stopped")
			return nil
		case <-ticker.C:
			_ = r.runCycle(ctx)
		}
	}
}

// RunOnce ejecuta exactamente un ciclo. Ante cancelación devuelve el Result
// parcial (Summary.Cancelled=true) junto con el error del contexto.
func (r *Runner) RunOnce(ctx context.Context) (Result, error) {
	return r.cycle(ctx)
}

// runCycle ejecuta un ciclo y loguea el resultado.
func (r *Runner) runCycle(ctx context.Context) error {
	res, err := r.cycle(ctx)
	switch {
	case errors.Is(err, context.Canceled):
		slog.Info("cycle cancelled", "cycle", res.Summary.ID)
		return err
	case err != nil:
		slog.Error("cycle failed", "err", err)
		return err
	}

	s := res.Summary
	slog.Info("cycle complete",
		"cycle", s.ID,
		"ingested", s.Ingested,
		"transitions", s.Transitions,
		"scored", s.Scored,
		"alerts", s.Alerts,
		"persist_failures", s.PersistFailures,
		"duration", s.Duration.Round(time.Millisecond),
	)
	return nil
}

// cycle hace pull → upsert → lifecycle → stats → señales → rank → alert → summary.
func (r *Runner) cycle(ctx context.Context) (Result, error) {
	start := r.now()
	tuning := r.tuning.Tuning()
	res := Result{Summary: domain.CycleSummary{ID: uuid.NewString(), StartedAt: start}}
	sum := &res.Summary

	batch, err := r.feed.Pull(ctx, sum.ID)
	if err != nil {
		return res, fmt.Errorf("cycle.cycle: pull feed: %w", err)
	}

	err = r.ingest(ctx, batch, start, sum)
	if err == nil {
		// Sólo se confirma un batch aplicado entero; si no, el feed lo reentrega.
		if aerr := r.feed.Ack(context.WithoutCancel(ctx), sum.ID); aerr != nil {
			slog.Warn("feed ack failed, batch will be redelivered", "cycle", sum.ID, "err", aerr)
		}
		err = r.advance(ctx, start, tuning.Lifecycle, sum)
	}
	if err == nil {
		r.refreshCategoryStats(ctx, start, sum)
		res.Ranked, err = r.score(ctx, tuning, sum)
	}
	if err == nil {
		res.Alerted = domain.AboveThreshold(res.Ranked, tuning.Alert.Threshold, tuning.Alert.Top)
		sum.Alerts = len(res.Alerted)
		if aerr := r.alerter.Alert(ctx, res.Alerted); aerr != nil {
			slog.Warn("alerter error", "err", aerr)
		}
	}

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return res, err
	}
	sum.Cancelled = err != nil
	sum.Duration = r.now().Sub(start)

	// El resumen se guarda aunque el ciclo se haya cancelado.
	persistCtx := context.WithoutCancel(ctx)
	if serr := r.store.SaveCycle(persistCtx, *sum); serr != nil {
		slog.Warn("storage error", "step", StepSummary, "err", serr)
		r.metrics.PersistFailure(StepSummary)
	}
	if pending, perr := r.store.LotsByStatus(persistCtx, domain.StatusPending); perr == nil {
		r.metrics.CycleCompleted(sum.Duration, len(pending))
	}
	return res, err
}

// ingest normaliza y persiste cada snapshot y aplica los hechos externos.
// Cada escritura es independiente: un fallo se loguea y se salta el lote.
func (r *Runner) ingest(ctx context.Context, b domain.FeedBatch, now time.Time, sum *domain.CycleSummary) error {
	for _, snap := range b.Snapshots {
		if err := ctx.Err(); err != nil {
			return err
		}
		lot := domain.Normalize(snap, now)
		if lot.LotID == "" {
			slog.Warn("snapshot without lot_id skipped", "title", lot.Title)
			continue
		}
		if err := r.store.UpsertSnapshot(ctx, lot); err != nil {
			r.failure(sum, StepUpsert, lot.LotID, err)
			continue
		}
		sum.Ingested++
		r.metrics.LotIngested()
	}

	for _, fp := range b.FinalPrices {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.store.RecordFinalPrice(ctx, fp.LotID, fp.FinalPrice); err != nil {
			r.failure(sum, StepFacts, fp.LotID, err)
		}
	}
	for _, c := range b.Classifications {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.store.SetClassification(ctx, c); err != nil {
			r.failure(sum, StepFacts, c.LotID, err)
		}
	}
	for _, v := range b.Valuations {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.store.SetValuation(ctx, v); err != nil {
			r.failure(sum, StepFacts, v.LotID, err)
		}
	}
	return nil
}

// advance aplica las transiciones automáticas a los lotes pending y ended,
// persistiendo cada arista por separado.
func (r *Runner) advance(ctx context.Context, now time.Time, cfg domain.LifecycleConfig, sum *domain.CycleSummary) error {
	lots, err := r.store.LotsByStatus(ctx, domain.StatusPending, domain.StatusEnded)
	if err != nil {
		return fmt.Errorf("cycle.advance: %w", err)
	}

	for _, lot := range lots {
		from := lot.Status
		for _, to := range domain.Path(lot, now, cfg) {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := r.store.CommitTransition(ctx, lot.LotID, from, to, now); err != nil {
				r.failure(sum, StepLifecycle, lot.LotID, err)
				break
			}
			slog.Debug("lot transition", "lot", lot.LotID, "from", from, "to", to)
			sum.Transitions++
			r.metrics.Transition(from, to)
			from = to
		}
	}
	return nil
}

func (r *Runner) refreshCategoryStats(ctx context.Context, now time.Time, sum *domain.CycleSummary) {
	n, err := r.store.ReplaceCategoryStats(ctx, now, domain.ComputeCategoryStats)
	if err != nil {
		r.failure(sum, StepCategoryStats, "", err)
		return
	}
	slog.Debug("category stats refreshed", "categories", n)
}

// score calcula velocity, edge score y puja máxima de cada lote pending, los
// persiste y devuelve los que quedaron con score, ordenados por ranking.
func (r *Runner) score(ctx context.Context, t domain.Tuning, sum *domain.CycleSummary) ([]domain.Lot, error) {
	lots, err := r.store.LotsByStatus(ctx, domain.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("cycle.score: %w", err)
	}

	scored := make([]domain.Lot, 0, len(lots))
	for _, lot := range lots {
		if err := ctx.Err(); err != nil {
			return domain.Rank(scored), err
		}

		lot = applySignals(lot, t)
		sig := domain.Signals{
			Velocity:       lot.Velocity,
			EdgeScore:      lot.EdgeScore,
			MaxBid:         lot.MaxBid,
			Recommendation: lot.Recommendation,
		}
		if err := r.store.UpdateSignals(ctx, lot.LotID, sig); err != nil {
			// Otro escritor (won/archived) se adelantó: no es un fallo.
			if errors.Is(err, ports.ErrStatusConflict) {
				slog.Debug("lot left pending mid-cycle", "lot", lot.LotID)
				continue
			}
			r.failure(sum, StepSignals, lot.LotID, err)
			continue
		}
		if lot.EdgeScore != nil {
			sum.Scored++
			scored = append(scored, lot)
		}
	}
	return domain.Rank(scored), nil
}

// applySignals deriva las señales de un lote pending con el tuning vigente.
func applySignals(lot domain.Lot, t domain.Tuning) domain.Lot {
	lot.Velocity, lot.EdgeScore, lot.MaxBid, lot.Recommendation = nil, nil, nil, ""

	if v, ok := domain.Velocity(lot.BidCount, lot.MinutesLeft); ok {
		lot.Velocity = domain.Float(v)
	}
	if s, ok := domain.EdgeScore(lot, t.Score); ok {
		lot.EdgeScore = domain.Float(s)
	}
	if in, ok := t.Policy.InputFor(lot); ok {
		d := domain.EvaluateBid(in)
		lot.MaxBid = domain.Float(d.MaxBid)
		lot.Recommendation = d.Recommendation
	}
	return lot
}

func (r *Runner) failure(sum *domain.CycleSummary, step, lotID string, err error) {
	sum.PersistFailures++
	r.metrics.PersistFailure(step)
	slog.Warn("storage error, skipping", "step", step, "lot", lotID, "err", err)
}

type nopMetrics struct{}

func (nopMetrics) LotIngested() {}
func (nopMetrics) Transition(_, _ domain.Status) {}
func (nopMetrics) PersistFailure(string) {}
func (nopMetrics) CycleCompleted(time.Duration, int) {}
