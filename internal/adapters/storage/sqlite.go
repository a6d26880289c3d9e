package storage

// sqlite.go — tabla compartida de lotes y estadísticas por categoría.
//
// Estrategia:
//   - `lots`: UNA fila por lot_id. El ingest hace UPSERT de campos volátiles;
//     título y status nunca se tocan desde el ingest.
//   - Transiciones con compare-and-set sobre el status previo: un lector nunca ve
//     un lote no-pending con edge_score, porque ambas columnas cambian en la misma sentencia.
//   - `category_stats`: se reemplaza completa dentro de una transacción.
//   - `cycles`: resumen ligero por ciclo, prune automático a los 30 días.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alejandrodnm/lotbot/internal/domain"
	"github.com/alejandrodnm/lotbot/internal/ports"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS lots (
    lot_id             TEXT PRIMARY KEY,
    title              TEXT    NOT NULL DEFAULT '',
    url                TEXT    NOT NULL DEFAULT '',
    image_url          TEXT    NOT NULL DEFAULT '',
    current_bid        REAL    NOT NULL DEFAULT 0,
    bid_count          INTEGER,
    time_remaining     TEXT    NOT NULL DEFAULT '',
    minutes_left       INTEGER,               -- NULL = indeterminado
    status             TEXT    NOT NULL DEFAULT 'pending',
    market_value       REAL    NOT NULL DEFAULT 0,
    predicted_value    REAL    NOT NULL DEFAULT 0,
    predicted_category TEXT,
    confidence         REAL    NOT NULL DEFAULT 0,
    velocity           REAL,
    edge_score         REAL,
    max_bid            REAL,
    recommendation     TEXT,
    buyers_premium     REAL    NOT NULL DEFAULT 0.15,
    shipping_available INTEGER NOT NULL DEFAULT 0,
    final_price        REAL,
    first_seen         TEXT    NOT NULL,
    last_seen          TEXT    NOT NULL,
    ended_at           TEXT
);

CREATE TABLE IF NOT EXISTS category_stats (
    category      TEXT PRIMARY KEY,
    median_price  REAL    NOT NULL DEFAULT 0,
    avg_price     REAL    NOT NULL DEFAULT 0,
    avg_bid_count REAL    NOT NULL DEFAULT 0,
    total_sold    INTEGER NOT NULL DEFAULT 0,
    updated_at    TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS cycles (
    id               TEXT PRIMARY KEY,
    started_at       TEXT    NOT NULL,
    duration_ms      INTEGER NOT NULL DEFAULT 0,
    ingested         INTEGER NOT NULL DEFAULT 0,
    transitions      INTEGER NOT NULL DEFAULT 0,
    scored           INTEGER NOT NULL DEFAULT 0,
    alerts           INTEGER NOT NULL DEFAULT 0,
    persist_failures INTEGER NOT NULL DEFAULT 0,
    cancelled        INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_lots_status   ON lots(status);
CREATE INDEX IF NOT EXISTS idx_lots_edge     ON lots(edge_score DESC);
CREATE INDEX IF NOT EXISTS idx_lots_category ON lots(predicted_category);
CREATE INDEX IF NOT EXISTS idx_cycles_at     ON cycles(started_at DESC);
`

const retentionCycles = 30 * 24 * time.Hour

// Alias de los sentinels de ports, para que los callers del adapter no tengan que importar ports.
var (
	ErrNotFound          = ports.ErrNotFound
	ErrStatusConflict    = ports.ErrStatusConflict
	ErrInvalidTransition = ports.ErrInvalidTransition
)

const lotColumns = `lot_id, title, url, image_url, current_bid, bid_count, time_remaining,
	minutes_left, status, market_value, predicted_value, predicted_category, confidence,
	velocity, edge_score, max_bid, recommendation, buyers_premium, shipping_available,
	final_price, first_seen, last_seen, ended_at`

// SQLiteStorage implementa ports.LotStore y ports.LotMaintenance usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada y aplica el schema.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	// WAL deja leer al dashboard/exportador mientras el ciclo escribe.
	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: pragmas: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	s := &SQLiteStorage{db: db}
	s.pruneOld(context.Background())
	return s, nil
}

// UpsertSnapshot inserta o refresca un lote desde un listado normalizado.
func (s *SQLiteStorage) UpsertSnapshot(ctx context.Context, lot domain.Lot) error {
	if lot.LotID == "" {
		return fmt.Errorf("storage.UpsertSnapshot: empty lot_id")
	}
	shipping := 0
	if lot.ShippingAvailable {
		shipping = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lots
			(lot_id, title, url, image_url, current_bid, bid_count, time_remaining,
			 minutes_left, status, buyers_premium, shipping_available, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'pending', ?, ?, ?, ?)
		ON CONFLICT(lot_id) DO UPDATE SET
			title          = CASE WHEN lots.title = '' THEN excluded.title ELSE lots.title END,
			url            = CASE WHEN excluded.url <> '' THEN excluded.url ELSE lots.url END,
			image_url      = CASE WHEN excluded.image_url <> '' THEN excluded.image_url ELSE lots.image_url END,
			current_bid    = excluded.current_bid,
			bid_count      = excluded.bid_count,
			time_remaining = excluded.time_remaining,
			minutes_left   = excluded.minutes_left,
			last_seen      = excluded.last_seen
	`,
		lot.LotID, lot.Title, lot.URL, lot.ImageURL, lot.CurrentBid, nullInt(lot.BidCount),
		lot.TimeRemaining, nullInt(lot.MinutesLeft.Ptr()), lot.EffectiveBuyersPremium(), shipping,
		fmtTime(lot.LastSeen), fmtTime(lot.LastSeen),
	)
	if err != nil {
		return fmt.Errorf("storage.UpsertSnapshot: %s: %w", lot.LotID, err)
	}
	return nil
}

// RecordFinalPrice guarda el precio de cierre informado por el lookup externo.
func (s *SQLiteStorage) RecordFinalPrice(ctx context.Context, lotID string, price float64) error {
	return s.updateOne(ctx, "storage.RecordFinalPrice", lotID,
		`UPDATE lots SET final_price = ? WHERE lot_id = ?`, price, lotID)
}

// SetClassification guarda la categoría predicha y su confianza.
func (s *SQLiteStorage) SetClassification(ctx context.Context, c domain.Classification) error {
	var cat *string
	if v := strings.TrimSpace(c.PredictedCategory); v != "" {
		cat = &v
	}
	return s.updateOne(ctx, "storage.SetClassification", c.LotID,
		`UPDATE lots SET predicted_category = ?, confidence = ? WHERE lot_id = ?`,
		cat, c.Confidence, c.LotID)
}

// SetValuation guarda el valor de reventa estimado.
func (s *SQLiteStorage) SetValuation(ctx context.Context, v domain.Valuation) error {
	return s.updateOne(ctx, "storage.SetValuation", v.LotID,
		`UPDATE lots SET market_value = ?, predicted_value = ? WHERE lot_id = ?`,
		v.MarketValue, v.PredictedValue, v.LotID)
}

// GetLot devuelve un lote por id.
func (s *SQLiteStorage) GetLot(ctx context.Context, lotID string) (domain.Lot, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+lotColumns+` FROM lots WHERE lot_id = ?`, lotID)
	lot, err := scanLot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Lot{}, fmt.Errorf("storage.GetLot: %s: %w", lotID, ErrNotFound)
	}
	if err != nil {
		return domain.Lot{}, fmt.Errorf("storage.GetLot: %s: %w", lotID, err)
	}
	return lot, nil
}

// LotsByStatus devuelve los lotes en cualquiera de los status dados, ordenados por lot_id.
func (s *SQLiteStorage) LotsByStatus(ctx context.Context, statuses ...domain.Status) ([]domain.Lot, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	args := make([]any, len(statuses))
	for i, st := range statuses {
		args[i] = string(st)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(statuses)), ", ")

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+lotColumns+` FROM lots WHERE status IN (`+placeholders+`) ORDER BY lot_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("storage.LotsByStatus: query: %w", err)
	}
	defer rows.Close()

	var lots []domain.Lot
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.LotsByStatus: scan row: %w", err)
		}
		lots = append(lots, lot)
	}
	return lots, rows.Err()
}

// CommitTransition aplica from → to si el lote sigue en from.
func (s *SQLiteStorage) CommitTransition(ctx context.Context, lotID string, from, to domain.Status, at time.Time) error {
	if !domain.CanTransition(from, to) {
		return fmt.Errorf("storage.CommitTransition: %s %s→%s: %w", lotID, from, to, ErrInvalidTransition)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE lots SET
			status         = ?,
			velocity       = NULL,
			edge_score     = NULL,
			max_bid        = NULL,
			recommendation = NULL,
			ended_at       = CASE WHEN ? = 'ended' THEN COALESCE(ended_at, ?) ELSE ended_at END
		WHERE lot_id = ? AND status = ?`,
		string(to), string(to), fmtTime(at), lotID, string(from),
	)
	if err != nil {
		return fmt.Errorf("storage.CommitTransition: %s: %w", lotID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage.CommitTransition: %s: rows affected: %w", lotID, err)
	}
	if n == 0 {
		return fmt.Errorf("storage.CommitTransition: %s %s→%s: %w", lotID, from, to, ErrStatusConflict)
	}
	return nil
}

// Transition aplica una acción externa (won, archived) sobre el status actual del lote.
func (s *SQLiteStorage) Transition(ctx context.Context, lotID string, to domain.Status, at time.Time) error {
	lot, err := s.GetLot(ctx, lotID)
	if err != nil {
		return err
	}
	return s.CommitTransition(ctx, lotID, lot.Status, to, at)
}

// PurgeArchived borra los lotes archived. Es el único borrado físico.
func (s *SQLiteStorage) PurgeArchived(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM lots WHERE status = 'archived'`)
	if err != nil {
		return 0, fmt.Errorf("storage.PurgeArchived: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// UpdateSignals escribe velocity, edge_score y la decisión de puja de un lote pending.
func (s *SQLiteStorage) UpdateSignals(ctx context.Context, lotID string, sig domain.Signals) error {
	var rec *string
	if sig.Recommendation != "" {
		r := string(sig.Recommendation)
		rec = &r
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE lots SET velocity = ?, edge_score = ?, max_bid = ?, recommendation = ?
		WHERE lot_id = ? AND status = 'pending'`,
		nullFloat(sig.Velocity), nullFloat(sig.EdgeScore), nullFloat(sig.MaxBid), rec, lotID,
	)
	if err != nil {
		return fmt.Errorf("storage.UpdateSignals: %s: %w", lotID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("storage.UpdateSignals: %s: %w", lotID, ErrStatusConflict)
	}
	return nil
}

// ReplaceCategoryStats lee sold_history y reemplaza category_stats en una sola transacción,
// así un lector concurrente ve la tabla vieja o la nueva, nunca una mezcla.
// at es el instante del ciclo y queda como updated_at de cada fila.
func (s *SQLiteStorage) ReplaceCategoryStats(ctx context.Context, at time.Time, compute func(sold []domain.Lot) []domain.CategoryStats) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("storage.ReplaceCategoryStats: begin tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT `+lotColumns+` FROM lots WHERE status = 'sold_history'`)
	if err != nil {
		return 0, fmt.Errorf("storage.ReplaceCategoryStats: query: %w", err)
	}
	var sold []domain.Lot
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			rows.Close()
			return 0, fmt.Errorf("storage.ReplaceCategoryStats: scan row: %w", err)
		}
		sold = append(sold, lot)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("storage.ReplaceCategoryStats: rows: %w", err)
	}
	rows.Close()

	stats := compute(sold)

	if _, err := tx.ExecContext(ctx, `DELETE FROM category_stats`); err != nil {
		return 0, fmt.Errorf("storage.ReplaceCategoryStats: clear: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO category_stats (category, median_price, avg_price, avg_bid_count, total_sold, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("storage.ReplaceCategoryStats: prepare: %w", err)
	}
	defer stmt.Close()

	now := fmtTime(at)
	for _, st := range stats {
		if st.Category == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx,
			st.Category, st.MedianPrice, st.AvgPrice, st.AvgBidCount, st.TotalSold, now,
		); err != nil {
			return 0, fmt.Errorf("storage.ReplaceCategoryStats: insert %s: %w", st.Category, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("storage.ReplaceCategoryStats: commit: %w", err)
	}
	return len(stats), nil
}

// CategoryStats devuelve la tabla de estadísticas ordenada por categoría.
func (s *SQLiteStorage) CategoryStats(ctx context.Context) ([]domain.CategoryStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category, median_price, avg_price, avg_bid_count, total_sold, updated_at
		FROM category_stats ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("storage.CategoryStats: query: %w", err)
	}
	defer rows.Close()

	var out []domain.CategoryStats
	for rows.Next() {
		var st domain.CategoryStats
		var updated string
		if err := rows.Scan(&st.Category, &st.MedianPrice, &st.AvgPrice, &st.AvgBidCount, &st.TotalSold, &updated); err != nil {
			return nil, fmt.Errorf("storage.CategoryStats: scan row: %w", err)
		}
		st.UpdatedAt = parseTime(updated)
		out = append(out, st)
	}
	return out, rows.Err()
}

// SaveCycle persiste el resumen de un ciclo.
func (s *SQLiteStorage) SaveCycle(ctx context.Context, c domain.CycleSummary) error {
	cancelled := 0
	if c.Cancelled {
		cancelled = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cycles (id, started_at, duration_ms, ingested, transitions, scored, alerts, persist_failures, cancelled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, fmtTime(c.StartedAt), c.Duration.Milliseconds(), c.Ingested, c.Transitions,
		c.Scored, c.Alerts, c.PersistFailures, cancelled,
	)
	if err != nil {
		return fmt.Errorf("storage.SaveCycle: %w", err)
	}
	return nil
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- helpers internos ---

func (s *SQLiteStorage) updateOne(ctx context.Context, op, lotID, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %s: %w", op, lotID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %s: %w", op, lotID, ErrNotFound)
	}
	return nil
}

// pruneOld elimina resúmenes de ciclo antiguos. Los lotes solo se borran con PurgeArchived.
func (s *SQLiteStorage) pruneOld(ctx context.Context) {
	cutoff := fmtTime(time.Now().Add(-retentionCycles))
	s.db.ExecContext(ctx, `DELETE FROM cycles WHERE started_at < ?`, cutoff)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLot(r rowScanner) (domain.Lot, error) {
	var (
		lot                               domain.Lot
		status                            string
		bidCount, minutesLeft             sql.NullInt64
		category, recommendation, endedAt sql.NullString
		velocity, edge, maxBid, final     sql.NullFloat64
		shipping                          int
		firstSeen, lastSeen               string
	)
	if err := r.Scan(
		&lot.LotID, &lot.Title, &lot.URL, &lot.ImageURL, &lot.CurrentBid, &bidCount,
		&lot.TimeRemaining, &minutesLeft, &status, &lot.MarketValue, &lot.PredictedValue,
		&category, &lot.Confidence, &velocity, &edge, &maxBid, &recommendation,
		&lot.BuyersPremium, &shipping, &final, &firstSeen, &lastSeen, &endedAt,
	); err != nil {
		return domain.Lot{}, err
	}

	st, err := domain.ParseStatus(status)
	if err != nil {
		return domain.Lot{}, err
	}
	lot.Status = st
	if bidCount.Valid {
		lot.BidCount = domain.Int(int(bidCount.Int64))
	}
	if minutesLeft.Valid {
		lot.MinutesLeft = domain.Minutes(int(minutesLeft.Int64))
	} else {
		lot.MinutesLeft = domain.Indeterminate()
	}
	lot.PredictedCategory = category.String
	lot.Recommendation = domain.Recommendation(recommendation.String)
	lot.Velocity = floatPtr(velocity)
	lot.EdgeScore = floatPtr(edge)
	lot.MaxBid = floatPtr(maxBid)
	lot.FinalPrice = floatPtr(final)
	lot.ShippingAvailable = shipping == 1
	lot.FirstSeen = parseTime(firstSeen)
	lot.LastSeen = parseTime(lastSeen)
	if endedAt.Valid {
		t := parseTime(endedAt.String)
		lot.EndedAt = &t
	}
	return lot, nil
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullInt(p *int) any {
	if p == nil {
		return nil
	}
	return int64(*p)
}

func nullFloat(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return domain.Float(v.Float64)
}
