package cycle_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alejandrodnm/lotbot/internal/adapters/feed"
	"github.com/alejandrodnm/lotbot/internal/adapters/storage"
	"github.com/alejandrodnm/lotbot/internal/cycle"
	"github.com/alejandrodnm/lotbot/internal/domain"
	"github.com/alejandrodnm/lotbot/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

// mockFeed reentrega el primer batch hasta que llega su Ack.
type mockFeed struct {
	batches []domain.FeedBatch
	pulled  []string
	acked   []string
	err     error
}

func (m *mockFeed) Pull(_ context.Context, cycleID string) (domain.FeedBatch, error) {
	m.pulled = append(m.pulled, cycleID)
	if m.err != nil {
		return domain.FeedBatch{}, m.err
	}
	if len(m.batches) == 0 {
		return domain.FeedBatch{}, nil
	}
	return m.batches[0], nil
}

func (m *mockFeed) Ack(_ context.Context, cycleID string) error {
	m.acked = append(m.acked, cycleID)
	if len(m.batches) > 0 {
		m.batches = m.batches[1:]
	}
	return nil
}

// cancelAfterPull cancela el ciclo apenas el feed entregó el batch.
type cancelAfterPull struct {
	ports.Feed
	cancel context.CancelFunc
}

func (c *cancelAfterPull) Pull(ctx context.Context, cycleID string) (domain.FeedBatch, error) {
	b, err := c.Feed.Pull(ctx, cycleID)
	c.cancel()
	return b, err
}

type mockAlerter struct {
	calls   int
	alerted []domain.Lot
	err     error
}

func (m *mockAlerter) Alert(_ context.Context, ranked []domain.Lot) error {
	m.calls++
	m.alerted = ranked
	return m.err
}

type mockMetrics struct {
	ingested    int
	transitions map[string]int
	failures    map[string]int
	cycles      int
	pending     int
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{transitions: map[string]int{}, failures: map[string]int{}}
}

func (m *mockMetrics) LotIngested() { m.ingested++ }
func (m *mockMetrics) Transition(from, to domain.Status) {
	m.transitions[string(from)+"→"+string(to)]++
}
func (m *mockMetrics) PersistFailure(step string) { m.failures[step]++ }
func (m *mockMetrics) CycleCompleted(_ time.Duration, pending int) {
	m.cycles++
	m.pending = pending
}

type staticTuning struct {
	t     domain.Tuning
	reads int
}

func (s *staticTuning) Tuning() domain.Tuning {
	s.reads++
	return s.t
}

// flakyStore falla las escrituras de los lotes indicados.
type flakyStore struct {
	*storage.SQLiteStorage
	failUpsert  map[string]bool
	failSignals map[string]bool
	conflict    map[string]bool
}

func (f *flakyStore) UpsertSnapshot(ctx context.Context, lot domain.Lot) error {
	if f.failUpsert[lot.LotID] {
		return errors.New("disk full")
	}
	return f.SQLiteStorage.UpsertSnapshot(ctx, lot)
}

func (f *flakyStore) UpdateSignals(ctx context.Context, lotID string, s domain.Signals) error {
	if f.failSignals[lotID] {
		return errors.New("disk full")
	}
	if f.conflict[lotID] {
		return ports.ErrStatusConflict
	}
	return f.SQLiteStorage.UpdateSignals(ctx, lotID, s)
}

// --- helpers ---

var t0 = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

func testTuning() domain.Tuning {
	return domain.Tuning{
		Lifecycle: domain.LifecycleConfig{StaleAfter: 6 * time.Hour},
		Score: domain.ScoreConfig{
			UndervalueWeight: 40,
			VelocityWeight:   10,
			Tiers: []domain.TimeTier{
				{MaxMinutes: 30, Bonus: 25},
				{MaxMinutes: 60, Bonus: 20},
				{MaxMinutes: 180, Bonus: 10},
			},
		},
		Policy: domain.PolicyConfig{
			Schedule: domain.ProfitSchedule{
				LowThreshold: 50, LowFlat: 15,
				MidThreshold: 200, MidFlat: 40,
				HighPercent: 0.25,
			},
			MarketplaceFeeRate: 0.13,
			TaxRate:            0.08,
			HardBidCeiling:     200,
			Logistics:          domain.LogisticsConfig{Mode: domain.LogisticsPickup, PickupCost: 15},
		},
		Alert: domain.AlertConfig{Threshold: 50, Top: 5},
	}
}

func snap(id, timeText string, bid float64, bids int) domain.Snapshot {
	return domain.Snapshot{
		LotID:         id,
		Title:         "lot " + id,
		CurrentBid:    bid,
		BidCount:      domain.Int(bids),
		TimeRemaining: &timeText,
		URL:           "https://auctions.example/lot/" + id,
	}
}

func firstBatch() domain.FeedBatch {
	return domain.FeedBatch{
		Snapshots: []domain.Snapshot{
			snap("A", "0m", 60, 9),
			snap("B", "20m", 30, 5),
			snap("C", "5h", 90, 2),
			snap("D", "1h", 10, 1),
			snap("E", "45m", 10, 0),
		},
		Classifications: []domain.Classification{{LotID: "A", PredictedCategory: "drill", Confidence: 0.9}},
		Valuations: []domain.Valuation{
			{LotID: "B", MarketValue: 300},
			{LotID: "C", MarketValue: 100},
			{LotID: "E", MarketValue: 200},
		},
	}
}

type fixture struct {
	store   *flakyStore
	feed    *mockFeed
	alerter *mockAlerter
	metrics *mockMetrics
	tuning  *staticTuning
	runner  *cycle.Runner
}

func newFixture(t *testing.T, batches ...domain.FeedBatch) *fixture {
	t.Helper()
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		store:   &flakyStore{SQLiteStorage: db},
		feed:    &mockFeed{batches: batches},
		alerter: &mockAlerter{},
		metrics: newMockMetrics(),
		tuning:  &staticTuning{t: testTuning()},
	}
	f.runner = cycle.New(cycle.Config{Once: true}, f.store, f.feed, f.alerter, f.metrics, f.tuning).
		WithClock(func() time.Time { return t0 })
	return f
}

// --- tests ---

func TestRunner_RunOnce_FullCycle(t *testing.T) {
	f := newFixture(t, firstBatch())
	ctx := context.Background()

	res, err := f.runner.RunOnce(ctx)
	require.NoError(t, err)

	s := res.Summary
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, []string{s.ID}, f.feed.pulled)
	assert.Equal(t, []string{s.ID}, f.feed.acked)
	assert.Equal(t, 5, s.Ingested)
	assert.Equal(t, 1, s.Transitions)
	assert.Equal(t, 3, s.Scored)
	assert.Equal(t, 2, s.Alerts)
	assert.Zero(t, s.PersistFailures)
	assert.False(t, s.Cancelled)

	// A cerró (0m) y quedó ended sin señales.
	a, err := f.store.GetLot(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusEnded, a.Status)
	assert.Nil(t, a.EdgeScore)
	assert.Nil(t, a.Velocity)

	// B: 0.9×40 + 5/21×10 + 25, puja máxima del ejemplo de 300.
	b, err := f.store.GetLot(ctx, "B")
	require.NoError(t, err)
	require.NotNil(t, b.EdgeScore)
	assert.InDelta(t, 36+50.0/21+25, *b.EdgeScore, 1e-9)
	require.NotNil(t, b.MaxBid)
	assert.Equal(t, 139.02, *b.MaxBid)
	assert.Equal(t, domain.RecommendPursue, b.Recommendation)

	// D no tiene valoración: velocity sí, score no.
	d, err := f.store.GetLot(ctx, "D")
	require.NoError(t, err)
	assert.NotNil(t, d.Velocity)
	assert.Nil(t, d.EdgeScore)
	assert.Nil(t, d.MaxBid)

	require.Len(t, res.Ranked, 3)
	ids := func(lots []domain.Lot) []string {
		var out []string
		for _, l := range lots {
			out = append(out, l.LotID)
		}
		return out
	}
	assert.Equal(t, []string{"B", "E", "C"}, ids(res.Ranked))
	assert.Equal(t, []string{"B", "E"}, ids(f.alerter.alerted))

	assert.Equal(t, 5, f.metrics.ingested)
	assert.Equal(t, 1, f.metrics.transitions["pending→ended"])
	assert.Equal(t, 1, f.metrics.cycles)
	assert.Equal(t, 4, f.metrics.pending)
}

func TestRunner_SecondCycleSellsAndRefreshesStats(t *testing.T) {
	second := domain.FeedBatch{FinalPrices: []domain.FinalPrice{{LotID: "A", FinalPrice: 80}}}
	f := newFixture(t, firstBatch(), second)
	ctx := context.Background()

	_, err := f.runner.RunOnce(ctx)
	require.NoError(t, err)
	res, err := f.runner.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Summary.Transitions)

	a, err := f.store.GetLot(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSoldHistory, a.Status)

	stats, err := f.store.CategoryStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, "drill", stats[0].Category)
	assert.Equal(t, 80.0, stats[0].MedianPrice)
	assert.Equal(t, 1, stats[0].TotalSold)

	assert.Equal(t, 2, f.tuning.reads)
}

func TestRunner_EndedAndSoldInSameCycle(t *testing.T) {
	batch := domain.FeedBatch{
		Snapshots:   []domain.Snapshot{snap("Z", "closed", 5, 3)},
		FinalPrices: []domain.FinalPrice{{LotID: "Z", FinalPrice: 44}},
	}
	f := newFixture(t, batch)
	f.tuning.t.Lifecycle.StaleAfter = 0

	// "closed" es indeterminado y sin staleness no cierra: sigue pending.
	res, err := f.runner.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Summary.Transitions)

	batch = domain.FeedBatch{Snapshots: []domain.Snapshot{snap("Z", "0m", 5, 3)}}
	f.feed.batches = []domain.FeedBatch{batch}
	res, err = f.runner.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Summary.Transitions)
	assert.Equal(t, 1, f.metrics.transitions["pending→ended"])
	assert.Equal(t, 1, f.metrics.transitions["ended→sold_history"])
}

func TestRunner_PartialFailuresAreSkipped(t *testing.T) {
	f := newFixture(t, firstBatch())
	f.store.failUpsert = map[string]bool{"C": true}
	f.store.failSignals = map[string]bool{"E": true}

	res, err := f.runner.RunOnce(context.Background())
	require.NoError(t, err)

	s := res.Summary
	assert.Equal(t, 4, s.Ingested)
	// C no existe: su valoración también falla.
	assert.Equal(t, 3, s.PersistFailures)
	assert.Equal(t, 1, f.metrics.failures[cycle.StepUpsert])
	assert.Equal(t, 1, f.metrics.failures[cycle.StepFacts])
	assert.Equal(t, 1, f.metrics.failures[cycle.StepSignals])

	require.Len(t, f.alerter.alerted, 1)
	assert.Equal(t, "B", f.alerter.alerted[0].LotID)
}

func TestRunner_StatusConflictIsNotAFailure(t *testing.T) {
	f := newFixture(t, firstBatch())
	f.store.conflict = map[string]bool{"B": true}

	res, err := f.runner.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Summary.PersistFailures)
	require.Len(t, f.alerter.alerted, 1)
	assert.Equal(t, "E", f.alerter.alerted[0].LotID)
}

func TestRunner_AlerterErrorDoesNotFailCycle(t *testing.T) {
	f := newFixture(t, firstBatch())
	f.alerter.err = errors.New("smtp down")

	res, err := f.runner.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Summary.Alerts)
}

func TestRunner_FeedErrorFailsCycle(t *testing.T) {
	f := newFixture(t)
	f.feed.err = errors.New("permission denied")

	_, err := f.runner.RunOnce(context.Background())
	require.Error(t, err)
	assert.Zero(t, f.alerter.calls)
	assert.Empty(t, f.feed.acked)
}

func TestRunner_CancelledBatchIsRedelivered(t *testing.T) {
	f := newFixture(t, firstBatch())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.runner.RunOnce(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, res.Summary.Cancelled)
	assert.Zero(t, res.Summary.Ingested)
	assert.Zero(t, f.alerter.calls)
	assert.Empty(t, f.feed.acked)

	pending, err := f.store.LotsByStatus(context.Background(), domain.StatusPending)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// El batch no confirmado vuelve en el ciclo siguiente.
	res, err = f.runner.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, res.Summary.Ingested)
	assert.Equal(t, []string{res.Summary.ID}, f.feed.acked)

	pending, err = f.store.LotsByStatus(context.Background(), domain.StatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 4)
}

func TestRunner_FinalPriceSurvivesCancelledCycle(t *testing.T) {
	dir := t.TempDir()
	drop, err := feed.NewDropDir(dir)
	require.NoError(t, err)
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	writeFeed := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	newRunner := func(src ports.Feed) *cycle.Runner {
		return cycle.New(cycle.Config{Once: true}, db, src, &mockAlerter{}, nil, &staticTuning{t: testTuning()}).
			WithClock(func() time.Time { return t0 })
	}
	ctx := context.Background()

	writeFeed(feed.SnapshotsFile, `[{"lot_id":"L1","title":"Band saw","current_bid":20,"bid_count":6,"time_remaining":"0m"}]`)
	_, err = newRunner(drop).RunOnce(ctx)
	require.NoError(t, err)
	l1, err := db.GetLot(ctx, "L1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusEnded, l1.Status)

	writeFeed(feed.FinalPricesFile, `[{"lot_id":"L1","final_price":61}]`)
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()
	_, err = newRunner(&cancelAfterPull{Feed: drop, cancel: cancel}).RunOnce(cctx)
	require.ErrorIs(t, err, context.Canceled)

	l1, err = db.GetLot(ctx, "L1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusEnded, l1.Status)
	assert.Nil(t, l1.FinalPrice)

	_, err = newRunner(drop).RunOnce(ctx)
	require.NoError(t, err)
	l1, err = db.GetLot(ctx, "L1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSoldHistory, l1.Status)
	require.NotNil(t, l1.FinalPrice)
	assert.Equal(t, 61.0, *l1.FinalPrice)

	done, err := filepath.Glob(filepath.Join(dir, feed.FinalPricesFile+".*.done"))
	require.NoError(t, err)
	assert.Len(t, done, 1)
}

func TestRunner_RunOnceMode(t *testing.T) {
	f := newFixture(t, firstBatch())
	runner := cycle.New(cycle.Config{Once: true, Interval: time.Hour}, f.store, f.feed, f.alerter, nil, f.tuning)

	require.NoError(t, runner.Run(context.Background()))
	assert.Equal(t, 1, f.alerter.calls)
	assert.Len(t, f.feed.pulled, 1)
}

func TestRunner_RunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	runner := cycle.New(cycle.Config{Interval: 10 * time.Millisecond}, f.store, f.feed, f.alerter, nil, f.tuning)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.NoError(t, runner.Run(ctx))
	assert.GreaterOrEqual(t, len(f.feed.pulled), 2)
}
