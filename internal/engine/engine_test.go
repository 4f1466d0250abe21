package engine

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/crowdbot/config"
	"github.com/alejandrodnm/crowdbot/internal/adapters/notify"
	"github.com/alejandrodnm/crowdbot/internal/adapters/simulated"
	"github.com/alejandrodnm/crowdbot/internal/adapters/storage"
	"github.com/alejandrodnm/crowdbot/internal/domain"
	"github.com/alejandrodnm/crowdbot/internal/executor"
	"github.com/alejandrodnm/crowdbot/internal/ledger"
	"github.com/alejandrodnm/crowdbot/internal/monitor"
	"github.com/alejandrodnm/crowdbot/internal/risk"
	"github.com/alejandrodnm/crowdbot/internal/signal"
)

type manualClock struct {
	now time.Time
}

func (c *manualClock) Now() time.Time { return c.now }

func (c *manualClock) Sleep(_ context.Context, d time.Duration) { c.now = c.now.Add(d) }

type fixedDiscoverer struct {
	markets []string
}

func (d *fixedDiscoverer) CurrentMarkets(context.Context) ([]string, error) {
	return d.markets, nil
}

const testMarket = "btc-updown-15m-1700000100"

type harness struct {
	engine *Engine
	venue  *simulated.Venue
	store  *storage.SQLiteStore
	book   *ledger.Ledger
	clock  *manualClock
	out    *bytes.Buffer
}

// newHarness cablea el pipeline completo en modo dry-run: venue simulado,
// SQLite en memoria y reloj manual.
func newHarness(t *testing.T) *harness {
	t.Helper()

	clock := &manualClock{now: time.Date(2026, 8, 23, 14, 0, 0, 0, time.UTC)}
	venue := simulated.New(nil, 100)

	store, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	var out bytes.Buffer
	notifier := notify.NewConsoleWriter(&out)

	signalCfg := config.SignalConfig{
		MinVolume:     10000,
		MaxBetUSD:     2.50,
		MinThreshold:  0.50,
		MaxThreshold:  0.98,
		PreferredSide: "YES",
		VigTiers: []config.VigTier{
			{MinVolume: 0, MaxVig: 0.10},
			{MinVolume: 5000, MaxVig: 0.05},
			{MinVolume: 10000, MaxVig: 0.02},
		},
	}
	riskCfg := config.RiskConfig{
		MaxConcurrentPositions: 5,
		MaxDailyTrades:         20,
		MaxExposureUSD:         100,
		MaxPositionUSD:         100,
		DailyLossLimitUSD:      50,
		LossStreakLimit:        3,
		DownsizeToHeadroom:     true,
		MinOrderUSD:            1,
	}
	execCfg := config.ExecutorConfig{
		MaxAttempts:          3,
		BackoffBaseMs:        500,
		BackoffCapSeconds:    4,
		PartialFillThreshold: 0.95,
		VenueTimeoutSeconds:  10,
	}
	monitorCfg := config.MonitorConfig{WindowTrades: 20, RejectionAlertCount: 5}

	book := ledger.New(clock)
	exec := executor.New(execCfg, venue, store, book, notifier, clock, true)
	mon := monitor.New(monitorCfg, riskCfg, notifier, clock)

	eng := New(config.BotConfig{ScanIntervalSeconds: 60, DryRun: true, SeriesSlug: "btc-updown-15m", BalanceFailLimit: 3}, Deps{
		Venue:      venue,
		Discoverer: &fixedDiscoverer{markets: []string{testMarket}},
		Store:      store,
		Signals:    signal.New(signalCfg),
		Gate:       risk.New(riskCfg),
		Book:       book,
		Exec:       exec,
		Monitor:    mon,
		Notifier:   notifier,
		Clock:      clock,
	})

	return &harness{engine: eng, venue: venue, store: store, book: book, clock: clock, out: &out}
}

func (h *harness) setSnapshot(yes, no, volume float64, expiresAt time.Time) {
	h.venue.SetSnapshot(domain.MarketSnapshot{
		MarketID:  testMarket,
		Question:  "Bitcoin Up or Down?",
		YesPrice:  yes,
		NoPrice:   no,
		Volume:    volume,
		Timestamp: h.clock.now,
		ExpiresAt: expiresAt,
	})
}

func TestRunCycleOpensOnePosition(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	expiry := h.clock.now.Add(10 * time.Minute)
	h.setSnapshot(0.52, 0.47, 15000, expiry)

	h.engine.RunCycle(ctx)

	// Una posición YES de $2.50 al precio del snapshot.
	snap := h.book.Snapshot()
	assert.Equal(t, 1, snap.OpenPositions)
	assert.Equal(t, 2.50, snap.OpenExposureUSD)
	assert.Equal(t, 2.50, snap.CumulativeExposure())
	assert.Equal(t, 1, snap.DailyTrades)

	open, err := h.store.OpenPositions(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, domain.SideYes, open[0].Side)
	assert.Equal(t, 0.52, open[0].EntryPrice)

	assert.Contains(t, h.out.String(), "TRADE")

	// Un segundo ciclo sobre el mismo mercado no piramida.
	h.engine.RunCycle(ctx)
	snap = h.book.Snapshot()
	assert.Equal(t, 1, snap.OpenPositions)
	assert.Equal(t, 1, snap.DailyTrades)
}

func TestRunCycleSkipsWithoutEdge(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Volumen insuficiente: jamás se tradea por fuerte que sea el precio.
	h.setSnapshot(0.80, 0.19, 9000, h.clock.now.Add(10*time.Minute))
	h.engine.RunCycle(ctx)

	assert.Equal(t, 0, h.book.Snapshot().OpenPositions)
	assert.Contains(t, h.out.String(), "insufficient_volume")
}

func TestRunCycleSettlesExpiredWinner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	expiry := h.clock.now.Add(10 * time.Minute)
	h.setSnapshot(0.52, 0.47, 15000, expiry)
	h.engine.RunCycle(ctx)
	require.Equal(t, 1, h.book.Snapshot().OpenPositions)

	// El slot termina y el mercado resuelve YES.
	h.clock.now = expiry.Add(time.Minute)
	h.setSnapshot(0.99, 0.01, 15000, expiry)
	h.engine.RunCycle(ctx)

	snap := h.book.Snapshot()
	assert.Equal(t, 0, snap.OpenPositions)
	// Ganadora: el streak queda en cero y no hay pérdida diaria.
	assert.Equal(t, 0, snap.LossStreak)
	assert.Equal(t, 0.0, snap.DailyLossUSD)
	// La posición cerrada hoy sigue contando como exposición acumulada.
	assert.Equal(t, 2.50, snap.DailyRealizedUSD)

	stats, err := h.store.Stats(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Wins)
	// pnl = (1.0 - 0.52) * (2.50 / 0.52)
	assert.InDelta(t, 0.48*(2.50/0.52), stats.TotalPnL, 1e-9)
}

func TestRunCycleSettlesExpiredLoser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	expiry := h.clock.now.Add(10 * time.Minute)
	h.setSnapshot(0.52, 0.47, 15000, expiry)
	h.engine.RunCycle(ctx)

	// Resuelve NO: la posición YES va a cero.
	h.clock.now = expiry.Add(time.Minute)
	h.setSnapshot(0.01, 0.99, 15000, expiry)
	h.engine.RunCycle(ctx)

	snap := h.book.Snapshot()
	assert.Equal(t, 0, snap.OpenPositions)
	assert.Equal(t, 1, snap.LossStreak)
	assert.InDelta(t, 0.52*(2.50/0.52), snap.DailyLossUSD, 1e-9)
}

func TestRunCycleHaltsOnBalanceStreak(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Saldo por debajo del tamaño de apuesta: cada ciclo falla la orden.
	h.venue.SetBalance(1.00)
	h.setSnapshot(0.52, 0.47, 15000, h.clock.now.Add(10*time.Minute))

	for i := 0; i < 3; i++ {
		require.False(t, h.engine.Halted(), "cycle %d", i)
		h.engine.RunCycle(ctx)
	}

	// Al tercer fallo consecutivo se paran las órdenes nuevas.
	assert.True(t, h.engine.Halted())
	assert.Contains(t, h.out.String(), "venue_failure")
	assert.Equal(t, 0, h.book.Snapshot().OpenPositions)

	// Los ciclos siguientes no vuelven a intentar enviar.
	h.engine.RunCycle(ctx)
	assert.Equal(t, 0, h.book.Snapshot().DailyTrades)
}

func TestRunCycleDailyRollover(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	expiry := h.clock.now.Add(10 * time.Minute)
	h.setSnapshot(0.52, 0.47, 15000, expiry)
	h.engine.RunCycle(ctx)
	require.Equal(t, 1, h.book.Snapshot().DailyTrades)

	// Cruza medianoche UTC sin cerrar la posición.
	h.clock.now = h.clock.now.Add(24 * time.Hour)
	h.setSnapshot(0.52, 0.47, 15000, h.clock.now.Add(10*time.Minute))
	h.engine.RunCycle(ctx)

	snap := h.book.Snapshot()
	assert.Equal(t, 0, snap.DailyTrades, "daily counters reset")
	assert.Equal(t, 1, snap.OpenPositions, "open position survives rollover")
}
