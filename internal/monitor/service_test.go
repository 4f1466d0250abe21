package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/crowdbot/config"
	"github.com/alejandrodnm/crowdbot/internal/domain"
)

type manualClock struct {
	now time.Time
}

func (c *manualClock) Now() time.Time { return c.now }

func (c *manualClock) Sleep(_ context.Context, d time.Duration) { c.now = c.now.Add(d) }

type captureNotifier struct {
	alerts []domain.AlertEvent
}

func (n *captureNotifier) Alert(_ context.Context, event domain.AlertEvent) error {
	n.alerts = append(n.alerts, event)
	return nil
}

func (n *captureNotifier) CycleReport(context.Context, domain.CycleReport) error { return nil }

func newTestService() (*Service, *captureNotifier, *manualClock) {
	clock := &manualClock{now: time.Date(2026, 8, 23, 14, 0, 0, 0, time.UTC)}
	notifier := &captureNotifier{}
	cfg := config.MonitorConfig{WindowTrades: 3, RejectionAlertCount: 5}
	risk := config.RiskConfig{DailyLossLimitUSD: 5, LossStreakLimit: 3}
	return New(cfg, risk, notifier, clock), notifier, clock
}

func closedPosition(marketID string, pnl float64) domain.Position {
	return domain.Position{MarketID: marketID, PnL: pnl, Open: false}
}

func TestMetricsWindows(t *testing.T) {
	s, _, clock := newTestService()
	ctx := context.Background()

	// Cuatro cierres con WindowTrades=3: el primero sale de la ventana N.
	pnls := []float64{1.0, -2.0, 3.0, -1.0}
	for _, pnl := range pnls {
		s.RecordClose(ctx, closedPosition("mkt", pnl), domain.LedgerSnapshot{})
		clock.now = clock.now.Add(time.Minute)
	}

	stats := s.Metrics()
	// Ventana: [-2, 3, -1]
	assert.Equal(t, 3, stats.Window.Trades)
	assert.Equal(t, 1, stats.Window.Wins)
	assert.Equal(t, 2, stats.Window.Losses)
	assert.InDelta(t, 1.0/3.0, stats.Window.WinRate, 1e-9)
	assert.InDelta(t, 0.0, stats.Window.TotalPnL, 1e-9)
	assert.InDelta(t, 3.0, stats.Window.RealizedLossUSD, 1e-9)

	// Diaria: los cuatro, todos dentro de 24h.
	assert.Equal(t, 4, stats.Daily.Trades)
	assert.InDelta(t, 1.0, stats.Daily.TotalPnL, 1e-9)
	assert.InDelta(t, 0.25, stats.Daily.AvgPnL, 1e-9)
}

func TestMetricsDailyWindowExpires(t *testing.T) {
	s, _, clock := newTestService()
	ctx := context.Background()

	s.RecordClose(ctx, closedPosition("mkt", -1.0), domain.LedgerSnapshot{})
	clock.now = clock.now.Add(25 * time.Hour)
	s.RecordClose(ctx, closedPosition("mkt", 2.0), domain.LedgerSnapshot{})

	stats := s.Metrics()
	assert.Equal(t, 1, stats.Daily.Trades)
	assert.InDelta(t, 2.0, stats.Daily.TotalPnL, 1e-9)
	// La ventana por número de trades sí conserva ambos.
	assert.Equal(t, 2, stats.Window.Trades)
}

func TestLossLimitAlertFiresOncePerDay(t *testing.T) {
	s, notifier, _ := newTestService()
	ctx := context.Background()

	breach := domain.LedgerSnapshot{DailyLossUSD: 5.0}
	s.RecordClose(ctx, closedPosition("mkt", -2.5), breach)
	require.Len(t, notifier.alerts, 1)
	assert.Equal(t, domain.AlertLossLimit, notifier.alerts[0].Kind)
	assert.Equal(t, domain.SeverityCritical, notifier.alerts[0].Severity)

	// Más cierres en breach no repiten la alerta.
	s.RecordClose(ctx, closedPosition("mkt", -2.5), domain.LedgerSnapshot{DailyLossUSD: 7.5})
	assert.Len(t, notifier.alerts, 1)

	// Tras el rollover diario vuelve a armarse.
	s.RollDaily()
	s.RecordClose(ctx, closedPosition("mkt", -2.5), breach)
	assert.Len(t, notifier.alerts, 2)
}

func TestLossStreakAlertFiresOncePerEpisode(t *testing.T) {
	s, notifier, _ := newTestService()
	ctx := context.Background()

	s.RecordClose(ctx, closedPosition("mkt", -1), domain.LedgerSnapshot{LossStreak: 3})
	require.Len(t, notifier.alerts, 1)
	assert.Equal(t, domain.AlertLossStreak, notifier.alerts[0].Kind)

	// La racha sigue: sin alerta nueva.
	s.RecordClose(ctx, closedPosition("mkt", -1), domain.LedgerSnapshot{LossStreak: 4})
	assert.Len(t, notifier.alerts, 1)

	// Una ganancia corta el episodio; la siguiente racha alerta otra vez.
	s.RecordClose(ctx, closedPosition("mkt", 1), domain.LedgerSnapshot{LossStreak: 0})
	s.RecordClose(ctx, closedPosition("mkt", -1), domain.LedgerSnapshot{LossStreak: 3})
	assert.Len(t, notifier.alerts, 2)
}

func TestRejectionAnomalyAlert(t *testing.T) {
	s, notifier, _ := newTestService()
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		s.RecordRejection(ctx, "mkt", domain.RejectExposureLimit)
	}
	assert.Empty(t, notifier.alerts)

	// El quinto rechazo consecutivo dispara la anomalía, una sola vez.
	s.RecordRejection(ctx, "mkt", domain.RejectExposureLimit)
	require.Len(t, notifier.alerts, 1)
	assert.Equal(t, domain.AlertAnomaly, notifier.alerts[0].Kind)

	s.RecordRejection(ctx, "mkt", domain.RejectExposureLimit)
	assert.Len(t, notifier.alerts, 1)

	// Una aprobación reinicia el contador.
	s.RecordApproval()
	for i := 0; i < 5; i++ {
		s.RecordRejection(ctx, "mkt", domain.SkipNoEdge)
	}
	assert.Len(t, notifier.alerts, 2)
}
