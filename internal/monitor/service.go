package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/crowdbot/config"
	"github.com/alejandrodnm/crowdbot/internal/domain"
	"github.com/alejandrodnm/crowdbot/internal/ports"
)

// WindowStats agrega los trades cerrados de una ventana.
type WindowStats struct {
	Trades          int
	Wins            int
	Losses          int
	WinRate         float64
	AvgPnL          float64
	TotalPnL        float64
	RealizedLossUSD float64
}

// Stats expone las dos ventanas del monitor: últimos N trades y último día.
type Stats struct {
	Window WindowStats
	Daily  WindowStats
}

type closedTrade struct {
	pnl      float64
	closedAt time.Time
}

// Service observa el resultado de cada ciclo y emite alertas de advisory:
// límite diario de pérdidas, racha de pérdidas y rechazos repetidos. No tiene
// autoridad de bloqueo — el RiskGate decide, el monitor solo avisa.
type Service struct {
	cfg      config.MonitorConfig
	risk     config.RiskConfig
	notifier ports.Notifier
	clock    ports.Clock

	mu            sync.Mutex
	closed        []closedTrade
	rejectStreak  int
	lossAlerted   bool // una alerta de loss limit por día
	streakAlerted bool // una alerta por episodio de racha
}

// New crea el Service. Los límites de risk se usan solo como umbrales de
// alerta, nunca para decidir.
func New(cfg config.MonitorConfig, risk config.RiskConfig, notifier ports.Notifier, clock ports.Clock) *Service {
	if clock == nil {
		clock = ports.RealClock{}
	}
	return &Service{
		cfg:      cfg,
		risk:     risk,
		notifier: notifier,
		clock:    clock,
	}
}

// RecordClose registra un trade cerrado y evalúa los umbrales de alerta
// contra el estado del ledger tras el cierre.
func (s *Service) RecordClose(ctx context.Context, pos domain.Position, snap domain.LedgerSnapshot) {
	s.mu.Lock()
	s.closed = append(s.closed, closedTrade{pnl: pos.PnL, closedAt: s.clock.Now().UTC()})
	s.prune()

	var alerts []domain.AlertEvent
	if snap.DailyLossUSD >= s.risk.DailyLossLimitUSD && !s.lossAlerted {
		s.lossAlerted = true
		alerts = append(alerts, domain.AlertEvent{
			Severity:  domain.SeverityCritical,
			Kind:      domain.AlertLossLimit,
			Timestamp: s.clock.Now().UTC(),
			MarketID:  pos.MarketID,
			Message:   fmt.Sprintf("daily loss %.2f USD reached the %.2f USD limit", snap.DailyLossUSD, s.risk.DailyLossLimitUSD),
			Context: map[string]string{
				"daily_loss_usd": fmt.Sprintf("%.2f", snap.DailyLossUSD),
				"limit_usd":      fmt.Sprintf("%.2f", s.risk.DailyLossLimitUSD),
			},
		})
	}

	switch {
	case snap.LossStreak >= s.risk.LossStreakLimit && !s.streakAlerted:
		s.streakAlerted = true
		alerts = append(alerts, domain.AlertEvent{
			Severity:  domain.SeverityWarning,
			Kind:      domain.AlertLossStreak,
			Timestamp: s.clock.Now().UTC(),
			MarketID:  pos.MarketID,
			Message:   fmt.Sprintf("%d consecutive losses (limit %d)", snap.LossStreak, s.risk.LossStreakLimit),
			Context: map[string]string{
				"loss_streak": fmt.Sprintf("%d", snap.LossStreak),
				"limit":       fmt.Sprintf("%d", s.risk.LossStreakLimit),
			},
		})
	case snap.LossStreak == 0:
		// Una ganancia cierra el episodio: la próxima racha vuelve a alertar.
		s.streakAlerted = false
	}
	s.mu.Unlock()

	for _, a := range alerts {
		s.send(ctx, a)
	}
}

// RecordRejection cuenta rechazos consecutivos del gate y alerta cuando se
// alcanza el umbral configurado. Se reinicia con cualquier aprobación.
func (s *Service) RecordRejection(ctx context.Context, marketID string, reason domain.SkipReason) {
	s.mu.Lock()
	s.rejectStreak++
	fire := s.rejectStreak == s.cfg.RejectionAlertCount
	streak := s.rejectStreak
	s.mu.Unlock()

	if !fire {
		return
	}
	s.send(ctx, domain.AlertEvent{
		Severity:  domain.SeverityWarning,
		Kind:      domain.AlertAnomaly,
		Timestamp: s.clock.Now().UTC(),
		MarketID:  marketID,
		Message:   fmt.Sprintf("%d consecutive rejected cycles, last reason %s", streak, reason),
		Context: map[string]string{
			"consecutive": fmt.Sprintf("%d", streak),
			"last_reason": string(reason),
		},
	})
}

// RecordApproval reinicia el contador de rechazos consecutivos.
func (s *Service) RecordApproval() {
	s.mu.Lock()
	s.rejectStreak = 0
	s.mu.Unlock()
}

// RollDaily reinicia la alerta diaria de loss limit en el cambio de día UTC.
func (s *Service) RollDaily() {
	s.mu.Lock()
	s.lossAlerted = false
	s.mu.Unlock()
}

// Metrics devuelve las dos ventanas: últimos WindowTrades trades y trailing
// 24 horas.
func (s *Service) Metrics() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prune()

	window := s.closed
	if len(window) > s.cfg.WindowTrades {
		window = window[len(window)-s.cfg.WindowTrades:]
	}

	cutoff := s.clock.Now().UTC().Add(-24 * time.Hour)
	var daily []closedTrade
	for _, t := range s.closed {
		if !t.closedAt.Before(cutoff) {
			daily = append(daily, t)
		}
	}

	return Stats{
		Window: aggregate(window),
		Daily:  aggregate(daily),
	}
}

func aggregate(trades []closedTrade) WindowStats {
	stats := WindowStats{Trades: len(trades)}
	for _, t := range trades {
		stats.TotalPnL += t.pnl
		if t.pnl >= 0 {
			stats.Wins++
		} else {
			stats.Losses++
			stats.RealizedLossUSD += -t.pnl
		}
	}
	if stats.Trades > 0 {
		stats.WinRate = float64(stats.Wins) / float64(stats.Trades)
		stats.AvgPnL = stats.TotalPnL / float64(stats.Trades)
	}
	return stats
}

// prune descarta trades que ya no pueden entrar en ninguna ventana.
func (s *Service) prune() {
	cutoff := s.clock.Now().UTC().Add(-24 * time.Hour)
	firstNeeded := 0
	if len(s.closed) > s.cfg.WindowTrades {
		firstNeeded = len(s.closed) - s.cfg.WindowTrades
	}
	drop := 0
	for i := 0; i < firstNeeded; i++ {
		if s.closed[i].closedAt.Before(cutoff) {
			drop = i + 1
		} else {
			break
		}
	}
	if drop > 0 {
		s.closed = append([]closedTrade(nil), s.closed[drop:]...)
	}
}

func (s *Service) send(ctx context.Context, event domain.AlertEvent) {
	if err := s.notifier.Alert(ctx, event); err != nil {
		slog.Error("monitor: alert delivery failed",
			"kind", string(event.Kind),
			"error", err,
		)
	}
}
