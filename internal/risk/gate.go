package risk

import (
	"log/slog"

	"github.com/alejandrodnm/crowdbot/config"
	"github.com/alejandrodnm/crowdbot/internal/domain"
)

// Gate applies the account-level limits to a proposed decision. It is a pure
// function of (decision, ledger snapshot): it holds no state of its own, so
// the caller decides how to make the check-then-reserve step atomic (the
// ledger runs Admit under its own lock).
type Gate struct {
	cfg config.RiskConfig
}

// New creates a Gate with the configured limits.
func New(cfg config.RiskConfig) *Gate {
	return &Gate{cfg: cfg}
}

// Admit evaluates the limits in order and short-circuits on the first breach.
// Skips pass through rejected, carrying the upstream reason.
func (g *Gate) Admit(decision domain.Decision, snap domain.LedgerSnapshot) domain.Verdict {
	if decision.IsSkip() {
		return domain.Verdict{Approved: false, Reason: decision.Reason}
	}

	if decision.SizeUSD > g.cfg.MaxPositionUSD {
		return g.reject(decision, domain.RejectPositionTooLarge, snap)
	}
	if snap.OpenPositions >= g.cfg.MaxConcurrentPositions {
		return g.reject(decision, domain.RejectMaxPositions, snap)
	}
	if snap.DailyTrades >= g.cfg.MaxDailyTrades {
		return g.reject(decision, domain.RejectMaxDailyTrades, snap)
	}

	size := decision.SizeUSD
	headroom := snap.ExposureHeadroom(g.cfg.MaxExposureUSD)
	if size > headroom {
		if !g.cfg.DownsizeToHeadroom || headroom < g.cfg.MinOrderUSD {
			return g.reject(decision, domain.RejectExposureLimit, snap)
		}
		size = headroom
	}

	if snap.DailyLossUSD >= g.cfg.DailyLossLimitUSD {
		return g.reject(decision, domain.RejectLossLimit, snap)
	}
	if snap.LossStreak >= g.cfg.LossStreakLimit {
		return g.reject(decision, domain.RejectLossStreak, snap)
	}

	return domain.Verdict{
		Approved:  true,
		SizeUSD:   size,
		Downsized: size < decision.SizeUSD,
	}
}

func (g *Gate) reject(decision domain.Decision, reason domain.SkipReason, snap domain.LedgerSnapshot) domain.Verdict {
	slog.Info("risk: order rejected",
		"market", decision.MarketID,
		"reason", string(reason),
		"size_usd", decision.SizeUSD,
		"open_positions", snap.OpenPositions,
		"exposure_usd", snap.CumulativeExposure(),
		"daily_loss_usd", snap.DailyLossUSD,
		"loss_streak", snap.LossStreak,
	)
	return domain.Verdict{Approved: false, Reason: reason}
}
