package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/crowdbot/internal/domain"
	"github.com/alejandrodnm/crowdbot/internal/ports"
)

// Console implementa ports.Notifier escribiendo al terminal. Los ciclos sin
// trade salen como una línea compacta; los trades imprimen tabla completa.
type Console struct {
	out io.Writer
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

// Alert imprime la alerta en una línea con su contexto ordenado.
func (c *Console) Alert(_ context.Context, event domain.AlertEvent) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s %s", event.Timestamp.Format("15:04:05"), severityIcon(event.Severity), event.Kind)
	if event.MarketID != "" {
		fmt.Fprintf(&sb, " %s", event.MarketID)
	}
	fmt.Fprintf(&sb, " — %s", event.Message)

	keys := make([]string, 0, len(event.Context))
	for k := range event.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%s", k, event.Context[k])
	}

	fmt.Fprintln(c.out, sb.String())
	return nil
}

// CycleReport imprime el resumen del ciclo.
func (c *Console) CycleReport(_ context.Context, report domain.CycleReport) error {
	now := report.Timestamp.Format("15:04:05")

	if !report.Traded() {
		reason := "approved, no fill"
		if report.Decision.IsSkip() {
			reason = string(report.Decision.Reason)
		} else if report.Verdict != nil && !report.Verdict.Approved {
			reason = string(report.Verdict.Reason)
		}
		fmt.Fprintf(c.out, "[%s] %s Y:%.3f N:%.3f vig:%.3f vol:$%.0f → %s | open:%d exp:$%.2f streak:%d\n",
			now, report.MarketID,
			report.YesPrice, report.NoPrice, report.Vig, report.Volume,
			reason,
			report.OpenCount, report.Exposure, report.LossStreak,
		)
		return nil
	}

	outcome := report.Outcome
	fmt.Fprintf(c.out, "\n[%s] TRADE %s — %s\n", now, report.MarketID, compactQuestion(report.Question, 60))

	table := tablewriter.NewWriter(c.out)
	table.Header("Side", "Requested", "Filled", "Price", "Status", "Attempts", "Open", "Exposure")
	table.Append(
		string(report.Decision.Side),
		fmt.Sprintf("$%.2f", report.Verdict.SizeUSD),
		fmt.Sprintf("$%.2f", outcome.FilledUSD),
		fmt.Sprintf("%.3f", outcome.AvgPrice),
		string(outcome.Status),
		fmt.Sprintf("%d", outcome.Attempts),
		fmt.Sprintf("%d", report.OpenCount),
		fmt.Sprintf("$%.2f", report.Exposure),
	)
	table.Render()
	return nil
}

// Summary imprime las estadísticas agregadas y la tabla de posiciones abiertas.
func (c *Console) Summary(stats domain.TradeStats, open []domain.Position) {
	fmt.Fprintf(c.out, "\nLast %d days: %d trades, win rate %.0f%%, pnl $%.2f, worst streak %d\n",
		stats.Days, stats.TradeCount, stats.WinRate*100, stats.TotalPnL, stats.MaxLossStreak)

	if len(open) == 0 {
		fmt.Fprintln(c.out, "No open positions.")
		return
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("Market", "Side", "Size", "Entry", "Opened")
	for _, p := range open {
		table.Append(
			p.MarketID,
			string(p.Side),
			fmt.Sprintf("$%.2f", p.SizeUSD),
			fmt.Sprintf("%.3f", p.EntryPrice),
			p.OpenedAt.Format("15:04:05"),
		)
	}
	table.Render()
}

func severityIcon(s domain.AlertSeverity) string {
	switch s {
	case domain.SeverityCritical:
		return "🔴"
	case domain.SeverityWarning:
		return "🟡"
	default:
		return "ℹ️"
	}
}

func compactQuestion(q string, max int) string {
	if len(q) <= max {
		return q
	}
	return q[:max-1] + "…"
}

// Multi reparte cada notificación a varios destinos. Un fallo en uno no
// bloquea a los demás.
type Multi struct {
	targets []ports.Notifier
}

// NewMulti crea un fan-out de notificadores.
func NewMulti(targets ...ports.Notifier) *Multi {
	return &Multi{targets: targets}
}

func (m *Multi) Alert(ctx context.Context, event domain.AlertEvent) error {
	var errs []error
	for _, t := range m.targets {
		if err := t.Alert(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) CycleReport(ctx context.Context, report domain.CycleReport) error {
	var errs []error
	for _, t := range m.targets {
		if err := t.CycleReport(ctx, report); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
