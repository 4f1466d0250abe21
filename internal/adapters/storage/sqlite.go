package storage

// sqlite.go — registro durable de trades y snapshots.
//
// Dos tablas:
//   - `trades`: una fila inmutable por orden ejecutada. El cierre solo
//     completa exit_price/pnl/closed_at; nunca se borra ni se reescribe
//     el resto de la fila.
//   - `market_snapshots`: el snapshot exacto detrás de cada decisión,
//     se haya tradeado o no. Prune automático al arrancar (> 14 días).

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/alejandrodnm/crowdbot/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    ts             DATETIME NOT NULL,
    market_id      TEXT     NOT NULL,
    question       TEXT,
    side           TEXT     NOT NULL,
    requested_usd  REAL     NOT NULL,
    filled_usd     REAL     NOT NULL,
    price          REAL     NOT NULL,
    status         TEXT     NOT NULL,
    dry_run        INTEGER  NOT NULL DEFAULT 0,
    venue_order_id TEXT,
    exit_price     REAL,
    pnl            REAL,
    closed_at      DATETIME
);

CREATE TABLE IF NOT EXISTS market_snapshots (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    ts         DATETIME NOT NULL,
    market_id  TEXT     NOT NULL,
    question   TEXT,
    yes_price  REAL     NOT NULL,
    no_price   REAL     NOT NULL,
    volume     REAL     NOT NULL,
    expires_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_trades_market ON trades(market_id);
CREATE INDEX IF NOT EXISTS idx_trades_ts     ON trades(ts DESC);
CREATE INDEX IF NOT EXISTS idx_snaps_market  ON market_snapshots(market_id);
CREATE INDEX IF NOT EXISTS idx_snaps_ts      ON market_snapshots(ts DESC);
`

// Los snapshots son solo contexto de diagnóstico: 14 días bastan.
const snapshotRetention = 14 * 24 * time.Hour

// SQLiteStore implementa ports.TradeStore usando SQLite (pure Go, sin CGo).
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex // SQLite es single-writer; serializamos los appends
}

// NewSQLiteStore abre (o crea) la base de datos en la ruta dada, aplica el
// schema y limpia snapshots antiguos.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStore: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStore: apply schema: %w", err)
	}

	s := &SQLiteStore{db: db}
	s.pruneSnapshots(context.Background())
	return s, nil
}

// AppendTrade persiste un TradeRecord y devuelve su row ID.
func (s *SQLiteStore) AppendTrade(ctx context.Context, rec domain.TradeRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO trades
			(ts, market_id, question, side, requested_usd, filled_usd, price, status, dry_run, venue_order_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Timestamp.UTC(), rec.MarketID, rec.Question, string(rec.Side),
		rec.RequestedUSD, rec.FilledUSD, rec.Price, string(rec.Status),
		rec.DryRun, rec.VenueOrderID,
	)
	if err != nil {
		return 0, fmt.Errorf("storage.AppendTrade: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("storage.AppendTrade: last insert id: %w", err)
	}
	return id, nil
}

// CloseTrade completa la fila abierta más reciente del mercado con el exit y
// el pnl realizado.
func (s *SQLiteStore) CloseTrade(ctx context.Context, marketID string, exitPrice, pnl float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE trades SET exit_price = ?, pnl = ?, closed_at = ?
		WHERE id = (
			SELECT id FROM trades
			WHERE market_id = ? AND pnl IS NULL AND filled_usd > 0
			ORDER BY id DESC LIMIT 1
		)`,
		exitPrice, pnl, time.Now().UTC(), marketID,
	)
	if err != nil {
		return fmt.Errorf("storage.CloseTrade: %s: %w", marketID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage.CloseTrade: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("storage.CloseTrade: %s: %w", marketID, domain.ErrPositionNotFound)
	}
	return nil
}

// AppendSnapshot persiste el snapshot detrás de una decisión.
func (s *SQLiteStore) AppendSnapshot(ctx context.Context, snap domain.MarketSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO market_snapshots (ts, market_id, question, yes_price, no_price, volume, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		snap.Timestamp.UTC(), snap.MarketID, snap.Question,
		snap.YesPrice, snap.NoPrice, snap.Volume, snap.ExpiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.AppendSnapshot: %w", err)
	}
	return nil
}

// OpenPositions reconstruye las posiciones abiertas desde las filas de trades
// sin pnl, para el rebuild del ledger al arrancar.
func (s *SQLiteStore) OpenPositions(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, market_id, side, filled_usd, price
		FROM trades
		WHERE pnl IS NULL AND filled_usd > 0
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("storage.OpenPositions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		var (
			id        int64
			ts        time.Time
			marketID  string
			side      string
			filledUSD float64
			price     float64
		)
		if err := rows.Scan(&id, &ts, &marketID, &side, &filledUSD, &price); err != nil {
			return nil, fmt.Errorf("storage.OpenPositions: scan: %w", err)
		}
		pos := domain.Position{
			ID:         strconv.FormatInt(id, 10),
			MarketID:   marketID,
			Side:       domain.Side(side),
			SizeUSD:    filledUSD,
			EntryPrice: price,
			OpenedAt:   ts.UTC(),
			Open:       true,
		}
		if price > 0 {
			pos.Shares = filledUSD / price
		}
		positions = append(positions, pos)
	}
	return positions, rows.Err()
}

// Stats agrega los últimos `days` días de historial de trades.
func (s *SQLiteStore) Stats(ctx context.Context, days int) (domain.TradeStats, error) {
	stats := domain.TradeStats{Days: days}
	since := time.Now().UTC().AddDate(0, 0, -days)

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(filled_usd), 0)
		FROM trades WHERE ts >= ? AND filled_usd > 0`,
		since,
	).Scan(&stats.TradeCount, &stats.TotalVolume)
	if err != nil {
		return stats, fmt.Errorf("storage.Stats: totals: %w", err)
	}

	// Recorrido en orden de cierre para wins/losses y la peor racha.
	rows, err := s.db.QueryContext(ctx, `
		SELECT pnl FROM trades
		WHERE ts >= ? AND pnl IS NOT NULL
		ORDER BY closed_at, id`,
		since,
	)
	if err != nil {
		return stats, fmt.Errorf("storage.Stats: closed trades: %w", err)
	}
	defer rows.Close()

	streak := 0
	for rows.Next() {
		var pnl float64
		if err := rows.Scan(&pnl); err != nil {
			return stats, fmt.Errorf("storage.Stats: scan: %w", err)
		}
		stats.TotalPnL += pnl
		if pnl >= 0 {
			stats.Wins++
			streak = 0
		} else {
			stats.Losses++
			streak++
			if streak > stats.MaxLossStreak {
				stats.MaxLossStreak = streak
			}
		}
	}
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("storage.Stats: %w", err)
	}

	if closed := stats.Wins + stats.Losses; closed > 0 {
		stats.WinRate = float64(stats.Wins) / float64(closed)
	}
	return stats, nil
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// pruneSnapshots borra snapshots fuera de la ventana de retención.
func (s *SQLiteStore) pruneSnapshots(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-snapshotRetention)
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM market_snapshots WHERE ts < ?`, cutoff); err != nil {
		// No es fatal: el prune volverá a intentarse en el próximo arranque.
		return
	}
}
