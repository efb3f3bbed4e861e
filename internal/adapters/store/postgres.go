package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"

	"github.com/alejandrodnm/polyledger/internal/domain"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS ledger_entries (
    stable_id TEXT PRIMARY KEY, wallet TEXT NOT NULL, entry_type TEXT NOT NULL,
    tx_hash TEXT NOT NULL, log_index BIGINT NOT NULL, block_number BIGINT NOT NULL,
    ts BIGINT NOT NULL, token_id TEXT, condition_id TEXT,
    quantity DOUBLE PRECISION NOT NULL, cash_delta DOUBLE PRECISION NOT NULL,
    unit_price DOUBLE PRECISION NOT NULL, cost_basis DOUBLE PRECISION NOT NULL,
    realized_pnl DOUBLE PRECISION NOT NULL, entry_ts BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ledger_wallet_ts ON ledger_entries(wallet, ts);
CREATE TABLE IF NOT EXISTS snapshots (
    wallet TEXT NOT NULL, at_ts BIGINT NOT NULL, realized_cum DOUBLE PRECISION NOT NULL,
    unrealized DOUBLE PRECISION NOT NULL, open_cost DOUBLE PRECISION NOT NULL,
    open_value DOUBLE PRECISION NOT NULL, cashflow_cum DOUBLE PRECISION NOT NULL,
    open_token_count INTEGER NOT NULL, PRIMARY KEY (wallet, at_ts)
);
`

// Postgres implements ports.LedgerSink over lib/pq for a production
// deployment, batching writes as multi-row INSERTs the way the ledger
// service's event-log writer does, rather than one statement per row.
type Postgres struct {
	db *sql.DB
}

// OpenPostgres connects to dsn and applies the schema.
func OpenPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store.OpenPostgres: open: %w", err)
	}
	if _, err := db.Exec(postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store.OpenPostgres: apply schema: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) DeleteRange(ctx context.Context, wallet string, start, end int64) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store.Postgres.DeleteRange: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM ledger_entries WHERE wallet = $1 AND ts BETWEEN $2 AND $3`, wallet, start, end); err != nil {
		return fmt.Errorf("store.Postgres.DeleteRange: ledger_entries: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE wallet = $1 AND at_ts BETWEEN $2 AND $3`, wallet, start, end); err != nil {
		return fmt.Errorf("store.Postgres.DeleteRange: snapshots: %w", err)
	}
	return tx.Commit()
}

// InsertLedgerEntries writes entries as one multi-row INSERT, matching the
// ledger service's event-log writer pattern for high-throughput batch
// writes rather than a prepared statement executed once per row.
func (p *Postgres) InsertLedgerEntries(ctx context.Context, entries []domain.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	const cols = 15
	values := make([]string, 0, len(entries))
	args := make([]any, 0, len(entries)*cols)
	for i, e := range entries {
		base := i * cols
		ph := make([]string, cols)
		for j := 0; j < cols; j++ {
			ph[j] = fmt.Sprintf("$%d", base+j+1)
		}
		values = append(values, "("+strings.Join(ph, ", ")+")")
		args = append(args, e.StableID, e.Wallet, string(e.EntryType), e.TxHash, e.LogIndex, e.BlockNumber, e.Timestamp,
			e.TokenID, e.ConditionID, e.Quantity, e.CashDelta, e.UnitPrice, e.CostBasis, e.RealizedPnL, e.EntryTimestamp)
	}

	query := `INSERT INTO ledger_entries
		(stable_id, wallet, entry_type, tx_hash, log_index, block_number, ts,
		 token_id, condition_id, quantity, cash_delta, unit_price, cost_basis, realized_pnl, entry_ts)
		VALUES ` + strings.Join(values, ", ") + ` ON CONFLICT (stable_id) DO NOTHING`

	if _, err := p.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("store.Postgres.InsertLedgerEntries: %w", err)
	}
	return nil
}

func (p *Postgres) InsertSnapshots(ctx context.Context, snapshots []domain.Snapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	const cols = 8
	values := make([]string, 0, len(snapshots))
	args := make([]any, 0, len(snapshots)*cols)
	for i, s := range snapshots {
		base := i * cols
		ph := make([]string, cols)
		for j := 0; j < cols; j++ {
			ph[j] = fmt.Sprintf("$%d", base+j+1)
		}
		values = append(values, "("+strings.Join(ph, ", ")+")")
		args = append(args, s.Wallet, s.At, s.RealizedCum, s.Unrealized, s.OpenCost, s.OpenValue, s.CashflowCum, s.OpenTokenCount)
	}

	query := `INSERT INTO snapshots (wallet, at_ts, realized_cum, unrealized, open_cost, open_value, cashflow_cum, open_token_count)
		VALUES ` + strings.Join(values, ", ") + ` ON CONFLICT (wallet, at_ts) DO UPDATE SET
			realized_cum = excluded.realized_cum, unrealized = excluded.unrealized,
			open_cost = excluded.open_cost, open_value = excluded.open_value,
			cashflow_cum = excluded.cashflow_cum, open_token_count = excluded.open_token_count`

	if _, err := p.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("store.Postgres.InsertSnapshots: %w", err)
	}
	return nil
}
