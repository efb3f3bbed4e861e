// Package store implements the ledger's ports over two databases:
// modernc.org/sqlite implements ports.EventSource, ports.ConditionSource
// and ports.LedgerSink for local and single-node deployments, and lib/pq
// implements ports.LedgerSink only for a production Postgres deployment
// (postgres.go). Schema and single-writer pooling mirror the scanner's
// SQLite adapter.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	_ "modernc.org/sqlite"

	"github.com/alejandrodnm/polyledger/internal/domain"
	"github.com/alejandrodnm/polyledger/internal/fixedpoint"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS trades (
    tx_hash TEXT NOT NULL, log_index INTEGER NOT NULL, block_number INTEGER NOT NULL,
    ts INTEGER NOT NULL, wallet TEXT NOT NULL, token_id TEXT NOT NULL,
    token_raw TEXT NOT NULL, usdc_raw TEXT NOT NULL, fee_raw TEXT NOT NULL, is_buy INTEGER NOT NULL,
    PRIMARY KEY (tx_hash, log_index)
);
CREATE TABLE IF NOT EXISTS splits (
    tx_hash TEXT NOT NULL, log_index INTEGER NOT NULL, block_number INTEGER NOT NULL,
    ts INTEGER NOT NULL, wallet TEXT NOT NULL, adapter INTEGER NOT NULL,
    condition_id TEXT NOT NULL, partition TEXT NOT NULL, amount_raw TEXT NOT NULL,
    PRIMARY KEY (tx_hash, log_index)
);
CREATE TABLE IF NOT EXISTS merges (
    tx_hash TEXT NOT NULL, log_index INTEGER NOT NULL, block_number INTEGER NOT NULL,
    ts INTEGER NOT NULL, wallet TEXT NOT NULL, adapter INTEGER NOT NULL,
    condition_id TEXT NOT NULL, partition TEXT NOT NULL, amount_raw TEXT NOT NULL,
    PRIMARY KEY (tx_hash, log_index)
);
CREATE TABLE IF NOT EXISTS redemptions (
    tx_hash TEXT NOT NULL, log_index INTEGER NOT NULL, block_number INTEGER NOT NULL,
    ts INTEGER NOT NULL, wallet TEXT NOT NULL, adapter INTEGER NOT NULL,
    condition_id TEXT NOT NULL, index_sets TEXT NOT NULL, payout_raw TEXT NOT NULL,
    PRIMARY KEY (tx_hash, log_index)
);
CREATE TABLE IF NOT EXISTS adapter_conversions (
    tx_hash TEXT NOT NULL, log_index INTEGER NOT NULL, block_number INTEGER NOT NULL,
    ts INTEGER NOT NULL, wallet TEXT NOT NULL, market_id TEXT NOT NULL,
    index_set INTEGER NOT NULL, question_count INTEGER NOT NULL, amount_raw TEXT NOT NULL,
    adapter_address TEXT NOT NULL, wrapped_collateral TEXT NOT NULL,
    PRIMARY KEY (tx_hash, log_index)
);
CREATE TABLE IF NOT EXISTS transfers (
    tx_hash TEXT NOT NULL, log_index INTEGER NOT NULL, block_number INTEGER NOT NULL,
    ts INTEGER NOT NULL, token_id TEXT NOT NULL, value_raw TEXT NOT NULL,
    operator TEXT NOT NULL, from_addr TEXT NOT NULL, to_addr TEXT NOT NULL,
    PRIMARY KEY (tx_hash, log_index)
);
CREATE TABLE IF NOT EXISTS fee_events (
    tx_hash TEXT NOT NULL, log_index INTEGER NOT NULL, block_number INTEGER NOT NULL,
    ts INTEGER NOT NULL, wallet TEXT NOT NULL, amount_raw TEXT NOT NULL, direction INTEGER NOT NULL,
    PRIMARY KEY (tx_hash, log_index)
);
CREATE TABLE IF NOT EXISTS conditions (
    condition_id TEXT PRIMARY KEY, oracle TEXT NOT NULL, outcome_slot_count INTEGER NOT NULL,
    parent_collection_id TEXT NOT NULL, collateral_token TEXT NOT NULL,
    payout_numerators TEXT, payout_denominator INTEGER NOT NULL DEFAULT 0,
    resolved_at INTEGER NOT NULL DEFAULT 0, resolved_block INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS neg_risk_question_counts (
    market_id TEXT PRIMARY KEY, question_count INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS ledger_entries (
    stable_id TEXT PRIMARY KEY, wallet TEXT NOT NULL, entry_type TEXT NOT NULL,
    tx_hash TEXT NOT NULL, log_index INTEGER NOT NULL, block_number INTEGER NOT NULL,
    ts INTEGER NOT NULL, token_id TEXT, condition_id TEXT,
    quantity REAL NOT NULL, cash_delta REAL NOT NULL, unit_price REAL NOT NULL,
    cost_basis REAL NOT NULL, realized_pnl REAL NOT NULL, entry_ts INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ledger_wallet_ts ON ledger_entries(wallet, ts);
CREATE TABLE IF NOT EXISTS snapshots (
    wallet TEXT NOT NULL, at_ts INTEGER NOT NULL, realized_cum REAL NOT NULL,
    unrealized REAL NOT NULL, open_cost REAL NOT NULL, open_value REAL NOT NULL,
    cashflow_cum REAL NOT NULL, open_token_count INTEGER NOT NULL,
    PRIMARY KEY (wallet, at_ts)
);
`

// SQLite implements ports.EventSource, ports.ConditionSource and
// ports.LedgerSink against a modernc.org/sqlite file, single-writer per the
// scanner's storage adapter (SQLite has no real concurrent-writer story).
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store.OpenSQLite: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store.OpenSQLite: apply schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func endTsClause(endTs int64) (string, []any) {
	if endTs <= 0 {
		return "", nil
	}
	return " AND ts <= ?", []any{endTs}
}

func (s *SQLite) Trades(ctx context.Context, wallet string, endTs int64) ([]domain.TradeEvent, error) {
	clause, extra := endTsClause(endTs)
	rows, err := s.db.QueryContext(ctx,
		`SELECT tx_hash, log_index, block_number, ts, token_id, token_raw, usdc_raw, fee_raw, is_buy
		 FROM trades WHERE wallet = ?`+clause+` ORDER BY ts, block_number, log_index`,
		append([]any{wallet}, extra...)...)
	if err != nil {
		return nil, fmt.Errorf("store.Trades: query: %w", err)
	}
	defer rows.Close()

	var out []domain.TradeEvent
	for rows.Next() {
		var txHash, tokenID, tokenRaw, usdcRaw, feeRaw string
		var logIndex, block uint64
		var ts int64
		var isBuy int
		if err := rows.Scan(&txHash, &logIndex, &block, &ts, &tokenID, &tokenRaw, &usdcRaw, &feeRaw, &isBuy); err != nil {
			return nil, fmt.Errorf("store.Trades: scan: %w", err)
		}
		tokenRawInt, err := fixedpoint.ParseRaw(tokenRaw)
		if err != nil {
			return nil, err
		}
		usdcRawInt, err := fixedpoint.ParseRaw(usdcRaw)
		if err != nil {
			return nil, err
		}
		feeRawInt, err := fixedpoint.ParseRaw(feeRaw)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.NewTradeEvent(txHash, logIndex, block, ts, tokenID, tokenRawInt, usdcRawInt, feeRawInt, isBuy != 0))
	}
	return out, rows.Err()
}

// legsForTx loads every ERC-1155 transfer in a bookkeeping event's
// transaction, which its handler prefers over the index-set fallback
// when reconstructing mints/burns, per spec.md §4.5.
func (s *SQLite) legsForTx(ctx context.Context, txHash string) ([]domain.TransferLeg, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT token_id, value_raw, from_addr, to_addr FROM transfers WHERE tx_hash = ?`, txHash)
	if err != nil {
		return nil, fmt.Errorf("store.legsForTx: query: %w", err)
	}
	defer rows.Close()

	var out []domain.TransferLeg
	for rows.Next() {
		var tokenID, valueRaw, from, to string
		if err := rows.Scan(&tokenID, &valueRaw, &from, &to); err != nil {
			return nil, fmt.Errorf("store.legsForTx: scan: %w", err)
		}
		v, err := fixedpoint.ParseRaw(valueRaw)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.TransferLeg{TokenID: tokenID, ValueRaw: v, From: from, To: to})
	}
	return out, rows.Err()
}

func (s *SQLite) Splits(ctx context.Context, wallet string, endTs int64) ([]domain.SplitEvent, error) {
	clause, extra := endTsClause(endTs)
	rows, err := s.db.QueryContext(ctx,
		`SELECT tx_hash, log_index, block_number, ts, adapter, condition_id, partition, amount_raw
		 FROM splits WHERE wallet = ?`+clause+` ORDER BY ts, block_number, log_index`,
		append([]any{wallet}, extra...)...)
	if err != nil {
		return nil, fmt.Errorf("store.Splits: query: %w", err)
	}
	defer rows.Close()

	var out []domain.SplitEvent
	for rows.Next() {
		var txHash, conditionID, partitionCSV, amountRaw string
		var logIndex, block uint64
		var ts int64
		var adapter int
		if err := rows.Scan(&txHash, &logIndex, &block, &ts, &adapter, &conditionID, &partitionCSV, &amountRaw); err != nil {
			return nil, fmt.Errorf("store.Splits: scan: %w", err)
		}
		amount, err := fixedpoint.ParseRaw(amountRaw)
		if err != nil {
			return nil, err
		}
		legs, err := s.legsForTx(ctx, txHash)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.NewSplitEvent(txHash, logIndex, block, ts, conditionID, parseCSVUints(partitionCSV), amount, legs, domain.SplitKind(adapter)))
	}
	return out, rows.Err()
}

func (s *SQLite) Merges(ctx context.Context, wallet string, endTs int64) ([]domain.MergeEvent, error) {
	clause, extra := endTsClause(endTs)
	rows, err := s.db.QueryContext(ctx,
		`SELECT tx_hash, log_index, block_number, ts, adapter, condition_id, partition, amount_raw
		 FROM merges WHERE wallet = ?`+clause+` ORDER BY ts, block_number, log_index`,
		append([]any{wallet}, extra...)...)
	if err != nil {
		return nil, fmt.Errorf("store.Merges: query: %w", err)
	}
	defer rows.Close()

	var out []domain.MergeEvent
	for rows.Next() {
		var txHash, conditionID, partitionCSV, amountRaw string
		var logIndex, block uint64
		var ts int64
		var adapter int
		if err := rows.Scan(&txHash, &logIndex, &block, &ts, &adapter, &conditionID, &partitionCSV, &amountRaw); err != nil {
			return nil, fmt.Errorf("store.Merges: scan: %w", err)
		}
		amount, err := fixedpoint.ParseRaw(amountRaw)
		if err != nil {
			return nil, err
		}
		legs, err := s.legsForTx(ctx, txHash)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.NewMergeEvent(txHash, logIndex, block, ts, conditionID, parseCSVUints(partitionCSV), amount, legs, domain.SplitKind(adapter)))
	}
	return out, rows.Err()
}

func (s *SQLite) Redemptions(ctx context.Context, wallet string, endTs int64) ([]domain.RedemptionEvent, error) {
	clause, extra := endTsClause(endTs)
	rows, err := s.db.QueryContext(ctx,
		`SELECT tx_hash, log_index, block_number, ts, adapter, condition_id, index_sets, payout_raw
		 FROM redemptions WHERE wallet = ?`+clause+` ORDER BY ts, block_number, log_index`,
		append([]any{wallet}, extra...)...)
	if err != nil {
		return nil, fmt.Errorf("store.Redemptions: query: %w", err)
	}
	defer rows.Close()

	var out []domain.RedemptionEvent
	for rows.Next() {
		var txHash, conditionID, indexSetsCSV, payoutRaw string
		var logIndex, block uint64
		var ts int64
		var adapter int
		if err := rows.Scan(&txHash, &logIndex, &block, &ts, &adapter, &conditionID, &indexSetsCSV, &payoutRaw); err != nil {
			return nil, fmt.Errorf("store.Redemptions: scan: %w", err)
		}
		payout, err := fixedpoint.ParseRaw(payoutRaw)
		if err != nil {
			return nil, err
		}
		legs, err := s.legsForTx(ctx, txHash)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.NewRedemptionEvent(txHash, logIndex, block, ts, conditionID, parseCSVUints(indexSetsCSV), payout, legs, domain.SplitKind(adapter)))
	}
	return out, rows.Err()
}

func (s *SQLite) AdapterConversions(ctx context.Context, wallet string, endTs int64) ([]domain.AdapterConversionEvent, error) {
	clause, extra := endTsClause(endTs)
	rows, err := s.db.QueryContext(ctx,
		`SELECT tx_hash, log_index, block_number, ts, market_id, index_set, question_count, amount_raw, adapter_address, wrapped_collateral
		 FROM adapter_conversions WHERE wallet = ?`+clause+` ORDER BY ts, block_number, log_index`,
		append([]any{wallet}, extra...)...)
	if err != nil {
		return nil, fmt.Errorf("store.AdapterConversions: query: %w", err)
	}
	defer rows.Close()

	var out []domain.AdapterConversionEvent
	for rows.Next() {
		var txHash, marketIDHex, amountRaw, adapterAddr, wrapped string
		var logIndex, block, indexSet uint64
		var ts int64
		var questionCount int
		if err := rows.Scan(&txHash, &logIndex, &block, &ts, &marketIDHex, &indexSet, &questionCount, &amountRaw, &adapterAddr, &wrapped); err != nil {
			return nil, fmt.Errorf("store.AdapterConversions: scan: %w", err)
		}
		amount, err := fixedpoint.ParseRaw(amountRaw)
		if err != nil {
			return nil, err
		}
		legs, err := s.legsForTx(ctx, txHash)
		if err != nil {
			return nil, err
		}
		marketID := common.HexToHash(marketIDHex)
		out = append(out, domain.NewAdapterConversionEvent(txHash, logIndex, block, ts, marketID, indexSet, questionCount, amount, adapterAddr, wrapped, legs))
	}
	return out, rows.Err()
}

func (s *SQLite) Transfers(ctx context.Context, wallet string, endTs int64) ([]domain.TransferEvent, error) {
	clause, extra := endTsClause(endTs)
	rows, err := s.db.QueryContext(ctx,
		`SELECT tx_hash, log_index, block_number, ts, token_id, value_raw, operator, from_addr, to_addr
		 FROM transfers WHERE (from_addr = ? OR to_addr = ?)`+clause+` ORDER BY ts, block_number, log_index`,
		append([]any{wallet, wallet}, extra...)...)
	if err != nil {
		return nil, fmt.Errorf("store.Transfers: query: %w", err)
	}
	defer rows.Close()

	var out []domain.TransferEvent
	for rows.Next() {
		var txHash, tokenID, valueRaw, operator, from, to string
		var logIndex, block uint64
		var ts int64
		if err := rows.Scan(&txHash, &logIndex, &block, &ts, &tokenID, &valueRaw, &operator, &from, &to); err != nil {
			return nil, fmt.Errorf("store.Transfers: scan: %w", err)
		}
		value, err := fixedpoint.ParseRaw(valueRaw)
		if err != nil {
			return nil, err
		}
		dir := domain.TransferIn
		if from == wallet {
			dir = domain.TransferOut
		}
		out = append(out, domain.NewTransferEvent(txHash, logIndex, block, ts, tokenID, value, dir, operator, from, to))
	}
	return out, rows.Err()
}

func (s *SQLite) FeeEvents(ctx context.Context, wallet string, endTs int64) ([]domain.FeeEvent, error) {
	clause, extra := endTsClause(endTs)
	rows, err := s.db.QueryContext(ctx,
		`SELECT tx_hash, log_index, block_number, ts, amount_raw, direction
		 FROM fee_events WHERE wallet = ?`+clause+` ORDER BY ts, block_number, log_index`,
		append([]any{wallet}, extra...)...)
	if err != nil {
		return nil, fmt.Errorf("store.FeeEvents: query: %w", err)
	}
	defer rows.Close()

	var out []domain.FeeEvent
	for rows.Next() {
		var txHash, amountRaw string
		var logIndex, block uint64
		var ts int64
		var direction int
		if err := rows.Scan(&txHash, &logIndex, &block, &ts, &amountRaw, &direction); err != nil {
			return nil, fmt.Errorf("store.FeeEvents: scan: %w", err)
		}
		amount, err := fixedpoint.ParseRaw(amountRaw)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.NewFeeEvent(txHash, logIndex, block, ts, amount, domain.FeeDirection(direction)))
	}
	return out, rows.Err()
}

func (s *SQLite) Conditions(ctx context.Context) ([]domain.Condition, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT condition_id, oracle, outcome_slot_count, parent_collection_id, collateral_token,
		        payout_numerators, payout_denominator, resolved_at, resolved_block FROM conditions`)
	if err != nil {
		return nil, fmt.Errorf("store.Conditions: query: %w", err)
	}
	defer rows.Close()

	var out []domain.Condition
	for rows.Next() {
		var cond domain.Condition
		var parentHex string
		var numeratorsCSV sql.NullString
		var slotCount uint
		if err := rows.Scan(&cond.ConditionID, &cond.Oracle, &slotCount, &parentHex, &cond.CollateralToken,
			&numeratorsCSV, &cond.Payout.Denominator, &cond.ResolvedAt, &cond.ResolvedBlock); err != nil {
			return nil, fmt.Errorf("store.Conditions: scan: %w", err)
		}
		cond.OutcomeSlotCount = slotCount
		cond.ParentCollectionID = common.HexToHash(parentHex)
		if numeratorsCSV.Valid {
			cond.Payout.Numerators = parseCSVUints(numeratorsCSV.String)
		}
		out = append(out, cond)
	}
	return out, rows.Err()
}

func (s *SQLite) QuestionCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT market_id, question_count FROM neg_risk_question_counts`)
	if err != nil {
		return nil, fmt.Errorf("store.QuestionCounts: query: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var marketID string
		var count int
		if err := rows.Scan(&marketID, &count); err != nil {
			return nil, fmt.Errorf("store.QuestionCounts: scan: %w", err)
		}
		out[marketID] = count
	}
	return out, rows.Err()
}

// DeleteRange removes every ledger_entries/snapshots row for wallet whose
// timestamp falls in [start, end], making a rerun over the same window
// idempotent (spec.md §6).
func (s *SQLite) DeleteRange(ctx context.Context, wallet string, start, end int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store.DeleteRange: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM ledger_entries WHERE wallet = ? AND ts BETWEEN ? AND ?`, wallet, start, end); err != nil {
		return fmt.Errorf("store.DeleteRange: ledger_entries: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE wallet = ? AND at_ts BETWEEN ? AND ?`, wallet, start, end); err != nil {
		return fmt.Errorf("store.DeleteRange: snapshots: %w", err)
	}
	return tx.Commit()
}

func (s *SQLite) InsertLedgerEntries(ctx context.Context, entries []domain.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store.InsertLedgerEntries: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ledger_entries
			(stable_id, wallet, entry_type, tx_hash, log_index, block_number, ts,
			 token_id, condition_id, quantity, cash_delta, unit_price, cost_basis, realized_pnl, entry_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(stable_id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("store.InsertLedgerEntries: prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.StableID, e.Wallet, string(e.EntryType), e.TxHash, e.LogIndex, e.BlockNumber, e.Timestamp,
			e.TokenID, e.ConditionID, e.Quantity, e.CashDelta, e.UnitPrice, e.CostBasis, e.RealizedPnL, e.EntryTimestamp); err != nil {
			return fmt.Errorf("store.InsertLedgerEntries: insert %s: %w", e.StableID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) InsertSnapshots(ctx context.Context, snapshots []domain.Snapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store.InsertSnapshots: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO snapshots (wallet, at_ts, realized_cum, unrealized, open_cost, open_value, cashflow_cum, open_token_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(wallet, at_ts) DO UPDATE SET
			realized_cum = excluded.realized_cum, unrealized = excluded.unrealized,
			open_cost = excluded.open_cost, open_value = excluded.open_value,
			cashflow_cum = excluded.cashflow_cum, open_token_count = excluded.open_token_count
	`)
	if err != nil {
		return fmt.Errorf("store.InsertSnapshots: prepare: %w", err)
	}
	defer stmt.Close()

	for _, s := range snapshots {
		if _, err := stmt.ExecContext(ctx, s.Wallet, s.At, s.RealizedCum, s.Unrealized, s.OpenCost, s.OpenValue, s.CashflowCum, s.OpenTokenCount); err != nil {
			return fmt.Errorf("store.InsertSnapshots: insert: %w", err)
		}
	}
	return tx.Commit()
}

func parseCSVUints(s string) []uint64 {
	var out []uint64
	var cur uint64
	has := false
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if has {
				out = append(out, cur)
			}
			cur, has = 0, false
			continue
		}
		d := s[i] - '0'
		if d > 9 {
			continue
		}
		cur = cur*10 + uint64(d)
		has = true
	}
	return out
}
