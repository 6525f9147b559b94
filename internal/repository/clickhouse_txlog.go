// Package repository holds ClickHouse- and Kafka-backed implementations
// of the domain repository interfaces: transaction-watcher audit log,
// per-cycle metrics, and confirmed-update fan-out.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"sentioracle/internal/domain/models"
	domrepo "sentioracle/internal/domain/repository"
)

// ClickHouseTxLog persists the Submitter's per-transaction audit trail,
// the record a restart reads back to reconcile in-flight nonces instead
// of broadcasting blind. Raw SQL over database/sql, the same shape the
// teacher's feature-store repository used for its ClickHouse writes.
type ClickHouseTxLog struct {
	db    *sql.DB
	table string
}

// NewClickHouseTxLog builds a TxLogStore against one fully-qualified
// table name (e.g. "sentioracle.tx_log").
func NewClickHouseTxLog(db *sql.DB, table string) *ClickHouseTxLog {
	return &ClickHouseTxLog{db: db, table: table}
}

// Init implements domain/repository.TxLogStore.
func (c *ClickHouseTxLog) Init(ctx context.Context) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		hash String,
		nonce UInt64,
		gas_price UInt64,
		status String,
		assets Array(String),
		attempt UInt32,
		recorded_at DateTime DEFAULT now()
	) ENGINE = MergeTree ORDER BY (nonce, recorded_at)`, c.table)
	if _, err := c.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("clickhouse txlog: init: %w", err)
	}
	return nil
}

// Append implements domain/repository.TxLogStore.
func (c *ClickHouseTxLog) Append(ctx context.Context, rec models.TxRecord) error {
	stmt := fmt.Sprintf(`INSERT INTO %s (hash, nonce, gas_price, status, assets, attempt) VALUES (?, ?, ?, ?, ?, ?)`, c.table)
	_, err := c.db.ExecContext(ctx, stmt, rec.Hash, rec.Nonce, rec.GasPrice, string(rec.Status), rec.Assets, rec.Attempt)
	if err != nil {
		return fmt.Errorf("clickhouse txlog: append: %w", err)
	}
	return nil
}

// Recent implements domain/repository.TxLogStore. signer is currently
// advisory: the table is not yet partitioned per signer address since a
// single-signer deployment is the only configuration this pipeline
// supports today.
func (c *ClickHouseTxLog) Recent(ctx context.Context, _ string, since time.Time, limit int) ([]models.TxRecord, error) {
	var rows *sql.Rows
	var err error
	if since.IsZero() {
		stmt := fmt.Sprintf(`SELECT hash, nonce, gas_price, status, assets, attempt FROM %s ORDER BY nonce DESC LIMIT ?`, c.table)
		rows, err = c.db.QueryContext(ctx, stmt, limit)
	} else {
		stmt := fmt.Sprintf(`SELECT hash, nonce, gas_price, status, assets, attempt FROM %s WHERE recorded_at >= ? ORDER BY nonce DESC LIMIT ?`, c.table)
		rows, err = c.db.QueryContext(ctx, stmt, since, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("clickhouse txlog: recent: %w", err)
	}
	defer rows.Close()

	var out []models.TxRecord
	for rows.Next() {
		var rec models.TxRecord
		var status string
		if err := rows.Scan(&rec.Hash, &rec.Nonce, &rec.GasPrice, &status, &rec.Assets, &rec.Attempt); err != nil {
			return nil, fmt.Errorf("clickhouse txlog: scan: %w", err)
		}
		rec.Status = models.TxStatus(status)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close implements domain/repository.TxLogStore. The underlying *sql.DB
// is owned by the shared ClickHouse client, so Close is a no-op here.
func (c *ClickHouseTxLog) Close() error { return nil }

var _ domrepo.TxLogStore = (*ClickHouseTxLog)(nil)
