package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	domrepo "sentioracle/internal/domain/repository"
)

// ClickHouseCycleMetrics persists one audit row per completed
// Orchestrator cycle for offline review of throughput and veto rates.
type ClickHouseCycleMetrics struct {
	db    *sql.DB
	table string
}

// NewClickHouseCycleMetrics builds a CycleMetricsStore against one
// fully-qualified table name.
func NewClickHouseCycleMetrics(db *sql.DB, table string) *ClickHouseCycleMetrics {
	return &ClickHouseCycleMetrics{db: db, table: table}
}

// Init implements domain/repository.CycleMetricsStore.
func (c *ClickHouseCycleMetrics) Init(ctx context.Context) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		cohort String,
		started_at DateTime,
		samples UInt32,
		vetoed UInt32,
		broadcasts UInt32,
		recorded_at DateTime DEFAULT now()
	) ENGINE = MergeTree ORDER BY started_at`, c.table)
	if _, err := c.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("clickhouse cycle metrics: init: %w", err)
	}
	return nil
}

// RecordCycle implements domain/repository.CycleMetricsStore.
func (c *ClickHouseCycleMetrics) RecordCycle(ctx context.Context, cohort string, startedAt time.Time, samples, vetoed, broadcasts int) error {
	stmt := fmt.Sprintf(`INSERT INTO %s (cohort, started_at, samples, vetoed, broadcasts) VALUES (?, ?, ?, ?, ?)`, c.table)
	_, err := c.db.ExecContext(ctx, stmt, cohort, startedAt, samples, vetoed, broadcasts)
	if err != nil {
		return fmt.Errorf("clickhouse cycle metrics: record: %w", err)
	}
	return nil
}

// Close implements domain/repository.CycleMetricsStore; the underlying
// *sql.DB is owned by the shared ClickHouse client.
func (c *ClickHouseCycleMetrics) Close() error { return nil }

var _ domrepo.CycleMetricsStore = (*ClickHouseCycleMetrics)(nil)
