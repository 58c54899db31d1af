package observability

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// ClickHouseSink is a durable analytics sink for the pipeline events that
// PipelineMetrics only exports transiently via OTLP: per-session reflection
// quality scores and per-node confidence deltas. Best-effort CREATE TABLE
// IF NOT EXISTS bootstrap, then a narrow insert path into two analytics
// tables.
type ClickHouseSink struct {
	conn clickhouse.Conn
}

// NewClickHouseSink dials dsn and bootstraps the two analytics tables. A
// missing/unreachable dsn is reported as an error so the caller can treat
// ClickHouse as an optional, droppable collaborator; persistence failures
// are logged, not fatal.
func NewClickHouseSink(ctx context.Context, dsn string) (*ClickHouseSink, error) {
	if dsn == "" {
		return nil, fmt.Errorf("clickhouse sink: empty dsn")
	}
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("clickhouse sink: parse dsn: %w", err)
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("clickhouse sink: open: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("clickhouse sink: ping: %w", err)
	}
	s := &ClickHouseSink{conn: conn}
	if err := s.ensureTables(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ClickHouseSink) ensureTables(ctx context.Context) error {
	ddls := []string{
		`CREATE TABLE IF NOT EXISTS psychoportal_reflections (
			session_id String,
			recorded_at DateTime64(3),
			quality_score Float64,
			message_count UInt32
		) ENGINE = MergeTree() ORDER BY (session_id, recorded_at)`,
		`CREATE TABLE IF NOT EXISTS psychoportal_confidence_deltas (
			node_id String,
			reason String,
			recorded_at DateTime64(3),
			delta Float64
		) ENGINE = MergeTree() ORDER BY (node_id, recorded_at)`,
	}
	for _, ddl := range ddls {
		if err := s.conn.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("clickhouse sink: bootstrap table: %w", err)
		}
	}
	return nil
}

// RecordReflection persists one reflection-pass quality score, the durable
// counterpart to PipelineMetrics.ReflectionQuality's transient OTLP export.
func (s *ClickHouseSink) RecordReflection(ctx context.Context, sessionID string, quality float64, messageCount int) {
	_ = s.conn.Exec(ctx,
		`INSERT INTO psychoportal_reflections (session_id, recorded_at, quality_score, message_count) VALUES (?, ?, ?, ?)`,
		sessionID, time.Now(), quality, uint32(messageCount))
}

// RecordConfidenceDelta persists one graph confidence update, mirroring
// RecordConfidenceDelta's OTLP histogram but queryable after the fact
// (e.g. "which nodes have been corrected repeatedly this week").
func (s *ClickHouseSink) RecordConfidenceDelta(ctx context.Context, nodeID, reason string, delta float64) {
	_ = s.conn.Exec(ctx,
		`INSERT INTO psychoportal_confidence_deltas (node_id, reason, recorded_at, delta) VALUES (?, ?, ?, ?)`,
		nodeID, reason, time.Now(), delta)
}

// Close releases the underlying ClickHouse connection.
func (s *ClickHouseSink) Close() error {
	return s.conn.Close()
}
