package clickhouse

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/paeltech/savannaFx-sub000/internal/domain/models"
	drepo "github.com/paeltech/savannaFx-sub000/internal/domain/repository"
)

const chunkSize = 2000

// Schema returns the DDL for the delivery log table.
func Schema(table string) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	sent_at    DateTime64(3, 'UTC'),
	trigger_id String,
	signal_id  String,
	kind       LowCardinality(String),
	user_id    String,
	target     String,
	channel    LowCardinality(String),
	ok         UInt8,
	error      String
) ENGINE = MergeTree
PARTITION BY toYYYYMM(sent_at)
ORDER BY (signal_id, sent_at, user_id)`, table),
	}
}

// DeliveryLog appends per-recipient dispatch outcomes to ClickHouse.
type DeliveryLog struct {
	db    *sql.DB
	table string
}

var _ drepo.DeliveryLog = (*DeliveryLog)(nil)

func NewDeliveryLog(db *sql.DB, table string) *DeliveryLog {
	if table == "" {
		table = "delivery_log"
	}
	return &DeliveryLog{db: db, table: table}
}

// RecordBatch inserts records with multi-row VALUES in chunks.
func (l *DeliveryLog) RecordBatch(ctx context.Context, records []models.DeliveryRecord) error {
	for start := 0; start < len(records); start += chunkSize {
		end := start + chunkSize
		if end > len(records) {
			end = len(records)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*9)
		for _, r := range records[start:end] {
			ok := uint8(0)
			if r.OK {
				ok = 1
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args, r.SentAt, r.TriggerID, r.SignalID, string(r.Kind), r.UserID, r.Target, r.Channel, ok, r.Error)
		}
		q := fmt.Sprintf("INSERT INTO %s (sent_at, trigger_id, signal_id, kind, user_id, target, channel, ok, error) VALUES %s",
			l.table, strings.Join(values, ","))
		if _, err := l.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert delivery log: %w", err)
		}
	}
	return nil
}

// DeliveryStats is the per-channel outcome count for one signal.
type DeliveryStats struct {
	Channel string `json:"channel"`
	Sent    uint64 `json:"sent"`
	Failed  uint64 `json:"failed"`
}

// Stats aggregates outcomes of every dispatch of signalID.
func (l *DeliveryLog) Stats(ctx context.Context, signalID string) ([]DeliveryStats, error) {
	q := fmt.Sprintf("SELECT channel, countIf(ok = 1), countIf(ok = 0) FROM %s WHERE signal_id = ? GROUP BY channel ORDER BY channel", l.table)
	rows, err := l.db.QueryContext(ctx, q, signalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DeliveryStats
	for rows.Next() {
		var s DeliveryStats
		if err := rows.Scan(&s.Channel, &s.Sent, &s.Failed); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
