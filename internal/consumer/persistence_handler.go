package consumer

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditHandler appends consumed events to ledger_event_log. Redelivered
// offsets are ignored.
type AuditHandler struct {
	pool *pgxpool.Pool
}

// NewAuditHandler constructs a handler backed by pool.
func NewAuditHandler(pool *pgxpool.Pool) *AuditHandler {
	return &AuditHandler{pool: pool}
}

// Handle implements Handler.
func (h *AuditHandler) Handle(ctx context.Context, msg Message) error {
	_, err := h.pool.Exec(ctx,
		`INSERT INTO ledger_event_log (topic, kafka_partition, kafka_offset, event_type, event_key, schema_id, payload, received_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7, COALESCE($8, NOW()))
		 ON CONFLICT (topic, kafka_partition, kafka_offset) DO NOTHING`,
		msg.Topic,
		msg.Partition,
		msg.Offset,
		msg.EventType,
		msg.Key,
		msg.SchemaID,
		msg.Payload,
		nullTime(msg),
	)
	return err
}

func nullTime(msg Message) any {
	if msg.Timestamp.IsZero() {
		return nil
	}
	return msg.Timestamp
}
