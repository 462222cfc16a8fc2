//go:build integration

package consumer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/octofit/internal/persistence/postgres/pgtest"
	"example.com/octofit/pkg/events"
)

func TestAuditHandlerStoresEventOnce(t *testing.T) {
	ctx := context.Background()
	pool := pgtest.Start(t)
	handler := NewAuditHandler(pool)

	payload := json.RawMessage(`{"activity_id":"abc","user_id":"alice"}`)
	msg := Message{
		Topic:         events.TopicActivityEvents,
		Partition:     0,
		Offset:        5,
		Key:           "alice",
		EventType:     events.TypeActivityLogged,
		SchemaSubject: events.SubjectActivityEvents,
		SchemaID:      42,
		Payload:       payload,
		Timestamp:     time.Now().UTC(),
	}

	require.NoError(t, handler.Handle(ctx, msg))
	require.NoError(t, handler.Handle(ctx, msg))

	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM ledger_event_log`).Scan(&count))
	require.Equal(t, 1, count)

	var (
		stored []byte
		key    string
	)
	require.NoError(t, pool.QueryRow(ctx, `SELECT payload, event_key FROM ledger_event_log LIMIT 1`).Scan(&stored, &key))
	require.JSONEq(t, string(payload), string(stored))
	require.Equal(t, "alice", key)
}
