package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"example.com/octofit/pkg/events"
)

// EventMetadata routes an outbox event type to its topic and schema subject.
type EventMetadata struct {
	Topic         string
	SchemaSubject string
	// Once marks events that happen at most once per aggregate; they carry a
	// dedupe key so a replayed transaction cannot enqueue them twice.
	Once bool
}

var eventCatalog = map[string]EventMetadata{
	events.TypeActivityLogged:   {Topic: events.TopicActivityEvents, SchemaSubject: events.SubjectActivityEvents, Once: true},
	events.TypeActivityVoided:   {Topic: events.TopicActivityEvents, SchemaSubject: events.SubjectActivityEvents, Once: true},
	events.TypeTeamMemberJoined: {Topic: events.TopicTeamEvents, SchemaSubject: events.SubjectTeamEvents},
	events.TypeTeamMemberLeft:   {Topic: events.TopicTeamEvents, SchemaSubject: events.SubjectTeamEvents},
}

func insertOutbox(ctx context.Context, tx pgx.Tx, aggregateType, aggregateID, eventType, partitionKey string, payload any) error {
	meta, ok := eventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type %q", eventType)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	var dedupeKey *string
	if meta.Once {
		key := fmt.Sprintf("%s:%s", aggregateID, eventType)
		dedupeKey = &key
	}

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err = tx.Exec(ctx, stmt,
		aggregateType,
		aggregateID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		partitionKey,
		body,
		dedupeKey,
	)
	return err
}
