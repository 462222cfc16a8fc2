package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/octofit/pkg/events"
)

func message(id int64, eventType, topic, subject, key string) Message {
	return Message{
		EventID:       id,
		AggregateType: "activity",
		AggregateID:   "agg",
		EventType:     eventType,
		Topic:         topic,
		SchemaSubject: subject,
		PartitionKey:  key,
		Payload:       json.RawMessage(`{"user_id":"` + key + `"}`),
	}
}

func TestWireFormatRoundTrip(t *testing.T) {
	framed := encodeWireFormat(258, []byte(`{"a":1}`))
	require.Equal(t, []byte{0, 0, 0, 1, 2}, framed[:5])

	id, payload, err := DecodeWireFormat(framed)
	require.NoError(t, err)
	require.Equal(t, 258, id)
	require.JSONEq(t, `{"a":1}`, string(payload))

	_, _, err = DecodeWireFormat([]byte{0, 1})
	require.Error(t, err)
	_, _, err = DecodeWireFormat([]byte{1, 0, 0, 0, 1, '{', '}'})
	require.Error(t, err)
}

func TestDeliverGroupsByTopicAndSetsHeaders(t *testing.T) {
	producer := &stubProducer{}
	registry := &stubRegistry{id: 42}
	d := NewDispatcher(nil, producer, registry, time.Second, 10)

	err := d.deliver(context.Background(), []Message{
		message(1, events.TypeActivityLogged, events.TopicActivityEvents, events.SubjectActivityEvents, "alice"),
		message(2, events.TypeTeamMemberJoined, events.TopicTeamEvents, events.SubjectTeamEvents, "team-1"),
		message(3, events.TypeActivityVoided, events.TopicActivityEvents, events.SubjectActivityEvents, "alice"),
	})
	require.NoError(t, err)

	require.Len(t, producer.writes, 2)
	require.Equal(t, events.TopicActivityEvents, producer.writes[0].topic)
	require.Len(t, producer.writes[0].messages, 2)
	require.Equal(t, events.TopicTeamEvents, producer.writes[1].topic)

	first := producer.writes[0].messages[0]
	require.Equal(t, []byte("alice"), first.Key)
	require.Equal(t, events.HeaderEventType, first.Headers[0].Key)
	require.Equal(t, events.TypeActivityLogged, string(first.Headers[0].Value))
	require.Equal(t, events.SubjectActivityEvents, string(first.Headers[1].Value))

	id, payload, err := DecodeWireFormat(first.Value)
	require.NoError(t, err)
	require.Equal(t, 42, id)
	require.JSONEq(t, `{"user_id":"alice"}`, string(payload))

	// Logged and voided share a subject, so the registry sees two subjects.
	require.Len(t, registry.calls, 2)
}

func TestDeliverCachesSchemaIDs(t *testing.T) {
	registry := &stubRegistry{id: 7}
	d := NewDispatcher(nil, &stubProducer{}, registry, time.Second, 10)
	batch := []Message{message(1, events.TypeTeamMemberLeft, events.TopicTeamEvents, events.SubjectTeamEvents, "t")}

	require.NoError(t, d.deliver(context.Background(), batch))
	require.NoError(t, d.deliver(context.Background(), batch))
	require.Len(t, registry.calls, 1)
}

func TestDeliverFailsOnUnknownEventType(t *testing.T) {
	producer := &stubProducer{}
	registry := &stubRegistry{}
	d := NewDispatcher(nil, producer, registry, time.Second, 10)

	err := d.deliver(context.Background(), []Message{message(1, "activity.unknown", events.TopicActivityEvents, events.SubjectActivityEvents, "x")})
	require.ErrorContains(t, err, "no schema metadata for event_type=activity.unknown")
	require.Empty(t, producer.writes)
	require.Empty(t, registry.calls)
}

func TestDeliverSurfacesProducerAndRegistryErrors(t *testing.T) {
	batch := []Message{message(1, events.TypeActivityLogged, events.TopicActivityEvents, events.SubjectActivityEvents, "a")}

	d := NewDispatcher(nil, &stubProducer{err: errors.New("broker down")}, &stubRegistry{}, time.Second, 10)
	require.ErrorContains(t, d.deliver(context.Background(), batch), "broker down")

	d = NewDispatcher(nil, &stubProducer{}, &stubRegistry{err: errors.New("registry down")}, time.Second, 10)
	require.ErrorContains(t, d.deliver(context.Background(), batch), "registry down")
}

func TestBackoffDelayDoublesAndCaps(t *testing.T) {
	m := NewDLQManager(nil, 3, time.Minute)
	require.Equal(t, time.Minute, m.backoffDelay(1))
	require.Equal(t, 2*time.Minute, m.backoffDelay(2))
	require.Equal(t, 8*time.Minute, m.backoffDelay(4))
	require.Equal(t, time.Hour, m.backoffDelay(7))
	require.Equal(t, time.Hour, m.backoffDelay(64))
}

func TestSchemaRegistryRegistersMissingSubject(t *testing.T) {
	var registered string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/subjects/team_events-value/versions/latest":
			http.NotFound(w, r)
		case r.Method == http.MethodPost && r.URL.Path == "/subjects/team_events-value/versions":
			var body struct {
				SchemaType string `json:"schemaType"`
				Schema     string `json:"schema"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			registered = body.SchemaType
			_, _ = w.Write([]byte(`{"id":11}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	id, err := NewSchemaRegistryClient(srv.URL+"/").EnsureSchema(context.Background(), events.SubjectTeamEvents, teamEventsSchema)
	require.NoError(t, err)
	require.Equal(t, 11, id)
	require.Equal(t, "JSON", registered)
}

func TestSchemaRegistryReusesLatestVersion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte(`{"id":5,"version":3}`))
	}))
	defer srv.Close()

	id, err := NewSchemaRegistryClient(srv.URL).EnsureSchema(context.Background(), events.SubjectActivityEvents, activityEventsSchema)
	require.NoError(t, err)
	require.Equal(t, 5, id)
}

func TestSchemaRegistryDoesNotRegisterOnServerError(t *testing.T) {
	posts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			posts++
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewSchemaRegistryClient(srv.URL).EnsureSchema(context.Background(), events.SubjectActivityEvents, activityEventsSchema)
	require.Error(t, err)
	require.Zero(t, posts)
}

func TestSchemasAreValidJSON(t *testing.T) {
	for eventType, entry := range schemaCatalog {
		require.Truef(t, json.Valid([]byte(entry.Schema)), "schema for %s", eventType)
	}
}
