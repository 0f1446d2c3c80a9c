package ingestion

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadflow/internal/config"
	apperrors "leadflow/pkg/errors"
)

var receivedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestNormalizer(t *testing.T, accept string) *Normalizer {
	t.Helper()
	n, err := NewNormalizer(config.IngestionConfig{
		SchemaVersion:    "1",
		RequiredAction:   "created",
		AcceptExpression: accept,
	})
	require.NoError(t, err)
	return n
}

func TestNormalizeFlat(t *testing.T) {
	n := newTestNormalizer(t, "")

	event, err := n.Normalize([]byte(`{"lead_id":" L1 ","name":"Acme Co"}`), receivedAt)
	require.NoError(t, err)
	assert.Equal(t, "L1", event.LeadID)
	assert.Equal(t, "Acme Co", event.Field("name"))
	assert.Equal(t, "1", event.SchemaVersion)
	assert.Equal(t, receivedAt, event.ReceivedAt)
	assert.Equal(t, " L1 ", event.SourcePayload["lead_id"])
}

func TestNormalizeCRMEnvelope(t *testing.T) {
	n := newTestNormalizer(t, "")

	body := `{
		"subscription_id": "sub_1",
		"event": {
			"id": "ev_9",
			"lead_id": "lead_abc",
			"action": "created",
			"data": {"display_name": "Acme Co", "date_created": "2026-03-01T11:59:00Z", "source": "web"}
		}
	}`
	event, err := n.Normalize([]byte(body), receivedAt)
	require.NoError(t, err)
	assert.Equal(t, "lead_abc", event.LeadID)
	assert.Equal(t, "Acme Co", event.Field("display_name"))
	assert.Equal(t, "Unknown", event.Field("status_label"))
	assert.Equal(t, "sub_1", event.Field("subscription_id"))
	assert.Equal(t, "ev_9", event.Field("event_id"))
	assert.Equal(t, "web", event.Field("source"))
}

func TestNormalizeNumericLeadID(t *testing.T) {
	n := newTestNormalizer(t, "")
	event, err := n.Normalize([]byte(`{"lead_id":12345,"email":"a@b.test"}`), receivedAt)
	require.NoError(t, err)
	assert.Equal(t, "12345", event.LeadID)
}

func TestNormalizeRejects(t *testing.T) {
	n := newTestNormalizer(t, "")

	tests := []struct {
		name string
		body string
		want string
	}{
		{"empty", ``, "empty payload"},
		{"not json", `lead_id=L1`, "invalid JSON payload"},
		{"array", `[{"lead_id":"L1"}]`, "payload must be a JSON object"},
		{"trailing data", `{"lead_id":"L1","name":"x"} {}`, "trailing data"},
		{"missing lead_id", `{"name":"Acme Co"}`, "missing required field: lead_id"},
		{"blank lead_id", `{"lead_id":"  ","name":"Acme Co"}`, "lead_id is required"},
		{"object lead_id", `{"lead_id":{"a":1},"name":"Acme Co"}`, "string or number"},
		{"path in lead_id", `{"lead_id":"../etc","name":"Acme Co"}`, "illegal characters"},
		{"slash in lead_id", `{"lead_id":"a/b","name":"Acme Co"}`, "illegal characters"},
		{"no identifying field", `{"lead_id":"L1"}`, "at least one of"},
		{"wrong action", `{"event":{"lead_id":"L1","action":"updated","data":{}}}`, "unsupported event action"},
		{"missing data", `{"event":{"lead_id":"L1","action":"created"}}`, "missing required field: data"},
		{"event not object", `{"event":"created"}`, "missing event object"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := n.Normalize([]byte(tt.body), receivedAt)
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err), "got %v", err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNormalizeIsDeterministic(t *testing.T) {
	n := newTestNormalizer(t, "")
	faker := gofakeit.New(42)

	for i := 0; i < 20; i++ {
		payload := map[string]interface{}{
			"lead_id": faker.UUID(),
			"name":    faker.Company(),
			"email":   faker.Email(),
			"phone":   faker.Phone(),
		}
		body, err := json.Marshal(payload)
		require.NoError(t, err)

		first, err := n.Normalize(body, receivedAt)
		require.NoError(t, err)
		second, err := n.Normalize(body, receivedAt)
		require.NoError(t, err)

		assert.Equal(t, payload["lead_id"], first.LeadID)
		assert.Equal(t, first, second)
	}
}

func TestAcceptExpression(t *testing.T) {
	n := newTestNormalizer(t, `!has(fields.test) || fields.test != true`)

	live, err := n.Normalize([]byte(`{"lead_id":"L1","name":"Acme Co"}`), receivedAt)
	require.NoError(t, err)
	ok, err := n.Accept(t.Context(), live)
	require.NoError(t, err)
	assert.True(t, ok)

	probe, err := n.Normalize([]byte(`{"lead_id":"L2","name":"Probe","test":true}`), receivedAt)
	require.NoError(t, err)
	ok, err = n.Accept(t.Context(), probe)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInvalidAcceptExpression(t *testing.T) {
	_, err := NewNormalizer(config.IngestionConfig{SchemaVersion: "1", AcceptExpression: `lead_id + 1`})
	assert.Error(t, err)
}
