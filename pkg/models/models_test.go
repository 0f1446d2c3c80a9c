package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskStateTransitions(t *testing.T) {
	tests := []struct {
		from, to TaskState
		allowed  bool
	}{
		{TaskScheduled, TaskDelayed, true},
		{TaskDelayed, TaskClaimed, true},
		{TaskClaimed, TaskProcessed, true},
		{TaskClaimed, TaskFailedRetryable, true},
		{TaskClaimed, TaskFailedTerminal, true},
		{TaskFailedRetryable, TaskDelayed, true},
		{TaskFailedRetryable, TaskDeadLettered, true},
		{TaskFailedTerminal, TaskDeadLettered, true},
		{TaskDeadLettered, TaskDelayed, true},
		{TaskScheduled, TaskClaimed, false},
		{TaskDelayed, TaskProcessed, false},
		{TaskProcessed, TaskDelayed, false},
		{TaskFailedTerminal, TaskDelayed, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransition(tt.to))
		})
	}
}

func TestDeliveryTaskTransition(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	task := NewDeliveryTask("L1", "source/crm_event_L1.json", now, 10*time.Minute)

	assert.Equal(t, "L1", task.ID)
	assert.Equal(t, now.Add(10*time.Minute), task.NotBefore)
	assert.False(t, task.Ready(now.Add(9*time.Minute)))
	assert.True(t, task.Ready(now.Add(10*time.Minute)))

	require.NoError(t, task.Transition(TaskDelayed))
	require.NoError(t, task.Transition(TaskClaimed))
	require.NoError(t, task.Transition(TaskProcessed))
	assert.True(t, task.State.IsTerminal())
	assert.Error(t, task.Transition(TaskDelayed))
}

func TestOwnerFromMapAliases(t *testing.T) {
	rec := OwnerFromMap(map[string]interface{}{
		"lead_id":    "L9",
		"lead_owner": "Sam Smith",
		"lead_email": "sam@x.com",
		"funnel":     "Enterprise",
		"updated_at": "2026-02-01T10:00:00Z",
	})

	assert.Equal(t, OwnerRecord{
		LeadID:     "L9",
		OwnerName:  "Sam Smith",
		OwnerEmail: "sam@x.com",
		Team:       "Enterprise",
		UpdatedAt:  time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC),
	}, rec)

	var decoded OwnerRecord
	require.NoError(t, json.Unmarshal([]byte(`{"owner_name":"Jane Doe","owner_email":"jane@x.com"}`), &decoded))
	assert.Equal(t, "Jane Doe", decoded.OwnerName)
	assert.Empty(t, decoded.Team)
	assert.False(t, decoded.IsEmpty())
}

func TestMostRecent(t *testing.T) {
	older := OwnerRecord{OwnerName: "Old", UpdatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	newer := OwnerRecord{OwnerName: "New", UpdatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}

	got, ok := MostRecent([]OwnerRecord{older, newer})
	require.True(t, ok)
	assert.Equal(t, "New", got.OwnerName)

	_, ok = MostRecent(nil)
	assert.False(t, ok)
}

func TestEnrichedLeadJSONIsFlatAndSorted(t *testing.T) {
	lead := EnrichedLead{
		LeadID:     "L1",
		Fields:     map[string]interface{}{"name": "Acme Co", "lead_id": "ignored"},
		OwnerName:  "Jane Doe",
		OwnerEmail: "jane@x.com",
		EnrichedAt: time.Date(2026, 3, 1, 12, 10, 0, 0, time.UTC),
		Status:     EnrichmentMatched,
	}

	data, err := json.Marshal(lead)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"lead_id":"L1",
		"name":"Acme Co",
		"owner_name":"Jane Doe",
		"owner_email":"jane@x.com",
		"enriched_at":"2026-03-01T12:10:00Z",
		"enrichment_status":"matched"
	}`, string(data))

	again, err := json.Marshal(lead)
	require.NoError(t, err)
	assert.Equal(t, data, again)

	var decoded EnrichedLead
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "Acme Co", decoded.Field("name"))
	assert.Equal(t, EnrichmentMatched, decoded.Status)
	assert.Equal(t, "Acme Co", decoded.DisplayName())
}

func TestEmailEventFromPayload(t *testing.T) {
	ev := EmailEvent{
		DedupKey:   "k",
		LeadID:     "L1",
		Subject:    "New Lead: Acme Co",
		Body:       "Name: Acme Co",
		Recipients: []string{"sales@x.com"},
	}

	decoded, err := EmailEventFromPayload(ev.ToPayload())
	require.NoError(t, err)
	assert.Equal(t, ev, decoded)

	_, err = EmailEventFromPayload(map[string]interface{}{"lead_id": "L1", "subject": "s"})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "recipients", vErr.Field)
}

func TestParseChannel(t *testing.T) {
	ch, err := ParseChannel("chat")
	require.NoError(t, err)
	assert.Equal(t, ChannelChat, ch)

	_, err = ParseChannel("sms")
	assert.Error(t, err)
}
