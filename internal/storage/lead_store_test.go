package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadflow/internal/config"
	apperrors "leadflow/pkg/errors"
	"leadflow/pkg/models"
)

func newTestStore() (*LeadStore, *MemoryStore) {
	mem := NewMemoryStore()
	return NewLeadStore(mem, config.StorageConfig{
		Bucket:       "leads",
		SourcePrefix: "source/",
		TargetPrefix: "target/",
	}), mem
}

func rawEvent(receivedAt time.Time) *models.LeadEvent {
	return &models.LeadEvent{
		LeadID:        "L1",
		ReceivedAt:    receivedAt,
		SchemaVersion: "1",
		Fields:        map[string]interface{}{"name": "Acme Co"},
		SourcePayload: map[string]interface{}{"lead_id": "L1", "name": "Acme Co"},
	}
}

func TestKeys(t *testing.T) {
	store, _ := newTestStore()
	assert.Equal(t, "source/crm_event_L1.json", store.RawKey("L1"))
	assert.Equal(t, "target/L1.json", store.EnrichedKey("L1"))
}

func TestPutRawIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store, mem := newTestStore()
	first := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	stored, written, err := store.PutRaw(ctx, rawEvent(first))
	require.NoError(t, err)
	assert.True(t, written)
	assert.Equal(t, first, stored.ReceivedAt)

	stored, written, err = store.PutRaw(ctx, rawEvent(first.Add(time.Minute)))
	require.NoError(t, err)
	assert.False(t, written)
	assert.Equal(t, first, stored.ReceivedAt, "redelivery keeps the first received_at")
	assert.Equal(t, 1, mem.PutCount("leads", "source/crm_event_L1.json"))

	changed := rawEvent(first.Add(2 * time.Minute))
	changed.SourcePayload["name"] = "Acme Corp"
	_, written, err = store.PutRaw(ctx, changed)
	require.NoError(t, err)
	assert.True(t, written)
}

func TestGetRawMissing(t *testing.T) {
	store, _ := newTestStore()
	_, err := store.GetRaw(context.Background(), "nope")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestStorageFailuresAreTransient(t *testing.T) {
	store, mem := newTestStore()
	mem.FailNext(1, errors.New("503 slow down"))

	_, _, err := store.PutRaw(context.Background(), rawEvent(time.Now()))
	require.Error(t, err)
	assert.True(t, apperrors.IsTransient(err))
	assert.True(t, apperrors.IsRetryable(err))
}

func TestPutEnrichedSkipsIdenticalContent(t *testing.T) {
	ctx := context.Background()
	store, mem := newTestStore()
	lead := &models.EnrichedLead{
		LeadID:     "L1",
		Fields:     map[string]interface{}{"name": "Acme Co"},
		OwnerName:  "Jane Doe",
		OwnerEmail: "jane@x.com",
		EnrichedAt: time.Date(2026, 3, 1, 12, 10, 0, 0, time.UTC),
		Status:     models.EnrichmentMatched,
	}

	key, written, err := store.PutEnriched(ctx, lead)
	require.NoError(t, err)
	assert.Equal(t, "target/L1.json", key)
	assert.True(t, written)

	_, written, err = store.PutEnriched(ctx, lead)
	require.NoError(t, err)
	assert.False(t, written)
	assert.Equal(t, 1, mem.PutCount("leads", key))

	got, err := store.GetEnriched(ctx, "L1")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", got.OwnerName)
	assert.Equal(t, "Acme Co", got.Field("name"))
}

func TestListRawPages(t *testing.T) {
	store, mem := newTestStore()
	ctx := context.Background()

	for _, id := range []string{"L1", "L2", "L3"} {
		event := rawEvent(time.Now())
		event.LeadID = id
		_, _, err := store.PutRaw(ctx, event)
		require.NoError(t, err)
	}
	require.NoError(t, mem.Put(ctx, "leads", "source/notes.txt", []byte("x"), "text/plain", nil))

	first, err := store.ListRaw(ctx, "", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"L1", "L2"}, first.LeadIDs)
	assert.Equal(t, "source/crm_event_L2.json", first.Next)

	second, err := store.ListRaw(ctx, first.Next, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"L3"}, second.LeadIDs)
	assert.Equal(t, []string{"source/crm_event_L3.json"}, second.Keys)
	assert.Empty(t, second.Next)
}

func TestHasEnriched(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	ok, err := store.HasEnriched(ctx, "L1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = store.PutEnriched(ctx, &models.EnrichedLead{LeadID: "L1", OwnerName: "Jane Doe"})
	require.NoError(t, err)
	ok, err = store.HasEnriched(ctx, "L1")
	require.NoError(t, err)
	assert.True(t, ok)
}
