package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadflow/internal/config"
	"leadflow/internal/logger"
	"leadflow/internal/notification"
	"leadflow/internal/scheduler"
	"leadflow/internal/storage"
	"leadflow/pkg/models"
	"leadflow/pkg/ratelimit"
)

type fixture struct {
	queue   *scheduler.MemoryQueue
	leads   *storage.LeadStore
	records *notification.MemoryRecordStore
	router  *gin.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &fixture{
		queue:   scheduler.NewMemoryQueue(scheduler.Options{PollInterval: time.Millisecond}),
		records: notification.NewMemoryRecordStore(),
	}
	f.leads = storage.NewLeadStore(storage.NewMemoryStore(), config.StorageConfig{
		Bucket:       "crm-leads",
		SourcePrefix: "source/",
		TargetPrefix: "target/",
	})
	f.router = gin.New()
	NewHandler(f.queue, f.leads, f.records, logger.NopLogger()).RegisterRoutes(f.router)
	return f
}

func (f *fixture) do(method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func (f *fixture) deadLetter(t *testing.T, leadID string) {
	t.Helper()
	ctx := context.Background()
	_, _, err := f.queue.Schedule(ctx, leadID, "source/crm_event_"+leadID+".json", 0)
	require.NoError(t, err)
	task, err := f.queue.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, f.queue.DeadLetter(ctx, task, "lead record is missing \"fields\""))
}

func TestDeadLetterListAndRequeue(t *testing.T) {
	f := newFixture(t)
	f.deadLetter(t, "L1")

	w := f.do(http.MethodGet, "/api/v1/dead-letters")
	require.Equal(t, http.StatusOK, w.Code)
	var list DeadLettersResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Equal(t, 1, list.Count)
	assert.Equal(t, "L1", list.Items[0].LeadID)
	assert.Equal(t, models.TaskDeadLettered, list.Items[0].State)

	w = f.do(http.MethodPost, "/api/v1/dead-letters/L1/requeue")
	assert.Equal(t, http.StatusAccepted, w.Code)

	w = f.do(http.MethodPost, "/api/v1/dead-letters/L1/requeue")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(http.MethodGet, "/api/v1/queue/stats")
	require.Equal(t, http.StatusOK, w.Code)
	var stats scheduler.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, scheduler.Stats{Visible: 1}, stats)
}

func TestDeadLetterLimitValidation(t *testing.T) {
	f := newFixture(t)
	for _, q := range []string{"0", "abc", "100000"} {
		w := f.do(http.MethodGet, "/api/v1/dead-letters?limit="+q)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestLeadEndpoints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	w := f.do(http.MethodGet, "/api/v1/leads/L1")
	assert.Equal(t, http.StatusNotFound, w.Code)

	_, _, err := f.leads.PutRaw(ctx, &models.LeadEvent{
		LeadID:        "L1",
		SchemaVersion: "1",
		Fields:        map[string]interface{}{"name": "Acme Co"},
		SourcePayload: map[string]interface{}{"lead_id": "L1", "name": "Acme Co"},
	})
	require.NoError(t, err)
	_, _, err = f.leads.PutEnriched(ctx, &models.EnrichedLead{
		LeadID:     "L1",
		Fields:     map[string]interface{}{"name": "Acme Co"},
		OwnerName:  "Jane Doe",
		OwnerEmail: "jane@x.com",
		Status:     models.EnrichmentMatched,
	})
	require.NoError(t, err)
	require.NoError(t, f.records.Save(ctx, models.NotificationRecord{
		LeadID: "L1", Channel: models.ChannelChat, Status: models.NotificationSent,
	}))

	w = f.do(http.MethodGet, "/api/v1/leads/L1")
	require.Equal(t, http.StatusOK, w.Code)
	var lead map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &lead))
	assert.Equal(t, "Jane Doe", lead["owner_name"])
	assert.Equal(t, "matched", lead["enrichment_status"])

	w = f.do(http.MethodGet, "/api/v1/leads/L1/raw")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"source_payload"`)

	w = f.do(http.MethodGet, "/api/v1/leads/L1/notifications")
	require.Equal(t, http.StatusOK, w.Code)
	var records []models.NotificationRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, models.NotificationSent, records[0].Status)

	w = f.do(http.MethodGet, "/api/v1/leads/L2/notifications")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestNotificationsWithoutStore(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewHandler(scheduler.NewMemoryQueue(scheduler.Options{}), nil, nil, logger.NopLogger()).RegisterRoutes(router)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/leads/L1/notifications", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRateLimited(t *testing.T) {
	f := newFixture(t)
	limited := gin.New()
	limited.Use(ratelimit.Middleware(ratelimit.NewStore(ratelimit.Config{RPS: 1, Burst: 2, MaxAge: time.Minute})))
	NewHandler(f.queue, f.leads, f.records, logger.NopLogger()).RegisterRoutes(limited)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		limited.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/queue/stats", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}
