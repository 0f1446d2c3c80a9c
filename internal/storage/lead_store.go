package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"leadflow/internal/config"
	apperrors "leadflow/pkg/errors"
	"leadflow/pkg/metrics"
	"leadflow/pkg/models"
)

const contentTypeJSON = "application/json"

// LeadStore keeps raw and enriched lead records under keys derived only from
// the lead id. Writes compare against the stored object first so that
// redelivery never produces a second version of identical content.
type LeadStore struct {
	objects      ObjectStore
	bucket       string
	sourcePrefix string
	targetPrefix string
}

func NewLeadStore(objects ObjectStore, cfg config.StorageConfig) *LeadStore {
	return &LeadStore{
		objects:      objects,
		bucket:       cfg.Bucket,
		sourcePrefix: cfg.SourcePrefix,
		targetPrefix: cfg.TargetPrefix,
	}
}

func (s *LeadStore) Bucket() string {
	return s.bucket
}

// RawKey is the raw record location, e.g. source/crm_event_L1.json.
func (s *LeadStore) RawKey(leadID string) string {
	return s.sourcePrefix + "crm_event_" + leadID + ".json"
}

// EnrichedKey is the enriched record location, e.g. target/L1.json.
func (s *LeadStore) EnrichedKey(leadID string) string {
	return s.targetPrefix + leadID + ".json"
}

// PutRaw stores event unless an event with the same source payload already
// exists, in which case the stored event is returned untouched. written
// reports whether an object was written.
func (s *LeadStore) PutRaw(ctx context.Context, event *models.LeadEvent) (stored *models.LeadEvent, written bool, err error) {
	key := s.RawKey(event.LeadID)

	existing, err := s.GetRaw(ctx, event.LeadID)
	switch {
	case err == nil:
		same, cmpErr := samePayload(existing.SourcePayload, event.SourcePayload)
		if cmpErr != nil {
			return nil, false, apperrors.ErrInternal.WithCause(cmpErr)
		}
		if same {
			metrics.IncStorageOperation("put_raw", "unchanged")
			return existing, false, nil
		}
	case apperrors.IsNotFound(err):
	default:
		return nil, false, err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return nil, false, apperrors.ErrInternal.WithCause(err)
	}
	if err := s.put(ctx, "put_raw", key, data, event.LeadID); err != nil {
		return nil, false, err
	}
	return event, true, nil
}

func (s *LeadStore) GetRaw(ctx context.Context, leadID string) (*models.LeadEvent, error) {
	data, err := s.get(ctx, "get_raw", s.RawKey(leadID))
	if err != nil {
		return nil, err
	}

	var event models.LeadEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, apperrors.IncompleteData("raw record").WithCause(err)
	}
	return &event, nil
}

// PutEnriched writes lead unless byte-identical content is already stored.
func (s *LeadStore) PutEnriched(ctx context.Context, lead *models.EnrichedLead) (key string, written bool, err error) {
	key = s.EnrichedKey(lead.LeadID)

	data, err := json.Marshal(lead)
	if err != nil {
		return key, false, apperrors.ErrInternal.WithCause(err)
	}

	existing, err := s.get(ctx, "get_enriched", key)
	switch {
	case err == nil && bytes.Equal(existing, data):
		metrics.IncStorageOperation("put_enriched", "unchanged")
		return key, false, nil
	case err == nil, apperrors.IsNotFound(err):
	default:
		return key, false, err
	}

	if err := s.put(ctx, "put_enriched", key, data, lead.LeadID); err != nil {
		return key, false, err
	}
	return key, true, nil
}

func (s *LeadStore) GetEnriched(ctx context.Context, leadID string) (*models.EnrichedLead, error) {
	data, err := s.get(ctx, "get_enriched", s.EnrichedKey(leadID))
	if err != nil {
		return nil, err
	}

	var lead models.EnrichedLead
	if err := json.Unmarshal(data, &lead); err != nil {
		return nil, apperrors.ErrInternal.WithCause(err)
	}
	return &lead, nil
}

// HasEnriched reports whether an enriched record exists for leadID.
func (s *LeadStore) HasEnriched(ctx context.Context, leadID string) (bool, error) {
	_, err := s.get(ctx, "get_enriched", s.EnrichedKey(leadID))
	switch {
	case err == nil:
		return true, nil
	case apperrors.IsNotFound(err):
		return false, nil
	}
	return false, err
}

// RawPage is one page of raw record keys. Next is the cursor for the
// following page and is empty once the listing is exhausted.
type RawPage struct {
	LeadIDs []string
	Keys    []string
	Next    string
}

// ListRaw pages through raw records in key order. Keys under the source
// prefix that are not raw records are skipped.
func (s *LeadStore) ListRaw(ctx context.Context, after string, limit int) (RawPage, error) {
	keys, err := s.objects.List(ctx, s.bucket, s.sourcePrefix, after, limit)
	if err != nil {
		metrics.IncStorageOperation("list_raw", "error")
		return RawPage{}, apperrors.TransientStorage(err)
	}
	metrics.IncStorageOperation("list_raw", "ok")

	var page RawPage
	for _, key := range keys {
		if leadID, ok := s.leadIDFromRawKey(key); ok {
			page.LeadIDs = append(page.LeadIDs, leadID)
			page.Keys = append(page.Keys, key)
		}
	}
	if limit > 0 && len(keys) == limit {
		page.Next = keys[len(keys)-1]
	}
	return page, nil
}

func (s *LeadStore) leadIDFromRawKey(key string) (string, bool) {
	name, ok := strings.CutPrefix(key, s.sourcePrefix+"crm_event_")
	if !ok {
		return "", false
	}
	leadID, ok := strings.CutSuffix(name, ".json")
	if !ok || leadID == "" {
		return "", false
	}
	return leadID, true
}

func (s *LeadStore) Ping(ctx context.Context) error {
	return s.objects.Ping(ctx, s.bucket)
}

func (s *LeadStore) put(ctx context.Context, op, key string, data []byte, leadID string) error {
	err := s.objects.Put(ctx, s.bucket, key, data, contentTypeJSON, map[string]string{"lead-id": leadID})
	if err != nil {
		metrics.IncStorageOperation(op, "error")
		return apperrors.TransientStorage(err).WithDetail("key", key)
	}
	metrics.IncStorageOperation(op, "ok")
	return nil
}

func (s *LeadStore) get(ctx context.Context, op, key string) ([]byte, error) {
	data, err := s.objects.Get(ctx, s.bucket, key)
	if errors.Is(err, ErrObjectNotFound) {
		metrics.IncStorageOperation(op, "not_found")
		return nil, apperrors.ErrNotFound.WithMessage("object %s not found", key).WithCause(err)
	}
	if err != nil {
		metrics.IncStorageOperation(op, "error")
		return nil, apperrors.TransientStorage(err).WithDetail("key", key)
	}
	metrics.IncStorageOperation(op, "ok")
	return data, nil
}

func samePayload(a, b map[string]interface{}) (bool, error) {
	left, err := json.Marshal(a)
	if err != nil {
		return false, fmt.Errorf("marshal stored payload: %w", err)
	}
	right, err := json.Marshal(b)
	if err != nil {
		return false, fmt.Errorf("marshal new payload: %w", err)
	}
	return bytes.Equal(left, right), nil
}
