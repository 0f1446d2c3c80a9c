package notification

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"

	apperrors "leadflow/pkg/errors"
	"leadflow/pkg/models"
)

// RecordStore keeps the latest Notification Record per lead and channel. A
// sent record is never downgraded by a later skipped or failed attempt.
type RecordStore interface {
	Save(ctx context.Context, rec models.NotificationRecord) error
	List(ctx context.Context, leadID string) ([]models.NotificationRecord, error)
}

type MemoryRecordStore struct {
	mu      sync.RWMutex
	records map[string]models.NotificationRecord
}

func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{records: make(map[string]models.NotificationRecord)}
}

func (s *MemoryRecordStore) Save(_ context.Context, rec models.NotificationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := rec.LeadID + "/" + string(rec.Channel)
	if existing, ok := s.records[key]; ok && existing.Status == models.NotificationSent {
		return nil
	}
	s.records[key] = rec
	return nil
}

func (s *MemoryRecordStore) List(_ context.Context, leadID string) ([]models.NotificationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.NotificationRecord, 0, 2)
	for _, rec := range s.records {
		if rec.LeadID == leadID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Channel < out[j].Channel })
	return out, nil
}

// PostgresRecordStore writes to the notification_records table created by
// the embedded migrations.
type PostgresRecordStore struct {
	db *sql.DB
}

func NewPostgresRecordStore(db *sql.DB) *PostgresRecordStore {
	return &PostgresRecordStore{db: db}
}

const upsertRecordSQL = `
INSERT INTO notification_records (lead_id, channel, status, dedup_key, attempted_at, error, attempts)
VALUES ($1, $2, $3, $4, $5, $6, 1)
ON CONFLICT (lead_id, channel) DO UPDATE SET
    status       = EXCLUDED.status,
    dedup_key    = EXCLUDED.dedup_key,
    attempted_at = EXCLUDED.attempted_at,
    error        = EXCLUDED.error,
    attempts     = notification_records.attempts + 1
WHERE notification_records.status <> 'sent'`

func (s *PostgresRecordStore) Save(ctx context.Context, rec models.NotificationRecord) error {
	_, err := s.db.ExecContext(ctx, upsertRecordSQL,
		rec.LeadID, string(rec.Channel), string(rec.Status), rec.DedupKey, rec.AttemptedAt.UTC(), rec.Error,
	)
	if err != nil {
		return apperrors.TransientStorage(fmt.Errorf("failed to save notification record: %w", err))
	}
	return nil
}

func (s *PostgresRecordStore) List(ctx context.Context, leadID string) ([]models.NotificationRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT lead_id, channel, status, dedup_key, attempted_at, error
		 FROM notification_records WHERE lead_id = $1 ORDER BY channel`, leadID)
	if err != nil {
		return nil, apperrors.TransientStorage(fmt.Errorf("failed to query notification records: %w", err))
	}
	defer rows.Close()

	out := make([]models.NotificationRecord, 0, 2)
	for rows.Next() {
		var (
			rec             models.NotificationRecord
			channel, status string
		)
		if err := rows.Scan(&rec.LeadID, &channel, &status, &rec.DedupKey, &rec.AttemptedAt, &rec.Error); err != nil {
			return nil, apperrors.TransientStorage(fmt.Errorf("failed to scan notification record: %w", err))
		}
		rec.Channel = models.Channel(channel)
		rec.Status = models.NotificationStatus(status)
		rec.AttemptedAt = rec.AttemptedAt.UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.TransientStorage(fmt.Errorf("notification record rows failed: %w", err))
	}
	return out, nil
}
