package owner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"leadflow/internal/logger"
	"leadflow/internal/storage"
	apperrors "leadflow/pkg/errors"
	"leadflow/pkg/models"
)

// S3Provider reads {lead_id}.json from the lookup bucket. The object may hold
// a single record or an array of records.
type S3Provider struct {
	objects storage.ObjectStore
	bucket  string
	log     logger.Logger
}

func NewS3Provider(objects storage.ObjectStore, bucket string, log logger.Logger) *S3Provider {
	return &S3Provider{objects: objects, bucket: bucket, log: log}
}

func (p *S3Provider) Resolve(ctx context.Context, leadID string) (*models.OwnerRecord, error) {
	data, err := p.objects.Get(ctx, p.bucket, leadID+".json")
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.TransientLookup(fmt.Errorf("read owner object %s: %w", leadID, err))
	}

	records, err := decodeRecords(data)
	if err != nil {
		p.log.Warnw("Owner record is not valid JSON, treating as missing",
			"lead_id", leadID,
			"bucket", p.bucket,
			"error", err,
		)
		return nil, nil
	}
	return pickRecord(p.log, "s3", leadID, records), nil
}

func decodeRecords(data []byte) ([]models.OwnerRecord, error) {
	var many []models.OwnerRecord
	if err := json.Unmarshal(data, &many); err == nil {
		return many, nil
	}
	var one models.OwnerRecord
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, err
	}
	return []models.OwnerRecord{one}, nil
}
