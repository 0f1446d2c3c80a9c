package owner

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"leadflow/internal/logger"
	apperrors "leadflow/pkg/errors"
	"leadflow/pkg/models"
)

// multipleProbe is how many records are fetched to detect duplicates.
const multipleProbe = 5

type MongoDBProvider struct {
	collection *mongo.Collection
	log        logger.Logger
}

func NewMongoDBProvider(db *mongo.Database, collection string, log logger.Logger) *MongoDBProvider {
	return &MongoDBProvider{collection: db.Collection(collection), log: log}
}

func (p *MongoDBProvider) Resolve(ctx context.Context, leadID string) (*models.OwnerRecord, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "updated_at", Value: -1}}).
		SetLimit(multipleProbe)

	cursor, err := p.collection.Find(ctx, bson.M{"lead_id": leadID}, opts)
	if err != nil {
		return nil, apperrors.TransientLookup(fmt.Errorf("mongodb query failed: %w", err))
	}

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, apperrors.TransientLookup(fmt.Errorf("mongodb cursor failed: %w", err))
	}
	if len(docs) == 0 {
		return nil, nil
	}

	records := make([]models.OwnerRecord, 0, len(docs))
	for _, doc := range docs {
		if dt, ok := doc["updated_at"].(primitive.DateTime); ok {
			doc["updated_at"] = dt.Time()
		}
		records = append(records, models.OwnerFromMap(doc))
	}
	return pickRecord(p.log, "mongodb", leadID, records), nil
}
