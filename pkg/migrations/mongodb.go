package migrations

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// indexOptionsConflict is returned when an index exists under another name.
const indexOptionsConflict = 85

// EnsureOwnerIndexes creates the lookup index used by the owner resolver.
// Several documents may exist per lead; the newest one wins.
func EnsureOwnerIndexes(ctx context.Context, db *mongo.Database, collection string) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "lead_id", Value: 1}, {Key: "updated_at", Value: -1}},
			Options: options.Index().SetName("idx_" + collection + "_lead_id_updated_at"),
		},
	}

	_, err := db.Collection(collection).Indexes().CreateMany(ctx, indexes)
	if err == nil {
		return nil
	}

	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) && cmdErr.Code == indexOptionsConflict {
		return nil
	}
	return fmt.Errorf("failed to create indexes on %s: %w", collection, err)
}
