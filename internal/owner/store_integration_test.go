//go:build integration

package owner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"leadflow/internal/logger"
	"leadflow/internal/testinfra"
	"leadflow/pkg/migrations"
)

func TestMongoDBProviderPicksNewest(t *testing.T) {
	db := testinfra.Mongo(t)
	ctx := context.Background()
	require.NoError(t, migrations.EnsureOwnerIndexes(ctx, db, "lead_owners"))
	// Second run is a no-op.
	require.NoError(t, migrations.EnsureOwnerIndexes(ctx, db, "lead_owners"))

	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := db.Collection("lead_owners").InsertMany(ctx, []interface{}{
		bson.M{"lead_id": "L1", "lead_owner": "Old Owner", "lead_email": "old@x.com", "updated_at": older},
		bson.M{"lead_id": "L1", "owner_name": "Jane Doe", "owner_email": "jane@x.com", "team": "Enterprise", "updated_at": older.Add(time.Hour)},
	})
	require.NoError(t, err)

	p := NewMongoDBProvider(db, "lead_owners", logger.NopLogger())

	rec, err := p.Resolve(ctx, "L1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "Jane Doe", rec.OwnerName)
	assert.Equal(t, "Enterprise", rec.Team)

	rec, err = p.Resolve(ctx, "L404")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestPostgreSQLProviderPicksNewest(t *testing.T) {
	db := testinfra.Postgres(t)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, `CREATE TABLE lead_owners (
		lead_id     TEXT NOT NULL,
		owner_name  TEXT,
		owner_email TEXT,
		team        TEXT,
		updated_at  TIMESTAMPTZ
	)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO lead_owners VALUES
		('L1', 'Old Owner', 'old@x.com', NULL, '2026-01-01T00:00:00Z'),
		('L1', 'Jane Doe', 'jane@x.com', 'Enterprise', '2026-01-01T01:00:00Z'),
		('L2', 'No Date', 'nodate@x.com', NULL, NULL)`)
	require.NoError(t, err)

	p := NewPostgreSQLProvider(db, "lead_owners", logger.NopLogger())

	rec, err := p.Resolve(ctx, "L1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "Jane Doe", rec.OwnerName)
	assert.Equal(t, "jane@x.com", rec.OwnerEmail)

	rec, err = p.Resolve(ctx, "L2")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Empty(t, rec.Team)
	assert.True(t, rec.UpdatedAt.IsZero())

	rec, err = p.Resolve(ctx, "L404")
	require.NoError(t, err)
	assert.Nil(t, rec)
}
