package owner

import (
	"context"
	"database/sql"
	"fmt"

	"leadflow/internal/logger"
	apperrors "leadflow/pkg/errors"
	"leadflow/pkg/models"
)

// PostgreSQLProvider reads owners from a table with columns lead_id,
// owner_name, owner_email, team and updated_at. The table name is validated
// as an identifier at config load.
type PostgreSQLProvider struct {
	db    *sql.DB
	query string
	log   logger.Logger
}

func NewPostgreSQLProvider(db *sql.DB, table string, log logger.Logger) *PostgreSQLProvider {
	query := fmt.Sprintf(
		`SELECT lead_id, COALESCE(owner_name, ''), COALESCE(owner_email, ''), COALESCE(team, ''), updated_at
		 FROM %s WHERE lead_id = $1 ORDER BY updated_at DESC NULLS LAST LIMIT %d`,
		table, multipleProbe,
	)
	return &PostgreSQLProvider{db: db, query: query, log: log}
}

func (p *PostgreSQLProvider) Resolve(ctx context.Context, leadID string) (*models.OwnerRecord, error) {
	rows, err := p.db.QueryContext(ctx, p.query, leadID)
	if err != nil {
		return nil, apperrors.TransientLookup(fmt.Errorf("postgresql query failed: %w", err))
	}
	defer rows.Close()

	var records []models.OwnerRecord
	for rows.Next() {
		var (
			rec       models.OwnerRecord
			updatedAt sql.NullTime
		)
		if err := rows.Scan(&rec.LeadID, &rec.OwnerName, &rec.OwnerEmail, &rec.Team, &updatedAt); err != nil {
			return nil, apperrors.TransientLookup(fmt.Errorf("failed to scan owner row: %w", err))
		}
		if updatedAt.Valid {
			rec.UpdatedAt = updatedAt.Time.UTC()
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.TransientLookup(fmt.Errorf("owner rows failed: %w", err))
	}
	return pickRecord(p.log, "postgresql", leadID, records), nil
}
