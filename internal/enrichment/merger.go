// Package enrichment joins a raw lead with its owner record.
package enrichment

import (
	"time"

	"leadflow/internal/config"
	apperrors "leadflow/pkg/errors"
	"leadflow/pkg/metrics"
	"leadflow/pkg/models"
)

// Merger is pure: the same event, owner and enrichedAt always yield the same
// enriched lead, so reprocessing rewrites identical bytes.
type Merger struct {
	defaults config.OwnerDefaults
}

func NewMerger(defaults config.OwnerDefaults) *Merger {
	return &Merger{defaults: defaults}
}

// Merge builds the enriched lead. A nil or empty owner applies the configured
// defaults for every owner field. A found owner missing its name or email gets
// the default for that field only; a missing team stays empty.
//
// enrichedAt must come from the task, not the wall clock.
func (m *Merger) Merge(event *models.LeadEvent, owner *models.OwnerRecord, enrichedAt time.Time) (*models.EnrichedLead, error) {
	if event == nil || event.LeadID == "" {
		return nil, apperrors.IncompleteData(models.KeyLeadID)
	}
	if len(event.Fields) == 0 {
		return nil, apperrors.IncompleteData("fields")
	}

	fields := make(map[string]interface{}, len(event.Fields))
	for k, v := range event.Fields {
		fields[k] = v
	}

	lead := &models.EnrichedLead{
		LeadID:     event.LeadID,
		Fields:     fields,
		EnrichedAt: enrichedAt.UTC(),
	}

	if owner == nil || owner.IsEmpty() {
		lead.OwnerName = m.defaults.OwnerName
		lead.OwnerEmail = m.defaults.OwnerEmail
		lead.Team = m.defaults.Team
		lead.Status = models.EnrichmentDefaultApplied
	} else {
		lead.OwnerName = firstNonEmpty(owner.OwnerName, m.defaults.OwnerName)
		lead.OwnerEmail = firstNonEmpty(owner.OwnerEmail, m.defaults.OwnerEmail)
		lead.Team = owner.Team
		lead.Status = models.EnrichmentMatched
	}

	metrics.IncEnrichment(string(lead.Status))
	return lead, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
