package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// LeadEvent is the canonical raw record written at ingestion time.
// It is immutable after creation.
type LeadEvent struct {
	LeadID        string                 `json:"lead_id"`
	ReceivedAt    time.Time              `json:"received_at"`
	SchemaVersion string                 `json:"schema_version"`
	Fields        map[string]interface{} `json:"fields"`
	SourcePayload map[string]interface{} `json:"source_payload"`
}

// Field returns a lead field rendered as a string, or "" when absent.
func (e *LeadEvent) Field(name string) string {
	return stringValue(e.Fields[name])
}

// OwnerRecord is read from the external owner store and never written by us.
type OwnerRecord struct {
	LeadID     string    `json:"lead_id"`
	OwnerName  string    `json:"owner_name"`
	OwnerEmail string    `json:"owner_email"`
	Team       string    `json:"team,omitempty"`
	UpdatedAt  time.Time `json:"updated_at,omitempty"`
}

// ownerAliases maps legacy lookup document keys onto canonical fields.
var ownerAliases = map[string][]string{
	"owner_name":  {"owner_name", "lead_owner"},
	"owner_email": {"owner_email", "lead_email"},
	"team":        {"team", "funnel"},
}

// OwnerFromMap builds an OwnerRecord from a decoded document, accepting the
// lead_owner/lead_email/funnel aliases.
func OwnerFromMap(doc map[string]interface{}) OwnerRecord {
	pick := func(field string) string {
		for _, key := range ownerAliases[field] {
			if v := stringValue(doc[key]); v != "" {
				return v
			}
		}
		return ""
	}

	rec := OwnerRecord{
		LeadID:     stringValue(doc["lead_id"]),
		OwnerName:  pick("owner_name"),
		OwnerEmail: pick("owner_email"),
		Team:       pick("team"),
	}
	switch ts := doc["updated_at"].(type) {
	case time.Time:
		rec.UpdatedAt = ts.UTC()
	case string:
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			rec.UpdatedAt = parsed.UTC()
		}
	}
	return rec
}

func (o *OwnerRecord) UnmarshalJSON(data []byte) error {
	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	*o = OwnerFromMap(doc)
	return nil
}

// IsEmpty reports whether the record carries no owner data at all.
func (o OwnerRecord) IsEmpty() bool {
	return o.OwnerName == "" && o.OwnerEmail == "" && o.Team == ""
}

// MostRecent picks the latest record by UpdatedAt. Ties keep the first.
func MostRecent(records []OwnerRecord) (OwnerRecord, bool) {
	if len(records) == 0 {
		return OwnerRecord{}, false
	}
	sorted := make([]OwnerRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].UpdatedAt.After(sorted[j].UpdatedAt)
	})
	return sorted[0], true
}

type EnrichmentStatus string

const (
	EnrichmentMatched        EnrichmentStatus = "matched"
	EnrichmentDefaultApplied EnrichmentStatus = "default_applied"
)

// Canonical keys of an enriched record. They override lead fields of the
// same name when the record is flattened.
const (
	KeyLeadID           = "lead_id"
	KeyOwnerName        = "owner_name"
	KeyOwnerEmail       = "owner_email"
	KeyTeam             = "team"
	KeyEnrichedAt       = "enriched_at"
	KeyEnrichmentStatus = "enrichment_status"
)

// EnrichedLead is the union of lead fields and owner data. It serializes as
// a single flat JSON object with sorted keys.
type EnrichedLead struct {
	LeadID     string
	Fields     map[string]interface{}
	OwnerName  string
	OwnerEmail string
	Team       string
	EnrichedAt time.Time
	Status     EnrichmentStatus
}

// DisplayName is the best human label for the lead.
func (l *EnrichedLead) DisplayName() string {
	for _, key := range []string{"display_name", "name", "company", "email"} {
		if v := stringValue(l.Fields[key]); v != "" {
			return v
		}
	}
	return l.LeadID
}

func (l *EnrichedLead) Field(name string) string {
	return stringValue(l.Fields[name])
}

func (l EnrichedLead) MarshalJSON() ([]byte, error) {
	flat := make(map[string]interface{}, len(l.Fields)+6)
	for k, v := range l.Fields {
		flat[k] = v
	}
	flat[KeyLeadID] = l.LeadID
	flat[KeyOwnerName] = l.OwnerName
	flat[KeyOwnerEmail] = l.OwnerEmail
	if l.Team != "" {
		flat[KeyTeam] = l.Team
	} else {
		delete(flat, KeyTeam)
	}
	flat[KeyEnrichedAt] = l.EnrichedAt.UTC().Format(time.RFC3339Nano)
	flat[KeyEnrichmentStatus] = string(l.Status)
	// encoding/json sorts map keys, which keeps the output byte-stable.
	return json.Marshal(flat)
}

func (l *EnrichedLead) UnmarshalJSON(data []byte) error {
	var flat map[string]interface{}
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}

	out := EnrichedLead{
		LeadID:     stringValue(flat[KeyLeadID]),
		OwnerName:  stringValue(flat[KeyOwnerName]),
		OwnerEmail: stringValue(flat[KeyOwnerEmail]),
		Team:       stringValue(flat[KeyTeam]),
		Status:     EnrichmentStatus(stringValue(flat[KeyEnrichmentStatus])),
		Fields:     make(map[string]interface{}),
	}
	if ts := stringValue(flat[KeyEnrichedAt]); ts != "" {
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return fmt.Errorf("invalid enriched_at: %w", err)
		}
		out.EnrichedAt = parsed
	}
	for k, v := range flat {
		switch k {
		case KeyLeadID, KeyOwnerName, KeyOwnerEmail, KeyTeam, KeyEnrichedAt, KeyEnrichmentStatus:
			continue
		}
		out.Fields[k] = v
	}
	*l = out
	return nil
}

func stringValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
