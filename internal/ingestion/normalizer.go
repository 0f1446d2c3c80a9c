// Package ingestion accepts CRM lead webhooks, stores the raw record and
// schedules its delayed processing.
package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"leadflow/internal/config"
	apperrors "leadflow/pkg/errors"
	"leadflow/pkg/cel"
	"leadflow/pkg/models"
)

const maxLeadIDLength = 256

// identifyingFields are the keys of which a flat payload must carry at least
// one besides lead_id.
var identifyingFields = []string{"name", "display_name", "company", "email", "phone"}

// Normalizer validates inbound payloads and reshapes them into lead events.
// Two shapes are accepted: a flat object carrying lead_id, and the CRM
// webhook envelope {subscription_id, event:{id, lead_id, action, data}}.
type Normalizer struct {
	schemaVersion  string
	requiredAction string
	filter         *cel.Filter
}

func NewNormalizer(cfg config.IngestionConfig) (*Normalizer, error) {
	eval, err := cel.NewEvaluator()
	if err != nil {
		return nil, err
	}
	filter, err := eval.NewFilter(cfg.AcceptExpression)
	if err != nil {
		return nil, fmt.Errorf("invalid ingestion.accept_expression: %w", err)
	}
	return &Normalizer{
		schemaVersion:  cfg.SchemaVersion,
		requiredAction: cfg.RequiredAction,
		filter:         filter,
	}, nil
}

// Normalize parses body and builds the canonical event. It is deterministic
// for a given body and receivedAt.
func (n *Normalizer) Normalize(body []byte, receivedAt time.Time) (*models.LeadEvent, error) {
	payload, err := decodeObject(body)
	if err != nil {
		return nil, err
	}

	var fields map[string]interface{}
	if inner, ok := payload["event"]; ok {
		fields, err = n.fromEnvelope(payload, inner)
	} else {
		fields, err = fromFlat(payload)
	}
	if err != nil {
		return nil, err
	}

	leadID, err := normalizeLeadID(fields[models.KeyLeadID])
	if err != nil {
		return nil, err
	}
	fields[models.KeyLeadID] = leadID

	return &models.LeadEvent{
		LeadID:        leadID,
		ReceivedAt:    receivedAt.UTC(),
		SchemaVersion: n.schemaVersion,
		Fields:        fields,
		SourcePayload: payload,
	}, nil
}

// Accept applies the configured acceptance expression.
func (n *Normalizer) Accept(ctx context.Context, event *models.LeadEvent) (bool, error) {
	return n.filter.Accept(ctx, event)
}

func decodeObject(body []byte) (map[string]interface{}, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, apperrors.Validation("empty payload")
	}
	dec := json.NewDecoder(bytes.NewReader(body))

	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, apperrors.Validation("invalid JSON payload").WithCause(err)
	}
	if dec.More() {
		return nil, apperrors.Validation("invalid JSON payload: trailing data")
	}
	obj, ok := raw.(map[string]interface{})
	if !ok {
		return nil, apperrors.Validation("payload must be a JSON object")
	}
	return obj, nil
}

func fromFlat(payload map[string]interface{}) (map[string]interface{}, error) {
	if _, ok := payload[models.KeyLeadID]; !ok {
		return nil, apperrors.Validation("missing required field: lead_id").WithDetail("field", models.KeyLeadID)
	}
	fields := make(map[string]interface{}, len(payload))
	identified := false
	for k, v := range payload {
		fields[k] = v
	}
	for _, key := range identifyingFields {
		if s, ok := payload[key].(string); ok && strings.TrimSpace(s) != "" {
			identified = true
			break
		}
	}
	if !identified {
		return nil, apperrors.Validation("payload needs at least one of %s", strings.Join(identifyingFields, ", "))
	}
	return fields, nil
}

func (n *Normalizer) fromEnvelope(payload map[string]interface{}, inner interface{}) (map[string]interface{}, error) {
	event, ok := inner.(map[string]interface{})
	if !ok {
		return nil, apperrors.Validation("missing event object")
	}
	if n.requiredAction != "" && event["action"] != n.requiredAction {
		return nil, apperrors.Validation("unsupported event action").WithDetail("action", event["action"])
	}
	for _, field := range []string{models.KeyLeadID, "data"} {
		if _, ok := event[field]; !ok {
			return nil, apperrors.Validation("missing required field: %s", field).WithDetail("field", field)
		}
	}
	data, ok := event["data"].(map[string]interface{})
	if !ok {
		return nil, apperrors.Validation("event data must be an object")
	}

	fields := make(map[string]interface{}, len(data)+6)
	for k, v := range data {
		fields[k] = v
	}
	fields[models.KeyLeadID] = event[models.KeyLeadID]
	fields["display_name"] = stringOr(data["display_name"], "Unknown")
	fields["status_label"] = stringOr(data["status_label"], "Unknown")
	fields["date_created"] = data["date_created"]
	fields["subscription_id"] = payload["subscription_id"]
	fields["event_id"] = event["id"]
	return fields, nil
}

func normalizeLeadID(v interface{}) (string, error) {
	var id string
	switch val := v.(type) {
	case string:
		id = strings.TrimSpace(val)
	case float64:
		id = strconv.FormatFloat(val, 'f', -1, 64)
	case nil:
	default:
		return "", apperrors.Validation("lead_id must be a string or number")
	}

	switch {
	case id == "":
		return "", apperrors.Validation("lead_id is required").WithDetail("field", models.KeyLeadID)
	case len(id) > maxLeadIDLength:
		return "", apperrors.Validation("lead_id exceeds %d characters", maxLeadIDLength)
	case strings.ContainsAny(id, "/\\") || strings.Contains(id, ".."):
		// lead_id becomes part of object keys.
		return "", apperrors.Validation("lead_id contains illegal characters")
	}
	return id, nil
}

func stringOr(v interface{}, fallback string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return fallback
}
