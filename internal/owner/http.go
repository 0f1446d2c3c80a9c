package owner

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"leadflow/internal/constants"
	"leadflow/internal/logger"
	apperrors "leadflow/pkg/errors"
	"leadflow/pkg/models"
)

// HTTPProvider GETs a URL template such as
// https://owners.example.com/{lead_id}.json. A 404 or 403 means no record.
type HTTPProvider struct {
	client   *http.Client
	template string
	log      logger.Logger
}

func NewHTTPProvider(template string, timeout time.Duration, log logger.Logger) *HTTPProvider {
	if timeout <= 0 {
		timeout = constants.DefaultHTTPTimeout
	}
	return &HTTPProvider{
		client:   &http.Client{Timeout: timeout},
		template: template,
		log:      log,
	}
}

func (p *HTTPProvider) Resolve(ctx context.Context, leadID string) (*models.OwnerRecord, error) {
	target := strings.ReplaceAll(p.template, constants.LeadIDPlaceholder, url.PathEscape(leadID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, apperrors.TransientLookup(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, apperrors.TransientLookup(fmt.Errorf("owner lookup request failed: %w", err))
	}
	defer resp.Body.Close()

	// Public S3 buckets answer 403 for missing keys.
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden {
		return nil, nil
	}
	if resp.StatusCode < constants.HTTPStatusOKMin || resp.StatusCode >= constants.HTTPStatusOKMax {
		return nil, apperrors.TransientLookup(fmt.Errorf("owner lookup returned status: %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.TransientLookup(fmt.Errorf("failed to read response: %w", err))
	}
	records, err := decodeRecords(body)
	if err != nil {
		p.log.Warnw("Owner lookup returned invalid JSON, treating as missing",
			"lead_id", leadID,
			"error", err,
		)
		return nil, nil
	}
	return pickRecord(p.log, "http", leadID, records), nil
}
