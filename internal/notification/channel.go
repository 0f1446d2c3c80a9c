// Package notification delivers enriched leads to the sales team over the
// configured channels, at most once per lead and channel.
package notification

import (
	"context"

	"leadflow/pkg/models"
)

// Message is what every channel receives. DedupKey is stable per lead and
// channel and travels with the outbound request.
type Message struct {
	Lead     *models.EnrichedLead
	DedupKey string
}

// Channel delivers one message. Implementations retry internally and return
// a notification channel error when delivery finally fails.
type Channel interface {
	Type() models.Channel
	Send(ctx context.Context, msg Message) error
}
