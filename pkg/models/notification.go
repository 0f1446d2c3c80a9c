package models

import (
	"fmt"
	"time"
)

type Channel string

const (
	ChannelChat  Channel = "chat"
	ChannelEmail Channel = "email"
)

func ParseChannel(s string) (Channel, error) {
	switch Channel(s) {
	case ChannelChat, ChannelEmail:
		return Channel(s), nil
	}
	return "", fmt.Errorf("unknown notification channel %q", s)
}

type NotificationStatus string

const (
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
	NotificationSkipped NotificationStatus = "skipped"
	// NotificationDeferred means another worker holds the channel lease; the
	// task is retried so the channel is revisited once that lease settles.
	NotificationDeferred NotificationStatus = "deferred"
)

// HasDeferred reports whether any record was deferred to another holder.
func HasDeferred(records []NotificationRecord) bool {
	for _, rec := range records {
		if rec.Status == NotificationDeferred {
			return true
		}
	}
	return false
}

// NotificationRecord is the outcome of one delivery attempt on one channel.
type NotificationRecord struct {
	LeadID      string             `json:"lead_id"`
	Channel     Channel            `json:"channel"`
	Status      NotificationStatus `json:"status"`
	DedupKey    string             `json:"dedup_key"`
	AttemptedAt time.Time          `json:"attempted_at"`
	Error       string             `json:"error,omitempty"`
}

// EmailEvent is published on the email topic and turned into SMTP mail by
// the mailer.
type EmailEvent struct {
	DedupKey   string   `json:"dedup_key"`
	LeadID     string   `json:"lead_id"`
	Subject    string   `json:"subject"`
	Body       string   `json:"body"`
	Recipients []string `json:"recipients"`
}

func (e EmailEvent) ToPayload() map[string]interface{} {
	recipients := make([]interface{}, len(e.Recipients))
	for i, r := range e.Recipients {
		recipients[i] = r
	}
	return map[string]interface{}{
		"dedup_key":  e.DedupKey,
		"lead_id":    e.LeadID,
		"subject":    e.Subject,
		"body":       e.Body,
		"recipients": recipients,
	}
}

func EmailEventFromPayload(payload map[string]interface{}) (EmailEvent, error) {
	ev := EmailEvent{
		DedupKey: stringValue(payload["dedup_key"]),
		LeadID:   stringValue(payload["lead_id"]),
		Subject:  stringValue(payload["subject"]),
		Body:     stringValue(payload["body"]),
	}
	switch rs := payload["recipients"].(type) {
	case []interface{}:
		for _, r := range rs {
			if s := stringValue(r); s != "" {
				ev.Recipients = append(ev.Recipients, s)
			}
		}
	case []string:
		ev.Recipients = append(ev.Recipients, rs...)
	}

	switch {
	case ev.LeadID == "":
		return ev, &ValidationError{Field: "lead_id", Message: "email event lead_id is required"}
	case ev.Subject == "":
		return ev, &ValidationError{Field: "subject", Message: "email event subject is required"}
	case len(ev.Recipients) == 0:
		return ev, &ValidationError{Field: "recipients", Message: "email event needs at least one recipient"}
	}
	return ev, nil
}
