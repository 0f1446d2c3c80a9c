package notification

import (
	"fmt"
	"strings"

	"leadflow/pkg/models"
)

const notAvailable = "N/A"

type ChatPayload struct {
	Text   string      `json:"text"`
	Blocks []ChatBlock `json:"blocks"`
}

type ChatBlock struct {
	Type   string      `json:"type"`
	Fields []ChatField `json:"fields,omitempty"`
}

type ChatField struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type labelled struct {
	label, value string
}

func orNA(v string) string {
	if v == "" {
		return notAvailable
	}
	return v
}

// summary lists the fields shown in every channel, in display order.
func summary(lead *models.EnrichedLead) []labelled {
	return []labelled{
		{"Name", lead.DisplayName()},
		{"Lead ID", lead.LeadID},
		{"Email", orNA(lead.Field("email"))},
		{"Owner", orNA(lead.OwnerName)},
		{"Team", orNA(lead.Team)},
		{"Status", orNA(lead.Field("status_label"))},
	}
}

// FormatChat renders the chat webhook body.
func FormatChat(lead *models.EnrichedLead) ChatPayload {
	fields := make([]ChatField, 0, 6)
	for _, f := range summary(lead) {
		fields = append(fields, ChatField{Type: "mrkdwn", Text: fmt.Sprintf("*%s:*\n%s", f.label, f.value)})
	}
	return ChatPayload{
		Text:   "New Lead Alert",
		Blocks: []ChatBlock{{Type: "section", Fields: fields}},
	}
}

// FormatEmail renders the email event. Recipients are the configured list
// plus the owner when includeOwner is set and an owner was matched.
func FormatEmail(lead *models.EnrichedLead, dedupKey string, recipients []string, includeOwner bool) models.EmailEvent {
	var body strings.Builder
	body.WriteString("New Lead Alert\n\n")
	for _, f := range summary(lead) {
		fmt.Fprintf(&body, "%s: %s\n", f.label, f.value)
	}
	if created := lead.Field("date_created"); created != "" {
		fmt.Fprintf(&body, "Created: %s\n", created)
	}
	fmt.Fprintf(&body, "Owner Email: %s\n", orNA(lead.OwnerEmail))

	to := make([]string, 0, len(recipients)+1)
	seen := make(map[string]bool, len(recipients)+1)
	add := func(addr string) {
		key := strings.ToLower(strings.TrimSpace(addr))
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		to = append(to, strings.TrimSpace(addr))
	}
	for _, r := range recipients {
		add(r)
	}
	if includeOwner && lead.Status == models.EnrichmentMatched {
		add(lead.OwnerEmail)
	}

	return models.EmailEvent{
		DedupKey:   dedupKey,
		LeadID:     lead.LeadID,
		Subject:    "New Lead: " + lead.DisplayName(),
		Body:       body.String(),
		Recipients: to,
	}
}
