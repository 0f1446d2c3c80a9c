package models

import "time"

// MessageEnvelope is the broker wire format.
type MessageEnvelope struct {
	ID        string                 `json:"id"`
	Source    string                 `json:"source"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload"`
	Metadata  Metadata               `json:"metadata"`
}

type Metadata struct {
	TraceID string `json:"trace_id,omitempty"`
	LeadID  string `json:"lead_id,omitempty"`
	Channel string `json:"channel,omitempty"`

	DeadLetter *DeadLetterInfo `json:"dead_letter,omitempty"`
}

// DeadLetterInfo is attached when a message is routed to the DLQ topic.
type DeadLetterInfo struct {
	Reason      string    `json:"reason"`
	SourceTopic string    `json:"source_topic"`
	Timestamp   time.Time `json:"timestamp"`
}
