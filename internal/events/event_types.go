package events

import "time"

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTokenIssued           EventType = "token_issued"
	EventTokenRevoked          EventType = "token_revoked"
	EventTokensPurged          EventType = "tokens_purged"
	EventRegistryInconsistency EventType = "registry_inconsistency"
)

// Event represents an audit event emitted by the token lifecycle.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Subject   string      `json:"subject,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TokenIssuedPayload payload.
type TokenIssuedPayload struct {
	RecordID  string    `json:"record_id"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenRevokedPayload payload.
type TokenRevokedPayload struct {
	RecordID string `json:"record_id"`
	Reason   string `json:"reason"`
}

// TokensPurgedPayload payload.
type TokensPurgedPayload struct {
	Before  time.Time `json:"before"`
	Removed int64     `json:"removed"`
}
