package audit

import (
	"time"

	"github.com/google/uuid"
)

// Action names the business operation an event records.
type Action string

const (
	ActionCheckInRecorded Action = "checkin_recorded"
	ActionCheckInRemoved  Action = "checkin_removed"
	ActionGateChanged     Action = "gate_changed"
)

// Event is emitted after an accepted mutation. It is transport-agnostic so
// sinks can fan out to Kafka or an in-memory buffer.
type Event struct {
	ID          uuid.UUID `json:"id"`
	Action      Action    `json:"action"`
	CandidateID string    `json:"candidateId,omitempty"`
	Barcode     string    `json:"barcode,omitempty"`
	PaperID     string    `json:"paperId,omitempty"`
	Enabled     *bool     `json:"enabled,omitempty"`
	At          time.Time `json:"at"`
	RequestID   string    `json:"requestId,omitempty"`
	ClientIP    string    `json:"clientIp,omitempty"`
	Device      string    `json:"device,omitempty"`
}
