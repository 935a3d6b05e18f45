package amqp

import (
	"encoding/json"
	"time"
)

// Operation names carried on ledger change messages.
const (
	OpCreate     = "create"
	OpUpdate     = "update"
	OpDelete     = "delete"
	OpBulkDelete = "bulk_delete"
	OpImport     = "import"
)

// LedgerChangedMessage announces that a user's ledger changed within one
// calendar month. Consumers (UI cache invalidation, the reconcile worker)
// re-read or re-verify that month; the message deliberately carries no
// amounts.
type LedgerChangedMessage struct {
	UserID    string    `json:"user_id"`
	Year      int       `json:"year"`
	Month     int       `json:"month"` // 1-12
	Op        string    `json:"op"`
	Timestamp time.Time `json:"timestamp"`
}

// NewLedgerChangedMessage creates a change message for one month group.
func NewLedgerChangedMessage(userID string, year, month int, op string) *LedgerChangedMessage {
	return &LedgerChangedMessage{
		UserID:    userID,
		Year:      year,
		Month:     month,
		Op:        op,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes.
func (m *LedgerChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerChangedMessageFromJSON creates a message from JSON bytes.
func LedgerChangedMessageFromJSON(data []byte) (*LedgerChangedMessage, error) {
	var msg LedgerChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
