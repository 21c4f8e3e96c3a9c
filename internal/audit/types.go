package audit

import (
	"errors"
	"time"
)

// ActionType enumerates the auditable mutation kinds.
type ActionType string

const (
	ActionCreate          ActionType = "CREATE"
	ActionUpdate          ActionType = "UPDATE"
	ActionSoftDelete      ActionType = "SOFT_DELETE"
	ActionPermanentDelete ActionType = "PERMANENT_DELETE"
	ActionView            ActionType = "VIEW"
	ActionExport          ActionType = "EXPORT"
)

// Entry is one immutable audit log row. After insertion the only field that
// may ever change is HashVerified, and only once (nil -> true/false).
//
// Changes holds the exact serialized JSON that went into the hash; it is
// stored as text, not jsonb, so recomputing the hash from stored fields is
// byte-for-byte reproducible.
type Entry struct {
	ID            string     `json:"id"`
	TransactionID string     `json:"transaction_id"`
	Action        ActionType `json:"action_type"`
	TableName     string     `json:"table_name"`
	RowID         string     `json:"row_id"`
	Changes       string     `json:"changes"`
	DeviceID      string     `json:"device_id"`
	AppID         string     `json:"app_id"`
	UserID        string     `json:"user_id"`
	IPAddress     string     `json:"ip_address,omitempty"`
	Hash          string     `json:"hash"`
	HashVerified  *bool      `json:"hash_verified"`
	Metadata      string     `json:"metadata,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

var (
	ErrMissingTable  = errors.New("audit entry requires a table name")
	ErrMissingRowID  = errors.New("audit entry requires a row id")
	ErrMissingAction = errors.New("audit entry requires an action type")
)
