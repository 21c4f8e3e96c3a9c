package sync

import "errors"

// Record is one raw row payload keyed by column name. Pushed records may
// carry client-only bookkeeping fields; the ingester strips those before the
// record reaches an adapter.
type Record map[string]any

// ID returns the record's primary key, if present.
func (r Record) ID() (string, bool) {
	v, ok := r["id"]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// DeltaSet groups the created/updated/deleted rows for one entity since a
// watermark. Request-scoped, never persisted.
type DeltaSet struct {
	Created []Record `json:"created"`
	Updated []Record `json:"updated"`
	Deleted []string `json:"deleted"`
}

// PullRequest is the client cursor for delta computation. LastPulledAt is
// epoch milliseconds; zero means a bootstrap pull.
type PullRequest struct {
	LastPulledAt  int64 `json:"last_pulled_at"`
	SchemaVersion int   `json:"schema_version,omitempty"`
	Migration     any   `json:"migration,omitempty"`
}

// PullResponse carries one DeltaSet per client-facing table plus the server
// timestamp the client should store as its next watermark.
type PullResponse struct {
	Changes   map[string]DeltaSet `json:"changes"`
	Timestamp int64               `json:"timestamp"`
}

// PushRequest maps server-side table names to the client's local changes.
type PushRequest map[string]DeltaSet

// PushError describes one record that could not be applied.
type PushError struct {
	Table string `json:"table"`
	ID    string `json:"id,omitempty"`
	Err   string `json:"error"`
}

// PushResult reports a best-effort push: how many records were applied and
// which ones failed. A client retries the whole batch; adapters are
// idempotent, so replaying applied records is safe.
type PushResult struct {
	Applied int         `json:"applied"`
	Errors  []PushError `json:"errors,omitempty"`
}

var (
	ErrDuplicateEntity = errors.New("duplicate entity descriptor")
	ErrUnknownEntity   = errors.New("unknown entity")
	ErrEntityNotPushed = errors.New("entity does not accept pushes")
	ErrMissingRecordID = errors.New("record has no id")
	ErrAdapterNotBound = errors.New("no adapter registered for entity")
)
