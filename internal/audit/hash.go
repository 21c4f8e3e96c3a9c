package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
)

// ComputeHash returns the hex SHA-256 over the canonical pipe-joined entry
// fields: id, transaction id, action, table name, row id, changes, device id,
// app id, user id, ip address and the created-at epoch milliseconds.
// Metadata and HashVerified do not participate. An absent IP address
// contributes an empty string. Recomputing from stored fields must always
// reproduce the stored value unless the row has been tampered with.
func ComputeHash(e Entry) string {
	parts := []string{
		e.ID,
		e.TransactionID,
		string(e.Action),
		e.TableName,
		e.RowID,
		e.Changes,
		e.DeviceID,
		e.AppID,
		e.UserID,
		e.IPAddress,
		strconv.FormatInt(e.CreatedAt.UnixMilli(), 10),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// canonicalJSON serializes v once; the resulting string is both hashed and
// stored, so verification never depends on re-serialization.
func canonicalJSON(v any) (string, error) {
	if v == nil {
		return "{}", nil
	}
	if s, ok := v.(string); ok {
		if strings.TrimSpace(s) == "" {
			return "{}", nil
		}
		return s, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
