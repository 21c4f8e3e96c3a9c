package sync

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"clinicbase.org/internal/obs"
)

// Auditor records successfully applied push mutations. Implementations share
// one audit transaction per table batch. A nil Auditor disables tracing
// (tests only; production wiring always supplies one).
type Auditor interface {
	BatchApplied(ctx context.Context, serverTable string, created, updated []Record, deleted []string) error
}

// Ingester validates and applies client push batches against the registered
// entity adapters.
type Ingester struct {
	catalog *Catalog
	auditor Auditor
}

// NewIngester wires an ingester.
func NewIngester(catalog *Catalog, auditor Auditor) *Ingester {
	return &Ingester{catalog: catalog, auditor: auditor}
}

// Push applies a client batch best-effort: records are processed
// independently, a failing record is reported in the result and the rest of
// the batch continues. Safe to retry wholesale because adapters are
// idempotent.
//
// Unknown tables are skipped with a warning so that clients running an older
// or newer schema cannot abort the whole batch.
func (i *Ingester) Push(ctx context.Context, req PushRequest) PushResult {
	var res PushResult
	for table, delta := range req {
		desc, known := i.catalog.Descriptor(table)
		if !known || !desc.Pushable {
			obs.Warn("push for unknown table skipped", map[string]any{"table": table})
			continue
		}
		adapter, bound := i.catalog.Adapter(table)
		if !bound {
			res.Errors = append(res.Errors, PushError{Table: table, Err: ErrAdapterNotBound.Error()})
			continue
		}

		var appliedCreated, appliedUpdated []Record
		var appliedDeleted []string

		upsert := func(raw Record, created bool) {
			rec := i.sanitize(table, raw)
			id, ok := rec.ID()
			if !ok {
				res.Errors = append(res.Errors, PushError{Table: table, Err: ErrMissingRecordID.Error()})
				obs.IncPushRecord(table, "rejected")
				return
			}
			if err := adapter.Upsert(ctx, rec); err != nil {
				res.Errors = append(res.Errors, PushError{Table: table, ID: id, Err: err.Error()})
				obs.IncPushRecord(table, "failed")
				return
			}
			res.Applied++
			obs.IncPushRecord(table, "applied")
			if created {
				appliedCreated = append(appliedCreated, rec)
			} else {
				appliedUpdated = append(appliedUpdated, rec)
			}
		}

		for _, raw := range delta.Created {
			upsert(raw, true)
		}
		for _, raw := range delta.Updated {
			upsert(raw, false)
		}
		for _, id := range delta.Deleted {
			if id == "" {
				continue
			}
			if err := adapter.Delete(ctx, id); err != nil {
				res.Errors = append(res.Errors, PushError{Table: table, ID: id, Err: err.Error()})
				obs.IncPushRecord(table, "failed")
				continue
			}
			res.Applied++
			obs.IncPushRecord(table, "applied")
			appliedDeleted = append(appliedDeleted, id)
		}

		if i.auditor != nil {
			if err := i.auditor.BatchApplied(ctx, table, appliedCreated, appliedUpdated, appliedDeleted); err != nil {
				obs.Warn("audit trace for push batch failed", map[string]any{
					"table": table,
					"error": err.Error(),
				})
				res.Errors = append(res.Errors, PushError{Table: table, Err: "audit trace failed: " + err.Error()})
			}
		}
	}
	return res
}

// sanitize strips fields outside the entity's known column set and
// normalizes date-like fields that arrive as raw epoch timestamps.
func (i *Ingester) sanitize(table string, raw Record) Record {
	rec := make(Record, len(raw))
	for field, value := range raw {
		if !i.catalog.HasColumn(table, field) {
			continue
		}
		if isDateField(field) {
			value = normalizeDateValue(value)
		}
		rec[field] = value
	}
	return rec
}

// isDateField matches the date-like naming convention used across clinic
// tables: *_at, *_date, and the literal timestamp/last_modified columns.
func isDateField(name string) bool {
	if strings.HasSuffix(name, "_at") || strings.HasSuffix(name, "_date") {
		return true
	}
	return name == "timestamp" || name == "last_modified"
}

// normalizeDateValue converts raw epoch timestamps (10-13 digit numbers or
// numeric strings) into UTC time values. Literal 0/"0" becomes nil rather
// than epoch-1970; some broken clients zero-fill dates they never captured.
func normalizeDateValue(v any) any {
	switch t := v.(type) {
	case string:
		trimmed := strings.TrimSpace(t)
		if trimmed == "0" {
			return nil
		}
		if isEpochDigits(trimmed) {
			n, err := strconv.ParseInt(trimmed, 10, 64)
			if err != nil {
				return v
			}
			return epochToTime(n)
		}
	case float64:
		if t == 0 {
			return nil
		}
		if t == math.Trunc(t) && isEpochMagnitude(int64(t)) {
			return epochToTime(int64(t))
		}
	case int64:
		if t == 0 {
			return nil
		}
		if isEpochMagnitude(t) {
			return epochToTime(t)
		}
	case int:
		return normalizeDateValue(int64(t))
	}
	return v
}

func isEpochDigits(s string) bool {
	if len(s) < 10 || len(s) > 13 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// isEpochMagnitude checks for a 10-13 digit value.
func isEpochMagnitude(n int64) bool {
	return n >= 1_000_000_000 && n < 10_000_000_000_000
}

// epochToTime treats values below 1e12 as seconds, everything else as
// milliseconds.
func epochToTime(n int64) time.Time {
	if n < 1_000_000_000_000 {
		return time.Unix(n, 0).UTC()
	}
	return time.UnixMilli(n).UTC()
}
