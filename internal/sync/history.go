package sync

import (
	"strconv"
	"strings"
	"time"

	"clinicbase.org/internal/obs"
)

// HistoryWindow bounds how far back a pull may reach. A zero maxDays means
// unlimited history.
type HistoryWindow struct {
	maxDays int
}

// NewHistoryWindow parses the raw retention setting. An absent or invalid
// value degrades to unlimited history with an operator-visible warning; a
// misconfigured window must never fail a request.
func NewHistoryWindow(raw string) *HistoryWindow {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return &HistoryWindow{}
	}
	days, err := strconv.Atoi(raw)
	if err != nil || days <= 0 {
		obs.Warn("invalid sync history window, defaulting to unlimited", map[string]any{
			"value": raw,
		})
		return &HistoryWindow{}
	}
	return &HistoryWindow{maxDays: days}
}

// Unlimited reports whether no retention window applies.
func (h *HistoryWindow) Unlimited() bool { return h.maxDays == 0 }

// EffectiveCutoff computes the cutoff for one entity's pull.
//
// AlwaysFullSync entities are pinned to the client watermark so reference
// data never loses history to the retention window. Everything else gets
// max(watermark, now-maxDays): even a client that has never synced cannot
// demand more than maxDays of backlog.
func (h *HistoryWindow) EffectiveCutoff(now, watermark time.Time, desc EntityDescriptor) time.Time {
	if desc.AlwaysFullSync || h.Unlimited() {
		return watermark
	}
	cutoff := now.AddDate(0, 0, -h.maxDays)
	if watermark.After(cutoff) {
		return watermark
	}
	return cutoff
}
