package sync

import (
	"testing"
	"time"
)

func TestHistoryWindowInvalidValuesAreUnlimited(t *testing.T) {
	for _, raw := range []string{"", "abc", "-5", "0", "3.5"} {
		w := NewHistoryWindow(raw)
		if !w.Unlimited() {
			t.Fatalf("expected %q to yield unlimited window", raw)
		}
	}
	if NewHistoryWindow("30").Unlimited() {
		t.Fatal("expected 30 to yield a bounded window")
	}
}

func TestEffectiveCutoffExemption(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	watermark := now.AddDate(0, 0, -60)
	w := NewHistoryWindow("30")

	regular := EntityDescriptor{ServerTable: "patients", ClientTable: "patients"}
	exempt := EntityDescriptor{ServerTable: "clinics", ClientTable: "clinics", AlwaysFullSync: true}

	// Non-exempt entity is clamped to 30 days of backlog.
	got := w.EffectiveCutoff(now, watermark, regular)
	want := now.AddDate(0, 0, -30)
	if !got.Equal(want) {
		t.Fatalf("regular cutoff = %v, want %v", got, want)
	}

	// Exempt entity keeps the full 60-day watermark.
	got = w.EffectiveCutoff(now, watermark, exempt)
	if !got.Equal(watermark) {
		t.Fatalf("exempt cutoff = %v, want watermark %v", got, watermark)
	}
}

func TestEffectiveCutoffWatermarkWins(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	watermark := now.AddDate(0, 0, -3)
	w := NewHistoryWindow("30")

	desc := EntityDescriptor{ServerTable: "visits", ClientTable: "visits"}
	if got := w.EffectiveCutoff(now, watermark, desc); !got.Equal(watermark) {
		t.Fatalf("cutoff = %v, want watermark %v", got, watermark)
	}
}

func TestEffectiveCutoffUnlimited(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	watermark := now.AddDate(-2, 0, 0)

	w := NewHistoryWindow("")
	desc := EntityDescriptor{ServerTable: "visits", ClientTable: "visits"}
	if got := w.EffectiveCutoff(now, watermark, desc); !got.Equal(watermark) {
		t.Fatalf("cutoff = %v, want watermark %v", got, watermark)
	}
}
