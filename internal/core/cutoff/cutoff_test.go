package cutoff

import (
	"testing"
	"time"
)

func TestWindowAt_Defaults(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	// Mid-afternoon local time.
	now := time.Date(2025, 6, 17, 15, 30, 0, 0, loc)

	w, err := Rule{}.WindowAt(now)
	if err != nil {
		t.Fatalf("WindowAt failed: %v", err)
	}

	wantTo := time.Date(2025, 6, 17, 0, 0, 0, 0, loc)
	wantFrom := time.Date(2025, 6, 16, 0, 0, 0, 0, loc)

	if !w.To.Equal(wantTo) {
		t.Errorf("expected To %v, got %v", wantTo, w.To)
	}
	if !w.From.Equal(wantFrom) {
		t.Errorf("expected From %v, got %v", wantFrom, w.From)
	}
}

func TestWindowAt_Offset(t *testing.T) {
	loc, _ := time.LoadLocation("UTC")
	now := time.Date(2025, 6, 17, 3, 0, 0, 0, loc)

	w, err := Rule{OffsetDays: 2, WindowDays: 3, Timezone: "UTC"}.WindowAt(now)
	if err != nil {
		t.Fatalf("WindowAt failed: %v", err)
	}

	wantTo := time.Date(2025, 6, 15, 0, 0, 0, 0, loc)
	wantFrom := time.Date(2025, 6, 12, 0, 0, 0, 0, loc)

	if !w.To.Equal(wantTo) || !w.From.Equal(wantFrom) {
		t.Errorf("expected %v..%v, got %v..%v", wantFrom, wantTo, w.From, w.To)
	}
}

func TestWindowAt_ConvertsInstant(t *testing.T) {
	// 01:00 UTC on the 17th is still the evening of the 16th in Sao
	// Paulo; the window must follow local calendar days.
	now := time.Date(2025, 6, 17, 1, 0, 0, 0, time.UTC)

	w, err := Rule{Timezone: "America/Sao_Paulo"}.WindowAt(now)
	if err != nil {
		t.Fatalf("WindowAt failed: %v", err)
	}

	loc, _ := time.LoadLocation("America/Sao_Paulo")
	wantTo := time.Date(2025, 6, 16, 0, 0, 0, 0, loc)
	if !w.To.Equal(wantTo) {
		t.Errorf("expected To %v, got %v", wantTo, w.To)
	}
}

func TestWindowAt_BadTimezone(t *testing.T) {
	if _, err := (Rule{Timezone: "Mars/Olympus"}).WindowAt(time.Now()); err == nil {
		t.Error("expected error for unknown timezone")
	}
}
