package timeutil

import (
	"testing"
	"time"
)

func TestParseWindowDefault(t *testing.T) {
	dur, label, err := ParseWindow("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := 7 * 24 * time.Hour
	if dur != want {
		t.Fatalf("expected %v, got %v", want, dur)
	}
	if label != "1w" {
		t.Fatalf("expected label 1w, got %s", label)
	}
}

func TestParseWindowComposite(t *testing.T) {
	dur, label, err := ParseWindow("1w2d6h30m")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := (7*24+2*24+6)*time.Hour + 30*time.Minute
	if dur != want {
		t.Fatalf("expected %v, got %v", want, dur)
	}
	if label != "1w2d6h30m" {
		t.Fatalf("unexpected label: %s", label)
	}
}

func TestParseWindowInvalid(t *testing.T) {
	if _, _, err := ParseWindow("noop"); err == nil {
		t.Fatalf("expected error for invalid window")
	}
}

func TestParseWindowUnits(t *testing.T) {
	tests := map[string]struct {
		in    string
		want  time.Duration
		label string
	}{
		"days":        {in: "3 days", want: 3 * 24 * time.Hour, label: "3d"},
		"mixed case":  {in: "2H", want: 2 * time.Hour, label: "2h"},
		"normalizes":  {in: "8d", want: 8 * 24 * time.Hour, label: "1w1d"},
		"spaced list": {in: "1w 1h", want: (7*24 + 1) * time.Hour, label: "1w1h"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got, label, err := ParseWindow(tc.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want || label != tc.label {
				t.Fatalf("got %v %q, want %v %q", got, label, tc.want, tc.label)
			}
		})
	}
}

func TestParseWindowRejects(t *testing.T) {
	for _, in := range []string{"0d", "5", "3 fortnights", "-1d"} {
		if _, _, err := ParseWindow(in); err == nil {
			t.Errorf("expected error for %q", in)
		}
	}
}

func TestLast(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	w, err := Last("2d", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !w.Until.Equal(now) || !w.Since.Equal(now.Add(-48*time.Hour)) || w.Label != "2d" {
		t.Fatalf("unexpected window %+v", w)
	}
}
