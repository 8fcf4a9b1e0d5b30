package options

import (
	"testing"
	"time"
)

func TestGetDue(t *testing.T) {
	now := time.Date(2026, 12, 5, 15, 30, 0, 0, time.Local)
	tests := map[string]struct {
		in   string
		want time.Time
	}{
		"iso":          {in: "2027-1-3", want: time.Date(2027, 1, 3, 0, 0, 0, 0, time.Local)},
		"short future": {in: "12/24", want: time.Date(2026, 12, 24, 0, 0, 0, 0, time.Local)},
		"short past":   {in: "1/3", want: time.Date(2027, 1, 3, 0, 0, 0, 0, time.Local)},
		"today":        {in: "today", want: time.Date(2026, 12, 5, 0, 0, 0, 0, time.Local)},
		"tomorrow":     {in: "tomorrow", want: time.Date(2026, 12, 6, 0, 0, 0, 0, time.Local)},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			o := &DueOptions{DueString: tc.in, Now: func() time.Time { return now }}
			got, err := o.GetDue()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestGetDueEmptyAndInvalid(t *testing.T) {
	o := &DueOptions{}
	if got, err := o.GetDue(); got != nil || err != nil {
		t.Fatalf("expected nil, got %v %v", got, err)
	}
	o.DueString = "someday"
	if _, err := o.GetDue(); err == nil {
		t.Fatal("expected an error")
	}
}

func TestOutputFormat(t *testing.T) {
	o := &OutputOptions{Output: "yaml"}
	if o.Format() != "yaml" || !o.Structured() || o.Validate() != nil {
		t.Fatalf("unexpected yaml handling %+v", o)
	}
	o.JSON = true
	if o.Format() != "json" {
		t.Fatalf("--json should win, got %s", o.Format())
	}
	if err := (&OutputOptions{Output: "xml"}).Validate(); err == nil {
		t.Fatal("expected xml to be rejected")
	}
}

func TestWrap(t *testing.T) {
	if got := Wrap("one two three", 8); got != "one two\nthree" {
		t.Fatalf("unexpected wrap %q", got)
	}
}
