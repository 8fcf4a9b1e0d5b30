package options

import (
	"time"

	"github.com/spf13/cobra"
)

const (
	layoutISO      = "2006-1-2"
	layoutISOShort = "1/2"
)

type DueOptions struct {
	DueString string
	// Now defaults to time.Now.
	Now func() time.Time
}

func AddDueArgs(cmd *cobra.Command, o *DueOptions) {
	cmd.Flags().StringVar(&o.DueString, "due", "",
		`Specify a due date, example: --due="2026-2-28", --due="2/28", --due=today or --due=tomorrow.`)
}

// GetDue parses the due flag into local midnight of that day.
func (o *DueOptions) GetDue() (*time.Time, error) {
	if o.DueString == "" {
		return nil, nil
	}
	now := time.Now()
	if o.Now != nil {
		now = o.Now()
	}
	now = now.Local()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)

	switch o.DueString {
	case "today":
		return &today, nil
	case "tomorrow":
		t := today.AddDate(0, 0, 1)
		return &t, nil
	}

	t, err := time.ParseInLocation(layoutISO, o.DueString, time.Local)
	if err != nil {
		// Let the year be the same.
		t, err = time.ParseInLocation(layoutISOShort, o.DueString, time.Local)
		if err != nil {
			return nil, err
		}
		t = time.Date(now.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.Local)
		// A month/day already behind us means next year.
		if t.Before(today) {
			t = t.AddDate(1, 0, 0)
		}
	}
	return &t, nil
}
