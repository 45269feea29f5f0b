package main

import (
	"fmt"
	"strings"
	"time"
)

// orderDateLayouts are the date renderings seen on confirmation pages:
//   - "January 15, 2025"  (us, ca long form)
//   - "Jan 15, 2025"      (us, ca short form)
//   - "01/15/2025"        (us numeric, month first)
//   - "15.01.2025"        (de numeric, day first)
//   - "2025-01-15"        (ISO)
var orderDateLayouts = []string{
	"January 2, 2006",
	"Jan 2, 2006",
	"01/02/2006",
	"02.01.2006",
	"2006-01-02",
}

// parseOrderTime parses a scraped order date. The result is a UTC date.
func parseOrderTime(text string) (time.Time, error) {
	text = strings.Join(strings.Fields(text), " ")

	for _, layout := range orderDateLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}

	return time.Time{}, fmt.Errorf("invalid order date '%s'", text)
}

// ParseOrderDate rewrites a scraped order date as YYYY-MM-DD. Text that is
// not a known date format is returned unchanged.
func ParseOrderDate(text string) string {
	t, err := parseOrderTime(text)
	if err != nil {
		return text
	}
	return t.Format("2006-01-02")
}
