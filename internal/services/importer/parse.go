package importer

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseAmount accepts the decimal formats seen across the feeds: "149.90",
// German "1.234,56" and "149,90". The sign is preserved.
func ParseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	s = strings.ReplaceAll(s, " ", "")

	dot := strings.LastIndex(s, ".")
	comma := strings.LastIndex(s, ",")
	switch {
	case comma > dot:
		// decimal comma, dots are thousands separators
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case comma >= 0:
		// decimal dot, commas are thousands separators
		s = strings.ReplaceAll(s, ",", "")
	}

	amount, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("unparsable amount %q", s)
	}
	return amount, nil
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"02.01.2006",
	"02-01-2006",
}

// ParseDate accepts the booking date formats delivered by the feed adapters.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable date %q", s)
}
