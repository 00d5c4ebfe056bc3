package txn

import (
	"strconv"
	"strings"
	"time"
)

// Explicit layouts tried after ISO-8601, in order. Day-first orders for
// slash and dash dates, matching the exports we receive.
var timeLayouts = []string{
	"January 2, 2006, 3:04 PM",
	"January 2, 2006 3:04 PM",
	"Jan 2, 2006, 3:04 PM",
	"Jan 2, 2006 3:04 PM",
	"2 January 2006 15:04:05",
	"2 Jan 2006 15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02-01-2006 15:04:05",
	"02-01-2006 15:04",
	"2006/01/02 15:04:05",
	"2006-01-02",
	"02/01/2006",
	"02-01-2006",
}

// Excel serial dates count days since 1899-12-30. Serials for plausible
// transaction dates land in [20000, 80000] (1954..2119).
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

const (
	excelSerialMin = 20000
	excelSerialMax = 80000

	epochSecondsMin = 1_000_000_000  // Sep 2001
	epochSecondsMax = 9_999_999_999  // ~10-digit range
	epochMillisMin  = 1_000_000_000_000
	epochMillisMax  = 9_999_999_999_999
)

// ParseTimestamp parses a raw timestamp value. Priority order: ISO-8601,
// the explicit layout list, Excel numeric serials, epoch seconds or
// milliseconds. A value matching none of these is unparseable; it is NEVER
// defaulted to the current time.
func ParseTimestamp(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}

	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, true
	}
	if ts, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return ts, true
	}

	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}

	if v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64); err == nil {
		switch {
		case v >= excelSerialMin && v <= excelSerialMax:
			days := int(v)
			frac := v - float64(days)
			return excelEpoch.AddDate(0, 0, days).
				Add(time.Duration(frac * 24 * float64(time.Hour))), true
		case v >= epochSecondsMin && v <= epochSecondsMax:
			return time.Unix(int64(v), 0).UTC(), true
		case v >= epochMillisMin && v <= epochMillisMax:
			return time.UnixMilli(int64(v)).UTC(), true
		}
	}

	return time.Time{}, false
}

// ParseAmount parses a locale-formatted number, stripping thousands
// separators first. Unparseable values normalize to 0, never NaN.
func ParseAmount(raw string) float64 {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
