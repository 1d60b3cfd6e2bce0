package utils

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ParseDecimal converts a trimmed cell value into a decimal.
func ParseDecimal(value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero, errors.New("empty decimal string")
	}
	dec, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, err
	}
	return dec, nil
}

// ParseDecimalOrZero is for sheet cells where blank means "no value yet".
func ParseDecimalOrZero(value string) decimal.Decimal {
	dec, err := ParseDecimal(value)
	if err != nil {
		return decimal.Zero
	}
	return dec
}

func NowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func TodayISO() string {
	return time.Now().UTC().Format("2006-01-02")
}

// TodayInLocation gives the calendar date as the shop sees it.
func TodayInLocation(loc *time.Location) string {
	return time.Now().In(loc).Format("2006-01-02")
}

// ParseISOTime accepts the timestamps we write (RFC3339) plus a couple of
// older layouts still present in long-lived sheets.
func ParseISOTime(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseClock parses "HH:MM" into minutes since midnight.
func ParseClock(value string) (int, bool) {
	value = strings.TrimSpace(value)
	parts := strings.SplitN(value, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	t, err := time.Parse("15:04", strings.TrimSpace(parts[0])+":"+strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}

// SplitCSV splits a comma (or whitespace) separated cell into trimmed tokens.
func SplitCSV(raw string) []string {
	cleaned := strings.ReplaceAll(raw, ",", " ")
	var out []string
	for _, token := range strings.Fields(cleaned) {
		token = strings.TrimPrefix(token, "@")
		if token != "" {
			out = append(out, token)
		}
	}
	return out
}

// Dedupe keeps first occurrences, preserving order.
func Dedupe(values []int64) []int64 {
	seen := make(map[int64]bool, len(values))
	var out []int64
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
