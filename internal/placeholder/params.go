package placeholder

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	digits       = "0123456789"

	isoDate       = "2006-01-02"
	secondsPerDay = 24 * 60 * 60

	// Month expansion stops at day 28 so every month has the same span.
	lastSafeDay = 28
)

var (
	yearOnly  = regexp.MustCompile(`^\d{4}$`)
	yearMonth = regexp.MustCompile(`^\d{4}-\d{2}$`)
	fullDate  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// Layouts accepted on either side of an explicit date range, most specific first.
// Missing components default to the first day of the period.
var rangeLayouts = []string{isoDate, "2006-01", "2006", "2006/01/02", "2006/01"}

// parseLengthRange accepts "N" or "min-max".
func parseLengthRange(param string) (int, int, error) {
	param = strings.TrimSpace(param)
	left, right, isRange := strings.Cut(param, "-")
	if !isRange {
		n, err := strconv.Atoi(param)
		if err != nil || n < 0 {
			return 0, 0, invalidParam("expected a length or min-max range, got %q", param)
		}
		return n, n, nil
	}
	lo, errMin := strconv.Atoi(strings.TrimSpace(left))
	hi, errMax := strconv.Atoi(strings.TrimSpace(right))
	if errMin != nil || errMax != nil || lo < 0 {
		return 0, 0, invalidParam("expected a length or min-max range, got %q", param)
	}
	if hi < lo {
		return 0, 0, invalidParam("range %q has max below min", param)
	}
	return lo, hi, nil
}

// parseNumericRange accepts "N" or "min-max" with integer or decimal bounds.
func parseNumericRange(param string) (float64, float64, error) {
	param = strings.TrimSpace(param)
	left, right, isRange := strings.Cut(param, "-")
	if !isRange {
		v, err := strconv.ParseFloat(param, 64)
		if err != nil || v < 0 {
			return 0, 0, invalidParam("expected a number or min-max range, got %q", param)
		}
		return v, v, nil
	}
	lo, errMin := strconv.ParseFloat(strings.TrimSpace(left), 64)
	hi, errMax := strconv.ParseFloat(strings.TrimSpace(right), 64)
	if errMin != nil || errMax != nil || lo < 0 {
		return 0, 0, invalidParam("expected a number or min-max range, got %q", param)
	}
	if hi < lo {
		return 0, 0, invalidParam("range %q has max below min", param)
	}
	return lo, hi, nil
}

func parseCount(param string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(param))
	if err != nil || n <= 0 {
		return 0, invalidParam("expected a positive count, got %q", param)
	}
	return n, nil
}

func splitChoices(param string) []string {
	parts := strings.Split(param, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// dateBounds turns a year, a month or a range parameter into an inclusive
// [from, to] span.
func dateBounds(param string) (time.Time, time.Time, error) {
	param = strings.TrimSpace(param)
	if start, end, ok := strings.Cut(param, " - "); ok {
		from, err := parsePartialDate(start)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		to, err := parsePartialDate(end)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		if to.Before(from) {
			return time.Time{}, time.Time{}, invalidParam("date range %q ends before it starts", param)
		}
		return from, to, nil
	}

	switch {
	case yearMonth.MatchString(param):
		first, err := time.Parse("2006-01", param)
		if err != nil {
			return time.Time{}, time.Time{}, invalidParam("invalid month %q", param)
		}
		return first, first.AddDate(0, 0, lastSafeDay-1), nil
	case yearOnly.MatchString(param):
		first, err := time.Parse("2006", param)
		if err != nil {
			return time.Time{}, time.Time{}, invalidParam("invalid year %q", param)
		}
		return first, first.AddDate(1, 0, -1), nil
	}
	return time.Time{}, time.Time{}, invalidParam("invalid date parameter format: %s", param)
}

func parsePartialDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range rangeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, invalidParam("cannot parse date %q", value)
}
