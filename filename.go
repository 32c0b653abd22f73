package timewarrior

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var datafileNameRe = regexp.MustCompile(`^(\d{4})-(\d{2})\.data$`)

// monthName formats the Datafile name for the month containing t, e.g.
// "2016-06.data".
func monthName(t time.Time) string {
	return fmt.Sprintf("%04d-%02d.data", t.Year(), t.Month())
}

// parseMonthName parses a "YYYY-MM.data" name into the first instant of
// that month (UTC). Names that don't match the pattern are rejected so
// that discovery can silently ignore unrelated files in the data
// directory, per §4.1 ("a file whose name does not match YYYY-MM.data is
// ignored at discovery time").
func parseMonthName(name string) (time.Time, error) {
	m := datafileNameRe.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, fmt.Errorf("timewarrior: %q is not a YYYY-MM.data name", name)
	}
	year, err := strconv.Atoi(m[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("timewarrior: %q: invalid year: %w", name, err)
	}
	month, err := strconv.Atoi(m[2])
	if err != nil || month < 1 || month > 12 {
		return time.Time{}, fmt.Errorf("timewarrior: %q: invalid month", name)
	}
	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC), nil
}

// monthRange returns the [first-of-month, first-of-next-month) Range for
// the month containing t.
func monthRange(t time.Time) Range {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	return Range{Start: start, End: end}
}
