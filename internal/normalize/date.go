package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	dmyRe = regexp.MustCompile(`^(\d{1,2})[/-](\d{1,2})[/-](\d{4})$`)
	isoRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// ConvertDate rewrites DD/MM/YYYY or DD-MM-YYYY to YYYY-MM-DD. ISO input and
// anything unrecognised (including impossible calendar dates) are returned
// unchanged, so callers must treat a non-ISO result as unparseable.
func ConvertDate(raw string) string {
	s := strings.TrimSpace(raw)
	if isoRe.MatchString(s) {
		return s
	}
	m := dmyRe.FindStringSubmatch(s)
	if m == nil {
		return raw
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month || t.Year() != year {
		return raw
	}
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day)
}

// IsISODate reports whether s is already in YYYY-MM-DD form.
func IsISODate(s string) bool {
	return isoRe.MatchString(s)
}
