// Package filedate derives the statement month from a statement file name
// such as "Agosto 2025.pdf".
package filedate

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// Unknown is returned when no month/year pair can be found in the name.
// It is a sentinel, not a real statement date.
const Unknown = "1970-01-01"

// defaultMonth is used when the token before the year is not a month name.
const defaultMonth = "01"

var monthNumbers = map[string]string{
	"enero":      "01",
	"febrero":    "02",
	"marzo":      "03",
	"abril":      "04",
	"mayo":       "05",
	"junio":      "06",
	"julio":      "07",
	"agosto":     "08",
	"septiembre": "09",
	"octubre":    "10",
	"noviembre":  "11",
	"diciembre":  "12",
}

// A word token followed by whitespace and a four digit year, anywhere in the name.
var monthYearPattern = regexp.MustCompile(`([\p{L}\p{N}_]+)[\s\p{Zs}]+(\d{4})`)

// Parse returns the ISO date "YYYY-MM-01" encoded in a file name, or Unknown.
// The month token is matched case-insensitively; unknown tokens map to January.
func Parse(filename string) string {
	base := filepath.Base(filename)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	stem = strings.TrimSpace(strings.ToLower(stem))

	m := monthYearPattern.FindStringSubmatch(stem)
	if m == nil {
		return Unknown
	}

	month, ok := monthNumbers[m[1]]
	if !ok {
		month = defaultMonth
	}
	return m[2] + "-" + month + "-01"
}

// IsUnknown reports whether date is the Unknown sentinel.
func IsUnknown(date string) bool {
	return date == Unknown
}

// Civil converts a parsed date for storage in typed columns.
// The Unknown sentinel and malformed input report false so callers can store NULL.
func Civil(date string) (civil.Date, bool) {
	if IsUnknown(date) {
		return civil.Date{}, false
	}
	t, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return civil.Date{}, false
	}
	return civil.DateOf(t), true
}
