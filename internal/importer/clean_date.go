package importer

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	isoLayout = "2006-01-02"

	// Spreadsheet serials for 1970-01-01 and 2099-12-31.
	excelSerialMin = 25569
	excelSerialMax = 73051
	msPerDay       = 86400000

	twoDigitYearPivot = 50
)

var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

var (
	isoDatePattern      = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
	isoTimestampPattern = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})[T ]\d{1,2}:\d{2}`)
	numericDatePattern  = regexp.MustCompile(`^(\d{1,2})([/.-])(\d{1,2})([/.-])(\d{4}|\d{2})$`)
	serialPattern       = regexp.MustCompile(`^\d+(\.\d+)?$`)
	monthFirstPattern   = regexp.MustCompile(`(?i)^([a-z]+)\.?\s+(\d{1,2}),?\s+(\d{4})$`)
	dayFirstPattern     = regexp.MustCompile(`(?i)^(\d{1,2})[-\s]([a-z]+)\.?[-\s](\d{4}|\d{2})$`)
)

var monthNames = map[string]time.Month{
	"jan": time.January, "january": time.January,
	"feb": time.February, "february": time.February,
	"mar": time.March, "march": time.March,
	"apr": time.April, "april": time.April,
	"may": time.May,
	"jun": time.June, "june": time.June,
	"jul": time.July, "july": time.July,
	"aug": time.August, "august": time.August,
	"sep": time.September, "sept": time.September, "september": time.September,
	"oct": time.October, "october": time.October,
	"nov": time.November, "november": time.November,
	"dec": time.December, "december": time.December,
}

// CleanDate normalizes a service date to YYYY-MM-DD. US month-first order is
// assumed; a leading component above 12 is read as day-first and flagged.
func CleanDate(raw string) CleanedCell {
	value := strings.TrimSpace(raw)
	if value == "" {
		return result(raw, "", StatusClean, "")
	}

	if m := isoDatePattern.FindStringSubmatch(value); m != nil {
		date, ok := calendarDate(atoi(m[1]), atoi(m[2]), atoi(m[3]))
		if !ok {
			return result(raw, value, StatusError, "Invalid calendar date")
		}
		iso := date.Format(isoLayout)
		if iso == value {
			return result(raw, iso, StatusClean, "")
		}
		return result(raw, iso, StatusFixed, "Date normalized")
	}

	if m := isoTimestampPattern.FindStringSubmatch(value); m != nil {
		date, ok := calendarDate(atoi(m[1]), atoi(m[2]), atoi(m[3]))
		if !ok {
			return result(raw, value, StatusError, "Invalid calendar date")
		}
		return result(raw, date.Format(isoLayout), StatusFixed, "Time of day removed")
	}

	if m := numericDatePattern.FindStringSubmatch(value); m != nil && m[2] == m[4] {
		return cleanNumericDate(raw, value, atoi(m[1]), atoi(m[3]), m[5])
	}

	if serialPattern.MatchString(value) {
		serial, err := strconv.ParseFloat(value, 64)
		if err == nil && serial >= excelSerialMin && serial <= excelSerialMax {
			date := time.UnixMilli(excelEpoch.UnixMilli() + int64(serial*msPerDay)).UTC()
			return result(raw, date.Format(isoLayout), StatusFixed, "Converted from Excel serial")
		}
		return result(raw, value, StatusError, "Unrecognized date format")
	}

	if m := monthFirstPattern.FindStringSubmatch(value); m != nil {
		if month, ok := monthNames[strings.ToLower(m[1])]; ok {
			return namedMonthDate(raw, value, atoi(m[3]), month, atoi(m[2]))
		}
	}
	if m := dayFirstPattern.FindStringSubmatch(value); m != nil {
		if month, ok := monthNames[strings.ToLower(m[2])]; ok {
			return namedMonthDate(raw, value, yearFrom(m[3]), month, atoi(m[1]))
		}
	}

	return result(raw, value, StatusError, "Unrecognized date format")
}

func cleanNumericDate(raw, value string, first, second int, yearText string) CleanedCell {
	year := yearFrom(yearText)

	switch {
	case first >= 1 && first <= 12 && second >= 1 && second <= 31:
		date, ok := calendarDate(year, first, second)
		if !ok {
			return result(raw, value, StatusError, "Invalid calendar date")
		}
		return result(raw, date.Format(isoLayout), StatusFixed, "Date normalized")
	case first > 12 && first <= 31 && second >= 1 && second <= 12:
		date, ok := calendarDate(year, second, first)
		if !ok {
			return result(raw, value, StatusError, "Invalid calendar date")
		}
		return result(raw, date.Format(isoLayout), StatusWarning, "Interpreted as DD/MM/YYYY")
	default:
		return result(raw, value, StatusError, "Unrecognized date format")
	}
}

func namedMonthDate(raw, value string, year int, month time.Month, day int) CleanedCell {
	date, ok := calendarDate(year, int(month), day)
	if !ok {
		return result(raw, value, StatusError, "Invalid calendar date")
	}
	return result(raw, date.Format(isoLayout), StatusFixed, "Date normalized")
}

// calendarDate rejects values time.Date would silently roll over, such as
// February 30th.
func calendarDate(year, month, day int) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	date := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if date.Month() != time.Month(month) || date.Day() != day {
		return time.Time{}, false
	}
	return date, true
}

func yearFrom(text string) int {
	year := atoi(text)
	if len(text) == 2 {
		return expandTwoDigitYear(year)
	}
	return year
}

func expandTwoDigitYear(yy int) int {
	if yy > twoDigitYearPivot {
		return 1900 + yy
	}
	return 2000 + yy
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// ParseCleanDate reads a cleaned service date back into a time.
func ParseCleanDate(value string) (time.Time, bool) {
	t, err := time.Parse(isoLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
