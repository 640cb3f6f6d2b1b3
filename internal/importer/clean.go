package importer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

const maxPlausibleMileage = 500000

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Clean runs the cleaner for field over one raw value. Scalar fields yield a
// single cell; full name and year/make/model fan out into their parts.
func Clean(field Field, raw string) []CleanedCell {
	switch field {
	case FieldFullName:
		return SplitFullName(raw)
	case FieldYearMakeModel:
		return SplitYearMakeModel(raw)
	case FieldSkip:
		return nil
	}
	return []CleanedCell{cleanScalar(field, raw)}
}

func cleanScalar(field Field, raw string) CleanedCell {
	var c CleanedCell
	switch field {
	case FieldFirstName:
		c = CleanFirstName(raw)
	case FieldLastName:
		c = CleanLastName(raw)
	case FieldPhone:
		c = CleanPhone(raw)
	case FieldEmail:
		c = CleanEmail(raw)
	case FieldVehicleYear:
		c = CleanYear(raw)
	case FieldServiceDate:
		c = CleanDate(raw)
	case FieldServiceMileage:
		c = CleanMileage(raw)
	case FieldVIN:
		c = CleanVIN(raw)
	default:
		// make, model, plate and repair description
		c = CleanText(raw)
	}
	c.Field = field
	c.Source = field
	return c
}

func result(raw, value string, status CellStatus, message string) CleanedCell {
	return CleanedCell{Value: value, Original: raw, Status: status, Message: message}
}

func CleanPhone(raw string) CleanedCell {
	digits := digitsOnly(raw)
	if digits == "" {
		return result(raw, "", StatusError, "Phone number is required")
	}
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	if len(digits) != 10 {
		return result(raw, digits, StatusError, fmt.Sprintf("Phone number must have 10 digits (found %d)", len(digits)))
	}
	if digits == strings.TrimSpace(raw) {
		return result(raw, digits, StatusClean, "")
	}
	return result(raw, digits, StatusFixed, "Phone normalized")
}

func CleanFirstName(raw string) CleanedCell {
	return cleanName(raw, true)
}

func CleanLastName(raw string) CleanedCell {
	return cleanName(raw, false)
}

func cleanName(raw string, required bool) CleanedCell {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		if required {
			return result(raw, "", StatusError, "First name is required")
		}
		return result(raw, "", StatusClean, "")
	}
	value := titleCase(trimmed)
	if value == raw {
		return result(raw, value, StatusClean, "")
	}
	return result(raw, value, StatusFixed, "Name formatted")
}

// SplitFullName returns first and last name cells. "Last, First" is honoured;
// otherwise the first word is the first name and the rest the last name.
func SplitFullName(raw string) []CleanedCell {
	first := CleanedCell{Field: FieldFirstName, Source: FieldFullName, Original: raw}
	last := CleanedCell{Field: FieldLastName, Source: FieldFullName, Original: raw}

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		first.Status, first.Message = StatusError, "Full name is required"
		last.Status, last.Message = StatusError, "Full name is required"
		return []CleanedCell{first, last}
	}

	comma := strings.Index(trimmed, ",")
	if comma >= 0 {
		last.Value = titleCase(strings.TrimSpace(trimmed[:comma]))
		first.Value = titleCase(strings.TrimSpace(trimmed[comma+1:]))
	} else {
		parts := strings.Fields(trimmed)
		first.Value = titleCase(parts[0])
		last.Value = titleCase(strings.Join(parts[1:], " "))
	}

	status, message := StatusClean, ""
	if comma >= 0 || strings.TrimSpace(first.Value+" "+last.Value) != raw {
		status, message = StatusFixed, "Split from full name"
	}
	first.Status, first.Message = status, message
	last.Status, last.Message = status, message

	if first.Value == "" {
		first.Status, first.Message = StatusError, "First name is required"
	}
	return []CleanedCell{first, last}
}

func CleanEmail(raw string) CleanedCell {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return result(raw, "", StatusClean, "")
	}
	value := strings.ToLower(trimmed)
	if !emailPattern.MatchString(value) {
		return result(raw, trimmed, StatusError, "Invalid email address")
	}
	if value != raw {
		return result(raw, value, StatusFixed, "Email normalized")
	}
	return result(raw, value, StatusClean, "")
}

func CleanYear(raw string) CleanedCell {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return result(raw, "", StatusClean, "")
	}
	year, err := strconv.Atoi(trimmed)
	if err != nil {
		return result(raw, trimmed, StatusError, "Vehicle year must be a whole number")
	}
	if year < 1900 || year > 2100 {
		return result(raw, trimmed, StatusError, "Vehicle year out of range (1900-2100)")
	}
	return result(raw, trimmed, StatusClean, "")
}

func CleanVIN(raw string) CleanedCell {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return result(raw, "", StatusClean, "")
	}
	var b strings.Builder
	for _, r := range strings.ToUpper(trimmed) {
		if isVINRune(r) {
			b.WriteRune(r)
		}
	}
	value := b.String()
	switch {
	case len(value) != 17:
		return result(raw, value, StatusWarning, fmt.Sprintf("VIN should be 17 characters (found %d)", len(value)))
	case value != raw:
		return result(raw, value, StatusFixed, "VIN normalized")
	default:
		return result(raw, value, StatusClean, "")
	}
}

func isVINRune(r rune) bool {
	if r >= '0' && r <= '9' {
		return true
	}
	return r >= 'A' && r <= 'Z' && r != 'I' && r != 'O' && r != 'Q'
}

var (
	mileageUnits   = []string{"miles", "mi", "km"}
	mileagePattern = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
)

func CleanMileage(raw string) CleanedCell {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return result(raw, "", StatusClean, "")
	}

	stripped := strings.Map(func(r rune) rune {
		if r == ',' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, trimmed)
	lower := strings.ToLower(stripped)
	for _, unit := range mileageUnits {
		if strings.HasSuffix(lower, unit) {
			stripped = stripped[:len(stripped)-len(unit)]
			break
		}
	}

	if !mileagePattern.MatchString(stripped) {
		return result(raw, trimmed, StatusError, "Mileage must be a number")
	}
	miles, err := strconv.ParseFloat(stripped, 64)
	if err != nil {
		return result(raw, trimmed, StatusError, "Mileage must be a number")
	}
	if miles < 0 {
		return result(raw, trimmed, StatusError, "Mileage cannot be negative")
	}

	value := strconv.FormatInt(int64(miles), 10)
	switch {
	case miles > maxPlausibleMileage:
		return result(raw, value, StatusWarning, "Unusually high mileage")
	case value != trimmed:
		return result(raw, value, StatusFixed, "Mileage normalized")
	default:
		return result(raw, value, StatusClean, "")
	}
}

// CleanText handles plates, descriptions and any field without a dedicated
// cleaner.
func CleanText(raw string) CleanedCell {
	trimmed := strings.TrimSpace(raw)
	if trimmed != raw {
		return result(raw, trimmed, StatusFixed, "Whitespace trimmed")
	}
	return result(raw, trimmed, StatusClean, "")
}

// SplitYearMakeModel splits "2015 Honda Civic EX" into year, make and model
// cells. A value that does not lead with a year is reported on the year cell.
func SplitYearMakeModel(raw string) []CleanedCell {
	year := CleanedCell{Field: FieldVehicleYear, Source: FieldYearMakeModel, Original: raw, Status: StatusClean}
	vmake := CleanedCell{Field: FieldVehicleMake, Source: FieldYearMakeModel, Original: raw, Status: StatusClean}
	model := CleanedCell{Field: FieldVehicleModel, Source: FieldYearMakeModel, Original: raw, Status: StatusClean}

	parts := strings.Fields(raw)
	if len(parts) == 0 {
		return []CleanedCell{year, vmake, model}
	}

	y, exact, ok := parseModelYear(parts[0])
	if !ok {
		year.Status = StatusError
		year.Message = fmt.Sprintf("Could not find a year in %q", strings.TrimSpace(raw))
		return []CleanedCell{year, vmake, model}
	}
	year.Value = strconv.Itoa(y)
	if !exact {
		year.Status, year.Message = StatusFixed, "Two-digit year expanded"
	}

	if len(parts) > 1 {
		setTitled(&vmake, parts[1])
	}
	if len(parts) > 2 {
		setTitled(&model, strings.Join(parts[2:], " "))
	}
	return []CleanedCell{year, vmake, model}
}

func setTitled(c *CleanedCell, token string) {
	c.Value = titleCase(token)
	if c.Value != token {
		c.Status, c.Message = StatusFixed, "Capitalization normalized"
	}
}

// parseModelYear accepts 4-digit years and two-digit years such as '15.
// exact is false when the value had to be expanded.
func parseModelYear(token string) (year int, exact bool, ok bool) {
	t := strings.TrimPrefix(token, "'")
	n, err := strconv.Atoi(t)
	if err != nil {
		return 0, false, false
	}
	switch len(t) {
	case 4:
		if n < 1900 || n > 2100 {
			return 0, false, false
		}
		return n, t == token, true
	case 2:
		return expandTwoDigitYear(n), false, true
	default:
		return 0, false, false
	}
}

// titleCase upper-cases the first letter of each word and lower-cases the rest.
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
