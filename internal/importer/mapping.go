package importer

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Alias and data-shape scoring. These were tuned against real QuickBooks and
// shop-management exports; changing them changes what gets auto-detected.
const (
	scoreExactAlias    = 100
	scoreStrippedAlias = 95
	scoreContainsAlias = 60
	scorePrefixAlias   = 40
	minCandidateScore  = 20

	bonusPhoneShape   = 30
	bonusEmailShape   = 30
	bonusYearShape    = 25
	bonusMileageShape = 20
	bonusVINShape     = 25

	phoneShapeRatio   = 0.6
	emailShapeRatio   = 0.5
	yearShapeRatio    = 0.5
	mileageShapeRatio = 0.5
	vinShapeRatio     = 0.4

	maxShapeSamples = 10
)

var (
	ErrFieldInUse       = errors.New("field is already mapped to another column")
	ErrColumnOutOfRange = errors.New("column out of range")
)

var fieldAliases = map[Field][]string{
	FieldFirstName: {"first name", "firstname", "fname", "given name", "customer first name", "contact first name"},
	FieldLastName:  {"last name", "lastname", "lname", "surname", "family name", "customer last name", "contact last name"},
	FieldFullName:  {"name", "full name", "customer", "customer name", "client", "client name", "contact", "contact name", "display name"},
	FieldPhone: {
		"phone", "phone number", "mobile", "cell", "main phone", "cell phone", "mobile phone",
		"telephone", "primary phone", "home phone", "work phone", "phone 1", "contact phone",
	},
	FieldEmail:          {"email", "email address", "e-mail", "main email", "customer email"},
	FieldVehicleYear:    {"year", "vehicle year", "model year", "car year"},
	FieldVehicleMake:    {"make", "vehicle make", "manufacturer", "brand", "car make"},
	FieldVehicleModel:   {"model", "vehicle model", "car model"},
	FieldYearMakeModel:  {"vehicle", "year make model", "ymm", "year/make/model", "vehicle description", "vehicle info"},
	FieldVIN:            {"vin", "vin number", "vin #", "vehicle identification number", "vehicle vin"},
	FieldLicensePlate:   {"license plate", "plate", "plate number", "license", "license #", "tag number"},
	FieldServiceDate:    {"last service date", "service date", "last service", "last visit", "visit date", "ro date", "invoice date", "date of service", "date"},
	FieldServiceMileage: {"mileage", "last service mileage", "miles", "odometer", "last mileage", "service mileage", "odometer reading", "mileage in"},
	FieldRepairDescription: {
		"repair description", "description", "service description", "work performed", "work done",
		"repair", "services", "service performed", "notes", "last service type",
	},
}

type mappingCandidate struct {
	header int
	field  Field
	score  int
}

// DetectMappings proposes one mapping per header. Candidates are ranked by
// alias score plus data-shape bonus and assigned greedily, so no two headers
// share a non-skip field.
func DetectMappings(headers []string, rows [][]string) []FieldMapping {
	candidates := make([]mappingCandidate, 0, len(headers)*len(mappableFields))
	for i, header := range headers {
		samples := columnSamples(rows, i, maxShapeSamples)
		for _, field := range mappableFields {
			score := aliasScore(header, fieldAliases[field]) + shapeBonus(field, samples)
			if score < minCandidateScore {
				continue
			}
			candidates = append(candidates, mappingCandidate{header: i, field: field, score: score})
		}
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].score > candidates[b].score
	})

	mappings := make([]FieldMapping, len(headers))
	assigned := make([]bool, len(headers))
	usedFields := map[Field]bool{}
	for _, c := range candidates {
		if assigned[c.header] || usedFields[c.field] {
			continue
		}
		assigned[c.header] = true
		usedFields[c.field] = true
		mappings[c.header] = FieldMapping{Field: c.field, Confidence: min(c.score, 100)}
	}

	for i, header := range headers {
		mappings[i].Header = header
		mappings[i].Sample = firstNonBlank(rows, i)
		if !assigned[i] {
			mappings[i].Field = FieldSkip
			mappings[i].Confidence = 0
		}
	}
	return mappings
}

// OverrideMapping reassigns one column. Mapping a second column to a field
// that is already in use is refused.
func OverrideMapping(mappings []FieldMapping, index int, field Field) error {
	if index < 0 || index >= len(mappings) {
		return fmt.Errorf("%w: %d", ErrColumnOutOfRange, index)
	}
	if field != FieldSkip {
		for i, m := range mappings {
			if i != index && m.Field == field {
				return fmt.Errorf("%w: %s is mapped from %q", ErrFieldInUse, field.Label(), m.Header)
			}
		}
	}
	mappings[index].Field = field
	mappings[index].Confidence = 100
	mappings[index].Manual = true
	return nil
}

type TargetOption struct {
	Field Field  `json:"field"`
	Label string `json:"label"`
	Used  bool   `json:"used"`
}

// TargetOptions lists the fields column index may be mapped to. Fields
// claimed by other columns are marked used and labelled "(used)".
func TargetOptions(mappings []FieldMapping, index int) []TargetOption {
	used := map[Field]bool{}
	for i, m := range mappings {
		if i != index && m.Field != FieldSkip {
			used[m.Field] = true
		}
	}
	out := make([]TargetOption, 0, len(mappableFields)+1)
	out = append(out, TargetOption{Field: FieldSkip, Label: FieldSkip.Label()})
	for _, f := range mappableFields {
		opt := TargetOption{Field: f, Label: f.Label(), Used: used[f]}
		if opt.Used {
			opt.Label += " (used)"
		}
		out = append(out, opt)
	}
	return out
}

type MappingStats struct {
	Mapped       int `json:"mapped"`
	Skipped      int `json:"skipped"`
	AutoDetected int `json:"autoDetected"`
}

func SummarizeMappings(mappings []FieldMapping) MappingStats {
	var stats MappingStats
	for _, m := range mappings {
		if m.Field == FieldSkip {
			stats.Skipped++
			continue
		}
		stats.Mapped++
		if !m.Manual {
			stats.AutoDetected++
		}
	}
	return stats
}

// HasField reports whether any column is mapped to field.
func HasField(mappings []FieldMapping, field Field) bool {
	for _, m := range mappings {
		if m.Field == field {
			return true
		}
	}
	return false
}

func aliasScore(header string, aliases []string) int {
	h := strings.ToLower(strings.TrimSpace(header))
	if h == "" {
		return 0
	}
	hStripped := stripNonAlnum(h)

	best := 0
	for _, alias := range aliases {
		score := 0
		switch {
		case h == alias:
			score = scoreExactAlias
		case hStripped != "" && hStripped == stripNonAlnum(alias):
			score = scoreStrippedAlias
		case strings.HasPrefix(h, alias) || strings.HasPrefix(alias, h):
			score = scorePrefixAlias
		case strings.Contains(h, alias) || strings.Contains(alias, h):
			score = scoreContainsAlias
		}
		best = max(best, score)
	}
	return best
}

func shapeBonus(field Field, samples []string) int {
	if len(samples) == 0 {
		return 0
	}
	switch field {
	case FieldPhone:
		if shareOf(samples, looksLikePhone) >= phoneShapeRatio {
			return bonusPhoneShape
		}
	case FieldEmail:
		if shareOf(samples, func(s string) bool { return strings.Contains(s, "@") }) >= emailShapeRatio {
			return bonusEmailShape
		}
	case FieldVehicleYear:
		if shareOf(samples, looksLikeModelYear) >= yearShapeRatio {
			return bonusYearShape
		}
	case FieldServiceMileage:
		if shareOf(samples, looksLikeMileage) >= mileageShapeRatio {
			return bonusMileageShape
		}
	case FieldVIN:
		if shareOf(samples, looksLikeVIN) >= vinShapeRatio {
			return bonusVINShape
		}
	}
	return 0
}

func shareOf(samples []string, match func(string) bool) float64 {
	hits := 0
	for _, s := range samples {
		if match(s) {
			hits++
		}
	}
	return float64(hits) / float64(len(samples))
}

func looksLikePhone(s string) bool {
	n := len(digitsOnly(s))
	return n == 10 || n == 11
}

func looksLikeModelYear(s string) bool {
	if len(s) != 4 {
		return false
	}
	year, err := strconv.Atoi(s)
	return err == nil && year >= 1970 && year <= 2100
}

func looksLikeMileage(s string) bool {
	n, err := strconv.Atoi(strings.ReplaceAll(s, ",", ""))
	return err == nil && n >= 100 && n <= 500000
}

func looksLikeVIN(s string) bool {
	return len(strings.Join(strings.Fields(s), "")) == 17
}

func columnSamples(rows [][]string, col, limit int) []string {
	out := make([]string, 0, limit)
	for _, row := range rows {
		if col >= len(row) {
			continue
		}
		v := strings.TrimSpace(row[col])
		if v == "" {
			continue
		}
		out = append(out, v)
		if len(out) == limit {
			break
		}
	}
	return out
}

func firstNonBlank(rows [][]string, col int) string {
	if samples := columnSamples(rows, col, 1); len(samples) > 0 {
		return samples[0]
	}
	return ""
}

func stripNonAlnum(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

var (
	quickBooksHeaders = []string{"main phone", "bill to", "bill to 1", "customer", "company", "main email", "customer type"}
	shopHeaders       = []string{"ro number", "ro #", "repair order", "odometer", "vin", "work performed", "invoice date", "ro date"}
)

// DetectFormat labels the likely origin of an upload from its headers.
func DetectFormat(file *ParsedFile) string {
	if file == nil {
		return ""
	}
	present := map[string]bool{}
	for _, h := range file.Headers {
		present[strings.ToLower(strings.TrimSpace(h))] = true
	}
	count := func(names []string) int {
		n := 0
		for _, name := range names {
			if present[name] {
				n++
			}
		}
		return n
	}

	switch {
	case count(quickBooksHeaders) >= 2:
		return "QuickBooks"
	case count(shopHeaders) >= 2:
		return "Shop management export"
	case file.Kind == FileKindSpreadsheet:
		return "Spreadsheet"
	default:
		return "CSV"
	}
}
