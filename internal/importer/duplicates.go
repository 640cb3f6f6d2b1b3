package importer

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// PhoneLookup reports which of the given normalized phones already belong
// to a customer of the tenant. Implementations answer in a single round trip.
type PhoneLookup interface {
	ExistingPhones(ctx context.Context, tenantID uuid.UUID, phones []string) ([]string, error)
}

// FindInternalDuplicates reports every repeat of a phone within the file.
// The first occurrence is never reported.
func FindInternalDuplicates(rows []CleanedRow) []DuplicateInfo {
	seen := map[string]bool{}
	var dups []DuplicateInfo
	for _, row := range rows {
		phone := row.Value(FieldPhone)
		if phone == "" {
			continue
		}
		if seen[phone] {
			dups = append(dups, DuplicateInfo{Phone: phone, RowIndex: row.Index, Name: rowName(row), Type: DuplicateInternal})
			continue
		}
		seen[phone] = true
	}
	return dups
}

// FindExistingDuplicates reports rows whose phone matches a persisted
// customer. All candidate phones are looked up in one call.
func FindExistingDuplicates(ctx context.Context, tenantID uuid.UUID, rows []CleanedRow, lookup PhoneLookup) ([]DuplicateInfo, error) {
	phones := CandidatePhones(rows)
	if len(phones) == 0 {
		return nil, nil
	}

	existing, err := lookup.ExistingPhones(ctx, tenantID, phones)
	if err != nil {
		return nil, fmt.Errorf("lookup existing phones: %w", err)
	}
	known := make(map[string]bool, len(existing))
	for _, p := range existing {
		known[p] = true
	}

	var dups []DuplicateInfo
	for _, row := range rows {
		phone := row.Value(FieldPhone)
		if len(phone) >= 10 && known[phone] {
			dups = append(dups, DuplicateInfo{Phone: phone, RowIndex: row.Index, Name: rowName(row), Type: DuplicateExisting})
		}
	}
	return dups, nil
}

// CandidatePhones returns the distinct cleaned phones of at least 10 digits.
func CandidatePhones(rows []CleanedRow) []string {
	seen := map[string]bool{}
	var phones []string
	for _, row := range rows {
		phone := row.Value(FieldPhone)
		if len(phone) < 10 || seen[phone] {
			continue
		}
		seen[phone] = true
		phones = append(phones, phone)
	}
	return phones
}

func rowName(row CleanedRow) string {
	return strings.TrimSpace(row.Value(FieldFirstName) + " " + row.Value(FieldLastName))
}
