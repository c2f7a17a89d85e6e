package services

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"

	"github.com/camden-git/civicregistry/repository"
)

const (
	// FirstHouseholdCode is derived when the store has no households.
	FirstHouseholdCode = "HK0001"
	// maxSuggestionProbes bounds the search for an unused code.
	maxSuggestionProbes = 1000
)

var (
	trailingDigits = regexp.MustCompile(`^(.*?)(\d+)$`)
	suggestPattern = regexp.MustCompile(`^([A-Za-z]*)(\d+)$`)
)

// incrementCode adds step to the trailing number of code, keeping its digit width when the
// result still fits. Codes without trailing digits get "-<step>" appended.
func incrementCode(code string, step int) string {
	m := trailingDigits.FindStringSubmatch(code)
	if m == nil {
		return fmt.Sprintf("%s-%d", code, step)
	}
	return m[1] + padNumber(m[2], step)
}

func padNumber(digits string, step int) string {
	n, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		// longer than uint64; fall back to appending
		return fmt.Sprintf("%s-%d", digits, step)
	}
	if n > math.MaxUint64-uint64(step) {
		return fmt.Sprintf("%s-%d", digits, step)
	}
	return fmt.Sprintf("%0*d", len(digits), n+uint64(step))
}

// DeriveNextCode returns the code following the greatest existing code, or FirstHouseholdCode
// for an empty store.
func DeriveNextCode(ctx context.Context, households repository.HouseholdRepository) (string, error) {
	maxCode, ok, err := households.MaxCode(ctx)
	if err != nil {
		return "", internal(err, "failed to derive household code")
	}
	if !ok {
		return FirstHouseholdCode, nil
	}
	return incrementCode(maxCode, 1), nil
}

// SuggestNextCode probes successive increments of old and returns the first unused code.
func SuggestNextCode(ctx context.Context, households repository.HouseholdRepository, old string) (string, error) {
	m := suggestPattern.FindStringSubmatch(old)
	if m == nil {
		return "", validationf("household code %q must be letters followed by digits", old)
	}
	for step := 1; step <= maxSuggestionProbes; step++ {
		candidate := m[1] + padNumber(m[2], step)
		taken, err := households.CodeExists(ctx, candidate, 0)
		if err != nil {
			return "", internal(err, "failed to check household code")
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", conflictf("no free household code within %d of %s", maxSuggestionProbes, old)
}
