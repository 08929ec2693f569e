package validation

import (
	"fmt"
	"net/http"
	"strings"
)

const (
	MinThreads = 1
	MaxThreads = 20
)

// Formats accepted by --format.
var Formats = []string{"csv", "json"}

func ValidateThreadCount(threads int) error {
	if threads < MinThreads || threads > MaxThreads {
		return fmt.Errorf("thread count must be between %d and %d, got %d", MinThreads, MaxThreads, threads)
	}
	return nil
}

func ValidateNonEmptyString(fieldName, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}
	return nil
}

// ValidateMethod accepts the HTTP methods the provider APIs take and returns the canonical form.
func ValidateMethod(method string) (string, error) {
	m := strings.ToUpper(strings.TrimSpace(method))
	switch m {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
		return m, nil
	}
	return "", fmt.Errorf("invalid HTTP method: %s (must be one of: GET, POST, PUT, DELETE)", method)
}

func ValidateFormat(format string) error {
	for _, f := range Formats {
		if strings.EqualFold(format, f) {
			return nil
		}
	}
	return fmt.Errorf("invalid format: %s (must be one of: %s)", format, strings.Join(Formats, ", "))
}

func ValidatePositive(fieldName string, n int) error {
	if n <= 0 {
		return fmt.Errorf("%s must be a positive integer, got %d", fieldName, n)
	}
	return nil
}

// MaxPageSize is the largest page both QuickBooks (MAXRESULTS) and Xero (pageSize) accept.
const MaxPageSize = 1000

// ValidatePageSize accepts 0 (use the configured default) up to MaxPageSize.
func ValidatePageSize(n int) error {
	if n < 0 || n > MaxPageSize {
		return fmt.Errorf("page size must be between 1 and %d, got %d", MaxPageSize, n)
	}
	return nil
}

// ParseParams turns "key=value" pairs into a map. Later keys overwrite earlier ones.
func ParseParams(pairs []string) (map[string]string, error) {
	params := make(map[string]string, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q (expected key=value)", p)
		}
		params[key] = value
	}
	return params, nil
}
