package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateThreadCount(t *testing.T) {
	tests := []struct {
		name    string
		threads int
		wantErr bool
	}{
		{"valid minimum", 1, false},
		{"valid middle", 10, false},
		{"valid maximum", 20, false},
		{"too low", 0, true},
		{"negative", -1, true},
		{"too high", 21, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateThreadCount(tt.threads)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateThreadCount(%d) error = %v, wantErr %v", tt.threads, err, tt.wantErr)
			}
		})
	}
}

func TestValidateNonEmptyString(t *testing.T) {
	tests := []struct {
		name      string
		fieldName string
		value     string
		wantErr   bool
	}{
		{"valid string", "sql", "SELECT * FROM Customer", false},
		{"empty string", "sql", "", true},
		{"whitespace only", "endpoint", "   ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNonEmptyString(tt.fieldName, tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateNonEmptyString(%q, %q) error = %v, wantErr %v", tt.fieldName, tt.value, err, tt.wantErr)
			}
			if err != nil {
				assert.Contains(t, err.Error(), tt.fieldName)
			}
		})
	}
}

func TestValidateMethod(t *testing.T) {
	for _, in := range []string{"get", "GET", " post ", "Put", "delete"} {
		got, err := ValidateMethod(in)
		require.NoError(t, err, in)
		assert.NotEmpty(t, got)
	}
	got, _ := ValidateMethod("post")
	assert.Equal(t, "POST", got)

	_, err := ValidateMethod("PATCH")
	assert.Error(t, err)
	_, err = ValidateMethod("")
	assert.Error(t, err)
}

func TestValidateFormat(t *testing.T) {
	assert.NoError(t, ValidateFormat("csv"))
	assert.NoError(t, ValidateFormat("JSON"))
	assert.Error(t, ValidateFormat("xlsx"))
}

func TestValidatePositive(t *testing.T) {
	assert.NoError(t, ValidatePositive("page-size", 100))
	assert.Error(t, ValidatePositive("page-size", 0))
	assert.Error(t, ValidatePositive("limit", -3))
}

func TestValidatePageSize(t *testing.T) {
	assert.NoError(t, ValidatePageSize(0))
	assert.NoError(t, ValidatePageSize(MaxPageSize))
	assert.Error(t, ValidatePageSize(MaxPageSize+1))
	assert.Error(t, ValidatePageSize(-1))
}

func TestParseParams(t *testing.T) {
	params, err := ParseParams([]string{"where=Status==\"AUTHORISED\"", "order=Date", "empty="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"where": "Status==\"AUTHORISED\"",
		"order": "Date",
		"empty": "",
	}, params)

	_, err = ParseParams([]string{"novalue"})
	assert.Error(t, err)
	_, err = ParseParams([]string{"=x"})
	assert.Error(t, err)

	params, err = ParseParams(nil)
	require.NoError(t, err)
	assert.Empty(t, params)
}
