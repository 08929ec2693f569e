package auth

import (
	"encoding/json"
	"time"
)

// TokenSet is the OAuth credential record persisted for a provider.
// Fields the provider returns that are not modelled here are kept in Extra
// and written back unchanged.
type TokenSet struct {
	AccessToken           string `json:"access_token"`
	RefreshToken          string `json:"refresh_token"`
	ExpiresAt             int64  `json:"expires_at"`
	TokenType             string `json:"token_type,omitempty"`
	ExpiresIn             int64  `json:"expires_in,omitempty"`
	RefreshTokenExpiresIn int64  `json:"x_refresh_token_expires_in,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

var knownTokenFields = []string{
	"access_token",
	"refresh_token",
	"expires_at",
	"token_type",
	"expires_in",
	"x_refresh_token_expires_in",
}

// UnmarshalJSON decodes the known fields and stashes everything else in Extra.
func (t *TokenSet) UnmarshalJSON(data []byte) error {
	type alias TokenSet
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, k := range knownTokenFields {
		delete(raw, k)
	}

	*t = TokenSet(a)
	t.Extra = nil
	if len(raw) > 0 {
		t.Extra = raw
	}
	return nil
}

// MarshalJSON writes the known fields on top of the pass-through extras.
func (t TokenSet) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(t.Extra)+len(knownTokenFields))
	for k, v := range t.Extra {
		out[k] = v
	}
	out["access_token"] = t.AccessToken
	out["refresh_token"] = t.RefreshToken
	out["expires_at"] = t.ExpiresAt
	if t.TokenType != "" {
		out["token_type"] = t.TokenType
	}
	if t.ExpiresIn != 0 {
		out["expires_in"] = t.ExpiresIn
	}
	if t.RefreshTokenExpiresIn != 0 {
		out["x_refresh_token_expires_in"] = t.RefreshTokenExpiresIn
	}
	return json.Marshal(out)
}

// Expiry returns ExpiresAt as a time.Time.
func (t *TokenSet) Expiry() time.Time {
	return time.Unix(t.ExpiresAt, 0)
}

// ValidAt reports whether the access token can still be used at now,
// keeping margin in reserve before the expiry.
func (t *TokenSet) ValidAt(now time.Time, margin time.Duration) bool {
	if t == nil || t.AccessToken == "" || t.ExpiresAt == 0 {
		return false
	}
	return now.Before(t.Expiry().Add(-margin))
}

// SetExtra stores a provider-specific field that has no dedicated struct field.
func (t *TokenSet) SetExtra(key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if t.Extra == nil {
		t.Extra = map[string]json.RawMessage{}
	}
	t.Extra[key] = raw
}
