package policy

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRules_Table(t *testing.T) {
	tests := []struct {
		level SecurityLevel
		want  Rules
	}{
		{Paranoid, Rules{}},
		{Balanced, Rules{CachesCredentials: true, UsesBiometrics: true, UnlockGraceInterval: 3600 * time.Second, RememberKeyFileContent: true}},
		{Convenience, Rules{CachesCredentials: true, UsesBiometrics: true, UnlockGraceInterval: 86400 * time.Second, RememberKeyFileContent: true}},
	}

	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.level.Rules())
			// pure: a second read yields the same value
			assert.Equal(t, tt.level.Rules(), tt.level.Rules())
			assert.Equal(t, tt.want.CachesCredentials, tt.level.CachesCredentials())
			assert.Equal(t, tt.want.UsesBiometrics, tt.level.UsesBiometrics())
			assert.Equal(t, tt.want.UnlockGraceInterval, tt.level.UnlockGraceInterval())
			assert.Equal(t, tt.want.RememberKeyFileContent, tt.level.RememberKeyFileContent())
		})
	}
}

func TestRules_UnknownLevelFailsClosed(t *testing.T) {
	assert.Equal(t, Paranoid.Rules(), SecurityLevel(42).Rules())
	assert.False(t, SecurityLevel(-1).CachesCredentials())
}

func TestRules_MutatingCopyDoesNotLeak(t *testing.T) {
	r := Balanced.Rules()
	r.CachesCredentials = false
	assert.True(t, Balanced.CachesCredentials())
}

func TestParseSecurityLevel(t *testing.T) {
	for _, l := range Levels() {
		parsed, err := ParseSecurityLevel(" " + l.String() + " ")
		require.NoError(t, err)
		assert.Equal(t, l, parsed)
	}

	parsed, err := ParseSecurityLevel("BALANCED")
	require.NoError(t, err)
	assert.Equal(t, Balanced, parsed)

	_, err = ParseSecurityLevel("lenient")
	assert.Error(t, err)
}

func TestSecurityLevel_JSONRoundTrip(t *testing.T) {
	payload, err := json.Marshal(struct {
		Level SecurityLevel `json:"level"`
	}{Convenience})
	require.NoError(t, err)
	assert.JSONEq(t, `{"level":"convenience"}`, string(payload))

	var decoded struct {
		Level SecurityLevel `json:"level"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"level":"balanced"}`), &decoded))
	assert.Equal(t, Balanced, decoded.Level)

	_, err = json.Marshal(SecurityLevel(9))
	assert.Error(t, err)
}

func TestAccessControl(t *testing.T) {
	ac, err := Balanced.AccessControl()
	require.NoError(t, err)
	assert.Equal(t, AccessUserPresence, ac)

	ac, err = Convenience.AccessControl()
	require.NoError(t, err)
	assert.Equal(t, AccessAfterFirstUnlock, ac)

	_, err = Paranoid.AccessControl()
	assert.ErrorIs(t, err, ErrPolicyViolation)

	assert.True(t, AccessUserPresence.Valid())
	assert.False(t, AccessControl("whenever").Valid())
}
