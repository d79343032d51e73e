package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"strips leading zeros", "0000042", "42"},
		{"plain numeric unchanged", "42", "42"},
		{"zero collapses", "000000", "0"},
		{"single zero", "0", "0"},
		{"non-numeric unchanged", "user-abc", "user-abc"},
		{"mixed alphanumeric unchanged", "0000a1", "0000a1"},
		{"empty unchanged", "", ""},
		{"huge id keeps precision", "00001234567890123456789012345678901234567890", "1234567890123456789012345678901234567890"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"0000042", "42", "abc", "", "000000", "0099", "user:7"}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}

func TestIsLegacyFormat(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"0000042", true},
		{"00000123456", true},
		{"000001", true},
		{"00001", false},  // four zeros, too short
		{"00000", false},  // zeros only, nothing follows
		{"42", false},
		{"", false},
		{"00000a1", false},
		{"a0000042", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, IsLegacyFormat(tt.in), "input %q", tt.in)
	}
}

func TestID(t *testing.T) {
	assert.False(t, ID("").IsValid())
	assert.True(t, ID("7").IsValid())
	assert.Equal(t, ID("42"), ID("0000042").Canonical())
	assert.True(t, ID("0000042").IsLegacy())
	assert.False(t, ID("42").IsLegacy())
}
