package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateUsername(t *testing.T) {
	valid := []string{"amina", "user_42", "Abc", "a1b2c3", "12345678901234567890"}
	for _, u := range valid {
		assert.NoError(t, ValidateUsername(u), "username %q", u)
	}

	invalid := []string{"ab", "_leading", "has space", "has-dash", "way_too_long_username_here", "émile"}
	for _, u := range invalid {
		assert.Error(t, ValidateUsername(u), "username %q", u)
	}
}

func TestNormalizeUsername(t *testing.T) {
	assert.Equal(t, "amina", NormalizeUsername("  AmInA "))
}
