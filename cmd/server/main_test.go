package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"ledgerpos/backend/internal/config"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	for name, secret := range map[string]string{
		"short":       "short",
		"repetitive":  strings.Repeat("ab", 20),
		"placeholder": "changeme-changeme-changeme-changeme",
	} {
		assert.Error(t, validateSecurityConfig(config.Config{AuthSecret: secret}), name)
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef"})
	assert.NoError(t, err)
}
