package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kasirinaja/cashdesk/internal/config"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "short", ManagerPIN: "123456"})
	require.Error(t, err)
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", ManagerPIN: "739154"})
	require.NoError(t, err)
}

func TestValidatePINStrength(t *testing.T) {
	cases := map[string]bool{
		"739154": true,
		"121212": false,
		"777777": false,
		"987654": false,
		"345678": false,
		"902417": true,
	}
	for pin, ok := range cases {
		err := validatePINStrength(pin)
		if ok {
			assert.NoError(t, err, pin)
		} else {
			assert.Error(t, err, pin)
		}
	}
}
