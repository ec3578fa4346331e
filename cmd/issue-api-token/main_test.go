package main

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueTokenRejectsMissingArgs(t *testing.T) {
	_, err := issueToken("", "shh", "admin", time.Hour)
	assert.Error(t, err)
	_, err = issueToken("alice", "", "admin", time.Hour)
	assert.Error(t, err)
}

func TestIssueTokenRejectsEmptyRoleList(t *testing.T) {
	_, err := issueToken("alice", "shh", " , ,", time.Hour)
	assert.Error(t, err)
}

func TestIssueTokenProducesVerifiableHMACToken(t *testing.T) {
	signed, err := issueToken("alice", "shh", "admin, operator", time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, signed)

	parsed, err := jwt.ParseWithClaims(signed, &apiClaims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte("shh"), nil
	})
	require.NoError(t, err)
	require.True(t, parsed.Valid)

	got := parsed.Claims.(*apiClaims)
	assert.Equal(t, "alice", got.Subject)
	assert.Equal(t, []string{"admin", "operator"}, got.Roles)
	assert.Equal(t, "stormstack-control-plane", got.Issuer)
}

func TestIssueTokenRejectsWrongSecretOnVerify(t *testing.T) {
	signed, err := issueToken("alice", "shh", "admin", time.Hour)
	require.NoError(t, err)

	_, err = jwt.ParseWithClaims(signed, &apiClaims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte("wrong-secret"), nil
	})
	assert.Error(t, err)
}

func TestSplitAndTrimDropsEmptyEntries(t *testing.T) {
	roles := splitAndTrim(" admin ,, operator,")
	assert.Equal(t, []string{"admin", "operator"}, roles)
}
