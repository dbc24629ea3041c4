package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	session, err := Issue("admin", "logbook", "test-key", time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), session.ExpiresAt, 5*time.Second)

	claims, err := Parse(session.Token, "test-key", "logbook")
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Subject)
	assert.Equal(t, "admin", claims.Role)
}

func TestParse_WrongKey(t *testing.T) {
	session, err := Issue("admin", "logbook", "test-key", time.Hour)
	require.NoError(t, err)

	_, err = Parse(session.Token, "other-key", "logbook")
	assert.Error(t, err)
}

func TestParse_IssuerMismatch(t *testing.T) {
	session, err := Issue("admin", "somewhere-else", "test-key", time.Hour)
	require.NoError(t, err)

	_, err = Parse(session.Token, "test-key", "logbook")
	assert.Error(t, err)
}

func TestParse_Expired(t *testing.T) {
	session, err := Issue("admin", "logbook", "test-key", -time.Minute)
	require.NoError(t, err)

	_, err = Parse(session.Token, "test-key", "logbook")
	assert.Error(t, err)
}
