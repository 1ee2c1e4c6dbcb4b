package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManager_EmptyKey(t *testing.T) {
	_, err := NewManager("")
	assert.Error(t, err)
}

func TestManager_RoundTrip(t *testing.T) {
	m, err := NewManager("secret")
	require.NoError(t, err)

	tok, err := m.NewJWT("7", RoleOperator, time.Hour)
	require.NoError(t, err)

	claims, err := m.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "7", claims.Subject)
	assert.Equal(t, RoleOperator, claims.Role)
}

func TestManager_RejectsExpired(t *testing.T) {
	m, err := NewManager("secret")
	require.NoError(t, err)
	m.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	tok, err := m.NewJWT("7", RoleOperator, time.Hour)
	require.NoError(t, err)

	_, err = m.Parse(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestManager_RejectsOtherKey(t *testing.T) {
	a, _ := NewManager("a")
	b, _ := NewManager("b")
	tok, err := a.NewJWT("7", RoleOperator, time.Hour)
	require.NoError(t, err)

	_, err = b.Parse(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
