package auth

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/crev/internal/models"
)

type mapUsers map[string]*models.User

func (m mapUsers) GetUserByName(_ context.Context, name string) (*models.User, error) {
	u, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", name, models.ErrNotFound)
	}
	return u, nil
}

func TestHashSecret(t *testing.T) {
	h, err := HashSecret("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", h)

	_, err = HashSecret("")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestVerify(t *testing.T) {
	h, err := HashSecret("s3cret")
	require.NoError(t, err)
	a := New(mapUsers{"alice": {ID: "u1", Username: "alice", PasswordHash: h, Role: models.RoleDeveloper}})
	ctx := context.Background()

	u, err := a.Verify(ctx, "alice", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)

	_, err = a.Verify(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, models.ErrUnauthenticated)

	_, err = a.Verify(ctx, "bob", "s3cret")
	assert.ErrorIs(t, err, models.ErrUnauthenticated)
}
