package accounts

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mamadbah2/farmsync/internal/domain/models"
	"github.com/mamadbah2/farmsync/internal/repository/memory"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc := NewService(memory.NewStore(), time.Hour, nil)
	svc.cost = bcrypt.MinCost
	return svc
}

func TestSeedAdminAndLogin(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	require.NoError(t, svc.SeedAdmin(ctx, " Admin ", "secret"))
	require.NoError(t, svc.SeedAdmin(ctx, "admin", "other"))

	_, _, err := svc.Login(ctx, "admin", "other")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = svc.Login(ctx, "nobody", "secret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	token, user, err := svc.Login(ctx, "ADMIN", "secret")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	var u models.User
	require.NoError(t, json.Unmarshal(user, &u))
	assert.Equal(t, "admin", u.Username)
	assert.Equal(t, "admin", u.Role)
	assert.True(t, u.Active)

	me, err := svc.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.JSONEq(t, string(user), string(me))

	require.NoError(t, svc.Logout(ctx, token))
	_, err = svc.Authenticate(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidSession)
	assert.NoError(t, svc.Logout(ctx, token))
}

func TestAuthenticate_Expired(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	require.NoError(t, svc.SeedAdmin(ctx, "admin", "secret"))

	token, _, err := svc.Login(ctx, "admin", "secret")
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().UTC().Add(2 * time.Hour) }
	_, err = svc.Authenticate(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidSession)

	_, err = svc.Authenticate(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestRegister_Validation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	_, err := svc.Register(ctx, models.User{Username: " "}, "pw")
	assert.ErrorIs(t, err, models.ErrInvalidDocument)

	user, err := svc.Register(ctx, models.User{Username: "vet", Role: "staff"}, "pw")
	require.NoError(t, err)
	assert.NotZero(t, user.ID)
	assert.False(t, user.CreatedAt.IsZero())

	_, err = svc.Register(ctx, models.User{Username: "VET"}, "pw")
	assert.ErrorIs(t, err, models.ErrAlreadyExists)
}
