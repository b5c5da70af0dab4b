package profile_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semanticallynull/ebike-fleet/fleeterr"
	"github.com/semanticallynull/ebike-fleet/internal/memstore"
	"github.com/semanticallynull/ebike-fleet/profile"
)

func strPtr(s string) *string { return &s }

func newService() *profile.Service {
	return profile.NewService(memstore.New().Profiles(), slog.New(slog.DiscardHandler))
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	svc := newService()

	p, err := svc.Create(ctx, profile.Input{UserID: " user-1 ", Role: profile.RoleDriver, FirstName: strPtr("Ana")})
	require.NoError(t, err)

	assert.Equal(t, "user-1", p.UserID)
	assert.Equal(t, profile.RoleDriver, p.Role)

	got, err := svc.GetByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
}

func TestCreate_DuplicateUser(t *testing.T) {
	ctx := context.Background()
	svc := newService()
	_, err := svc.Create(ctx, profile.Input{UserID: "user-1", Role: profile.RoleDriver})
	require.NoError(t, err)

	_, err = svc.Create(ctx, profile.Input{UserID: "user-1", Role: profile.RoleAdmin})

	assert.True(t, fleeterr.IsConflict(err))
}

func TestCreate_Validation(t *testing.T) {
	ctx := context.Background()
	svc := newService()

	_, err := svc.Create(ctx, profile.Input{UserID: "user-1", Role: "mechanic"})
	assert.True(t, fleeterr.IsValidation(err))

	_, err = svc.Create(ctx, profile.Input{UserID: "user-1", Role: profile.RoleDriver, Email: strPtr("not-an-email")})
	assert.True(t, fleeterr.IsValidation(err))
}

func TestUpdate_KeepsUserID(t *testing.T) {
	ctx := context.Background()
	svc := newService()
	p, err := svc.Create(ctx, profile.Input{UserID: "user-1", Role: profile.RoleDriver})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, p.ID, profile.Input{UserID: "someone-else", Role: profile.RoleAdmin, LastName: strPtr("Ilić")})
	require.NoError(t, err)

	assert.Equal(t, "user-1", updated.UserID)
	assert.Equal(t, profile.RoleAdmin, updated.Role)
	assert.Equal(t, "Ilić", updated.Name())
}

func TestGetByUserID_Unknown(t *testing.T) {
	_, err := newService().GetByUserID(context.Background(), "ghost")

	assert.True(t, fleeterr.IsNotFound(err))
}

func TestName_FallsBackToUserID(t *testing.T) {
	assert.Equal(t, "user-9", profile.Profile{UserID: "user-9"}.Name())
	assert.Equal(t, "Ana Ilić", profile.Profile{FirstName: strPtr("Ana"), LastName: strPtr("Ilić")}.Name())
}
