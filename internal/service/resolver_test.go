package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/anon-community/internal/model"
	"github.com/d60-Lab/anon-community/pkg/apperr"
)

func TestResolver_Resolve(t *testing.T) {
	f := newFixture(t)
	f.aliceAndBob(t)
	ctx := context.Background()

	id, err := f.resolver.Resolve(ctx, bobAnonID)
	require.NoError(t, err)
	assert.Equal(t, "u2", id)

	_, err = f.resolver.Resolve(ctx, "ffffffffffffffff")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.resolver.Resolve(ctx, "not-an-id")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestResolver_RoundTripsManyUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 250; i++ {
		f.addUser(t, fmt.Sprintf("user-%03d", i), fmt.Sprintf("auth|%03d", i))
	}

	want := map[string]string{}
	for _, i := range []int{0, 99, 100, 249} {
		id := fmt.Sprintf("user-%03d", i)
		want[f.deriver.AnonymousID(id)] = id
	}
	anonIDs := make([]string, 0, len(want)+1)
	for a := range want {
		anonIDs = append(anonIDs, a)
	}
	anonIDs = append(anonIDs, "0000000000000000")

	got, err := f.resolver.ResolveMany(ctx, anonIDs)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestResolver_ResolveManyEmpty(t *testing.T) {
	f := newFixture(t)
	got, err := f.resolver.ResolveMany(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestResolver_ValidateFollowTarget(t *testing.T) {
	f := newFixture(t)
	f.aliceAndBob(t)
	ctx := context.Background()

	target, reason, err := f.resolver.ValidateFollowTarget(ctx, bobAnonID, "auth|alice")
	require.NoError(t, err)
	assert.Empty(t, reason)
	assert.Equal(t, "u2", target)

	_, reason, err = f.resolver.ValidateFollowTarget(ctx, bobAnonID, "auth|bob")
	require.NoError(t, err)
	assert.Equal(t, ReasonSelfFollow, reason)

	_, reason, err = f.resolver.ValidateFollowTarget(ctx, "abcdefabcdefabcd", "auth|alice")
	require.NoError(t, err)
	assert.Equal(t, ReasonNotFound, reason)

	_, _, err = f.resolver.ValidateFollowTarget(ctx, "ABC", "auth|alice")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestResolver_Describe(t *testing.T) {
	f := newFixture(t)
	f.aliceAndBob(t)

	got, err := f.resolver.Describe(context.Background(), []string{"u1", "u2"})
	require.NoError(t, err)
	require.Len(t, got, 2)

	bob := got["u2"]
	assert.Equal(t, bobAnonID, bob.AnonymousID)
	assert.Equal(t, "Harmony Path", bob.DisplayName)
	assert.Equal(t, "#d946ef", bob.AvatarColor)
	assert.Equal(t, model.RoleUser, bob.Role)

	assert.Equal(t, "Emerald Wanderer", got["u1"].DisplayName)
}

func TestResolver_PublicProfileSanitizesBio(t *testing.T) {
	f := newFixture(t)
	p := f.resolver.PublicProfile(&model.User{
		ID:                  "u1",
		Role:                model.RoleTherapist,
		IsVerifiedTherapist: true,
		Bio:                 "reach me at jane.doe@example.com or +1 (555) 123-4567",
		PostCount:           3,
	})
	assert.Equal(t, aliceAnonID, p.AnonymousID)
	assert.True(t, p.IsVerifiedTherapist)
	assert.Equal(t, 3, p.PostCount)
	assert.NotContains(t, p.Bio, "example.com")
	assert.NotContains(t, p.Bio, "555")
	assert.Contains(t, p.Bio, "reach me at")
}

func TestSanitizeBio(t *testing.T) {
	assert.Equal(t, "", SanitizeBio(""))
	assert.Equal(t, "gardening and tea", SanitizeBio("gardening and tea"))
	assert.Equal(t, "mail [removed]", SanitizeBio("mail a@b.io"))
}
