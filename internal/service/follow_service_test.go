package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/anon-community/internal/event"
	"github.com/d60-Lab/anon-community/internal/model"
	"github.com/d60-Lab/anon-community/internal/repository"
	"github.com/d60-Lab/anon-community/pkg/apperr"
)

func boolPtr(b bool) *bool { return &b }

// assertPairSymmetric 两个方向的互关字段必须一致
func assertPairSymmetric(t *testing.T, f *fixture, a, b string) {
	t.Helper()
	ctx := context.Background()
	ab, err := f.repo.FindPair(ctx, a, b)
	require.NoError(t, err)
	ba, err := f.repo.FindPair(ctx, b, a)
	require.NoError(t, err)
	if ab == nil || ba == nil {
		for _, e := range []*model.FollowEdge{ab, ba} {
			if e != nil {
				assert.False(t, e.IsMutualFollow, "lone edge must not be mutual")
				assert.False(t, e.ChatAccessGranted, "lone edge must not grant chat")
			}
		}
		return
	}
	assert.Equal(t, ab.IsMutualFollow, ba.IsMutualFollow)
	assert.Equal(t, ab.ChatAccessGranted, ba.ChatAccessGranted)
	if ab.IsMutualFollow {
		require.NotNil(t, ab.MutualFollowEstablishedAt)
		require.NotNil(t, ba.MutualFollowEstablishedAt)
		assert.True(t, ab.MutualFollowEstablishedAt.Equal(*ba.MutualFollowEstablishedAt))
	}
}

func TestFollow_AliceAndBob(t *testing.T) {
	f := newFixture(t)
	f.aliceAndBob(t)
	ctx := context.Background()

	// alice 通过 bob 的匿名 ID 关注他
	target, reason, err := f.resolver.ValidateFollowTarget(ctx, bobAnonID, "auth|alice")
	require.NoError(t, err)
	require.Empty(t, reason)

	edge, err := f.follows.Follow(ctx, "u1", target, model.FollowMetadata{FollowSource: "post"})
	require.NoError(t, err)
	assert.False(t, edge.IsMutualFollow)
	assert.Equal(t, bobAnonID, edge.Following.AnonymousID)
	assert.Equal(t, "Harmony Path", edge.Following.DisplayName)
	assert.Equal(t, aliceAnonID, edge.Follower.AnonymousID)
	require.NotNil(t, edge.PrivacySettings)
	assert.True(t, edge.PrivacySettings.AllowChatInvitation)
	assert.Equal(t, "post", edge.FollowSource)

	res, err := f.follows.ChatEligibility(ctx, "u1", bobAnonID)
	require.NoError(t, err)
	assert.False(t, res.CanChat)

	// bob 回关，双方升为互关
	back, err := f.follows.Follow(ctx, "u2", "u1", model.FollowMetadata{})
	require.NoError(t, err)
	assert.True(t, back.IsMutualFollow)
	assert.True(t, back.ChatAccessGranted)
	assertPairSymmetric(t, f, "u1", "u2")

	ab, err := f.follows.ChatEligibility(ctx, "u1", bobAnonID)
	require.NoError(t, err)
	require.True(t, ab.CanChat)
	require.NotNil(t, ab.ChatPartner)
	assert.Equal(t, bobAnonID, ab.ChatPartner.AnonymousID)
	assert.NotNil(t, ab.MutualFollowEstablishedAt)

	ba, err := f.follows.ChatEligibility(ctx, "u2", aliceAnonID)
	require.NoError(t, err)
	require.True(t, ba.CanChat)
	assert.Equal(t, ab.ChatRef, ba.ChatRef, "both sides share one chat reference")

	stats, err := f.follows.Stats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, &FollowStats{FollowersCount: 1, FollowingCount: 1, MutualFollowsCount: 1, ChatEligibleUsersCount: 1}, stats)

	// alice 取关：bob 的边降级但保留
	require.NoError(t, f.follows.Unfollow(ctx, "u1", "u2"))
	assertPairSymmetric(t, f, "u1", "u2")

	remaining, err := f.repo.FindPair(ctx, "u2", "u1")
	require.NoError(t, err)
	require.NotNil(t, remaining)
	assert.False(t, remaining.IsMutualFollow)
	assert.Nil(t, remaining.ChatAccessGrantedAt)

	gone, err := f.repo.FindPair(ctx, "u1", "u2")
	require.NoError(t, err)
	require.NotNil(t, gone)
	assert.Equal(t, model.FollowStatusRemoved, gone.Status)
	assert.False(t, gone.IsMutualFollow)
	assert.Nil(t, gone.MutualFollowEstablishedAt)

	res, err = f.follows.ChatEligibility(ctx, "u2", aliceAnonID)
	require.NoError(t, err)
	assert.False(t, res.CanChat)

	assert.Equal(t, []event.Type{
		event.UserFollowed,
		event.UserFollowed,
		event.MutualFollowEstablished,
		event.MutualFollowBroken,
		event.UserUnfollowed,
	}, f.events.types())
}

func TestFollow_RejectsSelfFollow(t *testing.T) {
	f := newFixture(t)
	f.aliceAndBob(t)

	for _, id := range []string{"u1", "u2", "anyone"} {
		_, err := f.follows.Follow(context.Background(), id, id, model.FollowMetadata{})
		assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	}
	var cnt int64
	require.NoError(t, f.db.Model(&model.FollowEdge{}).Count(&cnt).Error)
	assert.Zero(t, cnt)
}

func TestFollow_AlreadyFollowing(t *testing.T) {
	f := newFixture(t)
	f.aliceAndBob(t)
	ctx := context.Background()

	_, err := f.follows.Follow(ctx, "u1", "u2", model.FollowMetadata{})
	require.NoError(t, err)
	_, err = f.follows.Follow(ctx, "u1", "u2", model.FollowMetadata{})
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestFollow_ReactivatesRemovedEdge(t *testing.T) {
	f := newFixture(t)
	f.aliceAndBob(t)
	ctx := context.Background()

	first, err := f.follows.Follow(ctx, "u1", "u2", model.FollowMetadata{})
	require.NoError(t, err)
	_, err = f.follows.Follow(ctx, "u2", "u1", model.FollowMetadata{})
	require.NoError(t, err)
	require.NoError(t, f.follows.Unfollow(ctx, "u1", "u2"))

	stats, err := f.follows.Stats(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, stats.FollowingCount)

	// 重新关注复用原来那一行，并再次升为互关
	again, err := f.follows.Follow(ctx, "u1", "u2", model.FollowMetadata{FollowSource: "profile"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "profile", again.FollowSource)
	assert.True(t, again.IsMutualFollow)
	assertPairSymmetric(t, f, "u1", "u2")

	var cnt int64
	require.NoError(t, f.db.Model(&model.FollowEdge{}).Count(&cnt).Error)
	assert.EqualValues(t, 2, cnt)
}

func TestUnfollow_Twice(t *testing.T) {
	f := newFixture(t)
	f.aliceAndBob(t)
	ctx := context.Background()

	_, err := f.follows.Follow(ctx, "u1", "u2", model.FollowMetadata{})
	require.NoError(t, err)
	require.NoError(t, f.follows.Unfollow(ctx, "u1", "u2"))
	assert.ErrorIs(t, f.follows.Unfollow(ctx, "u1", "u2"), apperr.ErrNotFound)
}

func TestFollow_ProfileLookupFailureAfterCommit(t *testing.T) {
	f := newFixtureWith(t, openDB(t, ":memory:", 1), func(d DirectoryService) DirectoryService {
		return failingProfiles{DirectoryService: d}
	}, FollowOptions{MaxTxRetries: 3, RetryBackoff: time.Millisecond})
	f.aliceAndBob(t)
	ctx := context.Background()

	_, err := f.follows.Follow(ctx, "u1", "u2", model.FollowMetadata{})
	require.NoError(t, err)
	back, err := f.follows.Follow(ctx, "u2", "u1", model.FollowMetadata{})
	require.NoError(t, err, "a committed edge must not be reported as a failure")
	assert.True(t, back.IsMutualFollow)
	assert.Equal(t, aliceAnonID, back.Following.AnonymousID)
	assert.Equal(t, bobAnonID, back.Follower.AnonymousID)

	assert.Equal(t, []event.Type{
		event.UserFollowed,
		event.UserFollowed,
		event.MutualFollowEstablished,
	}, f.events.types())
	assert.Equal(t, "Emerald Wanderer", f.events.events[0].FollowerName)
}

func TestUnfollow_NotFollowing(t *testing.T) {
	f := newFixture(t)
	f.aliceAndBob(t)

	err := f.follows.Unfollow(context.Background(), "u1", "u2")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Empty(t, f.events.types())
}

func TestUnfollow_SimpleEdgeDoesNotDemote(t *testing.T) {
	f := newFixture(t)
	f.aliceAndBob(t)
	ctx := context.Background()

	_, err := f.follows.Follow(ctx, "u1", "u2", model.FollowMetadata{})
	require.NoError(t, err)
	require.NoError(t, f.follows.Unfollow(ctx, "u1", "u2"))

	assert.NotContains(t, f.events.types(), event.MutualFollowBroken)
}

func TestList_FiltersAndPagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "me", "auth|me")
	for i := 0; i < 25; i++ {
		id := fmt.Sprintf("f%02d", i)
		f.addUser(t, id, "auth|"+id)
		_, err := f.follows.Follow(ctx, id, "me", model.FollowMetadata{})
		require.NoError(t, err)
	}
	_, err := f.follows.Follow(ctx, "me", "f00", model.FollowMetadata{})
	require.NoError(t, err)

	page, err := f.follows.List(ctx, "me", repository.FilterFollowers, 0, 0)
	require.NoError(t, err)
	assert.Len(t, page.Items, 20)
	assert.Equal(t, Pagination{Page: 1, Limit: 20, Total: 25, Pages: 2}, page.Pagination)
	for _, it := range page.Items {
		assert.Nil(t, it.PrivacySettings, "followee must not see the follower's privacy settings")
		assert.Equal(t, f.deriver.AnonymousID("me"), it.Following.AnonymousID)
	}

	page, err = f.follows.List(ctx, "me", repository.FilterFollowers, 2, 20)
	require.NoError(t, err)
	assert.Len(t, page.Items, 5)

	page, err = f.follows.List(ctx, "me", repository.FilterFollowing, 1, 500)
	require.NoError(t, err)
	assert.Equal(t, 50, page.Pagination.Limit)
	require.Len(t, page.Items, 1)
	assert.True(t, page.Items[0].IsMutualFollow)
	assert.NotNil(t, page.Items[0].PrivacySettings)

	page, err = f.follows.List(ctx, "me", repository.FilterMutual, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, page.Pagination.Total)

	page, err = f.follows.List(ctx, "me", repository.FilterAll, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 26, page.Pagination.Total)
}

func TestStats_MutualCountMatchesPairs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "me", "auth|me")
	for i := 0; i < 4; i++ {
		id := fmt.Sprintf("p%d", i)
		f.addUser(t, id, "auth|"+id)
		_, err := f.follows.Follow(ctx, "me", id, model.FollowMetadata{})
		require.NoError(t, err)
		if i%2 == 0 {
			_, err = f.follows.Follow(ctx, id, "me", model.FollowMetadata{})
			require.NoError(t, err)
		}
	}

	stats, err := f.follows.Stats(ctx, "me")
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.FollowersCount)
	assert.EqualValues(t, 4, stats.FollowingCount)
	assert.EqualValues(t, 2, stats.MutualFollowsCount)
	assert.Equal(t, stats.MutualFollowsCount, stats.ChatEligibleUsersCount)

	partners, err := f.follows.ChatPartners(ctx, "me")
	require.NoError(t, err)
	assert.Len(t, partners, int(stats.MutualFollowsCount))
}

func TestChatEligibility_UnknownPseudonym(t *testing.T) {
	f := newFixture(t)
	f.aliceAndBob(t)

	_, err := f.follows.ChatEligibility(context.Background(), "u1", "0123456789abcdef")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestChatEligibility_RealNamePreference(t *testing.T) {
	f := newFixture(t)
	f.aliceAndBob(t)
	ctx := context.Background()

	_, err := f.follows.Follow(ctx, "u1", "u2", model.FollowMetadata{})
	require.NoError(t, err)
	back, err := f.follows.Follow(ctx, "u2", "u1", model.FollowMetadata{})
	require.NoError(t, err)
	_, err = f.follows.UpdateSettings(ctx, back.ID, "u2", SettingsPatch{AllowRealNameInChat: boolPtr(false)})
	require.NoError(t, err)

	// alice 看到的是 bob 的选择，反之亦然
	ab, err := f.follows.ChatEligibility(ctx, "u1", bobAnonID)
	require.NoError(t, err)
	require.True(t, ab.CanChat)
	assert.False(t, ab.AllowRealNameInChat)

	ba, err := f.follows.ChatEligibility(ctx, "u2", aliceAnonID)
	require.NoError(t, err)
	require.True(t, ba.CanChat)
	assert.True(t, ba.AllowRealNameInChat)
}

func TestChatPartners(t *testing.T) {
	f := newFixture(t)
	f.aliceAndBob(t)
	ctx := context.Background()

	_, err := f.follows.Follow(ctx, "u1", "u2", model.FollowMetadata{})
	require.NoError(t, err)
	back, err := f.follows.Follow(ctx, "u2", "u1", model.FollowMetadata{})
	require.NoError(t, err)

	_, err = f.follows.UpdateSettings(ctx, back.ID, "u2", SettingsPatch{AllowRealNameInChat: boolPtr(false)})
	require.NoError(t, err)

	partners, err := f.follows.ChatPartners(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, partners, 1)
	assert.Equal(t, bobAnonID, partners[0].Partner.AnonymousID)
	assert.False(t, partners[0].AllowRealNameInChat, "bob opted out on his own edge")
	assert.Equal(t, f.deriver.ChatRef("u1", "u2"), partners[0].ChatRef)

	none, err := f.follows.ChatPartners(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestUpdateSettings(t *testing.T) {
	f := newFixture(t)
	f.aliceAndBob(t)
	ctx := context.Background()

	edge, err := f.follows.Follow(ctx, "u1", "u2", model.FollowMetadata{})
	require.NoError(t, err)

	updated, err := f.follows.UpdateSettings(ctx, edge.ID, "u1", SettingsPatch{NotifyOnFollow: boolPtr(false)})
	require.NoError(t, err)
	require.NotNil(t, updated.PrivacySettings)
	assert.False(t, updated.PrivacySettings.NotifyOnFollow)
	assert.True(t, updated.PrivacySettings.AllowChatInvitation, "unset fields keep their value")
	assert.False(t, updated.IsMutualFollow)

	_, err = f.follows.UpdateSettings(ctx, edge.ID, "u2", SettingsPatch{NotifyOnFollow: boolPtr(true)})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.follows.UpdateSettings(ctx, "no-such-edge", "u1", SettingsPatch{})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestFollow_ConcurrentMutualFollows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const pairs = 10
	for i := 0; i < pairs; i++ {
		f.addUser(t, fmt.Sprintf("a%d", i), fmt.Sprintf("auth|a%d", i))
		f.addUser(t, fmt.Sprintf("b%d", i), fmt.Sprintf("auth|b%d", i))
	}

	var wg sync.WaitGroup
	errs := make(chan error, pairs*2)
	for i := 0; i < pairs; i++ {
		a, b := fmt.Sprintf("a%d", i), fmt.Sprintf("b%d", i)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := f.follows.Follow(ctx, a, b, model.FollowMetadata{})
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := f.follows.Follow(ctx, b, a, model.FollowMetadata{})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil && !errors.Is(err, apperr.ErrConflict) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	for i := 0; i < pairs; i++ {
		a, b := fmt.Sprintf("a%d", i), fmt.Sprintf("b%d", i)
		assertPairSymmetric(t, f, a, b)
		ab, err := f.repo.FindPair(ctx, a, b)
		require.NoError(t, err)
		require.NotNil(t, ab)
		assert.True(t, ab.IsMutualFollow)
	}
}

func TestFollow_ConcurrentMutualFollowsMultiConn(t *testing.T) {
	f := newFileFixture(t, 5000, 8, FollowOptions{MaxTxRetries: 10, RetryBackoff: 2 * time.Millisecond})
	ctx := context.Background()

	const pairs = 20
	for i := 0; i < pairs; i++ {
		f.addUser(t, fmt.Sprintf("a%d", i), fmt.Sprintf("auth|a%d", i))
		f.addUser(t, fmt.Sprintf("b%d", i), fmt.Sprintf("auth|b%d", i))
	}

	type result struct {
		pair int
		err  error
	}
	var wg sync.WaitGroup
	results := make(chan result, pairs*2)
	for i := 0; i < pairs; i++ {
		a, b := fmt.Sprintf("a%d", i), fmt.Sprintf("b%d", i)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := f.follows.Follow(ctx, a, b, model.FollowMetadata{})
			results <- result{i, err}
		}()
		go func() {
			defer wg.Done()
			_, err := f.follows.Follow(ctx, b, a, model.FollowMetadata{})
			results <- result{i, err}
		}()
	}
	wg.Wait()
	close(results)

	ok := make(map[int]int, pairs)
	for r := range results {
		if r.err == nil {
			ok[r.pair]++
			continue
		}
		if !errors.Is(r.err, apperr.ErrConflict) {
			t.Fatalf("unexpected error: %v", r.err)
		}
	}
	for i := 0; i < pairs; i++ {
		a, b := fmt.Sprintf("a%d", i), fmt.Sprintf("b%d", i)
		assertPairSymmetric(t, f, a, b)
		if ok[i] == 2 {
			ab, err := f.repo.FindPair(ctx, a, b)
			require.NoError(t, err)
			require.NotNil(t, ab)
			assert.True(t, ab.IsMutualFollow, "pair %d: both follows committed", i)
		}
	}
}
