package graph

import (
	"context"
	"fmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"snapgram/errs"
	"snapgram/events"
	"snapgram/storage"
	"snapgram/storage/memory"
	"snapgram/storage/storagetest"
	"sync"
	"testing"
)

type recordingTracker struct {
	mu    sync.Mutex
	dirty map[string]int
}

func (r *recordingTracker) MarkDirty(ctx context.Context, userIDs ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range userIDs {
		r.dirty[id]++
	}
	return nil
}

func newTestManager(t *testing.T, userIDs ...string) (*Manager, storage.Store, *recordingTracker) {
	store := memory.New()
	for _, id := range userIDs {
		storagetest.CreateUser(t, store, id)
	}
	tracker := &recordingTracker{dirty: map[string]int{}}
	return NewManager(store, events.NewBus(), tracker), store, tracker
}

func counters(t *testing.T, store storage.Store, userID string) (following, followers int64) {
	err := store.Read(context.Background(), func(tx storage.Tx) error {
		user, err := tx.GetUser(context.Background(), userID)
		if err != nil {
			return err
		}
		following, followers = user.FollowingCount, user.FollowerCount
		return nil
	})
	require.NoError(t, err)
	return following, followers
}

func TestToggleFollowScenario(t *testing.T) {
	manager, store, tracker := newTestManager(t, "A", "B")
	ctx := context.Background()

	result, err := manager.ToggleFollow(ctx, "A", "B")
	require.NoError(t, err)
	assert.True(t, result.Following)

	following, err := manager.IsFollowing(ctx, "A", "B")
	require.NoError(t, err)
	assert.True(t, following)

	aFollowing, aFollowers := counters(t, store, "A")
	bFollowing, bFollowers := counters(t, store, "B")
	assert.Equal(t, int64(1), aFollowing)
	assert.Equal(t, int64(0), aFollowers)
	assert.Equal(t, int64(0), bFollowing)
	assert.Equal(t, int64(1), bFollowers)

	followers, err := manager.FollowersOf(ctx, "B")
	require.NoError(t, err)
	require.Len(t, followers, 1)
	assert.Equal(t, "A", followers[0].ID)

	result, err = manager.ToggleFollow(ctx, "A", "B")
	require.NoError(t, err)
	assert.False(t, result.Following)

	aFollowing, _ = counters(t, store, "A")
	_, bFollowers = counters(t, store, "B")
	assert.Equal(t, int64(0), aFollowing)
	assert.Equal(t, int64(0), bFollowers)
	assert.Equal(t, 2, tracker.dirty["A"])
	assert.Equal(t, 2, tracker.dirty["B"])
}

func TestToggleFollowRejectsInvalid(t *testing.T) {
	manager, store, _ := newTestManager(t, "A")
	ctx := context.Background()

	tests := []struct {
		name      string
		follower  string
		followed  string
		errorType errs.ErrorType
	}{
		{"self follow", "A", "A", errs.TypeInvalidOperation},
		{"empty follower", "", "A", errs.TypeInvalidOperation},
		{"unknown followed", "A", "ghost", errs.TypeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := manager.ToggleFollow(ctx, tt.follower, tt.followed)
			assert.True(t, errs.IsType(err, tt.errorType), "got %v", err)
		})
	}

	following, followers := counters(t, store, "A")
	assert.Zero(t, following)
	assert.Zero(t, followers)
}

func TestIsFollowingUnknownUser(t *testing.T) {
	manager, _, _ := newTestManager(t, "A")

	_, err := manager.IsFollowing(context.Background(), "A", "ghost")
	assert.True(t, errs.IsType(err, errs.TypeNotFound))
}

// Concurrent toggles in both directions between many pairs must leave every
// counter equal to the edges that survive.
func TestConcurrentTogglesKeepCountersConsistent(t *testing.T) {
	ids := []string{"u0", "u1", "u2", "u3", "u4"}
	manager, store, _ := newTestManager(t, ids...)
	ctx := context.Background()

	var wg sync.WaitGroup
	for round := 0; round < 7; round++ {
		for _, follower := range ids {
			for _, followed := range ids {
				if follower == followed {
					continue
				}
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := manager.ToggleFollow(ctx, follower, followed)
					assert.NoError(t, err)
				}()
			}
		}
	}
	wg.Wait()

	err := store.Read(ctx, func(tx storage.Tx) error {
		for _, id := range ids {
			user, err := tx.GetUser(ctx, id)
			require.NoError(t, err)
			following, followers, err := tx.CountFollowEdges(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, following, user.FollowingCount, "following of %s", id)
			assert.Equal(t, followers, user.FollowerCount, "followers of %s", id)
			// Seven toggles per pair leave every edge present
			assert.Equal(t, int64(len(ids)-1), following, fmt.Sprintf("edges of %s", id))
		}
		return nil
	})
	require.NoError(t, err)
}

func TestReconcileRepairsSkew(t *testing.T) {
	manager, store, _ := newTestManager(t, "A", "B")
	ctx := context.Background()

	_, err := manager.ToggleFollow(ctx, "A", "B")
	require.NoError(t, err)

	err = store.Write(ctx, func(tx storage.Tx) error {
		return tx.SetFollowCounts(ctx, "B", 5, 9)
	})
	require.NoError(t, err)

	repaired, err := manager.Reconcile(ctx, "B")
	require.NoError(t, err)
	assert.True(t, repaired)

	following, followers := counters(t, store, "B")
	assert.Equal(t, int64(0), following)
	assert.Equal(t, int64(1), followers)

	repaired, err = manager.Reconcile(ctx, "B")
	require.NoError(t, err)
	assert.False(t, repaired)

	_, err = manager.Reconcile(ctx, "ghost")
	assert.True(t, errs.IsType(err, errs.TypeNotFound))
}

func TestToggleFollowEmitsEvent(t *testing.T) {
	store := memory.New()
	storagetest.CreateUser(t, store, "A")
	storagetest.CreateUser(t, store, "B")

	var received []events.Event
	bus := events.NewBus()
	bus.Subscribe(func(event events.Event) { received = append(received, event) })
	manager := NewManager(store, bus, nil)

	_, err := manager.ToggleFollow(context.Background(), "A", "B")
	require.NoError(t, err)

	require.Len(t, received, 1)
	assert.Equal(t, events.FollowToggled, received[0].Type)
	assert.Equal(t, "A", received[0].ActorID)
	assert.Equal(t, "B", received[0].SubjectID)
	require.NotNil(t, received[0].Active)
	assert.True(t, *received[0].Active)
}
