// Package storagetest holds the behaviour every storage.Store must share,
// run by the adapter packages against their own backends.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"snapgram/errs"
	"snapgram/storage"
	"snapgram/storage/models"
	"testing"
	"time"
)

// Run executes the contract suite. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	tests := []struct {
		name string
		fn   func(t *testing.T, store storage.Store)
	}{
		{"UsernameUnique", testUsernameUnique},
		{"WriteRollsBack", testWriteRollsBack},
		{"FollowEdges", testFollowEdges},
		{"FollowCountsFloor", testFollowCountsFloor},
		{"PostLikesVersion", testPostLikesVersion},
		{"ListPostsOrder", testListPostsOrder},
		{"ListPostsFilters", testListPostsFilters},
		{"SavedRecords", testSavedRecords},
		{"ListUserIDs", testListUserIDs},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

var epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func CreateUser(t *testing.T, store storage.Store, id string) *models.User {
	user := &models.User{
		ID:        id,
		Name:      "User " + id,
		Username:  "user_" + id,
		Email:     id + "@example.com",
		CreatedAt: epoch,
	}
	err := store.Write(context.Background(), func(tx storage.Tx) error {
		return tx.CreateUser(context.Background(), user)
	})
	require.NoError(t, err)
	return user
}

func CreatePost(t *testing.T, store storage.Store, id, creatorID, caption string, createdAt time.Time) *models.Post {
	post := &models.Post{
		ID:        id,
		CreatorID: creatorID,
		Caption:   caption,
		Tags:      []string{},
		Likes:     []string{},
		CreatedAt: createdAt,
	}
	err := store.Write(context.Background(), func(tx storage.Tx) error {
		return tx.CreatePost(context.Background(), post)
	})
	require.NoError(t, err)
	return post
}

func getUser(t *testing.T, store storage.Store, id string) *models.User {
	var user *models.User
	err := store.Read(context.Background(), func(tx storage.Tx) error {
		var err error
		user, err = tx.GetUser(context.Background(), id)
		return err
	})
	require.NoError(t, err)
	return user
}

func testUsernameUnique(t *testing.T, store storage.Store) {
	ctx := context.Background()
	CreateUser(t, store, "u1")

	err := store.Write(ctx, func(tx storage.Tx) error {
		return tx.CreateUser(ctx, &models.User{ID: "u2", Name: "Other", Username: "user_u1", CreatedAt: epoch})
	})
	assert.True(t, errs.IsType(err, errs.TypeConflict), "got %v", err)

	err = store.Read(ctx, func(tx storage.Tx) error {
		_, err := tx.GetUser(ctx, "u2")
		return err
	})
	assert.True(t, errs.IsType(err, errs.TypeNotFound))
}

func testWriteRollsBack(t *testing.T, store storage.Store) {
	ctx := context.Background()
	CreateUser(t, store, "u1")
	CreateUser(t, store, "u2")

	failure := errors.New("abort")
	err := store.Write(ctx, func(tx storage.Tx) error {
		if err := tx.CreateFollowEdge(ctx, &models.FollowEdge{FollowerID: "u1", FollowedID: "u2", CreatedAt: epoch}); err != nil {
			return err
		}
		if err := tx.AdjustFollowCounts(ctx, "u1", 1, 0); err != nil {
			return err
		}
		return failure
	})
	assert.ErrorIs(t, err, failure)

	err = store.Read(ctx, func(tx storage.Tx) error {
		_, err := tx.GetFollowEdge(ctx, "u1", "u2")
		return err
	})
	assert.True(t, errs.IsType(err, errs.TypeNotFound))
	assert.Equal(t, int64(0), getUser(t, store, "u1").FollowingCount)
}

func testFollowEdges(t *testing.T, store storage.Store) {
	ctx := context.Background()
	CreateUser(t, store, "u1")
	CreateUser(t, store, "u2")
	CreateUser(t, store, "u3")

	err := store.Write(ctx, func(tx storage.Tx) error {
		for _, edge := range []models.FollowEdge{
			{FollowerID: "u1", FollowedID: "u2", CreatedAt: epoch},
			{FollowerID: "u3", FollowedID: "u2", CreatedAt: epoch.Add(time.Second)},
			{FollowerID: "u2", FollowedID: "u1", CreatedAt: epoch},
		} {
			if err := tx.CreateFollowEdge(ctx, &edge); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	err = store.Write(ctx, func(tx storage.Tx) error {
		return tx.CreateFollowEdge(ctx, &models.FollowEdge{FollowerID: "u1", FollowedID: "u2", CreatedAt: epoch})
	})
	assert.True(t, errs.IsType(err, errs.TypeConflict), "got %v", err)

	err = store.Write(ctx, func(tx storage.Tx) error {
		return tx.CreateFollowEdge(ctx, &models.FollowEdge{FollowerID: "u1", FollowedID: "ghost", CreatedAt: epoch})
	})
	assert.True(t, errs.IsType(err, errs.TypeNotFound), "got %v", err)

	err = store.Read(ctx, func(tx storage.Tx) error {
		following, followers, err := tx.CountFollowEdges(ctx, "u2")
		require.NoError(t, err)
		assert.Equal(t, int64(1), following)
		assert.Equal(t, int64(2), followers)

		users, err := tx.ListFollowers(ctx, "u2")
		require.NoError(t, err)
		require.Len(t, users, 2)
		// Newest edge first
		assert.Equal(t, "u3", users[0].ID)
		assert.Equal(t, "u1", users[1].ID)

		users, err = tx.ListFollowing(ctx, "u2")
		require.NoError(t, err)
		require.Len(t, users, 1)
		assert.Equal(t, "u1", users[0].ID)
		return nil
	})
	require.NoError(t, err)

	err = store.Write(ctx, func(tx storage.Tx) error {
		return tx.DeleteFollowEdge(ctx, "u1", "u3")
	})
	assert.True(t, errs.IsType(err, errs.TypeNotFound))
}

func testFollowCountsFloor(t *testing.T, store storage.Store) {
	ctx := context.Background()
	CreateUser(t, store, "u1")

	err := store.Write(ctx, func(tx storage.Tx) error {
		if err := tx.AdjustFollowCounts(ctx, "u1", 2, 1); err != nil {
			return err
		}
		return tx.AdjustFollowCounts(ctx, "u1", -5, -5)
	})
	require.NoError(t, err)

	user := getUser(t, store, "u1")
	assert.Equal(t, int64(0), user.FollowingCount)
	assert.Equal(t, int64(0), user.FollowerCount)

	err = store.Write(ctx, func(tx storage.Tx) error {
		return tx.SetFollowCounts(ctx, "u1", 3, 4)
	})
	require.NoError(t, err)
	user = getUser(t, store, "u1")
	assert.Equal(t, int64(3), user.FollowingCount)
	assert.Equal(t, int64(4), user.FollowerCount)
}

func testPostLikesVersion(t *testing.T, store storage.Store) {
	ctx := context.Background()
	CreateUser(t, store, "u1")
	CreatePost(t, store, "p1", "u1", "hello", epoch)

	var version int64
	err := store.Read(ctx, func(tx storage.Tx) error {
		post, err := tx.GetPost(ctx, "p1")
		version = post.Version
		return err
	})
	require.NoError(t, err)

	err = store.Write(ctx, func(tx storage.Tx) error {
		_, err := tx.SetPostLikes(ctx, "p1", version, []string{"u1"})
		return err
	})
	require.NoError(t, err)

	err = store.Write(ctx, func(tx storage.Tx) error {
		_, err := tx.SetPostLikes(ctx, "p1", version, []string{})
		return err
	})
	assert.ErrorIs(t, err, storage.ErrStaleVersion)
	assert.True(t, errs.IsType(err, errs.TypeConflict))

	err = store.Write(ctx, func(tx storage.Tx) error {
		_, err := tx.SetPostLikes(ctx, "missing", 1, []string{})
		return err
	})
	assert.True(t, errs.IsType(err, errs.TypeNotFound))

	err = store.Read(ctx, func(tx storage.Tx) error {
		post, err := tx.GetPost(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, []string{"u1"}, post.Likes)
		assert.Greater(t, post.Version, version)
		return nil
	})
	require.NoError(t, err)
}

func testListPostsOrder(t *testing.T, store storage.Store) {
	ctx := context.Background()
	CreateUser(t, store, "u1")
	// p-b and p-c share a timestamp and are ordered by id desc
	CreatePost(t, store, "p-a", "u1", "first", epoch)
	CreatePost(t, store, "p-b", "u1", "second", epoch.Add(time.Minute))
	CreatePost(t, store, "p-c", "u1", "third", epoch.Add(time.Minute))
	CreatePost(t, store, "p-d", "u1", "fourth", epoch.Add(2*time.Minute))

	var ids []string
	err := store.Read(ctx, func(tx storage.Tx) error {
		posts, err := tx.ListPosts(ctx, models.PostQuery{Limit: 10})
		for _, post := range posts {
			ids = append(ids, post.ID)
		}
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"p-d", "p-c", "p-b", "p-a"}, ids)

	after := models.FeedKey{CreatedAt: epoch.Add(time.Minute), ID: "p-c"}
	ids = nil
	err = store.Read(ctx, func(tx storage.Tx) error {
		posts, err := tx.ListPosts(ctx, models.PostQuery{After: &after, Limit: 10})
		for _, post := range posts {
			ids = append(ids, post.ID)
		}
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"p-b", "p-a"}, ids)
}

func testListPostsFilters(t *testing.T, store storage.Store) {
	ctx := context.Background()
	CreateUser(t, store, "u1")
	CreateUser(t, store, "u2")
	CreatePost(t, store, "p1", "u1", "Sunset at the BEACH", epoch)
	CreatePost(t, store, "p2", "u2", "mountain view", epoch.Add(time.Second))
	CreatePost(t, store, "p3", "u2", "beach 100%", epoch.Add(2*time.Second))

	err := store.Write(ctx, func(tx storage.Tx) error {
		post, err := tx.GetPost(ctx, "p2")
		if err != nil {
			return err
		}
		_, err = tx.SetPostLikes(ctx, "p2", post.Version, []string{"u1"})
		return err
	})
	require.NoError(t, err)

	tests := []struct {
		query    models.PostQuery
		expected []string
	}{
		{models.PostQuery{CreatorID: "u2"}, []string{"p3", "p2"}},
		{models.PostQuery{LikedBy: "u1"}, []string{"p2"}},
		{models.PostQuery{Search: "beach"}, []string{"p3", "p1"}},
		{models.PostQuery{Search: "100%"}, []string{"p3"}},
		{models.PostQuery{Search: "beach", CreatorID: "u1"}, []string{"p1"}},
		{models.PostQuery{Limit: 1}, []string{"p3"}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%+v", tt.query), func(t *testing.T) {
			ids := make([]string, 0)
			err := store.Read(ctx, func(tx storage.Tx) error {
				posts, err := tx.ListPosts(ctx, tt.query)
				for _, post := range posts {
					ids = append(ids, post.ID)
				}
				return err
			})
			require.NoError(t, err)
			assert.Equal(t, tt.expected, ids)
		})
	}
}

func testSavedRecords(t *testing.T, store storage.Store) {
	ctx := context.Background()
	CreateUser(t, store, "u1")
	CreatePost(t, store, "p1", "u1", "hello", epoch)

	record := &models.SavedRecord{ID: "s1", UserID: "u1", PostID: "p1", CreatedAt: epoch}
	err := store.Write(ctx, func(tx storage.Tx) error {
		return tx.CreateSavedRecord(ctx, record)
	})
	require.NoError(t, err)

	err = store.Write(ctx, func(tx storage.Tx) error {
		return tx.CreateSavedRecord(ctx, &models.SavedRecord{ID: "s2", UserID: "u1", PostID: "p1", CreatedAt: epoch})
	})
	assert.True(t, errs.IsType(err, errs.TypeConflict), "got %v", err)

	err = store.Read(ctx, func(tx storage.Tx) error {
		found, err := tx.GetSavedRecord(ctx, "u1", "p1")
		require.NoError(t, err)
		assert.Equal(t, "s1", found.ID)

		records, err := tx.ListSavedRecords(ctx, "u1")
		require.NoError(t, err)
		assert.Len(t, records, 1)
		return nil
	})
	require.NoError(t, err)

	// Deleting the post removes its saved records
	err = store.Write(ctx, func(tx storage.Tx) error {
		return tx.DeletePost(ctx, "p1")
	})
	require.NoError(t, err)
	err = store.Read(ctx, func(tx storage.Tx) error {
		_, err := tx.GetSavedRecordByID(ctx, "s1")
		return err
	})
	assert.True(t, errs.IsType(err, errs.TypeNotFound))
}

func testListUserIDs(t *testing.T, store storage.Store) {
	ctx := context.Background()
	for _, id := range []string{"c", "a", "d", "b"} {
		CreateUser(t, store, id)
	}

	var first, second []string
	err := store.Read(ctx, func(tx storage.Tx) error {
		var err error
		if first, err = tx.ListUserIDs(ctx, "", 3); err != nil {
			return err
		}
		second, err = tx.ListUserIDs(ctx, first[len(first)-1], 3)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, first)
	assert.Equal(t, []string{"d"}, second)
}
