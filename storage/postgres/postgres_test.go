package postgres

import (
	"context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"os"
	"snapgram/errs"
	"snapgram/storage"
	"snapgram/storage/models"
	"snapgram/storage/storagetest"
	"sync"
	"testing"
	"time"
)

// Runs against the database named by TEST_DATABASE_URL. Every table is
// truncated between cases.
func newTestStore(t *testing.T) *Store {
	connString := os.Getenv("TEST_DATABASE_URL")
	if connString == "" || testing.Short() {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	store, err := New(ctx, connString, 4)
	require.NoError(t, err)
	t.Cleanup(store.Close)

	require.NoError(t, store.Migrate(ctx))
	_, err = store.pool.Exec(ctx, `TRUNCATE saved_records, posts, follow_edges, users`)
	require.NoError(t, err)
	return store
}

func TestStoreContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return newTestStore(t)
	})
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	assert.NoError(t, store.Migrate(context.Background()))
}

func TestSelfFollowRejectedBySchema(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	storagetest.CreateUser(t, store, "u1")

	err := store.Write(ctx, func(tx storage.Tx) error {
		return tx.CreateFollowEdge(ctx, &models.FollowEdge{FollowerID: "u1", FollowedID: "u1", CreatedAt: time.Now()})
	})
	assert.True(t, errs.IsType(err, errs.TypeInvalidOperation), "got %v", err)
}

func TestLockKeySerializesWriters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	storagetest.CreateUser(t, store, "u1")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.Write(ctx, func(tx storage.Tx) error {
				if err := tx.LockKey(ctx, "counter:u1"); err != nil {
					return err
				}
				user, err := tx.GetUser(ctx, "u1")
				if err != nil {
					return err
				}
				return tx.SetFollowCounts(ctx, "u1", user.FollowingCount+1, 0)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	err := store.Read(ctx, func(tx storage.Tx) error {
		user, err := tx.GetUser(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, int64(8), user.FollowingCount)
		return nil
	})
	require.NoError(t, err)
}

func TestReadOnlyTransaction(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.Read(ctx, func(tx storage.Tx) error {
		return tx.CreateUser(ctx, &models.User{ID: "u1", Username: "u1", CreatedAt: time.Now()})
	})
	assert.Error(t, err)
}
