package feeds

import (
	"context"
	"fmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"snapgram/errs"
	"snapgram/storage"
	"snapgram/storage/memory"
	"snapgram/storage/models"
	"snapgram/storage/storagetest"
	"testing"
	"time"
)

var base = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// seed creates posts p1..pN, p1 the oldest.
func seed(t *testing.T, count int) storage.Store {
	store := memory.New()
	storagetest.CreateUser(t, store, "u1")
	for i := 1; i <= count; i++ {
		storagetest.CreatePost(t, store, fmt.Sprintf("p%d", i), "u1", "post", base.Add(time.Duration(i)*time.Minute))
	}
	return store
}

func ids(page Page) []string {
	result := make([]string, 0, len(page.Items))
	for _, post := range page.Items {
		result = append(result, post.ID)
	}
	return result
}

func TestPaginationSequence(t *testing.T) {
	paginator := NewPaginator(seed(t, 5), 2)
	ctx := context.Background()

	first, err := paginator.FirstPage(ctx, Filter{}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"p5", "p4"}, ids(first))
	assert.True(t, first.HasMore)

	second, err := paginator.NextPage(ctx, Filter{}, first.NextCursor, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"p3", "p2"}, ids(second))
	assert.True(t, second.HasMore)

	third, err := paginator.NextPage(ctx, Filter{}, second.NextCursor, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, ids(third))
	assert.False(t, third.HasMore)

	empty, err := paginator.NextPage(ctx, Filter{}, third.NextCursor, 0)
	require.NoError(t, err)
	assert.Empty(t, empty.Items)
	assert.False(t, empty.HasMore)
	assert.Equal(t, "", empty.NextCursor)
}

func TestExactMultipleReportsHasMoreThenEmpty(t *testing.T) {
	paginator := NewPaginator(seed(t, 4), 2)
	ctx := context.Background()

	page, err := paginator.FirstPage(ctx, Filter{}, 0)
	require.NoError(t, err)
	page, err = paginator.NextPage(ctx, Filter{}, page.NextCursor, 0)
	require.NoError(t, err)
	assert.True(t, page.HasMore)

	page, err = paginator.NextPage(ctx, Filter{}, page.NextCursor, 0)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.False(t, page.HasMore)
}

func TestNewPostsDoNotShiftSequence(t *testing.T) {
	store := seed(t, 5)
	paginator := NewPaginator(store, 2)
	ctx := context.Background()

	first, err := paginator.FirstPage(ctx, Filter{}, 0)
	require.NoError(t, err)

	storagetest.CreatePost(t, store, "p6", "u1", "late", base.Add(time.Hour))
	// p3 is deleted between pages and must not be served
	err = store.Write(ctx, func(tx storage.Tx) error {
		return tx.DeletePost(ctx, "p3")
	})
	require.NoError(t, err)

	second, err := paginator.NextPage(ctx, Filter{}, first.NextCursor, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"p2", "p1"}, ids(second))
}

func TestTiesBrokenByID(t *testing.T) {
	store := memory.New()
	storagetest.CreateUser(t, store, "u1")
	for _, id := range []string{"a", "c", "b", "d"} {
		storagetest.CreatePost(t, store, id, "u1", "same instant", base)
	}
	paginator := NewPaginator(store, 3)
	ctx := context.Background()

	first, err := paginator.FirstPage(ctx, Filter{}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "c", "b"}, ids(first))

	second, err := paginator.NextPage(ctx, Filter{}, first.NextCursor, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(second))
}

func TestFilteredFeeds(t *testing.T) {
	store := memory.New()
	storagetest.CreateUser(t, store, "u1")
	storagetest.CreateUser(t, store, "u2")
	storagetest.CreatePost(t, store, "p1", "u1", "Beach day", base)
	storagetest.CreatePost(t, store, "p2", "u2", "city lights", base.Add(time.Minute))
	paginator := NewPaginator(store, 10)
	ctx := context.Background()

	tests := []struct {
		filter   Filter
		name     string
		expected []string
	}{
		{Filter{}, "recent", []string{"p2", "p1"}},
		{Filter{CreatorID: "u1"}, "creator", []string{"p1"}},
		{Filter{Search: "BEACH"}, "search", []string{"p1"}},
		{Filter{LikedBy: "u1"}, "liked", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.filter.Name())
			page, err := paginator.FirstPage(ctx, tt.filter, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, ids(page))
		})
	}
}

func TestPageSizeClamped(t *testing.T) {
	paginator := NewPaginator(seed(t, 3), 0)
	assert.Equal(t, 20, paginator.defaultPageSize)

	page, err := paginator.FirstPage(context.Background(), Filter{}, MaxPageSize+50)
	require.NoError(t, err)
	assert.Len(t, page.Items, 3)
	assert.False(t, page.HasMore)
}

func TestMalformedCursor(t *testing.T) {
	paginator := NewPaginator(seed(t, 1), 2)

	for _, cursor := range []string{"%%%", "bm90LWEtY3Vyc29y", "YWJjOjp4"} {
		t.Run(cursor, func(t *testing.T) {
			_, err := paginator.Fetch(context.Background(), Filter{}, cursor, 0)
			assert.True(t, errs.IsType(err, errs.TypeInvalidOperation), "got %v", err)
		})
	}
}

func TestCursorRoundTrip(t *testing.T) {
	key := models.FeedKey{CreatedAt: base.Add(123456789 * time.Nanosecond), ID: "post::with::colons"}

	decoded, err := DecodeCursor(EncodeCursor(key))
	require.NoError(t, err)
	assert.True(t, key.CreatedAt.Equal(decoded.CreatedAt))
	assert.Equal(t, key.ID, decoded.ID)
}
