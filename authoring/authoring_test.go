package authoring

import (
	"context"
	"errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"io"
	"snapgram/errs"
	"snapgram/events"
	"snapgram/media"
	"snapgram/storage"
	"snapgram/storage/memory"
	"snapgram/storage/models"
	"snapgram/storage/storagetest"
	"strings"
	"sync"
	"testing"
)

type fakeObjects struct {
	mu        sync.Mutex
	objects   map[string]string
	next      int
	putErr    error
	deleteErr error
	emptyURL  bool
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: map[string]string{}}
}

func (f *fakeObjects) Put(ctx context.Context, r io.Reader) (string, error) {
	if f.putErr != nil {
		return "", f.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	id := "file-" + string(rune('0'+f.next))
	f.objects[id] = string(data)
	return id, nil
}

func (f *fakeObjects) PreviewURL(fileID string, preview media.Preview) (string, error) {
	if f.emptyURL {
		return "", nil
	}
	return "https://cdn.example.com/" + fileID, nil
}

func (f *fakeObjects) Delete(ctx context.Context, fileID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[fileID]; !ok {
		return errs.NotFound("media", fileID)
	}
	delete(f.objects, fileID)
	return nil
}

func (f *fakeObjects) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

// failingPosts rejects every post insert.
type failingPosts struct {
	storage.Store
}

func (s failingPosts) Write(ctx context.Context, fn func(tx storage.Tx) error) error {
	return s.Store.Write(ctx, func(tx storage.Tx) error {
		return fn(failingPostsTx{tx})
	})
}

type failingPostsTx struct {
	storage.Tx
}

func (t failingPostsTx) CreatePost(ctx context.Context, post *models.Post) error {
	return errs.Upstream("insert post", errors.New("connection reset"))
}

func TestParseTags(t *testing.T) {
	tests := []struct {
		raw      string
		expected []string
	}{
		{"a, b ,c", []string{"a", "b", "c"}},
		{"", []string{}},
		{" , ,", []string{}},
		{"summer vibes,beach", []string{"summervibes", "beach"}},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseTags(tt.raw))
		})
	}
}

func TestCreatePost(t *testing.T) {
	store := memory.New()
	storagetest.CreateUser(t, store, "u1")
	objects := newFakeObjects()
	service := NewService(store, objects, events.NewBus())

	post, err := service.CreatePost(context.Background(), NewPost{
		CreatorID: "u1",
		Caption:   "hello",
		Tags:      "sun, sea",
		File:      strings.NewReader("jpeg"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"sun", "sea"}, post.Tags)
	assert.Empty(t, post.Likes)
	assert.Equal(t, "https://cdn.example.com/"+post.ImageID, post.ImageURL)
	assert.Equal(t, 1, objects.count())
	assert.Zero(t, post.CreatedAt.Nanosecond()%1000)
}

func TestCreatePostCompensatesFailedInsert(t *testing.T) {
	store := memory.New()
	storagetest.CreateUser(t, store, "u1")
	objects := newFakeObjects()
	service := NewService(failingPosts{store}, objects, nil)

	_, err := service.CreatePost(context.Background(), NewPost{CreatorID: "u1", File: strings.NewReader("jpeg")})

	var partial *errs.ErrPartialFailure
	require.True(t, errors.As(err, &partial), "got %v", err)
	assert.True(t, partial.Compensated)
	assert.Equal(t, 0, objects.count())
	assert.True(t, errs.IsRetryable(err))
}

func TestCreatePostReportsFailedCompensation(t *testing.T) {
	store := memory.New()
	storagetest.CreateUser(t, store, "u1")
	objects := newFakeObjects()
	objects.deleteErr = errors.New("object store down")
	service := NewService(failingPosts{store}, objects, nil)

	_, err := service.CreatePost(context.Background(), NewPost{CreatorID: "u1", File: strings.NewReader("jpeg")})

	var partial *errs.ErrPartialFailure
	require.True(t, errors.As(err, &partial))
	assert.False(t, partial.Compensated)
	assert.EqualError(t, partial.CompensationErr, "object store down")
}

func TestCreatePostEmptyPreviewURL(t *testing.T) {
	store := memory.New()
	storagetest.CreateUser(t, store, "u1")
	objects := newFakeObjects()
	objects.emptyURL = true
	service := NewService(store, objects, nil)

	_, err := service.CreatePost(context.Background(), NewPost{CreatorID: "u1", File: strings.NewReader("jpeg")})
	assert.True(t, errs.IsType(err, errs.TypePartialFailure))
	assert.Equal(t, 0, objects.count())
}

func TestCreatePostValidation(t *testing.T) {
	store := memory.New()
	objects := newFakeObjects()
	service := NewService(store, objects, nil)
	ctx := context.Background()

	_, err := service.CreatePost(ctx, NewPost{CreatorID: "ghost", File: strings.NewReader("x")})
	assert.True(t, errs.IsType(err, errs.TypeNotFound))

	_, err = service.CreatePost(ctx, NewPost{CreatorID: "u1"})
	assert.True(t, errs.IsType(err, errs.TypeInvalidOperation))

	// Nothing was uploaded for rejected requests
	assert.Equal(t, 0, objects.count())
}

func TestUpdatePost(t *testing.T) {
	store := memory.New()
	storagetest.CreateUser(t, store, "u1")
	storagetest.CreateUser(t, store, "u2")
	objects := newFakeObjects()
	service := NewService(store, objects, nil)
	ctx := context.Background()

	post, err := service.CreatePost(ctx, NewPost{CreatorID: "u1", Caption: "v1", File: strings.NewReader("one")})
	require.NoError(t, err)
	oldImage := post.ImageID

	_, err = service.UpdatePost(ctx, PostUpdate{PostID: post.ID, RequesterID: "u2", Caption: "hijack"})
	assert.True(t, errs.IsType(err, errs.TypeInvalidOperation))

	updated, err := service.UpdatePost(ctx, PostUpdate{
		PostID:      post.ID,
		RequesterID: "u1",
		Caption:     "v2",
		Tags:        "x,y",
		File:        strings.NewReader("two"),
	})
	require.NoError(t, err)
	assert.Equal(t, "v2", updated.Caption)
	assert.Equal(t, []string{"x", "y"}, updated.Tags)
	assert.NotEqual(t, oldImage, updated.ImageID)

	// The replaced image is gone, the new one kept
	assert.Equal(t, 1, objects.count())
}

func TestDeletePost(t *testing.T) {
	store := memory.New()
	storagetest.CreateUser(t, store, "u1")
	storagetest.CreateUser(t, store, "u2")
	objects := newFakeObjects()
	service := NewService(store, objects, nil)
	ctx := context.Background()

	post, err := service.CreatePost(ctx, NewPost{CreatorID: "u1", File: strings.NewReader("one")})
	require.NoError(t, err)

	err = service.DeletePost(ctx, post.ID, "u2")
	assert.True(t, errs.IsType(err, errs.TypeInvalidOperation))

	require.NoError(t, service.DeletePost(ctx, post.ID, "u1"))
	assert.Equal(t, 0, objects.count())

	err = service.DeletePost(ctx, post.ID, "u1")
	assert.True(t, errs.IsType(err, errs.TypeNotFound))
}

func TestCreateAndUpdateUser(t *testing.T) {
	store := memory.New()
	objects := newFakeObjects()
	service := NewService(store, objects, nil)
	ctx := context.Background()

	user, err := service.CreateUser(ctx, NewUser{Name: " Ana ", Username: "ana", Email: "ana@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "Ana", user.Name)
	assert.Zero(t, user.FollowerCount)

	_, err = service.CreateUser(ctx, NewUser{Name: "Other", Username: "ana"})
	assert.True(t, errs.IsType(err, errs.TypeConflict))

	_, err = service.CreateUser(ctx, NewUser{Name: "", Username: "nobody"})
	assert.True(t, errs.IsType(err, errs.TypeInvalidOperation))

	_, err = service.UpdateUser(ctx, UserUpdate{UserID: user.ID, RequesterID: "someone", Name: "x", Username: "x"})
	assert.True(t, errs.IsType(err, errs.TypeInvalidOperation))

	updated, err := service.UpdateUser(ctx, UserUpdate{
		UserID:      user.ID,
		RequesterID: user.ID,
		Name:        "Ana B",
		Username:    "ana_b",
		Bio:         "photos",
		File:        strings.NewReader("avatar"),
	})
	require.NoError(t, err)
	assert.Equal(t, "ana_b", updated.Username)
	assert.Equal(t, "photos", updated.Bio)
	assert.Equal(t, "ana@example.com", updated.Email)
	assert.NotEmpty(t, updated.ImageID)
	assert.Equal(t, 1, objects.count())
}
