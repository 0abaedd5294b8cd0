package memory

import (
	"cmp"
	"context"
	"slices"
	"snapgram/errs"
	"snapgram/storage"
	"snapgram/storage/models"
	"strings"
	"sync"
)

type edgeKey struct {
	follower string
	followed string
}

// Store keeps the four tables in maps. Writes are applied in place and
// reverted from an undo log when the transaction function fails.
type Store struct {
	mu sync.RWMutex

	users map[string]models.User
	edges map[edgeKey]models.FollowEdge
	posts map[string]models.Post
	saved map[string]models.SavedRecord
}

func New() *Store {
	return &Store{
		users: make(map[string]models.User),
		edges: make(map[edgeKey]models.FollowEdge),
		posts: make(map[string]models.Post),
		saved: make(map[string]models.SavedRecord),
	}
}

func (s *Store) Read(ctx context.Context, fn func(tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&tx{store: s})
}

func (s *Store) Write(ctx context.Context, fn func(tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &tx{store: s, writable: true}
	err := fn(t)
	if err == nil {
		// A caller that gave up before commit gets nothing applied
		err = ctx.Err()
	}
	if err != nil {
		t.rollback()
		return err
	}
	return nil
}

func (s *Store) Close() {}

type tx struct {
	store    *Store
	writable bool
	undo     []func()
}

func (t *tx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *tx) mutate() error {
	if !t.writable {
		return errs.InvalidOperation("write attempted in read-only transaction")
	}
	return nil
}

func (t *tx) LockKey(ctx context.Context, key string) error {
	return ctx.Err()
}

// Users

func (t *tx) CreateUser(ctx context.Context, user *models.User) error {
	if err := t.mutate(); err != nil {
		return err
	}
	if _, ok := t.store.users[user.ID]; ok {
		return errs.Conflict("user already exists: "+user.ID, nil)
	}
	if t.usernameTaken(user.Username, user.ID) {
		return errs.Conflict("username already taken: "+user.Username, nil)
	}
	t.store.users[user.ID] = *user
	id := user.ID
	t.undo = append(t.undo, func() { delete(t.store.users, id) })
	return nil
}

func (t *tx) GetUser(ctx context.Context, id string) (*models.User, error) {
	user, ok := t.store.users[id]
	if !ok {
		return nil, errs.NotFound("user", id)
	}
	return &user, nil
}

func (t *tx) GetUserForUpdate(ctx context.Context, id string) (*models.User, error) {
	if err := t.mutate(); err != nil {
		return nil, err
	}
	return t.GetUser(ctx, id)
}

func (t *tx) GetUsers(ctx context.Context, ids []string) ([]models.User, error) {
	result := make([]models.User, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if user, ok := t.store.users[id]; ok {
			result = append(result, user)
		}
	}
	return result, nil
}

func (t *tx) ListUsers(ctx context.Context, query models.UserQuery) ([]models.User, error) {
	result := make([]models.User, 0, len(t.store.users))
	for id, user := range t.store.users {
		if id != query.ExcludeID {
			result = append(result, user)
		}
	}
	slices.SortFunc(result, func(a, b models.User) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	if query.Limit > 0 && len(result) > query.Limit {
		result = result[:query.Limit]
	}
	return result, nil
}

func (t *tx) ListUserIDs(ctx context.Context, afterID string, limit int) ([]string, error) {
	ids := make([]string, 0)
	for id := range t.store.users {
		if id > afterID {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (t *tx) UpdateUser(ctx context.Context, user *models.User) error {
	if err := t.mutate(); err != nil {
		return err
	}
	stored, ok := t.store.users[user.ID]
	if !ok {
		return errs.NotFound("user", user.ID)
	}
	if t.usernameTaken(user.Username, user.ID) {
		return errs.Conflict("username already taken: "+user.Username, nil)
	}
	updated := stored
	updated.Name = user.Name
	updated.Username = user.Username
	updated.Email = user.Email
	updated.Bio = user.Bio
	updated.ImageURL = user.ImageURL
	updated.ImageID = user.ImageID
	t.putUser(updated, stored)
	return nil
}

func (t *tx) AdjustFollowCounts(ctx context.Context, userID string, followingDelta, followerDelta int64) error {
	if err := t.mutate(); err != nil {
		return err
	}
	stored, ok := t.store.users[userID]
	if !ok {
		return errs.NotFound("user", userID)
	}
	updated := stored
	updated.FollowingCount = storage.Floor(stored.FollowingCount + followingDelta)
	updated.FollowerCount = storage.Floor(stored.FollowerCount + followerDelta)
	t.putUser(updated, stored)
	return nil
}

func (t *tx) SetFollowCounts(ctx context.Context, userID string, following, followers int64) error {
	if err := t.mutate(); err != nil {
		return err
	}
	stored, ok := t.store.users[userID]
	if !ok {
		return errs.NotFound("user", userID)
	}
	updated := stored
	updated.FollowingCount = storage.Floor(following)
	updated.FollowerCount = storage.Floor(followers)
	t.putUser(updated, stored)
	return nil
}

func (t *tx) putUser(updated, previous models.User) {
	t.store.users[updated.ID] = updated
	t.undo = append(t.undo, func() { t.store.users[previous.ID] = previous })
}

func (t *tx) usernameTaken(username, ownerID string) bool {
	if username == "" {
		return false
	}
	for id, user := range t.store.users {
		if id != ownerID && user.Username == username {
			return true
		}
	}
	return false
}

// Follows

func (t *tx) GetFollowEdge(ctx context.Context, followerID, followedID string) (*models.FollowEdge, error) {
	edge, ok := t.store.edges[edgeKey{followerID, followedID}]
	if !ok {
		return nil, errs.NotFound("follow", followerID+"->"+followedID)
	}
	return &edge, nil
}

func (t *tx) CreateFollowEdge(ctx context.Context, edge *models.FollowEdge) error {
	if err := t.mutate(); err != nil {
		return err
	}
	for _, id := range []string{edge.FollowerID, edge.FollowedID} {
		if _, ok := t.store.users[id]; !ok {
			return errs.NotFound("user", id)
		}
	}
	key := edgeKey{edge.FollowerID, edge.FollowedID}
	if _, ok := t.store.edges[key]; ok {
		return errs.Conflict("follow edge already exists", nil)
	}
	t.store.edges[key] = *edge
	t.undo = append(t.undo, func() { delete(t.store.edges, key) })
	return nil
}

func (t *tx) DeleteFollowEdge(ctx context.Context, followerID, followedID string) error {
	if err := t.mutate(); err != nil {
		return err
	}
	key := edgeKey{followerID, followedID}
	edge, ok := t.store.edges[key]
	if !ok {
		return errs.NotFound("follow", followerID+"->"+followedID)
	}
	delete(t.store.edges, key)
	t.undo = append(t.undo, func() { t.store.edges[key] = edge })
	return nil
}

func (t *tx) CountFollowEdges(ctx context.Context, userID string) (int64, int64, error) {
	var following, followers int64
	for key := range t.store.edges {
		if key.follower == userID {
			following++
		}
		if key.followed == userID {
			followers++
		}
	}
	return following, followers, nil
}

func (t *tx) ListFollowers(ctx context.Context, userID string) ([]models.User, error) {
	return t.listEdgeEndpoints(func(key edgeKey) (string, bool) {
		return key.follower, key.followed == userID
	}), nil
}

func (t *tx) ListFollowing(ctx context.Context, userID string) ([]models.User, error) {
	return t.listEdgeEndpoints(func(key edgeKey) (string, bool) {
		return key.followed, key.follower == userID
	}), nil
}

func (t *tx) listEdgeEndpoints(match func(edgeKey) (string, bool)) []models.User {
	edges := make([]models.FollowEdge, 0)
	for key, edge := range t.store.edges {
		if _, ok := match(key); ok {
			edges = append(edges, edge)
		}
	}
	slices.SortFunc(edges, func(a, b models.FollowEdge) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.FollowerID+a.FollowedID, b.FollowerID+b.FollowedID)
	})
	users := make([]models.User, 0, len(edges))
	for _, edge := range edges {
		id, _ := match(edgeKey{edge.FollowerID, edge.FollowedID})
		if user, ok := t.store.users[id]; ok {
			users = append(users, user)
		}
	}
	return users
}

// Posts

func (t *tx) CreatePost(ctx context.Context, post *models.Post) error {
	if err := t.mutate(); err != nil {
		return err
	}
	if _, ok := t.store.users[post.CreatorID]; !ok {
		return errs.NotFound("user", post.CreatorID)
	}
	if _, ok := t.store.posts[post.ID]; ok {
		return errs.Conflict("post already exists: "+post.ID, nil)
	}
	stored := clonePost(*post)
	if stored.Likes == nil {
		stored.Likes = []string{}
	}
	stored.Version = 1
	post.Version = stored.Version
	t.store.posts[post.ID] = stored
	id := post.ID
	t.undo = append(t.undo, func() { delete(t.store.posts, id) })
	return nil
}

func (t *tx) GetPost(ctx context.Context, id string) (*models.Post, error) {
	post, ok := t.store.posts[id]
	if !ok {
		return nil, errs.NotFound("post", id)
	}
	post = clonePost(post)
	return &post, nil
}

func (t *tx) GetPostForUpdate(ctx context.Context, id string) (*models.Post, error) {
	if err := t.mutate(); err != nil {
		return nil, err
	}
	return t.GetPost(ctx, id)
}

func (t *tx) GetPosts(ctx context.Context, ids []string) ([]models.Post, error) {
	result := make([]models.Post, 0, len(ids))
	for _, id := range ids {
		if post, ok := t.store.posts[id]; ok {
			result = append(result, clonePost(post))
		}
	}
	return result, nil
}

func (t *tx) UpdatePost(ctx context.Context, post *models.Post) error {
	if err := t.mutate(); err != nil {
		return err
	}
	stored, ok := t.store.posts[post.ID]
	if !ok {
		return errs.NotFound("post", post.ID)
	}
	updated := clonePost(stored)
	updated.Caption = post.Caption
	updated.Location = post.Location
	updated.Tags = slices.Clone(post.Tags)
	updated.ImageURL = post.ImageURL
	updated.ImageID = post.ImageID
	t.store.posts[post.ID] = updated
	t.undo = append(t.undo, func() { t.store.posts[stored.ID] = stored })
	return nil
}

func (t *tx) DeletePost(ctx context.Context, id string) error {
	if err := t.mutate(); err != nil {
		return err
	}
	stored, ok := t.store.posts[id]
	if !ok {
		return errs.NotFound("post", id)
	}
	delete(t.store.posts, id)
	t.undo = append(t.undo, func() { t.store.posts[id] = stored })

	// Saved records never outlive their post
	for recordID, record := range t.store.saved {
		if record.PostID == id {
			delete(t.store.saved, recordID)
			t.undo = append(t.undo, func() { t.store.saved[record.ID] = record })
		}
	}
	return nil
}

func (t *tx) SetPostLikes(ctx context.Context, id string, version int64, likes []string) (int64, error) {
	if err := t.mutate(); err != nil {
		return 0, err
	}
	stored, ok := t.store.posts[id]
	if !ok {
		return 0, errs.NotFound("post", id)
	}
	if stored.Version != version {
		return 0, errs.Conflict("likes of post "+id+" changed concurrently", storage.ErrStaleVersion)
	}
	updated := clonePost(stored)
	updated.Likes = slices.Clone(likes)
	updated.Version++
	t.store.posts[id] = updated
	t.undo = append(t.undo, func() { t.store.posts[id] = stored })
	return updated.Version, nil
}

func (t *tx) ListPosts(ctx context.Context, query models.PostQuery) ([]models.Post, error) {
	search := strings.ToLower(query.Search)
	result := make([]models.Post, 0)
	for _, post := range t.store.posts {
		if query.CreatorID != "" && post.CreatorID != query.CreatorID {
			continue
		}
		if query.LikedBy != "" && !post.LikedBy(query.LikedBy) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(post.Caption), search) {
			continue
		}
		if query.After != nil && !query.After.Before(post.Key()) {
			continue
		}
		result = append(result, clonePost(post))
	}
	slices.SortFunc(result, func(a, b models.Post) int {
		if a.Key().Before(b.Key()) {
			return -1
		}
		return 1
	})
	if query.Limit > 0 && len(result) > query.Limit {
		result = result[:query.Limit]
	}
	return result, nil
}

// Saved records

func (t *tx) GetSavedRecord(ctx context.Context, userID, postID string) (*models.SavedRecord, error) {
	for _, record := range t.store.saved {
		if record.UserID == userID && record.PostID == postID {
			return &record, nil
		}
	}
	return nil, errs.NotFound("saved record", userID+"/"+postID)
}

func (t *tx) GetSavedRecordByID(ctx context.Context, id string) (*models.SavedRecord, error) {
	record, ok := t.store.saved[id]
	if !ok {
		return nil, errs.NotFound("saved record", id)
	}
	return &record, nil
}

func (t *tx) CreateSavedRecord(ctx context.Context, record *models.SavedRecord) error {
	if err := t.mutate(); err != nil {
		return err
	}
	if _, ok := t.store.users[record.UserID]; !ok {
		return errs.NotFound("user", record.UserID)
	}
	if _, ok := t.store.posts[record.PostID]; !ok {
		return errs.NotFound("post", record.PostID)
	}
	if _, err := t.GetSavedRecord(ctx, record.UserID, record.PostID); err == nil {
		return errs.Conflict("post already saved by user", nil)
	}
	t.store.saved[record.ID] = *record
	id := record.ID
	t.undo = append(t.undo, func() { delete(t.store.saved, id) })
	return nil
}

func (t *tx) DeleteSavedRecord(ctx context.Context, id string) error {
	if err := t.mutate(); err != nil {
		return err
	}
	record, ok := t.store.saved[id]
	if !ok {
		return errs.NotFound("saved record", id)
	}
	delete(t.store.saved, id)
	t.undo = append(t.undo, func() { t.store.saved[id] = record })
	return nil
}

func (t *tx) ListSavedRecords(ctx context.Context, userID string) ([]models.SavedRecord, error) {
	result := make([]models.SavedRecord, 0)
	for _, record := range t.store.saved {
		if record.UserID == userID {
			result = append(result, record)
		}
	}
	slices.SortFunc(result, func(a, b models.SavedRecord) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return result, nil
}

func clonePost(post models.Post) models.Post {
	post.Tags = slices.Clone(post.Tags)
	post.Likes = slices.Clone(post.Likes)
	return post
}

var (
	_ storage.Store = (*Store)(nil)
	_ storage.Tx    = (*tx)(nil)
)
