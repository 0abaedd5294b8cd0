package social

import (
	"context"
	"encoding/json"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"snapgram/engagement"
	"snapgram/errs"
	"snapgram/events"
	"snapgram/feeds"
	"snapgram/graph"
	"snapgram/storage"
	"snapgram/storage/models"
	"time"
)

// ProfileCache is an optional read cache in front of Profile, keyed by user
// id and invalidated through HandleEvent. Get hands out the generation a
// rebuilt profile is stored under; Set under a generation that was
// invalidated meanwhile must never be served.
type ProfileCache interface {
	Get(ctx context.Context, userID string) ([]byte, int64, bool)
	Set(ctx context.Context, userID string, generation int64, value []byte)
	Invalidate(ctx context.Context, userIDs ...string)
}

type PostView struct {
	models.Post
	Creator   *models.User  `json:"creator"`
	LikedBy   []models.User `json:"liked_by"`
	LikeCount int           `json:"like_count"`
}

type FeedPage struct {
	Items      []PostView `json:"items"`
	NextCursor string     `json:"nextCursor"`
	HasMore    bool       `json:"hasMore"`
}

type Profile struct {
	User       models.User `json:"user"`
	Posts      FeedPage    `json:"posts"`
	LikedPosts FeedPage    `json:"liked_posts"`
}

type SavedPost struct {
	RecordID string    `json:"record_id"`
	SavedAt  time.Time `json:"saved_at"`
	Post     PostView  `json:"post"`
}

// Facade assembles read models out of the managers. Every nested user
// reference is resolved with one batched lookup per response.
type Facade struct {
	store      storage.Store
	graph      *graph.Manager
	engagement *engagement.Manager
	paginator  *feeds.Paginator
	cache      ProfileCache
	pageSize   int
}

func NewFacade(
	store storage.Store,
	graphManager *graph.Manager,
	engagementManager *engagement.Manager,
	paginator *feeds.Paginator,
	cache ProfileCache,
	pageSize int,
) *Facade {
	return &Facade{
		store:      store,
		graph:      graphManager,
		engagement: engagementManager,
		paginator:  paginator,
		cache:      cache,
		pageSize:   pageSize,
	}
}

func (f *Facade) User(ctx context.Context, userID string) (*models.User, error) {
	var user *models.User
	err := f.store.Read(ctx, func(tx storage.Tx) error {
		var err error
		user, err = tx.GetUser(ctx, userID)
		return err
	})
	return user, err
}

// Users lists creators other than excludeID, newest first.
func (f *Facade) Users(ctx context.Context, excludeID string, limit int) ([]models.User, error) {
	var users []models.User
	err := f.store.Read(ctx, func(tx storage.Tx) error {
		var err error
		users, err = tx.ListUsers(ctx, models.UserQuery{ExcludeID: excludeID, Limit: limit})
		return err
	})
	return users, err
}

func (f *Facade) Profile(ctx context.Context, userID string) (*Profile, error) {
	var generation int64 = -1
	if f.cache != nil {
		var cached []byte
		var ok bool
		if cached, generation, ok = f.cache.Get(ctx, userID); ok {
			var profile Profile
			if err := json.Unmarshal(cached, &profile); err == nil {
				return &profile, nil
			}
			log.Errorf("Error decoding cached profile %s", userID)
		}
	}

	var (
		user  *models.User
		posts feeds.Page
		liked feeds.Page
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		user, err = f.User(groupCtx, userID)
		return err
	})
	group.Go(func() error {
		var err error
		posts, err = f.paginator.FirstPage(groupCtx, feeds.Filter{CreatorID: userID}, f.pageSize)
		return err
	})
	group.Go(func() error {
		var err error
		liked, err = f.paginator.FirstPage(groupCtx, feeds.Filter{LikedBy: userID}, f.pageSize)
		return err
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}

	views, err := f.hydrate(ctx, append(append([]models.Post{}, posts.Items...), liked.Items...))
	if err != nil {
		return nil, err
	}
	profile := &Profile{
		User:       *user,
		Posts:      pageOf(posts, views[:len(posts.Items)]),
		LikedPosts: pageOf(liked, views[len(posts.Items):]),
	}

	if f.cache != nil {
		if encoded, err := json.Marshal(profile); err == nil {
			f.cache.Set(ctx, userID, generation, encoded)
		}
	}
	return profile, nil
}

// Feed serves one page of a variant feed with references resolved.
func (f *Facade) Feed(ctx context.Context, filter feeds.Filter, cursor string, pageSize int) (FeedPage, error) {
	page, err := f.paginator.Fetch(ctx, filter, cursor, pageSize)
	if err != nil {
		return FeedPage{}, err
	}
	views, err := f.hydrate(ctx, page.Items)
	if err != nil {
		return FeedPage{}, err
	}
	return pageOf(page, views), nil
}

func (f *Facade) Post(ctx context.Context, postID string) (*PostView, error) {
	var post *models.Post
	err := f.store.Read(ctx, func(tx storage.Tx) error {
		var err error
		post, err = tx.GetPost(ctx, postID)
		return err
	})
	if err != nil {
		return nil, err
	}
	views, err := f.hydrate(ctx, []models.Post{*post})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// SavedPosts returns the bookmarks of userID. Only the owner may read them.
func (f *Facade) SavedPosts(ctx context.Context, requesterID, userID string) ([]SavedPost, error) {
	if requesterID == "" || requesterID != userID {
		return nil, errs.InvalidOperation("saved posts are only visible to their owner")
	}

	records, err := f.engagement.ListSaved(ctx, userID)
	if err != nil {
		return nil, err
	}
	postIDs := make([]string, len(records))
	for i, record := range records {
		postIDs[i] = record.PostID
	}

	var posts []models.Post
	err = f.store.Read(ctx, func(tx storage.Tx) error {
		var err error
		posts, err = tx.GetPosts(ctx, postIDs)
		return err
	})
	if err != nil {
		return nil, err
	}
	views, err := f.hydrate(ctx, posts)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]PostView, len(views))
	for _, view := range views {
		byID[view.ID] = view
	}

	saved := make([]SavedPost, 0, len(records))
	for _, record := range records {
		view, ok := byID[record.PostID]
		if !ok {
			continue
		}
		saved = append(saved, SavedPost{RecordID: record.ID, SavedAt: record.CreatedAt, Post: view})
	}
	return saved, nil
}

func (f *Facade) Followers(ctx context.Context, userID string) ([]models.User, error) {
	return f.graph.FollowersOf(ctx, userID)
}

func (f *Facade) Following(ctx context.Context, userID string) ([]models.User, error) {
	return f.graph.FollowingOf(ctx, userID)
}

// HandleEvent drops cached profiles the event may have changed.
func (f *Facade) HandleEvent(event events.Event) {
	if f.cache == nil {
		return
	}
	ids := []string{event.ActorID}
	switch event.Type {
	case events.FollowToggled:
		ids = append(ids, event.SubjectID)
	case events.LikeToggled, events.PostCreated, events.PostUpdated, events.PostDeleted:
		if event.OwnerID != "" {
			ids = append(ids, event.OwnerID)
		}
	case events.SaveToggled:
		return
	}
	f.cache.Invalidate(context.Background(), ids...)
}

// hydrate resolves creators and like authors of posts with one user lookup.
func (f *Facade) hydrate(ctx context.Context, posts []models.Post) ([]PostView, error) {
	ids := make([]string, 0, len(posts))
	for _, post := range posts {
		ids = append(ids, post.CreatorID)
		ids = append(ids, post.Likes...)
	}

	users := map[string]models.User{}
	if len(ids) > 0 {
		err := f.store.Read(ctx, func(tx storage.Tx) error {
			resolved, err := tx.GetUsers(ctx, ids)
			for _, user := range resolved {
				users[user.ID] = user
			}
			return err
		})
		if err != nil {
			return nil, err
		}
	}

	views := make([]PostView, len(posts))
	for i, post := range posts {
		view := PostView{
			Post:      post,
			LikedBy:   make([]models.User, 0, len(post.Likes)),
			LikeCount: len(post.Likes),
		}
		if creator, ok := users[post.CreatorID]; ok {
			view.Creator = &creator
		}
		for _, id := range post.Likes {
			if user, ok := users[id]; ok {
				view.LikedBy = append(view.LikedBy, user)
			}
		}
		views[i] = view
	}
	return views, nil
}

func pageOf(page feeds.Page, views []PostView) FeedPage {
	return FeedPage{
		Items:      views,
		NextCursor: page.NextCursor,
		HasMore:    page.HasMore,
	}
}
