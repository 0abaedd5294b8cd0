package feeds

import (
	"context"
	log "github.com/sirupsen/logrus"
	"snapgram/monitoring"
	"snapgram/storage"
	"snapgram/storage/models"
)

const MaxPageSize = 100

// Filter selects the variant feed. Empty fields do not filter; the zero
// value is the home feed of every post.
type Filter struct {
	CreatorID string
	LikedBy   string
	Search    string
}

func (f Filter) Name() string {
	switch {
	case f.Search != "":
		return "search"
	case f.LikedBy != "":
		return "liked"
	case f.CreatorID != "":
		return "creator"
	default:
		return "recent"
	}
}

type Page struct {
	Items      []models.Post `json:"items"`
	NextCursor string        `json:"nextCursor"`
	HasMore    bool          `json:"hasMore"`
}

// Paginator serves posts newest first, ordered by (created at, id), in
// fixed-size pages. A page after a cursor holds only posts strictly after
// the cursor key, so posts created later never shift an ongoing sequence
// and deleted posts cannot come back.
type Paginator struct {
	store           storage.Store
	defaultPageSize int
}

func NewPaginator(store storage.Store, defaultPageSize int) *Paginator {
	if defaultPageSize <= 0 || defaultPageSize > MaxPageSize {
		defaultPageSize = 20
	}
	return &Paginator{store: store, defaultPageSize: defaultPageSize}
}

func (p *Paginator) FirstPage(ctx context.Context, filter Filter, pageSize int) (Page, error) {
	return p.fetch(ctx, filter, nil, pageSize)
}

func (p *Paginator) NextPage(ctx context.Context, filter Filter, cursor string, pageSize int) (Page, error) {
	key, err := DecodeCursor(cursor)
	if err != nil {
		log.Infof("Malformed cursor %q for %s feed", cursor, filter.Name())
		return Page{}, err
	}
	return p.fetch(ctx, filter, &key, pageSize)
}

// Fetch dispatches on the cursor: empty starts a new sequence.
func (p *Paginator) Fetch(ctx context.Context, filter Filter, cursor string, pageSize int) (Page, error) {
	if cursor == "" {
		return p.FirstPage(ctx, filter, pageSize)
	}
	return p.NextPage(ctx, filter, cursor, pageSize)
}

func (p *Paginator) fetch(ctx context.Context, filter Filter, after *models.FeedKey, pageSize int) (Page, error) {
	if pageSize <= 0 {
		pageSize = p.defaultPageSize
	}
	pageSize = min(pageSize, MaxPageSize)

	var posts []models.Post
	err := p.store.Read(ctx, func(tx storage.Tx) error {
		var err error
		posts, err = tx.ListPosts(ctx, models.PostQuery{
			CreatorID: filter.CreatorID,
			LikedBy:   filter.LikedBy,
			Search:    filter.Search,
			After:     after,
			Limit:     pageSize,
		})
		return err
	})
	if err != nil {
		return Page{}, err
	}
	monitoring.FeedPages.WithLabelValues(filter.Name()).Inc()

	page := Page{
		Items:   posts,
		HasMore: len(posts) == pageSize,
	}
	if page.Items == nil {
		page.Items = []models.Post{}
	}
	if len(posts) > 0 {
		page.NextCursor = EncodeCursor(posts[len(posts)-1].Key())
	}
	return page, nil
}
