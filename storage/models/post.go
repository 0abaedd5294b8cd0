package models

import (
	"slices"
	"time"
)

type Post struct {
	ID        string    `json:"id"`
	CreatorID string    `json:"creator_id"`
	Caption   string    `json:"caption"`
	ImageURL  string    `json:"image_url"`
	ImageID   string    `json:"image_id"`
	Location  string    `json:"location"`
	Tags      []string  `json:"tags"`
	Likes     []string  `json:"likes"`
	CreatedAt time.Time `json:"created_at"`

	// Version is bumped on every write of Likes and guards the
	// compare-and-swap in SetPostLikes.
	Version int64 `json:"-"`
}

func (p *Post) LikedBy(userID string) bool {
	return slices.Contains(p.Likes, userID)
}

func (p *Post) Key() FeedKey {
	return FeedKey{CreatedAt: p.CreatedAt, ID: p.ID}
}

func LikeKey(postID, userID string) string {
	return "like:" + postID + ":" + userID
}

// FeedKey is the total order of posts: CreatedAt desc, then ID desc.
type FeedKey struct {
	CreatedAt time.Time
	ID        string
}

// Before reports whether k sorts strictly ahead of other in feed order.
func (k FeedKey) Before(other FeedKey) bool {
	if !k.CreatedAt.Equal(other.CreatedAt) {
		return k.CreatedAt.After(other.CreatedAt)
	}
	return k.ID > other.ID
}

// PostQuery filters are combined with AND. After excludes every post that
// does not sort strictly after the given key.
type PostQuery struct {
	CreatorID string
	LikedBy   string
	Search    string
	After     *FeedKey
	Limit     int
}
