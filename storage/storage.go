package storage

import (
	"context"
	"errors"
	"snapgram/storage/models"
)

// ErrStaleVersion is wrapped in a conflict when a like-set write lost the
// compare-and-swap against a concurrent writer.
var ErrStaleVersion = errors.New("stale post version")

// Store is the row store. All access happens inside Read or Write; a Write
// commits every change made by fn or none of them.
type Store interface {
	Read(ctx context.Context, fn func(tx Tx) error) error
	Write(ctx context.Context, fn func(tx Tx) error) error
	Close()
}

type Tx interface {
	UsersTx
	FollowsTx
	PostsTx
	SavedTx

	// LockKey serializes writers of key until the enclosing Write finishes.
	LockKey(ctx context.Context, key string) error
}

type UsersTx interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	// GetUserForUpdate also blocks counter writers of the row until the
	// enclosing Write finishes.
	GetUserForUpdate(ctx context.Context, id string) (*models.User, error)
	// GetUsers omits identities that do not resolve.
	GetUsers(ctx context.Context, ids []string) ([]models.User, error)
	ListUsers(ctx context.Context, query models.UserQuery) ([]models.User, error)
	ListUserIDs(ctx context.Context, afterID string, limit int) ([]string, error)
	UpdateUser(ctx context.Context, user *models.User) error
	// AdjustFollowCounts adds the deltas to the stored counters, flooring
	// each at zero.
	AdjustFollowCounts(ctx context.Context, userID string, followingDelta, followerDelta int64) error
	SetFollowCounts(ctx context.Context, userID string, following, followers int64) error
}

type FollowsTx interface {
	GetFollowEdge(ctx context.Context, followerID, followedID string) (*models.FollowEdge, error)
	CreateFollowEdge(ctx context.Context, edge *models.FollowEdge) error
	DeleteFollowEdge(ctx context.Context, followerID, followedID string) error
	CountFollowEdges(ctx context.Context, userID string) (following int64, followers int64, err error)
	ListFollowers(ctx context.Context, userID string) ([]models.User, error)
	ListFollowing(ctx context.Context, userID string) ([]models.User, error)
}

type PostsTx interface {
	CreatePost(ctx context.Context, post *models.Post) error
	GetPost(ctx context.Context, id string) (*models.Post, error)
	// GetPostForUpdate blocks other like-set writers of the post until the
	// enclosing Write finishes.
	GetPostForUpdate(ctx context.Context, id string) (*models.Post, error)
	GetPosts(ctx context.Context, ids []string) ([]models.Post, error)
	// UpdatePost writes caption, location, tags and image. Likes are untouched.
	UpdatePost(ctx context.Context, post *models.Post) error
	DeletePost(ctx context.Context, id string) error
	// SetPostLikes replaces the like set if the stored version still equals
	// version and returns the new version.
	SetPostLikes(ctx context.Context, id string, version int64, likes []string) (int64, error)
	// ListPosts returns matching posts in feed order, at most query.Limit.
	ListPosts(ctx context.Context, query models.PostQuery) ([]models.Post, error)
}

type SavedTx interface {
	GetSavedRecord(ctx context.Context, userID, postID string) (*models.SavedRecord, error)
	GetSavedRecordByID(ctx context.Context, id string) (*models.SavedRecord, error)
	CreateSavedRecord(ctx context.Context, record *models.SavedRecord) error
	DeleteSavedRecord(ctx context.Context, id string) error
	ListSavedRecords(ctx context.Context, userID string) ([]models.SavedRecord, error)
}

func Floor(value int64) int64 {
	if value < 0 {
		return 0
	}
	return value
}
