package postgres

import (
	"context"
	"github.com/jackc/pgx/v5"
	"snapgram/errs"
	"snapgram/storage/models"
)

func (t *tx) GetFollowEdge(ctx context.Context, followerID, followedID string) (*models.FollowEdge, error) {
	var edge models.FollowEdge
	err := t.conn.QueryRow(
		ctx,
		`SELECT follower_id, followed_id, created_at FROM follow_edges
		WHERE follower_id = @follower AND followed_id = @followed`,
		pgx.NamedArgs{"follower": followerID, "followed": followedID},
	).Scan(&edge.FollowerID, &edge.FollowedID, &edge.CreatedAt)
	if err != nil {
		return nil, mapError(err, "follow", followerID+"->"+followedID)
	}
	return &edge, nil
}

func (t *tx) CreateFollowEdge(ctx context.Context, edge *models.FollowEdge) error {
	_, err := t.conn.Exec(
		ctx,
		`INSERT INTO follow_edges (follower_id, followed_id, created_at)
		VALUES (@follower, @followed, @created_at)`,
		pgx.NamedArgs{"follower": edge.FollowerID, "followed": edge.FollowedID, "created_at": edge.CreatedAt},
	)
	return mapError(err, "follow", edge.FollowerID+"->"+edge.FollowedID)
}

func (t *tx) DeleteFollowEdge(ctx context.Context, followerID, followedID string) error {
	tag, err := t.conn.Exec(
		ctx,
		"DELETE FROM follow_edges WHERE follower_id = @follower AND followed_id = @followed",
		pgx.NamedArgs{"follower": followerID, "followed": followedID},
	)
	if err != nil {
		return mapError(err, "follow", followerID+"->"+followedID)
	}
	if tag.RowsAffected() == 0 {
		return errs.NotFound("follow", followerID+"->"+followedID)
	}
	return nil
}

func (t *tx) CountFollowEdges(ctx context.Context, userID string) (int64, int64, error) {
	var following, followers int64
	err := t.conn.QueryRow(
		ctx,
		`SELECT
			(SELECT count(*) FROM follow_edges WHERE follower_id = @id),
			(SELECT count(*) FROM follow_edges WHERE followed_id = @id)`,
		pgx.NamedArgs{"id": userID},
	).Scan(&following, &followers)
	if err != nil {
		return 0, 0, mapError(err, "follow counts", userID)
	}
	return following, followers, nil
}

func (t *tx) ListFollowers(ctx context.Context, userID string) ([]models.User, error) {
	return collectUsers(t.conn.Query(
		ctx,
		`SELECT `+selectUserColumns("u")+` FROM follow_edges e
		JOIN users u ON u.id = e.follower_id
		WHERE e.followed_id = @id
		ORDER BY e.created_at DESC, u.id`,
		pgx.NamedArgs{"id": userID},
	))
}

func (t *tx) ListFollowing(ctx context.Context, userID string) ([]models.User, error) {
	return collectUsers(t.conn.Query(
		ctx,
		`SELECT `+selectUserColumns("u")+` FROM follow_edges e
		JOIN users u ON u.id = e.followed_id
		WHERE e.follower_id = @id
		ORDER BY e.created_at DESC, u.id`,
		pgx.NamedArgs{"id": userID},
	))
}
