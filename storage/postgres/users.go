package postgres

import (
	"context"
	"github.com/jackc/pgx/v5"
	"snapgram/errs"
	"snapgram/storage/models"
	"strings"
)

var userColumns = []string{
	"id", "name", "username", "email", "bio", "image_url", "image_id",
	"follower_count", "following_count", "created_at",
}

func selectUserColumns(alias string) string {
	if alias == "" {
		return strings.Join(userColumns, ", ")
	}
	prefixed := make([]string, len(userColumns))
	for i, column := range userColumns {
		prefixed[i] = alias + "." + column
	}
	return strings.Join(prefixed, ", ")
}

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Username,
		&user.Email,
		&user.Bio,
		&user.ImageURL,
		&user.ImageID,
		&user.FollowerCount,
		&user.FollowingCount,
		&user.CreatedAt,
	)
	return user, err
}

func collectUsers(rows pgx.Rows, err error) ([]models.User, error) {
	if err != nil {
		return nil, mapError(err, "users", "")
	}
	users, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.User, error) {
		return scanUser(row)
	})
	if err != nil {
		return nil, mapError(err, "users", "")
	}
	return users, nil
}

func (t *tx) CreateUser(ctx context.Context, user *models.User) error {
	_, err := t.conn.Exec(
		ctx,
		`INSERT INTO users (id, name, username, email, bio, image_url, image_id, created_at)
		VALUES (@id, @name, @username, @email, @bio, @image_url, @image_id, @created_at)`,
		pgx.NamedArgs{
			"id":         user.ID,
			"name":       user.Name,
			"username":   user.Username,
			"email":      user.Email,
			"bio":        user.Bio,
			"image_url":  user.ImageURL,
			"image_id":   user.ImageID,
			"created_at": user.CreatedAt,
		},
	)
	return mapError(err, "user", user.ID)
}

func (t *tx) GetUser(ctx context.Context, id string) (*models.User, error) {
	row := t.conn.QueryRow(
		ctx,
		"SELECT "+selectUserColumns("")+" FROM users WHERE id = @id",
		pgx.NamedArgs{"id": id},
	)
	user, err := scanUser(row)
	if err != nil {
		return nil, mapError(err, "user", id)
	}
	return &user, nil
}

func (t *tx) GetUserForUpdate(ctx context.Context, id string) (*models.User, error) {
	row := t.conn.QueryRow(
		ctx,
		"SELECT "+selectUserColumns("")+" FROM users WHERE id = @id FOR UPDATE",
		pgx.NamedArgs{"id": id},
	)
	user, err := scanUser(row)
	if err != nil {
		return nil, mapError(err, "user", id)
	}
	return &user, nil
}

func (t *tx) GetUsers(ctx context.Context, ids []string) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}
	users, err := collectUsers(t.conn.Query(
		ctx,
		"SELECT "+selectUserColumns("")+" FROM users WHERE id = ANY(@ids)",
		pgx.NamedArgs{"ids": ids},
	))
	if err != nil {
		return nil, err
	}
	return orderByIDs(users, ids, func(u models.User) string { return u.ID }), nil
}

func (t *tx) ListUsers(ctx context.Context, query models.UserQuery) ([]models.User, error) {
	sql := "SELECT " + selectUserColumns("") + " FROM users WHERE id <> @exclude ORDER BY created_at DESC, id DESC"
	args := pgx.NamedArgs{"exclude": query.ExcludeID}
	if query.Limit > 0 {
		sql += " LIMIT @limit"
		args["limit"] = query.Limit
	}
	return collectUsers(t.conn.Query(ctx, sql, args))
}

func (t *tx) ListUserIDs(ctx context.Context, afterID string, limit int) ([]string, error) {
	rows, err := t.conn.Query(
		ctx,
		"SELECT id FROM users WHERE id > @after ORDER BY id LIMIT @limit",
		pgx.NamedArgs{"after": afterID, "limit": limit},
	)
	if err != nil {
		return nil, mapError(err, "users", "")
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, mapError(err, "users", "")
	}
	return ids, nil
}

func (t *tx) UpdateUser(ctx context.Context, user *models.User) error {
	tag, err := t.conn.Exec(
		ctx,
		`UPDATE users
		SET name = @name, username = @username, email = @email, bio = @bio, image_url = @image_url, image_id = @image_id
		WHERE id = @id`,
		pgx.NamedArgs{
			"id":        user.ID,
			"name":      user.Name,
			"username":  user.Username,
			"email":     user.Email,
			"bio":       user.Bio,
			"image_url": user.ImageURL,
			"image_id":  user.ImageID,
		},
	)
	if err != nil {
		return mapError(err, "user", user.ID)
	}
	if tag.RowsAffected() == 0 {
		return errs.NotFound("user", user.ID)
	}
	return nil
}

func (t *tx) AdjustFollowCounts(ctx context.Context, userID string, followingDelta, followerDelta int64) error {
	tag, err := t.conn.Exec(
		ctx,
		`UPDATE users
		SET following_count = GREATEST(following_count + @following, 0),
			follower_count = GREATEST(follower_count + @followers, 0)
		WHERE id = @id`,
		pgx.NamedArgs{"id": userID, "following": followingDelta, "followers": followerDelta},
	)
	if err != nil {
		return mapError(err, "user", userID)
	}
	if tag.RowsAffected() == 0 {
		return errs.NotFound("user", userID)
	}
	return nil
}

func (t *tx) SetFollowCounts(ctx context.Context, userID string, following, followers int64) error {
	tag, err := t.conn.Exec(
		ctx,
		"UPDATE users SET following_count = @following, follower_count = @followers WHERE id = @id",
		pgx.NamedArgs{"id": userID, "following": max(following, 0), "followers": max(followers, 0)},
	)
	if err != nil {
		return mapError(err, "user", userID)
	}
	if tag.RowsAffected() == 0 {
		return errs.NotFound("user", userID)
	}
	return nil
}

// orderByIDs returns rows in the order of ids, dropping duplicates.
func orderByIDs[T any](rows []T, ids []string, key func(T) string) []T {
	byID := make(map[string]T, len(rows))
	for _, row := range rows {
		byID[key(row)] = row
	}
	result := make([]T, 0, len(rows))
	for _, id := range ids {
		if row, ok := byID[id]; ok {
			result = append(result, row)
			delete(byID, id)
		}
	}
	return result
}
