package postgres

import (
	"context"
	"errors"
	"github.com/jackc/pgx/v5"
	"snapgram/errs"
	"snapgram/storage"
	"snapgram/storage/models"
	"strings"
)

const postColumns = "id, creator_id, caption, image_url, image_id, location, tags, likes, version, created_at"

func scanPost(row pgx.Row) (models.Post, error) {
	var post models.Post
	err := row.Scan(
		&post.ID,
		&post.CreatorID,
		&post.Caption,
		&post.ImageURL,
		&post.ImageID,
		&post.Location,
		&post.Tags,
		&post.Likes,
		&post.Version,
		&post.CreatedAt,
	)
	return post, err
}

func collectPosts(rows pgx.Rows, err error) ([]models.Post, error) {
	if err != nil {
		return nil, mapError(err, "posts", "")
	}
	posts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Post, error) {
		return scanPost(row)
	})
	if err != nil {
		return nil, mapError(err, "posts", "")
	}
	return posts, nil
}

func (t *tx) CreatePost(ctx context.Context, post *models.Post) error {
	tags := post.Tags
	if tags == nil {
		tags = []string{}
	}
	likes := post.Likes
	if likes == nil {
		likes = []string{}
	}
	err := t.conn.QueryRow(
		ctx,
		`INSERT INTO posts (id, creator_id, caption, image_url, image_id, location, tags, likes, created_at)
		VALUES (@id, @creator_id, @caption, @image_url, @image_id, @location, @tags, @likes, @created_at)
		RETURNING version`,
		pgx.NamedArgs{
			"id":         post.ID,
			"creator_id": post.CreatorID,
			"caption":    post.Caption,
			"image_url":  post.ImageURL,
			"image_id":   post.ImageID,
			"location":   post.Location,
			"tags":       tags,
			"likes":      likes,
			"created_at": post.CreatedAt,
		},
	).Scan(&post.Version)
	return mapError(err, "post", post.ID)
}

func (t *tx) GetPost(ctx context.Context, id string) (*models.Post, error) {
	post, err := scanPost(t.conn.QueryRow(
		ctx,
		"SELECT "+postColumns+" FROM posts WHERE id = @id",
		pgx.NamedArgs{"id": id},
	))
	if err != nil {
		return nil, mapError(err, "post", id)
	}
	return &post, nil
}

func (t *tx) GetPostForUpdate(ctx context.Context, id string) (*models.Post, error) {
	post, err := scanPost(t.conn.QueryRow(
		ctx,
		"SELECT "+postColumns+" FROM posts WHERE id = @id FOR UPDATE",
		pgx.NamedArgs{"id": id},
	))
	if err != nil {
		return nil, mapError(err, "post", id)
	}
	return &post, nil
}

func (t *tx) GetPosts(ctx context.Context, ids []string) ([]models.Post, error) {
	if len(ids) == 0 {
		return []models.Post{}, nil
	}
	posts, err := collectPosts(t.conn.Query(
		ctx,
		"SELECT "+postColumns+" FROM posts WHERE id = ANY(@ids)",
		pgx.NamedArgs{"ids": ids},
	))
	if err != nil {
		return nil, err
	}
	return orderByIDs(posts, ids, func(p models.Post) string { return p.ID }), nil
}

func (t *tx) UpdatePost(ctx context.Context, post *models.Post) error {
	tags := post.Tags
	if tags == nil {
		tags = []string{}
	}
	tag, err := t.conn.Exec(
		ctx,
		`UPDATE posts
		SET caption = @caption, location = @location, tags = @tags, image_url = @image_url, image_id = @image_id
		WHERE id = @id`,
		pgx.NamedArgs{
			"id":        post.ID,
			"caption":   post.Caption,
			"location":  post.Location,
			"tags":      tags,
			"image_url": post.ImageURL,
			"image_id":  post.ImageID,
		},
	)
	if err != nil {
		return mapError(err, "post", post.ID)
	}
	if tag.RowsAffected() == 0 {
		return errs.NotFound("post", post.ID)
	}
	return nil
}

func (t *tx) DeletePost(ctx context.Context, id string) error {
	tag, err := t.conn.Exec(ctx, "DELETE FROM posts WHERE id = @id", pgx.NamedArgs{"id": id})
	if err != nil {
		return mapError(err, "post", id)
	}
	if tag.RowsAffected() == 0 {
		return errs.NotFound("post", id)
	}
	return nil
}

func (t *tx) SetPostLikes(ctx context.Context, id string, version int64, likes []string) (int64, error) {
	if likes == nil {
		likes = []string{}
	}
	var newVersion int64
	err := t.conn.QueryRow(
		ctx,
		`UPDATE posts SET likes = @likes, version = version + 1
		WHERE id = @id AND version = @version
		RETURNING version`,
		pgx.NamedArgs{"id": id, "version": version, "likes": likes},
	).Scan(&newVersion)
	if err == nil {
		return newVersion, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, mapError(err, "post", id)
	}

	// Either the post is gone or someone else wrote first
	var exists bool
	if err := t.conn.QueryRow(
		ctx,
		"SELECT EXISTS (SELECT 1 FROM posts WHERE id = @id)",
		pgx.NamedArgs{"id": id},
	).Scan(&exists); err != nil {
		return 0, mapError(err, "post", id)
	}
	if !exists {
		return 0, errs.NotFound("post", id)
	}
	return 0, errs.Conflict("likes of post "+id+" changed concurrently", storage.ErrStaleVersion)
}

func (t *tx) ListPosts(ctx context.Context, query models.PostQuery) ([]models.Post, error) {
	var sql strings.Builder
	sql.WriteString("SELECT " + postColumns + " FROM posts WHERE TRUE")
	args := pgx.NamedArgs{}

	if query.CreatorID != "" {
		sql.WriteString(" AND creator_id = @creator_id")
		args["creator_id"] = query.CreatorID
	}
	if query.LikedBy != "" {
		sql.WriteString(" AND @liked_by = ANY(likes)")
		args["liked_by"] = query.LikedBy
	}
	if query.Search != "" {
		sql.WriteString(` AND caption ILIKE @search ESCAPE '\'`)
		args["search"] = "%" + escapeLike(query.Search) + "%"
	}
	if query.After != nil {
		sql.WriteString(" AND (created_at < @after_at OR (created_at = @after_at AND id < @after_id))")
		args["after_at"] = query.After.CreatedAt
		args["after_id"] = query.After.ID
	}
	sql.WriteString(" ORDER BY created_at DESC, id DESC")
	if query.Limit > 0 {
		sql.WriteString(" LIMIT @limit")
		args["limit"] = query.Limit
	}

	return collectPosts(t.conn.Query(ctx, sql.String(), args))
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(term string) string {
	return likeEscaper.Replace(term)
}
