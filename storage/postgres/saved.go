package postgres

import (
	"context"
	"github.com/jackc/pgx/v5"
	"snapgram/errs"
	"snapgram/storage/models"
)

func scanSavedRecord(row pgx.Row) (models.SavedRecord, error) {
	var record models.SavedRecord
	err := row.Scan(&record.ID, &record.UserID, &record.PostID, &record.CreatedAt)
	return record, err
}

func (t *tx) GetSavedRecord(ctx context.Context, userID, postID string) (*models.SavedRecord, error) {
	record, err := scanSavedRecord(t.conn.QueryRow(
		ctx,
		"SELECT id, user_id, post_id, created_at FROM saved_records WHERE user_id = @user_id AND post_id = @post_id",
		pgx.NamedArgs{"user_id": userID, "post_id": postID},
	))
	if err != nil {
		return nil, mapError(err, "saved record", userID+"/"+postID)
	}
	return &record, nil
}

func (t *tx) GetSavedRecordByID(ctx context.Context, id string) (*models.SavedRecord, error) {
	record, err := scanSavedRecord(t.conn.QueryRow(
		ctx,
		"SELECT id, user_id, post_id, created_at FROM saved_records WHERE id = @id",
		pgx.NamedArgs{"id": id},
	))
	if err != nil {
		return nil, mapError(err, "saved record", id)
	}
	return &record, nil
}

func (t *tx) CreateSavedRecord(ctx context.Context, record *models.SavedRecord) error {
	_, err := t.conn.Exec(
		ctx,
		`INSERT INTO saved_records (id, user_id, post_id, created_at)
		VALUES (@id, @user_id, @post_id, @created_at)`,
		pgx.NamedArgs{
			"id":         record.ID,
			"user_id":    record.UserID,
			"post_id":    record.PostID,
			"created_at": record.CreatedAt,
		},
	)
	return mapError(err, "saved record", record.ID)
}

func (t *tx) DeleteSavedRecord(ctx context.Context, id string) error {
	tag, err := t.conn.Exec(ctx, "DELETE FROM saved_records WHERE id = @id", pgx.NamedArgs{"id": id})
	if err != nil {
		return mapError(err, "saved record", id)
	}
	if tag.RowsAffected() == 0 {
		return errs.NotFound("saved record", id)
	}
	return nil
}

func (t *tx) ListSavedRecords(ctx context.Context, userID string) ([]models.SavedRecord, error) {
	rows, err := t.conn.Query(
		ctx,
		`SELECT id, user_id, post_id, created_at FROM saved_records
		WHERE user_id = @user_id
		ORDER BY created_at DESC, id DESC`,
		pgx.NamedArgs{"user_id": userID},
	)
	if err != nil {
		return nil, mapError(err, "saved records", userID)
	}
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.SavedRecord, error) {
		return scanSavedRecord(row)
	})
	if err != nil {
		return nil, mapError(err, "saved records", userID)
	}
	return records, nil
}
