package models

import "time"

type SavedRecord struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	PostID    string    `json:"post_id"`
	CreatedAt time.Time `json:"created_at"`
}

func SaveKey(postID, userID string) string {
	return "save:" + postID + ":" + userID
}
