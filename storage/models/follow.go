package models

import "time"

type FollowEdge struct {
	FollowerID string    `json:"follower_id"`
	FollowedID string    `json:"followed_id"`
	CreatedAt  time.Time `json:"created_at"`
}

func FollowKey(followerID, followedID string) string {
	return "follow:" + followerID + ":" + followedID
}
