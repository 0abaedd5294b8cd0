package postgres

import "context"

// Identifiers use the "C" collation so that the id tie-break of the feed
// order is plain byte order, matching the cursor comparison.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id              TEXT COLLATE "C" PRIMARY KEY,
		name            TEXT NOT NULL DEFAULT '',
		username        TEXT NOT NULL DEFAULT '',
		email           TEXT NOT NULL DEFAULT '',
		bio             TEXT NOT NULL DEFAULT '',
		image_url       TEXT NOT NULL DEFAULT '',
		image_id        TEXT NOT NULL DEFAULT '',
		follower_count  BIGINT NOT NULL DEFAULT 0 CHECK (follower_count >= 0),
		following_count BIGINT NOT NULL DEFAULT 0 CHECK (following_count >= 0),
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_username_idx ON users (username) WHERE username <> ''`,

	`CREATE TABLE IF NOT EXISTS follow_edges (
		follower_id TEXT COLLATE "C" NOT NULL REFERENCES users (id) ON DELETE CASCADE,
		followed_id TEXT COLLATE "C" NOT NULL REFERENCES users (id) ON DELETE CASCADE,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (follower_id, followed_id),
		CHECK (follower_id <> followed_id)
	)`,
	`CREATE INDEX IF NOT EXISTS follow_edges_followed_idx ON follow_edges (followed_id)`,

	`CREATE TABLE IF NOT EXISTS posts (
		id         TEXT COLLATE "C" PRIMARY KEY,
		creator_id TEXT COLLATE "C" NOT NULL REFERENCES users (id) ON DELETE CASCADE,
		caption    TEXT NOT NULL DEFAULT '',
		image_url  TEXT NOT NULL DEFAULT '',
		image_id   TEXT NOT NULL DEFAULT '',
		location   TEXT NOT NULL DEFAULT '',
		tags       TEXT[] NOT NULL DEFAULT '{}',
		likes      TEXT[] NOT NULL DEFAULT '{}',
		version    BIGINT NOT NULL DEFAULT 1,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS posts_feed_idx ON posts (created_at DESC, id DESC)`,
	`CREATE INDEX IF NOT EXISTS posts_creator_idx ON posts (creator_id, created_at DESC, id DESC)`,

	`CREATE TABLE IF NOT EXISTS saved_records (
		id         TEXT COLLATE "C" PRIMARY KEY,
		user_id    TEXT COLLATE "C" NOT NULL REFERENCES users (id) ON DELETE CASCADE,
		post_id    TEXT COLLATE "C" NOT NULL REFERENCES posts (id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (user_id, post_id)
	)`,
}

func (s *Store) Migrate(ctx context.Context) error {
	for _, statement := range schema {
		if _, err := s.pool.Exec(ctx, statement); err != nil {
			return mapError(err, "migration", "")
		}
	}
	return nil
}
