package feeds

import (
	"encoding/base64"
	"fmt"
	"snapgram/errs"
	"snapgram/storage/models"
	"strconv"
	"strings"
	"time"
)

// EncodeCursor turns the feed key of the last item of a page into an opaque
// token: base64url of "<unix nanos>::<id>".
func EncodeCursor(key models.FeedKey) string {
	raw := fmt.Sprintf("%d::%s", key.CreatedAt.UnixNano(), key.ID)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func DecodeCursor(cursor string) (models.FeedKey, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return models.FeedKey{}, errs.InvalidOperation("malformed cursor")
	}

	parts := strings.SplitN(string(raw), "::", 2)
	if len(parts) != 2 || parts[1] == "" {
		return models.FeedKey{}, errs.InvalidOperation("malformed cursor")
	}
	nanos, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return models.FeedKey{}, errs.InvalidOperation("malformed cursor")
	}

	return models.FeedKey{
		CreatedAt: time.Unix(0, nanos).UTC(),
		ID:        parts[1],
	}, nil
}
