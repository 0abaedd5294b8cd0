package engagement

import (
	"context"
	"errors"
	"github.com/google/uuid"
	"snapgram/errs"
	"snapgram/events"
	"snapgram/monitoring"
	"snapgram/storage"
	"snapgram/storage/models"
	"snapgram/utils"
	"time"
)

// maxLikeAttempts bounds the retries of a like-set write that keeps losing
// the version check to writers on other keys of the same post.
const maxLikeAttempts = 5

const likeRetryBackoff = 5 * time.Millisecond

type LikeResult struct {
	Liked     bool `json:"liked"`
	LikeCount int  `json:"likeCount"`
}

type SaveResult struct {
	Saved    bool   `json:"saved"`
	RecordID string `json:"recordId,omitempty"`
}

type Manager struct {
	store storage.Store
	locks *utils.KeyedMutex
	bus   *events.Bus
}

func NewManager(store storage.Store, bus *events.Bus) *Manager {
	return &Manager{
		store: store,
		locks: utils.NewKeyedMutex(),
		bus:   bus,
	}
}

// ToggleLike adds userID to the like set of the post or removes it. Same
// (post, user) pairs are serialized by the keyed lock. Different users on
// the same post queue on the row lock, so disjoint toggles commute; the
// version check stays as a backstop and a stale write is retried against
// the fresh set.
func (m *Manager) ToggleLike(ctx context.Context, postID, userID string) (LikeResult, error) {
	var result LikeResult
	if postID == "" || userID == "" {
		return result, errs.InvalidOperation("post and user are required")
	}

	unlock, err := m.locks.Lock(ctx, models.LikeKey(postID, userID))
	if err != nil {
		return result, err
	}
	defer unlock()

	var creatorID string
	for attempt := 1; ; attempt++ {
		err = m.store.Write(ctx, func(tx storage.Tx) error {
			post, err := tx.GetPostForUpdate(ctx, postID)
			if err != nil {
				return err
			}
			if _, err := tx.GetUser(ctx, userID); err != nil {
				return err
			}
			creatorID = post.CreatorID

			likes, liked := toggleMember(post.Likes, userID)
			if _, err := tx.SetPostLikes(ctx, postID, post.Version, likes); err != nil {
				return err
			}
			result = LikeResult{Liked: liked, LikeCount: len(likes)}
			return nil
		})
		if errors.Is(err, storage.ErrStaleVersion) && attempt < maxLikeAttempts {
			monitoring.LikeRetries.Inc()
			select {
			case <-ctx.Done():
				err = ctx.Err()
			case <-time.After(time.Duration(attempt) * likeRetryBackoff):
				continue
			}
		}
		break
	}
	monitoring.EngagementToggles.WithLabelValues("like", monitoring.ToggleResult(result.Liked, err)).Inc()
	if err != nil {
		return LikeResult{}, err
	}

	event := events.NewToggleEvent(events.LikeToggled, userID, postID, result.Liked)
	event.OwnerID = creatorID
	m.bus.Emit(ctx, event)
	return result, nil
}

// toggleMember returns a copy of set with member removed if present,
// appended otherwise, and whether member is in the result. Duplicates left
// by earlier writers are dropped.
func toggleMember(set []string, member string) ([]string, bool) {
	result := make([]string, 0, len(set)+1)
	seen := make(map[string]bool, len(set))
	present := false
	for _, value := range set {
		if value == member {
			present = true
			continue
		}
		if !seen[value] {
			seen[value] = true
			result = append(result, value)
		}
	}
	if !present {
		result = append(result, member)
	}
	return result, !present
}

// ToggleSave deletes the saved record of (user, post) if there is one and
// creates it otherwise. The lookup is always by key, never a blind insert.
func (m *Manager) ToggleSave(ctx context.Context, postID, userID string) (SaveResult, error) {
	var result SaveResult
	if postID == "" || userID == "" {
		return result, errs.InvalidOperation("post and user are required")
	}

	key := models.SaveKey(postID, userID)
	unlock, err := m.locks.Lock(ctx, key)
	if err != nil {
		return result, err
	}
	defer unlock()

	err = m.store.Write(ctx, func(tx storage.Tx) error {
		if err := tx.LockKey(ctx, key); err != nil {
			return err
		}

		record, err := tx.GetSavedRecord(ctx, userID, postID)
		switch {
		case err == nil:
			result = SaveResult{Saved: false}
			return tx.DeleteSavedRecord(ctx, record.ID)
		case errs.IsType(err, errs.TypeNotFound):
			record = &models.SavedRecord{
				ID:        uuid.NewString(),
				UserID:    userID,
				PostID:    postID,
				CreatedAt: time.Now().UTC(),
			}
			if err := tx.CreateSavedRecord(ctx, record); err != nil {
				return err
			}
			result = SaveResult{Saved: true, RecordID: record.ID}
			return nil
		default:
			return err
		}
	})
	monitoring.EngagementToggles.WithLabelValues("save", monitoring.ToggleResult(result.Saved, err)).Inc()
	if err != nil {
		return SaveResult{}, err
	}

	m.bus.Emit(ctx, events.NewToggleEvent(events.SaveToggled, userID, postID, result.Saved))
	return result, nil
}

// DeleteSavedRecord removes a record the caller already holds. It takes the
// same (post, user) lock as ToggleSave.
func (m *Manager) DeleteSavedRecord(ctx context.Context, recordID string) (*models.SavedRecord, error) {
	record, err := m.SavedRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}

	key := models.SaveKey(record.PostID, record.UserID)
	unlock, err := m.locks.Lock(ctx, key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	err = m.store.Write(ctx, func(tx storage.Tx) error {
		if err := tx.LockKey(ctx, key); err != nil {
			return err
		}
		return tx.DeleteSavedRecord(ctx, recordID)
	})
	if err != nil {
		return nil, err
	}

	m.bus.Emit(ctx, events.NewToggleEvent(events.SaveToggled, record.UserID, record.PostID, false))
	return record, nil
}

func (m *Manager) SavedRecord(ctx context.Context, recordID string) (*models.SavedRecord, error) {
	var record *models.SavedRecord
	err := m.store.Read(ctx, func(tx storage.Tx) error {
		var err error
		record, err = tx.GetSavedRecordByID(ctx, recordID)
		return err
	})
	return record, err
}

func (m *Manager) IsSaved(ctx context.Context, postID, userID string) (bool, error) {
	saved := false
	err := m.store.Read(ctx, func(tx storage.Tx) error {
		_, err := tx.GetSavedRecord(ctx, userID, postID)
		if err == nil {
			saved = true
			return nil
		}
		if errs.IsType(err, errs.TypeNotFound) {
			return nil
		}
		return err
	})
	return saved, err
}

func (m *Manager) ListSaved(ctx context.Context, userID string) ([]models.SavedRecord, error) {
	var records []models.SavedRecord
	err := m.store.Read(ctx, func(tx storage.Tx) error {
		if _, err := tx.GetUser(ctx, userID); err != nil {
			return err
		}
		var err error
		records, err = tx.ListSavedRecords(ctx, userID)
		return err
	})
	return records, err
}
