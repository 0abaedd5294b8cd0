package graph

import (
	"context"
	log "github.com/sirupsen/logrus"
	"slices"
	"snapgram/errs"
	"snapgram/events"
	"snapgram/monitoring"
	"snapgram/storage"
	"snapgram/storage/models"
	"snapgram/utils"
	"time"
)

// CounterTracker remembers users whose counters changed so the
// reconciliation sweep can verify them first.
type CounterTracker interface {
	MarkDirty(ctx context.Context, userIDs ...string) error
}

type FollowResult struct {
	Following bool `json:"following"`
}

// Manager owns follow edges and the follower/following counters derived
// from them. Both are always written in the same transaction.
type Manager struct {
	store   storage.Store
	locks   *utils.KeyedMutex
	tracker CounterTracker
	bus     *events.Bus
}

func NewManager(store storage.Store, bus *events.Bus, tracker CounterTracker) *Manager {
	return &Manager{
		store:   store,
		locks:   utils.NewKeyedMutex(),
		tracker: tracker,
		bus:     bus,
	}
}

func (m *Manager) IsFollowing(ctx context.Context, followerID, followedID string) (bool, error) {
	following := false
	err := m.store.Read(ctx, func(tx storage.Tx) error {
		for _, id := range []string{followerID, followedID} {
			if _, err := tx.GetUser(ctx, id); err != nil {
				return err
			}
		}
		_, err := tx.GetFollowEdge(ctx, followerID, followedID)
		if err == nil {
			following = true
			return nil
		}
		if errs.IsType(err, errs.TypeNotFound) {
			return nil
		}
		return err
	})
	return following, err
}

// ToggleFollow flips the edge follower -> followed and moves both counters
// by exactly one. Calls on the same pair are serialized in-process and, for
// stores that support it, across processes through LockKey.
func (m *Manager) ToggleFollow(ctx context.Context, followerID, followedID string) (FollowResult, error) {
	var result FollowResult
	if followerID == "" || followedID == "" {
		return result, errs.InvalidOperation("follower and followed are required")
	}
	if followerID == followedID {
		return result, errs.InvalidOperation("cannot follow yourself")
	}

	key := models.FollowKey(followerID, followedID)
	unlock, err := m.locks.Lock(ctx, key)
	if err != nil {
		return result, err
	}
	defer unlock()

	err = m.store.Write(ctx, func(tx storage.Tx) error {
		if err := tx.LockKey(ctx, key); err != nil {
			return err
		}

		_, err := tx.GetFollowEdge(ctx, followerID, followedID)
		switch {
		case err == nil:
			if err := tx.DeleteFollowEdge(ctx, followerID, followedID); err != nil {
				return err
			}
			result.Following = false
			return adjustCounters(ctx, tx, followerID, followedID, -1)
		case errs.IsType(err, errs.TypeNotFound):
			edge := &models.FollowEdge{
				FollowerID: followerID,
				FollowedID: followedID,
				CreatedAt:  time.Now().UTC(),
			}
			if err := tx.CreateFollowEdge(ctx, edge); err != nil {
				return err
			}
			result.Following = true
			return adjustCounters(ctx, tx, followerID, followedID, 1)
		default:
			return err
		}
	})
	monitoring.EngagementToggles.WithLabelValues("follow", monitoring.ToggleResult(result.Following, err)).Inc()
	if err != nil {
		return FollowResult{}, err
	}

	if m.tracker != nil {
		if err := m.tracker.MarkDirty(ctx, followerID, followedID); err != nil {
			log.Errorf("Error marking users %s, %s for reconciliation: %v", followerID, followedID, err)
		}
	}
	m.bus.Emit(ctx, events.NewToggleEvent(events.FollowToggled, followerID, followedID, result.Following))
	return result, nil
}

// adjustCounters updates the two user rows in id order so that opposite
// toggles (a->b, b->a) never lock them in opposite orders.
func adjustCounters(ctx context.Context, tx storage.Tx, followerID, followedID string, delta int64) error {
	ids := []string{followerID, followedID}
	slices.Sort(ids)
	for _, id := range ids {
		var followingDelta, followerDelta int64
		if id == followerID {
			followingDelta = delta
		} else {
			followerDelta = delta
		}
		if err := tx.AdjustFollowCounts(ctx, id, followingDelta, followerDelta); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) FollowersOf(ctx context.Context, userID string) ([]models.User, error) {
	var users []models.User
	err := m.store.Read(ctx, func(tx storage.Tx) error {
		if _, err := tx.GetUser(ctx, userID); err != nil {
			return err
		}
		var err error
		users, err = tx.ListFollowers(ctx, userID)
		return err
	})
	return users, err
}

func (m *Manager) FollowingOf(ctx context.Context, userID string) ([]models.User, error) {
	var users []models.User
	err := m.store.Read(ctx, func(tx storage.Tx) error {
		if _, err := tx.GetUser(ctx, userID); err != nil {
			return err
		}
		var err error
		users, err = tx.ListFollowing(ctx, userID)
		return err
	})
	return users, err
}

// Reconcile recounts the edges of userID and overwrites the stored counters
// if they disagree. The user row stays locked between count and write, so a
// concurrent toggle lands either fully before the count or fully after it.
func (m *Manager) Reconcile(ctx context.Context, userID string) (bool, error) {
	repaired := false
	err := m.store.Write(ctx, func(tx storage.Tx) error {
		user, err := tx.GetUserForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		following, followers, err := tx.CountFollowEdges(ctx, userID)
		if err != nil {
			return err
		}
		if user.FollowingCount == following && user.FollowerCount == followers {
			return nil
		}

		log.WithFields(log.Fields{
			"user":            userID,
			"following":       user.FollowingCount,
			"followers":       user.FollowerCount,
			"edges_following": following,
			"edges_followers": followers,
		}).Warn("Follow counters skewed, repairing")
		repaired = true
		return tx.SetFollowCounts(ctx, userID, following, followers)
	})
	if err != nil {
		return false, err
	}
	if repaired {
		monitoring.FollowCounterRepairs.Inc()
	}
	return repaired, nil
}
