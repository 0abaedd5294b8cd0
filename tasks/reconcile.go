package tasks

import (
	"context"
	log "github.com/sirupsen/logrus"
	"snapgram/errs"
	"snapgram/storage"
	"time"
)

type CounterReconciler interface {
	Reconcile(ctx context.Context, userID string) (bool, error)
}

// DirtySource hands out users whose counters changed recently. Users that
// were popped but not reconciled are marked again.
type DirtySource interface {
	PopDirty(ctx context.Context, count int) ([]string, error)
	MarkDirty(ctx context.Context, userIDs ...string) error
}

// Reconciler recomputes follow counters from the edges. Users touched by a
// toggle are checked every interval; every user is checked every fullEvery.
type Reconciler struct {
	counters  CounterReconciler
	store     storage.Store
	dirty     DirtySource
	interval  time.Duration
	fullEvery time.Duration
	batch     int
}

func NewReconciler(
	counters CounterReconciler,
	store storage.Store,
	dirty DirtySource,
	interval time.Duration,
	fullEvery time.Duration,
	batch int,
) *Reconciler {
	if batch <= 0 {
		batch = 500
	}
	return &Reconciler{
		counters:  counters,
		store:     store,
		dirty:     dirty,
		interval:  interval,
		fullEvery: fullEvery,
		batch:     batch,
	}
}

func (r *Reconciler) Run(ctx context.Context) {
	lastFull := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(r.interval):
			if _, err := r.SweepDirty(ctx); err != nil {
				log.Errorf("Error reconciling dirty counters: %v", err)
			}
			if time.Since(lastFull) >= r.fullEvery {
				if _, err := r.SweepAll(ctx); err != nil {
					log.Errorf("Error reconciling all counters: %v", err)
				}
				lastFull = time.Now()
			}
		}
	}
}

// SweepDirty drains the dirty set batch by batch and returns how many
// users were repaired.
func (r *Reconciler) SweepDirty(ctx context.Context) (int, error) {
	if r.dirty == nil {
		return 0, nil
	}
	repaired := 0
	for {
		ids, err := r.dirty.PopDirty(ctx, r.batch)
		if err != nil {
			return repaired, err
		}
		count, done, err := r.reconcile(ctx, ids)
		repaired += count
		if err != nil {
			r.requeue(ctx, ids[done:])
			return repaired, err
		}
		if len(ids) < r.batch {
			return repaired, nil
		}
	}
}

func (r *Reconciler) requeue(ctx context.Context, ids []string) {
	if len(ids) == 0 {
		return
	}
	if err := r.dirty.MarkDirty(context.WithoutCancel(ctx), ids...); err != nil {
		log.Errorf("Error requeueing %d dirty users: %v", len(ids), err)
	}
}

func (r *Reconciler) SweepAll(ctx context.Context) (int, error) {
	start := time.Now()
	repaired, checked := 0, 0
	after := ""
	for {
		var ids []string
		err := r.store.Read(ctx, func(tx storage.Tx) error {
			var err error
			ids, err = tx.ListUserIDs(ctx, after, r.batch)
			return err
		})
		if err != nil {
			return repaired, err
		}

		count, done, err := r.reconcile(ctx, ids)
		repaired += count
		checked += done
		if err != nil {
			return repaired, err
		}
		if len(ids) < r.batch {
			break
		}
		after = ids[len(ids)-1]
	}

	log.WithFields(log.Fields{
		"checked":  checked,
		"repaired": repaired,
		"elapsed":  time.Since(start),
	}).Info("Follow counters reconciled")
	return repaired, nil
}

// reconcile returns how many of ids were repaired and how many were
// processed before the first error.
func (r *Reconciler) reconcile(ctx context.Context, ids []string) (int, int, error) {
	repaired := 0
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return repaired, i, err
		}
		fixed, err := r.counters.Reconcile(ctx, id)
		switch {
		case errs.IsType(err, errs.TypeNotFound):
			// Deleted since it was marked
		case err != nil:
			return repaired, i, err
		case fixed:
			repaired++
		}
	}
	return repaired, len(ids), nil
}
