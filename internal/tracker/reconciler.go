package tracker

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/glebk/treino-bot/internal/domain"
	"github.com/glebk/treino-bot/internal/snapshot"
)

// DefaultSnapshotMaxAge is how long an untouched snapshot entry is kept
const DefaultSnapshotMaxAge = 24 * time.Hour

// Result is the outcome of one reconciliation pass
type Result struct {
	// Started holds the sorted day indices that show as in progress
	Started []int
	// Active holds the non-terminal sessions reported by the database
	Active []*domain.WorkoutSession
	// Stale is set when the database could not be reached and Started comes
	// from the local cache only
	Stale bool
}

// Reconciler merges the local snapshot cache with the sessions stored in the
// database. The database decides which sessions are active; the cache only
// paints the first answer.
type Reconciler struct {
	sessions  domain.SessionRepository
	snapshots *snapshot.Store
	maxAge    time.Duration
}

func NewReconciler(sessions domain.SessionRepository, snapshots *snapshot.Store, maxAge time.Duration) *Reconciler {
	if maxAge <= 0 {
		maxAge = DefaultSnapshotMaxAge
	}
	return &Reconciler{
		sessions:  sessions,
		snapshots: snapshots,
		maxAge:    maxAge,
	}
}

// Provisional returns the started days according to the local cache alone
func (r *Reconciler) Provisional(studentID int64) []int {
	days, err := r.snapshots.StartedDays(studentID)
	if err != nil {
		log.Printf("Error reading snapshots for student %d: %v", studentID, err)
		return nil
	}
	return days
}

// Reconcile runs on every activation of a student. Errors are logged and the
// previous local state is returned marked as stale; the next pass corrects it.
func (r *Reconciler) Reconcile(ctx context.Context, studentID int64) Result {
	if n, err := r.snapshots.PurgeOlderThan(r.maxAge); err != nil {
		log.Printf("Error purging old snapshots: %v", err)
	} else if n > 0 {
		log.Printf("Purged %d expired workout snapshots", n)
	}

	provisional := r.Provisional(studentID)

	active, err := r.sessions.ListByStudent(ctx, studentID, domain.ActiveStatuses...)
	if err != nil {
		log.Printf("Error reconciling student %d: %v", studentID, err)
		return Result{Started: provisional, Stale: true}
	}

	local, err := r.snapshots.ForStudent(studentID)
	if err != nil {
		log.Printf("Error reading snapshots for student %d: %v", studentID, err)
		local = nil
	}

	if len(active) == 0 {
		return r.sweep(ctx, local)
	}

	byID := make(map[string]*snapshot.Entry, len(local))
	for _, e := range local {
		byID[e.SessionID] = e
	}

	keep := make(map[string]bool, len(active))
	var started []int
	for _, s := range active {
		keep[s.ID] = true
		started = append(started, s.DayIndex)

		if err := r.snapshots.Persist(s.ID, studentID, s.DayIndex, true); err != nil {
			log.Printf("Error persisting snapshot for session %s: %v", s.ID, err)
		}

		// Replay a journaled counter that never reached the database
		if e := byID[s.ID]; e != nil && e.Duration > s.DurationSeconds {
			if err := r.sessions.FlushDuration(ctx, s.ID, e.Duration); err != nil {
				log.Printf("Error replaying journal for session %s: %v", s.ID, err)
			} else {
				s.DurationSeconds = e.Duration
			}
		}
	}

	for _, e := range local {
		if keep[e.SessionID] {
			continue
		}
		if err := r.snapshots.Remove(e.SessionID); err != nil {
			log.Printf("Error removing stale snapshot %s: %v", e.SessionID, err)
		}
	}

	return Result{Started: sortedUnique(started), Active: active}
}

// sweep runs when the database reports no active session for the student:
// every cached entry must be confirmed by a membership check or it is dropped
func (r *Reconciler) sweep(ctx context.Context, local []*snapshot.Entry) Result {
	if len(local) == 0 {
		return Result{}
	}

	ids := make([]string, 0, len(local))
	for _, e := range local {
		ids = append(ids, e.SessionID)
	}

	confirmed, err := r.sessions.ActiveIDs(ctx, ids)
	if err != nil {
		log.Printf("Error checking cached sessions: %v", err)
		var started []int
		for _, e := range local {
			if e.Started {
				started = append(started, e.DayIndex)
			}
		}
		return Result{Started: sortedUnique(started), Stale: true}
	}

	var started []int
	for _, e := range local {
		if confirmed[e.SessionID] {
			if e.Started {
				started = append(started, e.DayIndex)
			}
			continue
		}
		if err := r.snapshots.Remove(e.SessionID); err != nil {
			log.Printf("Error removing stale snapshot %s: %v", e.SessionID, err)
		}
	}

	return Result{Started: sortedUnique(started)}
}

func sortedUnique(in []int) []int {
	if len(in) == 0 {
		return nil
	}
	sort.Ints(in)
	out := in[:1]
	for _, v := range in[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}
