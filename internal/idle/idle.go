// Package idle reclaims guild sessions that have had nothing to play for a
// while.
package idle

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sonroyaalmerol/cuebot/internal/queue"
)

// Reclaimer arms and cancels the per-queue idle timer. The timer handle lives
// on the queue itself, so there is at most one per guild.
type Reclaimer struct {
	sched Scheduler
	log   *slog.Logger
}

func NewReclaimer(sched Scheduler, log *slog.Logger) *Reclaimer {
	if sched == nil {
		sched = RealTime{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Reclaimer{sched: sched, log: log}
}

type timer struct {
	mu       sync.Mutex
	h        Handle
	canceled bool
}

func (t *timer) set(h Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.h = h
	if t.canceled {
		h.Stop()
	}
}

func (t *timer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.canceled = true
	if t.h == nil {
		return false
	}
	return t.h.Stop()
}

// Arm replaces any pending timer on q with one that calls onFire after d.
// d must be positive and a whole number of milliseconds; anything else is
// refused and logged, leaving q without a timer.
func (r *Reclaimer) Arm(q *queue.Queue, d time.Duration, onFire func()) error {
	r.Cancel(q)

	if d <= 0 || d%time.Millisecond != 0 {
		r.log.Error("invalid idle timeout, not arming", "guildID", q.GuildID(), "timeout", d)
		return fmt.Errorf("invalid idle timeout %v", d)
	}

	t := &timer{}
	// installed before scheduling so a very short timer sees itself as current
	q.SwapIdle(t)
	t.set(r.sched.AfterFunc(d, func() {
		if !q.ClearIdleIf(t) {
			return
		}
		r.log.Debug("idle timer fired", "guildID", q.GuildID())
		go r.run(q.GuildID(), onFire)
	}))
	r.log.Debug("idle timer armed", "guildID", q.GuildID(), "timeout", d)
	return nil
}

// Cancel stops q's pending timer. Safe when none is armed.
func (r *Reclaimer) Cancel(q *queue.Queue) {
	if old := q.SwapIdle(nil); old != nil {
		old.Stop()
		r.log.Debug("idle timer canceled", "guildID", q.GuildID())
	}
}

func (r *Reclaimer) run(guildID string, onFire func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("idle callback panicked", "guildID", guildID, "panic", rec)
		}
	}()
	onFire()
}
