package registry

import (
	"sync"
	"time"
)

// Phase names which lifecycle stage a timer belongs to. A registration has at
// most one live timer per phase.
type Phase int

const (
	PhaseExpiry  Phase = iota // while pending, waiting on the DM flow
	PhasePayment              // while payment_pending, waiting on payment
)

type timerKey struct {
	id    int64
	phase Phase
}

// Timers schedules cancellable delayed callbacks. Cancellation is
// best-effort: a callback may already be running when Disarm is called, so
// callbacks must re-fetch their registration and re-check its status. The
// store's compare-and-set is the authoritative guard, never the Stop call.
type Timers struct {
	mu     sync.Mutex
	active map[timerKey]*time.Timer
}

func NewTimers() *Timers {
	return &Timers{active: make(map[timerKey]*time.Timer)}
}

// Arm schedules fn to run after d. Arming a phase that already has a timer
// invalidates the previous handle.
func (t *Timers) Arm(id int64, phase Phase, d time.Duration, fn func()) {
	key := timerKey{id, phase}

	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.active[key]; ok {
		old.Stop()
	}

	var tm *time.Timer
	tm = time.AfterFunc(d, func() {
		t.mu.Lock()
		// Only clear the slot if it still belongs to this handle; a re-arm
		// may have replaced it while we were being scheduled.
		if t.active[key] == tm {
			delete(t.active, key)
		}
		t.mu.Unlock()
		fn()
	})
	t.active[key] = tm
}

// Disarm cancels the timer for a phase. Idempotent, and safe after the
// callback has already fired.
func (t *Timers) Disarm(id int64, phase Phase) {
	key := timerKey{id, phase}
	t.mu.Lock()
	defer t.mu.Unlock()
	if tm, ok := t.active[key]; ok {
		tm.Stop()
		delete(t.active, key)
	}
}

// DisarmAll cancels every timer of a registration.
func (t *Timers) DisarmAll(id int64) {
	t.Disarm(id, PhaseExpiry)
	t.Disarm(id, PhasePayment)
}

// Stop cancels everything; used on shutdown.
func (t *Timers) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, tm := range t.active {
		tm.Stop()
		delete(t.active, key)
	}
}
