package control

import "sync/atomic"

// Surface is the thread-safe-ish control and statistics surface shared
// between the replay loop and whatever other goroutine is driving it
// (spec.md section 3 "Context", section 5 "Concurrency model", section
// 7 "Operator control surface"). Flags are plain atomics: ordering
// beyond "each read observes a finite-time-ago write" is not required.
type Surface struct {
	Stats Stats

	running  atomic.Bool
	suspend  atomic.Bool
	abort    atomic.Bool
	lastErr  atomic.Pointer[Error]
	lastWarn atomic.Pointer[Warning]
}

// NewSurface returns a freshly initialized control surface.
func NewSurface() *Surface {
	return &Surface{}
}

// Abort sets the abort flag. The replay loop observes this once per
// packet and returns cleanly without sending any packet dispatched
// after the observation (spec.md section 4.6 step 4 / section 5).
func (s *Surface) Abort() { s.abort.Store(true) }

// IsAborted reports whether Abort has been called.
func (s *Surface) IsAborted() bool { return s.abort.Load() }

// Suspend pauses the replay loop at its next poll without advancing
// scheduled send targets.
func (s *Surface) Suspend() { s.suspend.Store(true) }

// Restart resumes a suspended replay loop.
func (s *Surface) Restart() { s.suspend.Store(false) }

// IsSuspended reports whether the loop is currently suspended.
func (s *Surface) IsSuspended() bool { return s.suspend.Load() }

// IsRunning reports whether a replay is currently in progress.
func (s *Surface) IsRunning() bool { return s.running.Load() }

// setRunning is used by replay.Context to flip the running flag at the
// start and end of a Replay call.
func (s *Surface) setRunning(v bool) { s.running.Store(v) }

// SetRunning is the exported form used by package replay at the start
// and end of a Replay call. Being exported, it is callable from any
// package; nothing restricts it to a genuine replay invocation.
func (s *Surface) SetRunning(v bool) { s.setRunning(v) }

// resetControlFlags clears abort/suspend at the start of a new Replay
// invocation so a previous run's abort does not leak into the next.
func (s *Surface) resetControlFlags() {
	s.abort.Store(false)
	s.suspend.Store(false)
}

// ResetControlFlags is the exported form for package replay.
func (s *Surface) ResetControlFlags() { s.resetControlFlags() }

// SetErr records the last configuration/runtime error. Content after a
// successful call is undefined, matching spec.md section 6.
func (s *Surface) SetErr(err *Error) { s.lastErr.Store(err) }

// GetErr renders the last recorded error to text, or "" if none.
func (s *Surface) GetErr() string {
	if e := s.lastErr.Load(); e != nil {
		return e.Error()
	}
	return ""
}

// LastErr returns the last recorded structured error, or nil.
func (s *Surface) LastErr() *Error { return s.lastErr.Load() }

// SetWarn records the last configuration warning.
func (s *Surface) SetWarn(w *Warning) { s.lastWarn.Store(w) }

// GetWarn renders the last recorded warning to text, or "" if none.
func (s *Surface) GetWarn() string {
	if w := s.lastWarn.Load(); w != nil {
		return w.String()
	}
	return ""
}
