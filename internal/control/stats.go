package control

import (
	"sync/atomic"
	"time"
)

// Stats holds the live, monotonically non-decreasing replay counters
// described in spec.md section 3. Fields are incremented only by the
// replay goroutine; readers call Snapshot for a consistent-ish copy,
// accepting that a read may straddle an update (spec.md section 5).
type Stats struct {
	pktsSent  atomic.Uint64
	bytesSent atomic.Uint64
	failed    atomic.Uint64
	// skipped counts packets dropped by classification-bitmap routing
	// to an unconfigured interface or past the end of the bitmap. Kept distinct from failed per the
	// Open Question in spec.md section 9: a routing miss is not a send
	// failure and must not be silently coerced into one.
	skipped atomic.Uint64

	startTime atomic.Int64 // UnixNano, 0 means unset
	endTime   atomic.Int64 // UnixNano, 0 means unset
}

// StatsSnapshot is a point-in-time copy of Stats, safe to read without
// further synchronization.
type StatsSnapshot struct {
	PktsSent  uint64
	BytesSent uint64
	Failed    uint64
	Skipped   uint64
	StartTime time.Time
	EndTime   time.Time
}

// RecordSent increments the sent-packet counters.
func (s *Stats) RecordSent(length int) {
	s.pktsSent.Add(1)
	s.bytesSent.Add(uint64(length)) //nolint:gosec // G115: length is always non-negative
}

// RecordFailed increments the failed-send counter.
func (s *Stats) RecordFailed() { s.failed.Add(1) }

// RecordSkipped increments the bitmap-drop counter.
func (s *Stats) RecordSkipped() { s.skipped.Add(1) }

// MarkStart records the replay start time, replacing any earlier value.
func (s *Stats) MarkStart(t time.Time) { s.startTime.Store(t.UnixNano()) }

// MarkEnd records the replay end time.
func (s *Stats) MarkEnd(t time.Time) { s.endTime.Store(t.UnixNano()) }

// Snapshot returns a stable copy of the current counters.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		PktsSent:  s.pktsSent.Load(),
		BytesSent: s.bytesSent.Load(),
		Failed:    s.failed.Load(),
		Skipped:   s.skipped.Load(),
		StartTime: unixNanoToTime(s.startTime.Load()),
		EndTime:   unixNanoToTime(s.endTime.Load()),
	}
}

func unixNanoToTime(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
