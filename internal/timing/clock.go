package timing

import "time"

// epoch anchors Now's monotonic microsecond values; only deltas between
// calls are meaningful, matching the documented contract of the
// monotonic reading embedded in time.Time.
var epoch = time.Now()

// Now returns a monotonic microsecond timestamp. Only differences
// between two Now() calls are meaningful.
func Now() int64 {
	return time.Since(epoch).Microseconds()
}

// WaitUntil blocks until the monotonic clock is at least target
// microseconds (as measured by Now), using the given strategy. accelUS
// is a non-negative microsecond fudge factor subtracted from the
// planned sleep only -- never from target itself -- so that waking up
// early to compensate for scheduler tail latency does not shift the
// absolute deadline subsequent packets anchor on (spec.md section 4.1,
// GLOSSARY "Sleep accelerator").
//
// WaitUntil is a no-op when target <= Now().
func WaitUntil(target int64, strategy Strategy, accelUS int64) {
	now := Now()
	if target <= now {
		return
	}
	if accelUS < 0 {
		accelUS = 0
	}

	plannedTarget := target - accelUS
	if plannedTarget <= now {
		return
	}

	switch strategy {
	case GettimeofdaySpin:
		spinWait(plannedTarget)
	case SelectSleep:
		selectSleep(plannedTarget - now)
	case RdtscSpin:
		rdtscSpinWait(plannedTarget)
	case IoportSleep:
		ioportSleep(plannedTarget - now)
	case Nanosleep, AbsoluteTime:
		fallthrough
	default:
		nanosleepWait(plannedTarget)
	}
}

// nanosleepWait sleeps a computed delta via time.Sleep, which is
// nanosleep-backed on all Unix targets and the platform-native
// absolute-deadline primitive elsewhere in the Go runtime.
func nanosleepWait(target int64) {
	for {
		now := Now()
		if now >= target {
			return
		}
		time.Sleep(time.Duration(target-now) * time.Microsecond)
	}
}

// spinWait tight-loops rereading the clock until target, for the
// lowest-latency, highest-CPU-cost strategy.
func spinWait(target int64) {
	for Now() < target {
		// busy-wait
	}
}
