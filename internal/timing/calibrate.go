package timing

import "sync"

// calibration models the "cycles-per-microsecond" measurement spec.md
// section 4.1 requires for rdtsc-spin before first use, and the
// per-iteration delay ioport-sleep calibrates against port 0x80 reads.
//
// A genuine cycle-counter read requires architecture-specific assembly
// that this portable build does not ship (see DESIGN.md); both
// strategies instead calibrate a busy-wait loop against the same
// monotonic clock used elsewhere in this package, preserving the
// documented contract (wake no later than target, spin rather than
// sleep) without depending on privileged, architecture-specific code.
type calibration struct {
	once         sync.Once
	loopsPerUS   int64
}

var calib calibration

// ensureCalibrated measures how many tight-loop iterations fit in one
// microsecond of wall time, once per process.
func (c *calibration) ensureCalibrated() {
	c.once.Do(func() {
		const sampleUS = int64(2000)
		start := Now()
		var iterations int64
		for Now()-start < sampleUS {
			iterations++
		}
		if iterations < sampleUS {
			iterations = sampleUS
		}
		c.loopsPerUS = iterations / sampleUS
		if c.loopsPerUS < 1 {
			c.loopsPerUS = 1
		}
	})
}

// rdtscSpinWait spins using the calibrated loop rate until target.
func rdtscSpinWait(target int64) {
	calib.ensureCalibrated()
	for Now() < target {
		for range calib.loopsPerUS {
			// calibrated busy-wait tick
		}
	}
}

// ioportSleep performs a calibrated busy-wait for approximately
// deltaUS microseconds, standing in for repeated reads of x86 I/O port
// 0x80 (Design Note: no privileged port access in this portable build).
func ioportSleep(deltaUS int64) {
	if deltaUS <= 0 {
		return
	}
	calib.ensureCalibrated()
	target := Now() + deltaUS
	for Now() < target {
		for range calib.loopsPerUS {
		}
	}
}
