//go:build !unix

package timing

import "time"

// selectSleep falls back to a plain timer sleep on platforms without a
// descriptor-set select primitive.
func selectSleep(deltaUS int64) {
	if deltaUS <= 0 {
		return
	}
	time.Sleep(time.Duration(deltaUS) * time.Microsecond)
}
