//go:build unix

package timing

import (
	"golang.org/x/sys/unix"
)

// selectSleep waits on an empty descriptor set with a timeout,
// realizing the select-sleep strategy of spec.md section 4.1.
func selectSleep(deltaUS int64) {
	if deltaUS <= 0 {
		return
	}
	tv := unix.NsecToTimeval(deltaUS * 1000)
	_, _ = unix.Select(0, nil, nil, nil, &tv)
}
