package netio

import "github.com/google/gopacket"

// Sender is the uniform output contract component C3 (package
// dispatch) and component C6 (package replay) drive: write one raw
// link-layer frame, report the interface's link type for dual-
// interface DLT-mismatch validation, unblock an in-progress send on
// request, and close cleanly.
type Sender interface {
	// Send transmits buf verbatim as a single link-layer frame.
	Send(buf []byte) error
	// GetLinkType returns the ARPHRD/DLT the sender was opened
	// against.
	GetLinkType() gopacket.LinkType
	// Abort unblocks a Send call currently parked in a blocking send
	// syscall (spec.md section 6 "abort(handle)"), causing it to
	// return an error instead of waiting indefinitely. Safe to call
	// whether or not a send is in progress, and safe to call more than
	// once. Does not close the sender; Close still releases it.
	Abort() error
	// Close releases the underlying socket.
	Close() error
}
