// Package dispatch implements the dual-interface dispatcher of spec.md
// section 4.3 (component C3): route each record to interface A or B by
// classification bitmap bit, enforce the configured MTU ceiling, and
// hand the frame to the chosen netio.Sender.
package dispatch

import (
	"fmt"

	"github.com/google/gopacket"

	"github.com/greplay/greplay/internal/classify"
	"github.com/greplay/greplay/internal/control"
	"github.com/greplay/greplay/internal/netio"
	"github.com/greplay/greplay/internal/source"
)

// Outcome reports what Dispatch did with a record, so callers can
// update control.Stats without Dispatch taking a *control.Surface
// dependency of its own.
type Outcome uint8

const (
	// OutcomeSent means the record was handed to a Sender
	// successfully.
	OutcomeSent Outcome = iota
	// OutcomeSkipped means no bitmap bit was available for this
	// record's index (classification bitmap exhausted), or the bit
	// routed the record to B while no B sender is configured.
	OutcomeSkipped
	// OutcomeFailed means the record exceeded the configured MTU, or
	// the chosen Sender returned an error.
	OutcomeFailed
)

// Dispatcher routes records between up to two interfaces. B may be
// nil for single-interface configurations; a record whose bitmap bit
// selects B is then skipped (OutcomeSkipped) rather than sent to A.
type Dispatcher struct {
	A, B netio.Sender
	// MTU is the maximum effective length a record may have before
	// Dispatch reports OutcomeFailed without calling into a Sender.
	// Zero disables the check.
	MTU int
	// Bitmap, if non-nil, selects A (bit 0) or B (bit 1) per record
	// index; with no Bitmap every record goes to A.
	Bitmap *classify.Bitmap
	// UsePktHdrLen selects which of a record's two length fields the
	// MTU check is measured against (spec.md section 3).
	UsePktHdrLen bool
}

// Dispatch sends rec out the interface selected by the dispatcher's
// bitmap cursor, enforcing the MTU ceiling. The bitmap cursor is
// consumed first and unconditionally, since it advances with every
// packet consumed from the source regardless of outcome (spec.md
// section 3): an oversized packet must not leave the cursor behind,
// or every later packet's routing shifts by one bit. A non-nil error
// is returned only for an unrecoverable condition that should abort
// the containing replay; within-budget per-packet failures are
// reported through Outcome instead, matching spec.md's "non-aborting"
// framing for KindSend failures.
func (d *Dispatcher) Dispatch(rec source.Record) (Outcome, error) {
	sender := d.A
	skipped := false
	if d.Bitmap != nil {
		bit, ok := d.Bitmap.Next()
		switch {
		case !ok:
			skipped = true
		case bit == 1:
			sender = d.B
			if sender == nil {
				skipped = true
			}
		}
	}

	if d.MTU > 0 && int(rec.EffectiveLength(d.UsePktHdrLen)) > d.MTU {
		return OutcomeFailed, nil
	}
	if skipped {
		return OutcomeSkipped, nil
	}

	if sender == nil {
		return OutcomeFailed, control.NewError(control.KindSend, "no sender configured for this record", nil)
	}

	if err := sender.Send(rec.Bytes); err != nil {
		return OutcomeFailed, nil //nolint:nilerr // per-packet send failures are non-aborting (spec.md section 7 KindSend)
	}
	return OutcomeSent, nil
}

// ValidateDLT enforces spec.md section 7's dual-interface DLT
// mismatch rule: when both A and B are configured, their link types
// must agree, and both must match the capture file's link type.
func ValidateDLT(a, b netio.Sender, fileLinkType gopacket.LinkType) error {
	if a == nil {
		return nil
	}
	aType := a.GetLinkType()
	if aType != fileLinkType {
		return fmt.Errorf("interface A link type %s does not match capture file link type %s: %w",
			aType, fileLinkType, control.ErrDLTMismatch)
	}
	if b == nil {
		return nil
	}
	bType := b.GetLinkType()
	if bType != aType {
		return fmt.Errorf("interface A link type %s does not match interface B link type %s: %w",
			aType, bType, control.ErrDLTMismatch)
	}
	return nil
}
