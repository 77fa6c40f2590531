// Package replay implements the replay loop of spec.md section 4.6
// (component C6): drive one full replay across sources × loops,
// pulling records from package source, consulting package rate for
// each send target, waiting via package timing, dispatching via
// package dispatch, and honoring the control flags of package
// control throughout.
package replay

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/greplay/greplay/internal/cache"
	"github.com/greplay/greplay/internal/classify"
	"github.com/greplay/greplay/internal/control"
	"github.com/greplay/greplay/internal/dispatch"
	"github.com/greplay/greplay/internal/netio"
	"github.com/greplay/greplay/internal/rate"
	"github.com/greplay/greplay/internal/source"
	"github.com/greplay/greplay/internal/timing"
)

// suspendPollQuantum is the fixed sleep between re-polls while
// Surface.IsSuspended() is true (spec.md section 4.6 step 4).
const suspendPollQuantum = 100 * time.Millisecond

// Context owns everything one replay invocation needs: the validated
// option set, up to two sender handles, the dispatcher, the rate
// controller, the optional classification bitmap, and a per-source
// cache store. It mirrors spec.md section 3's "Context" data model
// entry.
type Context struct {
	opts    *control.Options
	surface *control.Surface

	dispatcher *dispatch.Dispatcher
	rateCtl    *rate.Controller
	bitmap     *classify.Bitmap

	caches []*cache.Store

	// anchored is true once (monoStart, capStart) have been captured
	// for this Replay invocation; anchors are taken once per
	// invocation, not per loop (spec.md section 4.6).
	anchored  bool
	monoStart int64
	capStart  int64
}

// NewContext validates opts and constructs a Context ready to Replay.
// senderA is required; senderB may be nil for single-interface
// configurations. bitmap may be nil; if non-nil, opts must have
// exactly one source bound to it (control.Options.Validate enforces
// this).
func NewContext(opts *control.Options, senderA, senderB netio.Sender, bitmap *classify.Bitmap) (*Context, *control.Warning, error) {
	warn, err := opts.Validate()
	if err != nil {
		return nil, nil, err
	}

	if senderA == nil {
		return nil, nil, control.NewError(control.KindConfig, "interface A sender is required", nil)
	}

	caches := make([]*cache.Store, len(opts.Sources))
	for i := range opts.Sources {
		caches[i] = cache.NewStore()
	}

	ctx := &Context{
		opts:    opts,
		surface: control.NewSurface(),
		dispatcher: &dispatch.Dispatcher{
			A:            senderA,
			B:            senderB,
			MTU:          opts.MTU,
			Bitmap:       bitmap,
			UsePktHdrLen: opts.UsePktHdrLen,
		},
		rateCtl: rate.NewController(opts.Speed),
		bitmap:  bitmap,
		caches:  caches,
	}
	return ctx, warn, nil
}

// Surface exposes the control surface for callers that need to read
// stats or drive abort/suspend from another thread of control.
func (c *Context) Surface() *control.Surface { return c.surface }

// Abort requests the replay to end at the next packet boundary and
// propagates into the sender handles (spec.md section 4.6/5) so a
// Send blocked in a syscall on a full interface TX queue is
// unblocked rather than holding up shutdown.
func (c *Context) Abort() {
	c.surface.Abort()
	_ = c.dispatcher.A.Abort()
	if c.dispatcher.B != nil {
		_ = c.dispatcher.B.Abort()
	}
}

// Suspend pauses the replay loop without ending it.
func (c *Context) Suspend() { c.surface.Suspend() }

// Restart resumes a suspended replay loop.
func (c *Context) Restart() { c.surface.Restart() }

// IsSuspended reports whether the replay loop is currently paused.
func (c *Context) IsSuspended() bool { return c.surface.IsSuspended() }

// IsRunning reports whether a Replay call is currently in progress.
func (c *Context) IsRunning() bool { return c.surface.IsRunning() }

// Replay drives one full replay. idx == -1 replays every configured
// source in order; otherwise only source idx. Each pass repeats for
// opts.Loop iterations, or forever when opts.Loop == 0. Replay blocks
// until completion, limit_send is reached, or Abort is observed.
func (c *Context) Replay(idx int) error {
	if idx < -1 || idx >= len(c.opts.Sources) {
		return control.NewError(control.KindConfig, fmt.Sprintf("source index %d out of range", idx), nil)
	}

	c.surface.ResetControlFlags()
	c.surface.SetRunning(true)
	c.surface.Stats.MarkStart(time.Now())
	defer c.surface.SetRunning(false)
	defer func() { c.surface.Stats.MarkEnd(time.Now()) }()

	c.anchored = false

	// limit_send == 0: spec.md section 8 boundary behavior — replay
	// completes immediately with zero sends, regardless of loop count.
	if c.opts.LimitSend == 0 {
		return nil
	}

	indices := []int{idx}
	if idx == -1 {
		indices = make([]int, len(c.opts.Sources))
		for i := range indices {
			indices[i] = i
		}
	}

	for loop := 0; c.opts.Loop == 0 || loop < c.opts.Loop; loop++ {
		if c.bitmap != nil {
			c.bitmap.Reset()
		}

		for _, si := range indices {
			aborted, err := c.replaySource(si)
			if err != nil {
				return err
			}
			if aborted {
				return nil
			}
			if c.limitReached() {
				return nil
			}
		}

		if c.surface.IsAborted() {
			return nil
		}
	}

	return nil
}

// limitReached reports whether limit_send has been hit.
func (c *Context) limitReached() bool {
	if c.opts.LimitSend < 0 {
		return false
	}
	return int64(c.surface.Stats.Snapshot().PktsSent) >= c.opts.LimitSend
}

// replaySource drives one pass over source si. The returned bool is
// true when the whole replay must end: Abort was observed, or the
// single-step callback returned StepStop.
func (c *Context) replaySource(si int) (aborted bool, err error) {
	spec := c.opts.Sources[si]
	desc := toSourceDescriptor(spec)

	var store *cache.Store
	if c.opts.EnableFileCache && c.opts.Loop != 1 {
		store = c.caches[si]
		if store.State() == cache.StateAbsent {
			if ok := store.BeginFill(c.opts.Loop); !ok {
				store = nil
			}
		}
	}

	it, openErr := source.Open(desc, store)
	if openErr != nil {
		return false, control.NewError(control.KindResource, fmt.Sprintf("open source %d", si), openErr)
	}
	defer func() { _ = it.Close() }()

	for {
		if c.surface.IsAborted() {
			c.surface.SetRunning(false)
			return true, nil
		}

		rec, nextErr := it.Next()
		if nextErr != nil {
			if errors.Is(nextErr, io.EOF) {
				return false, nil
			}
			return false, control.NewError(control.KindIO, fmt.Sprintf("read source %d", si), nextErr)
		}

		if !c.anchored {
			c.monoStart = nowUS()
			c.capStart = rec.CaptureTimeUS
			c.rateCtl.Reset(c.monoStart, c.capStart)
			c.anchored = true
		}

		target := c.rateCtl.Target(rec.CaptureTimeUS, int(rec.EffectiveLength(c.opts.UsePktHdrLen)), nowUS())

		if aborted := c.awaitTarget(target); aborted {
			return true, nil
		}

		outcome, dispErr := c.dispatcher.Dispatch(rec)
		if dispErr != nil {
			return false, dispErr
		}
		switch outcome {
		case dispatch.OutcomeSent:
			c.surface.Stats.RecordSent(int(rec.EffectiveLength(c.opts.UsePktHdrLen)))
		case dispatch.OutcomeFailed:
			c.surface.Stats.RecordFailed()
		case dispatch.OutcomeSkipped:
			c.surface.Stats.RecordSkipped()
		}

		if c.opts.Speed.Kind == rate.OneAtATime && c.opts.Speed.Callback != nil {
			if c.opts.Speed.Callback() == rate.StepStop {
				return true, nil
			}
		}

		if c.limitReached() {
			return false, nil
		}
	}
}

// awaitTarget waits via package timing until target, polling the
// control flags at the suspend quantum in the meantime (spec.md
// section 4.6 step 4). Returns true if Abort was observed.
func (c *Context) awaitTarget(target int64) bool {
	for c.surface.IsSuspended() {
		if c.surface.IsAborted() {
			return true
		}
		time.Sleep(suspendPollQuantum)
	}
	if c.surface.IsAborted() {
		return true
	}
	waitUntil(target, c.opts.Strategy, c.opts.AccelUS)
	return c.surface.IsAborted()
}

func nowUS() int64 { return timing.Now() }

func waitUntil(target int64, strategy timing.Strategy, accelUS int64) {
	timing.WaitUntil(target, strategy, accelUS)
}

func toSourceDescriptor(s control.SourceSpec) source.Descriptor {
	switch s.Kind {
	case control.SourceFD:
		return source.Descriptor{Kind: source.KindFD, FD: s.FD}
	default:
		return source.Descriptor{Kind: source.KindFilename, Path: s.Path}
	}
}
