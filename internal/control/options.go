package control

import (
	"fmt"
	"io"

	"github.com/greplay/greplay/internal/rate"
	"github.com/greplay/greplay/internal/timing"
)

// MaxSources is the documented bound on the number of packet sources
// in one option set (spec.md section 3, "MAX_FILES"). Replaces the
// teacher-adjacent fixed-array pattern with an append-only slice
// validated against this constant at add time.
const MaxSources = 256

// SourceKind mirrors source.Kind without importing package source,
// keeping package control free of a dependency on the source
// iterators; replay.Context converts between the two.
type SourceKind uint8

const (
	// SourceFilename names a capture file reopened on disk each loop.
	SourceFilename SourceKind = iota + 1
	// SourceFD consumes a caller-supplied io.Reader; not rewindable.
	SourceFD
)

// SourceSpec is one configured packet source plus its optional
// classification bitmap binding.
type SourceSpec struct {
	Kind SourceKind
	Path string
	FD   io.Reader

	// HasBitmap is true when this source carries the option set's
	// single classification bitmap (spec.md section 3: a bitmap may
	// only be bound to exactly one source).
	HasBitmap bool
}

// Options is the immutable-after-start container of spec.md section
// 3's "Option set", built via functional options in the manner of the
// teacher's SessionOption/SenderOption pattern.
type Options struct {
	Loop             int
	Speed            rate.Mode
	Strategy         timing.Strategy
	MTU              int
	LimitSend        int64
	EnableFileCache  bool
	UsePktHdrLen     bool
	AccelUS          int64
	IfaceA           string
	IfaceB           string
	Sources          []SourceSpec
	BitmapBound      bool
}

// Option configures an Options value, following the teacher's
// functional-option idiom (SessionOption/SenderOption).
type Option func(*Options) error

// New builds an Options from opts, applying each in order and
// returning the first validation error encountered.
func New(opts ...Option) (*Options, error) {
	o := &Options{
		Loop:      1,
		Speed:     rate.NewTopSpeed(),
		Strategy:  timing.Nanosleep,
		LimitSend: -1,
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// WithLoop sets the loop count; 0 means infinite.
func WithLoop(n int) Option {
	return func(o *Options) error {
		o.Loop = n
		return nil
	}
}

// WithSpeed sets the active speed mode.
func WithSpeed(m rate.Mode) Option {
	return func(o *Options) error {
		o.Speed = m
		return nil
	}
}

// WithStrategy sets the timing-accuracy strategy, validated against
// the current platform immediately.
func WithStrategy(s timing.Strategy) Option {
	return func(o *Options) error {
		if err := s.Validate(); err != nil {
			return NewError(KindPlatformUnavailable, fmt.Sprintf("timing strategy %s", s), err)
		}
		o.Strategy = s
		return nil
	}
}

// WithMTU sets the MTU ceiling; must be > 0.
func WithMTU(mtu int) Option {
	return func(o *Options) error {
		if mtu <= 0 {
			return NewError(KindConfig, "MTU must be positive", ErrInvalidMTU)
		}
		o.MTU = mtu
		return nil
	}
}

// WithLimitSend sets limit_send; -1 means unlimited.
func WithLimitSend(n int64) Option {
	return func(o *Options) error {
		if n < -1 {
			return NewError(KindConfig, "invalid limit_send", ErrInvalidLimitSend)
		}
		o.LimitSend = n
		return nil
	}
}

// WithFileCache enables the optional in-memory packet cache. Actual
// activation is still gated by Loop != 1 when replay.Context replays
// each source (spec.md section 4.4 / 9 "Unreachable-by-design
// cache path with single-pass").
func WithFileCache() Option {
	return func(o *Options) error {
		o.EnableFileCache = true
		return nil
	}
}

// WithUsePktHdrLen selects original_length over captured_length for
// rate computation and MTU enforcement.
func WithUsePktHdrLen() Option {
	return func(o *Options) error {
		o.UsePktHdrLen = true
		return nil
	}
}

// WithAccel sets the sleep-accelerator fudge factor in microseconds.
func WithAccel(us int64) Option {
	return func(o *Options) error {
		o.AccelUS = us
		return nil
	}
}

// WithInterfaces sets interface A (required) and interface B
// (optional; pass "" to omit).
func WithInterfaces(a, b string) Option {
	return func(o *Options) error {
		o.IfaceA = a
		o.IfaceB = b
		return nil
	}
}

// WithFilenameSource appends a filename source, optionally carrying
// the option set's classification bitmap.
func WithFilenameSource(path string, bitmap bool) Option {
	return func(o *Options) error {
		return o.addSource(SourceSpec{Kind: SourceFilename, Path: path, HasBitmap: bitmap})
	}
}

// WithFDSource appends an fd source. Rejected when Loop != 1
// (spec.md section 4.5: fd sources are not rewindable); Validate
// repeats the check for a loop count set after this option.
func WithFDSource(r io.Reader, bitmap bool) Option {
	return func(o *Options) error {
		if o.Loop != 1 {
			return NewError(KindConfig, "fd source requires loop == 1", ErrFDSourceMultiLoop)
		}
		return o.addSource(SourceSpec{Kind: SourceFD, FD: r, HasBitmap: bitmap})
	}
}

// WithSingleStepCallback installs the oneatatime mode callback onto
// the active speed mode, so it reaches both Validate and the replay
// loop (which reads Speed.Callback) regardless of whether the mode was
// set via WithSpeed(rate.NewOneAtATime(cb)) or via a bare
// WithSpeed(rate.Mode{Kind: rate.OneAtATime}) followed by this option.
func WithSingleStepCallback(cb rate.StepFunc) Option {
	return func(o *Options) error {
		o.Speed.Callback = cb
		return nil
	}
}

func (o *Options) addSource(s SourceSpec) error {
	if len(o.Sources) >= MaxSources {
		return NewError(KindConfig, fmt.Sprintf("source count exceeds MaxSources (%d)", MaxSources), ErrTooManySources)
	}
	if s.HasBitmap {
		if o.BitmapBound {
			return NewError(KindConfig, "classification bitmap already bound to a source", ErrBitmapMultiSource)
		}
		o.BitmapBound = true
	}
	o.Sources = append(o.Sources, s)
	return nil
}

// Validate checks the cross-field invariants of spec.md section 3
// that individual With* options cannot check in isolation (bitmap
// requiring exactly one source, oneatatime requiring a callback, fd
// sources requiring loop == 1).
// Returns (*Warning, error): a non-nil error fails construction; a
// non-nil warning is advisory and does not.
func (o *Options) Validate() (*Warning, error) {
	if o.BitmapBound && len(o.Sources) != 1 {
		return nil, NewError(KindConfig, "classification bitmap requires exactly one configured source", ErrBitmapWithoutSource)
	}
	if o.Loop != 1 {
		for _, s := range o.Sources {
			if s.Kind == SourceFD {
				return nil, NewError(KindConfig, "fd source requires loop == 1", ErrFDSourceMultiLoop)
			}
		}
	}
	if o.Speed.Kind == rate.OneAtATime && o.Speed.Callback == nil {
		return nil, NewError(KindConfig, "oneatatime mode requires a callback before replay", ErrMissingCallback)
	}

	var warn *Warning
	if o.EnableFileCache && o.Loop == 1 {
		warn = NewWarning(WarnCacheUnreachable, "file cache requested but loop == 1; caching is a no-op for a single pass")
	}
	return warn, nil
}
