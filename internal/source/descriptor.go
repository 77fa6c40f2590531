package source

import (
	"fmt"
	"io"

	"github.com/greplay/greplay/internal/cache"
)

// Kind discriminates the three source variants of spec.md section 4.5.
type Kind uint8

const (
	// KindFilename opens a capture file on disk each loop, unless
	// superseded by a filled package cache store.
	KindFilename Kind = iota + 1
	// KindFD consumes from a caller-supplied io.Reader. Not rewindable,
	// so incompatible with loop != 1.
	KindFD
)

// Descriptor names one configured packet source. Classification
// bitmap binding (spec.md section 3: at most one source may carry a
// bitmap) is tracked by the caller alongside a slice of Descriptor,
// not inside it, since a *classify.Bitmap would otherwise pull
// package classify into this package for no behavioral reason.
type Descriptor struct {
	Kind Kind

	// Path is the capture file path for KindFilename.
	Path string
	// FD is the caller-supplied reader for KindFD.
	FD io.Reader
}

// Open returns an Iterator for desc. When store is non-nil and already
// filled, the cached list is served instead of reopening the file
// (package cache's filling/filled state machine, spec.md section 4.4).
func Open(desc Descriptor, store *cache.Store) (Iterator, error) {
	if store != nil && store.State() == cache.StateFilled {
		return newCacheSource(store), nil
	}

	switch desc.Kind {
	case KindFilename:
		return newFileSource(desc.Path, store)
	case KindFD:
		return newFDSource(desc.FD), nil
	default:
		return nil, fmt.Errorf("open source: unknown kind %d", desc.Kind)
	}
}
