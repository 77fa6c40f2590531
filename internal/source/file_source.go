package source

import (
	"fmt"
	"io"

	"github.com/greplay/greplay/internal/cache"
	"github.com/greplay/greplay/internal/capture"
)

// fileSource reads a capture file on disk, optionally feeding a
// cache.Store while doing so on the first pass (spec.md section 4.5,
// "filename" variant).
type fileSource struct {
	r     *capture.Reader
	store *cache.Store
	// filling is true only while this fileSource is the one pass
	// responsible for populating store; a second concurrent open of
	// the same descriptor (there is only ever one in this engine,
	// since sources are read sequentially) must not double-fill.
	filling bool
}

func newFileSource(path string, store *cache.Store) (*fileSource, error) {
	r, err := capture.Open(path)
	if err != nil {
		return nil, err
	}

	fs := &fileSource{r: r, store: store}
	if store != nil {
		// The caller (replay.Context) must already have called
		// store.BeginFill before opening a fileSource against a
		// fresh store; we only need to know whether a fill is still
		// in progress so Next knows whether to append to it.
		fs.filling = store.State() == cache.StateFilling
	}
	return fs, nil
}

func (f *fileSource) Next() (Record, error) {
	rec, err := f.r.Next()
	if err != nil {
		if err == io.EOF { //nolint:errorlint // capture.Reader returns io.EOF verbatim, never wrapped
			if f.filling {
				f.store.CommitFill()
			}
			return Record{}, io.EOF
		}
		if f.filling {
			f.store.Abandon()
		}
		return Record{}, fmt.Errorf("file source: %w", err)
	}

	out := Record{
		CaptureTimeUS:  rec.CaptureTimeUS,
		CapturedLength: rec.CapturedLength,
		OriginalLength: rec.OriginalLength,
		Bytes:          rec.Bytes,
	}
	if f.filling {
		f.store.Append(out.CaptureTimeUS, out.CapturedLength, out.OriginalLength, out.Bytes)
	}
	return out, nil
}

func (f *fileSource) Close() error { return f.r.Close() }
