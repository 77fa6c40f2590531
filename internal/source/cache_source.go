package source

import (
	"io"

	"github.com/greplay/greplay/internal/cache"
)

// cacheSource serves records from an already-filled cache.Store
// instead of re-reading the underlying file, spec.md section 4.4.
type cacheSource struct {
	store *cache.Store
	idx   int
}

func newCacheSource(store *cache.Store) *cacheSource {
	return &cacheSource{store: store}
}

func (c *cacheSource) Next() (Record, error) {
	if c.idx >= c.store.Len() {
		return Record{}, io.EOF
	}
	e := c.store.At(c.idx)
	c.idx++
	return Record{
		CaptureTimeUS:  e.CaptureTimeUS,
		CapturedLength: e.CapturedLength,
		OriginalLength: e.OriginalLength,
		Bytes:          e.Bytes,
	}, nil
}

func (c *cacheSource) Close() error { return nil }
