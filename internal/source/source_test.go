package source_test

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/greplay/greplay/internal/cache"
	"github.com/greplay/greplay/internal/source"
)

func writePcapFile(t *testing.T, payloads [][]byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.pcap")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create temp pcap: %v", err)
	}
	defer func() { _ = f.Close() }()

	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65535, layers.LinkTypeEthernet); err != nil {
		t.Fatalf("WriteFileHeader: %v", err)
	}

	base := time.Unix(1_600_000_000, 0)
	for i, p := range payloads {
		ci := gopacket.CaptureInfo{
			Timestamp:     base.Add(time.Duration(i) * time.Second),
			CaptureLength: len(p),
			Length:        len(p),
		}
		if err := w.WritePacket(ci, p); err != nil {
			t.Fatalf("WritePacket #%d: %v", i, err)
		}
	}

	return path
}

func TestOpenFilenameSourceWithoutCache(t *testing.T) {
	t.Parallel()

	path := writePcapFile(t, [][]byte{bytes.Repeat([]byte{0x01}, 60), bytes.Repeat([]byte{0x02}, 60)})

	it, err := source.Open(source.Descriptor{Kind: source.KindFilename, Path: path}, nil)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer func() { _ = it.Close() }()

	n := 0
	for {
		if _, err := it.Next(); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			t.Fatalf("Next() error: %v", err)
		}
		n++
	}
	if n != 2 {
		t.Errorf("read %d records, want 2", n)
	}
}

func TestOpenFilenameSourceFillsCache(t *testing.T) {
	t.Parallel()

	path := writePcapFile(t, [][]byte{bytes.Repeat([]byte{0x01}, 60), bytes.Repeat([]byte{0x02}, 60)})
	store := cache.NewStore()
	if ok := store.BeginFill(3); !ok {
		t.Fatal("BeginFill(3) = false, want true")
	}

	it, err := source.Open(source.Descriptor{Kind: source.KindFilename, Path: path}, store)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}

	for {
		if _, err := it.Next(); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			t.Fatalf("Next() error: %v", err)
		}
	}
	_ = it.Close()

	if got := store.State(); got != cache.StateFilled {
		t.Fatalf("store.State() = %v, want StateFilled after exhausting the fill pass", got)
	}
	if got := store.Len(); got != 2 {
		t.Errorf("store.Len() = %d, want 2", got)
	}
}

func TestOpenServesFromFilledCacheInsteadOfDisk(t *testing.T) {
	t.Parallel()

	store := cache.NewStore()
	store.BeginFill(3)
	store.Append(1, 4, 4, []byte{9, 9, 9, 9})
	store.CommitFill()

	// A bogus path would fail to open if source.Open actually tried to
	// read the file; it must instead serve straight from the store.
	it, err := source.Open(source.Descriptor{Kind: source.KindFilename, Path: "/nonexistent/path.pcap"}, store)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer func() { _ = it.Close() }()

	rec, err := it.Next()
	if err != nil {
		t.Fatalf("Next() error: %v", err)
	}
	if !bytes.Equal(rec.Bytes, []byte{9, 9, 9, 9}) {
		t.Errorf("Next() bytes = %v, want cached entry", rec.Bytes)
	}

	if _, err := it.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Next() past the single cached entry: err = %v, want io.EOF", err)
	}
}

func TestOpenFDSource(t *testing.T) {
	t.Parallel()

	path := writePcapFile(t, [][]byte{bytes.Repeat([]byte{0x03}, 40)})
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open fixture: %v", err)
	}
	defer func() { _ = f.Close() }()

	it, err := source.Open(source.Descriptor{Kind: source.KindFD, FD: f}, nil)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer func() { _ = it.Close() }()

	rec, err := it.Next()
	if err != nil {
		t.Fatalf("Next() error: %v", err)
	}
	if len(rec.Bytes) != 40 {
		t.Errorf("Next() len(Bytes) = %d, want 40", len(rec.Bytes))
	}

	if _, err := it.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Next() past a single-record fd source: err = %v, want io.EOF", err)
	}
}

func TestOpenUnknownKind(t *testing.T) {
	t.Parallel()

	if _, err := source.Open(source.Descriptor{Kind: source.Kind(99)}, nil); err == nil {
		t.Error("Open() with an unknown kind: err = nil, want error")
	}
}

func TestEffectiveLengthSelectsField(t *testing.T) {
	t.Parallel()

	rec := source.Record{CapturedLength: 60, OriginalLength: 1500}

	if got := rec.EffectiveLength(false); got != 60 {
		t.Errorf("EffectiveLength(false) = %d, want 60", got)
	}
	if got := rec.EffectiveLength(true); got != 1500 {
		t.Errorf("EffectiveLength(true) = %d, want 1500", got)
	}
}
