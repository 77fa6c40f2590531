package classify_test

import (
	"bytes"
	"testing"

	"github.com/greplay/greplay/internal/classify"
)

func TestBitmapNextConsumesLSBFirst(t *testing.T) {
	t.Parallel()

	// 0b00000101 -> bits 1,0,1,0,0,0,0,0 read LSB-first.
	bm := classify.New([]byte{0b0000_0101}, 3, "")

	want := []byte{1, 0, 1}
	for i, w := range want {
		bit, ok := bm.Next()
		if !ok {
			t.Fatalf("Next() #%d: ok=false, want true", i)
		}
		if bit != w {
			t.Errorf("Next() #%d = %d, want %d", i, bit, w)
		}
	}

	if _, ok := bm.Next(); ok {
		t.Error("Next() after NumPackets exhausted: ok=true, want false")
	}
}

func TestBitmapResetRewindsCursor(t *testing.T) {
	t.Parallel()

	bm := classify.New([]byte{0b0000_0011}, 2, "")

	first, _ := bm.Next()
	bm.Reset()
	second, _ := bm.Next()

	if first != second {
		t.Errorf("after Reset: Next() = %d, want %d (same as before reset)", second, first)
	}
}

func TestBitmapSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	orig := classify.New([]byte{0b1010_1010, 0b0000_0001}, 9, "generated by a test")

	var buf bytes.Buffer
	if err := orig.Save(&buf); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	loaded, err := classify.Load(&buf)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if loaded.NumPackets != orig.NumPackets {
		t.Errorf("NumPackets = %d, want %d", loaded.NumPackets, orig.NumPackets)
	}
	if loaded.Comment != orig.Comment {
		t.Errorf("Comment = %q, want %q", loaded.Comment, orig.Comment)
	}
	if !bytes.Equal(loaded.Bits, orig.Bits) {
		t.Errorf("Bits = %v, want %v", loaded.Bits, orig.Bits)
	}
}

func TestLoadRejectsBadMagic(t *testing.T) {
	t.Parallel()

	garbage := bytes.NewReader([]byte{0x00, 0x01, 0x02, 0x03, 0, 0, 0, 0, 0, 0, 0, 0})
	if _, err := classify.Load(garbage); err == nil {
		t.Error("Load() with bad magic: err = nil, want error")
	}
}

func TestLoadTruncatedHeader(t *testing.T) {
	t.Parallel()

	if _, err := classify.Load(bytes.NewReader([]byte{0x01, 0x02})); err == nil {
		t.Error("Load() with truncated header: err = nil, want error")
	}
}
