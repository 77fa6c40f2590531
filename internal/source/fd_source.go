package source

import (
	"fmt"
	"io"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcapgo"
)

// fdSource reads packets from a caller-supplied io.Reader, spec.md
// section 4.5's "fd" variant. It is never rewindable: loop values
// other than 1 against an fd source are rejected at configuration
// time (control.ErrFDSourceMultiLoop).
type fdSource struct {
	src interface {
		ReadPacketData() (data []byte, ci gopacket.CaptureInfo, err error)
	}
}

func newFDSource(r io.Reader) *fdSource {
	return &fdSource{src: &lazyPcapReader{r: r}}
}

func (f *fdSource) Next() (Record, error) {
	data, ci, err := f.src.ReadPacketData()
	if err != nil {
		if err == io.EOF { //nolint:errorlint // pcapgo returns io.EOF verbatim
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("fd source: %w", err)
	}
	return Record{
		CaptureTimeUS:  ci.Timestamp.UnixMicro(),
		CapturedLength: uint32(ci.CaptureLength), //nolint:gosec // G115
		OriginalLength: uint32(ci.Length),         //nolint:gosec // G115
		Bytes:          data,
	}, nil
}

func (f *fdSource) Close() error { return nil }

// lazyPcapReader defers constructing the pcapgo.Reader until the
// first call to ReadPacketData, since building it requires reading
// the file header off r and an fd source's r may not be ready for
// that until the replay loop actually starts pulling records.
type lazyPcapReader struct {
	r      io.Reader
	inner  *pcapgo.Reader
	initOK bool
	initEr error
}

func (l *lazyPcapReader) ReadPacketData() (data []byte, ci gopacket.CaptureInfo, err error) {
	if !l.initOK && l.initEr == nil {
		l.inner, l.initEr = pcapgo.NewReader(l.r)
		l.initOK = l.initEr == nil
	}
	if l.initEr != nil {
		return nil, gopacket.CaptureInfo{}, fmt.Errorf("init fd source reader: %w", l.initEr)
	}
	return l.inner.ReadPacketData()
}
