// Package capture implements the capture-file reader external
// collaborator of spec.md section 6: it yields (timestamp, length,
// bytes) records from a pcap or pcapng file in file order, reporting
// EOF and I/O errors distinctly, and is re-openable per loop.
//
// Grounded in github.com/google/gopacket/pcapgo, the same library the
// rest of the example pack uses for offline pcap parsing.
package capture

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcapgo"
)

// ReadError wraps an I/O failure encountered mid-read, distinguishing
// it from plain io.EOF per spec.md section 7 (KindIO).
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read capture file %s: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// packetSource abstracts gopacket's classic-pcap and pcapng readers
// behind the one method this package needs.
type packetSource interface {
	ReadPacketData() (data []byte, ci gopacket.CaptureInfo, err error)
	LinkType() gopacket.LinkType
}

// Reader reads packet records from a single capture file, reopening
// the underlying file handle each time Open is called so that
// loop > 1 filename sources can be re-read from the start (spec.md
// section 4.5).
type Reader struct {
	path string
	f    *os.File
	src  packetSource
}

// Open opens path and sniffs whether it is classic pcap or pcapng.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture file %s: %w", path, err)
	}

	buf := bufio.NewReader(f)
	src, err := newPacketSource(buf)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("detect capture file format %s: %w", path, err)
	}

	return &Reader{path: path, f: f, src: src}, nil
}

// newPacketSource detects and constructs either a classic pcap or a
// pcapng reader over r.
func newPacketSource(r *bufio.Reader) (packetSource, error) {
	peek, err := r.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("peek magic: %w", err)
	}

	if isPcapNgMagic(peek) {
		ngr, err := pcapgo.NewNgReader(r, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return nil, err
		}
		return ngr, nil
	}

	cr, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, err
	}
	return cr, nil
}

// isPcapNgMagic reports whether the leading bytes match the pcapng
// section-header block type (0x0A0D0D0A), in either byte order.
func isPcapNgMagic(b []byte) bool {
	if len(b) < 4 {
		return false
	}
	return (b[0] == 0x0A && b[1] == 0x0D && b[2] == 0x0D && b[3] == 0x0A)
}

// LinkType returns the capture file's link-layer type.
func (r *Reader) LinkType() gopacket.LinkType { return r.src.LinkType() }

// Next returns the next (timestamp, lengths, bytes) record in file
// order, io.EOF at end of file, or a *ReadError on I/O failure.
func (r *Reader) Next() (Record, error) {
	data, ci, err := r.src.ReadPacketData()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, &ReadError{Path: r.path, Err: err}
	}

	return Record{
		CaptureTimeUS:  ci.Timestamp.UnixMicro(),
		CapturedLength: uint32(ci.CaptureLength), //nolint:gosec // G115: capture lengths fit uint32 in practice
		OriginalLength: uint32(ci.Length),         //nolint:gosec // G115: original lengths fit uint32 in practice
		Bytes:          data,
	}, nil
}

// Close releases the underlying file handle.
func (r *Reader) Close() error {
	if err := r.f.Close(); err != nil {
		return fmt.Errorf("close capture file %s: %w", r.path, err)
	}
	return nil
}

// Record mirrors source.Record without importing package source, to
// keep capture free of a dependency on the replay engine's packages;
// package source converts between the two at the file-source
// boundary.
type Record struct {
	CaptureTimeUS  int64
	CapturedLength uint32
	OriginalLength uint32
	Bytes          []byte
}
