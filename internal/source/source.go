// Package source supplies complex baseband samples to the pipeline.
// SDR hardware capture is an out-of-scope collaborator (spec.md section
// 1); the one sample source this package implements is the in-scope
// "--file <path>" Complex32 replay reader (spec.md section 6), which
// reads the same interleaved little-endian float32 I/Q stream a live
// capture would produce.
package source

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"

	"github.com/cwsl/adsb-pipeline/internal/adsb"
)

// BatchSamples is the number of samples read per Next call.
const BatchSamples = 4096

// bytesPerSample is 2 float32s (I, Q) at 4 bytes each.
const bytesPerSample = 8

// Reader streams adsb.Sample batches from an underlying Complex32 byte
// stream (a replay file, or any other io.Reader producing the same
// interleaved-float32 format).
type Reader struct {
	r   *bufio.Reader
	buf []byte
}

// NewReader wraps r, buffering reads in BatchSamples-sized chunks.
func NewReader(r io.Reader) *Reader {
	return &Reader{
		r:   bufio.NewReaderSize(r, BatchSamples*bytesPerSample*4),
		buf: make([]byte, BatchSamples*bytesPerSample),
	}
}

// Next reads up to BatchSamples samples. It returns a full batch with a nil
// error when more data remains, and returns io.EOF alongside any trailing
// samples once the underlying stream is exhausted. A trailing partial
// sample (fewer than 8 bytes left in the stream) is discarded.
func (s *Reader) Next() ([]adsb.Sample, error) {
	n, err := io.ReadFull(s.r, s.buf)
	atEOF := err == io.ErrUnexpectedEOF || err == io.EOF
	if atEOF {
		err = io.EOF // a short read here always means the stream is exhausted
	}
	usable := n - (n % bytesPerSample)
	if usable == 0 {
		return nil, err
	}

	out := make([]adsb.Sample, usable/bytesPerSample)
	for i := range out {
		off := i * bytesPerSample
		iv := math.Float32frombits(binary.LittleEndian.Uint32(s.buf[off : off+4]))
		qv := math.Float32frombits(binary.LittleEndian.Uint32(s.buf[off+4 : off+8]))
		out[i] = adsb.Sample{I: iv, Q: qv}
	}
	return out, err
}
