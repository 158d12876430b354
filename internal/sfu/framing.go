package sfu

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// maxFrameSize is the §4.1 protocol limit: a length-prefixed blob
// larger than this is a protocol error and kills the offending worker.
const maxFrameSize = 1024 * 1024

// frameWriter serializes blobs onto a stream as little-endian u32
// length + payload (§4.1 Framing, §6.1).
type frameWriter struct {
	w io.Writer
}

func newFrameWriter(w io.Writer) *frameWriter {
	return &frameWriter{w: w}
}

func (f *frameWriter) WriteFrame(payload []byte) error {
	if len(payload) > maxFrameSize {
		return NewErrorf(ErrWorkerComm, "outbound frame too large: %d bytes", len(payload))
	}
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := f.w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := f.w.Write(payload)
	return err
}

// frameReader deframes a stream of little-endian u32 length + payload
// blobs. Oversized frames are reported as a *Error with ErrWorkerComm
// so the caller can kill the worker per §4.1 failure semantics.
type frameReader struct {
	r *bufio.Reader
}

func newFrameReader(r io.Reader) *frameReader {
	return &frameReader{r: bufio.NewReaderSize(r, 64*1024)}
}

func (f *frameReader) ReadFrame() ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(f.r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n > maxFrameSize {
		return nil, NewErrorf(ErrWorkerComm, "inbound frame too large: %d bytes", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(f.r, buf); err != nil {
		return nil, fmt.Errorf("reading frame body: %w", err)
	}
	return buf, nil
}
