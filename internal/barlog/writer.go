package barlog

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/titisda/trading-algorithum/internal/schema"
)

// Writer encodes records sequentially into a bar log.
type Writer struct {
	w         *bufio.Writer
	closer    io.Closer
	headerBuf []byte
	payload   []byte
}

// NewWriter wraps an io.Writer with bar-log encoding. When w also
// implements io.Closer, Close closes it.
func NewWriter(w io.Writer) *Writer {
	bw := &Writer{
		w:         bufio.NewWriter(w),
		headerBuf: make([]byte, recordHeaderSize),
	}
	if c, ok := w.(io.Closer); ok {
		bw.closer = c
	}
	return bw
}

// Write appends one record to the log.
func (w *Writer) Write(r schema.Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	w.payload = encodePayload(w.payload[:0], r)
	encodeHeader(w.headerBuf, r, len(w.payload))

	if _, err := w.w.Write(w.headerBuf); err != nil {
		return err
	}
	if _, err := w.w.Write(w.payload); err != nil {
		return err
	}
	var sum [recordChecksumSize]byte
	binary.LittleEndian.PutUint32(sum[:], checksum(w.headerBuf, w.payload))
	if _, err := w.w.Write(sum[:]); err != nil {
		return err
	}
	return nil
}

// Flush forces buffered records to the underlying writer.
func (w *Writer) Flush() error {
	return w.w.Flush()
}

// Close flushes and closes the underlying writer when it is closable.
func (w *Writer) Close() error {
	if err := w.w.Flush(); err != nil {
		return err
	}
	if w.closer != nil {
		return w.closer.Close()
	}
	return nil
}
