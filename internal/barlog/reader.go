package barlog

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"time"

	"github.com/titisda/trading-algorithum/internal/schema"
)

// ReaderOptions controls record decoding.
type ReaderOptions struct {
	DisableChecksum bool
}

// Reader decodes bar-log records sequentially. It satisfies the feed's
// record producer contract: Next returns io.EOF at a clean end of log.
type Reader struct {
	r         *bufio.Reader
	closer    io.Closer
	opts      ReaderOptions
	headerBuf []byte
	payload   []byte
}

// NewReader wraps an io.Reader with bar-log decoding. When r also
// implements io.Closer, Close closes it.
func NewReader(r io.Reader, opts ReaderOptions) *Reader {
	br := &Reader{
		r:         bufio.NewReader(r),
		opts:      opts,
		headerBuf: make([]byte, recordHeaderSize),
	}
	if c, ok := r.(io.Closer); ok {
		br.closer = c
	}
	return br
}

// Next returns the next record in the log.
func (r *Reader) Next() (schema.Record, error) {
	n, err := io.ReadFull(r.r, r.headerBuf)
	if err != nil {
		if err == io.EOF && n == 0 {
			return schema.Record{}, io.EOF
		}
		return schema.Record{}, err
	}

	rec, payloadLen, err := decodeRecordHeader(r.headerBuf)
	if err != nil {
		return schema.Record{}, err
	}
	if int(payloadLen) != payloadSize(rec.Kind) {
		return schema.Record{}, ErrInvalidPayloadSize
	}

	if cap(r.payload) < int(payloadLen) {
		r.payload = make([]byte, payloadLen)
	}
	r.payload = r.payload[:payloadLen]
	if _, err := io.ReadFull(r.r, r.payload); err != nil {
		return schema.Record{}, err
	}

	var sumBuf [recordChecksumSize]byte
	if _, err := io.ReadFull(r.r, sumBuf[:]); err != nil {
		return schema.Record{}, err
	}
	if !r.opts.DisableChecksum {
		expected := binary.LittleEndian.Uint32(sumBuf[:])
		if sum := checksum(r.headerBuf, r.payload); sum != expected {
			return schema.Record{}, ErrChecksumMismatch
		}
	}

	if err := decodePayload(&rec, r.payload); err != nil {
		return schema.Record{}, err
	}
	return rec, nil
}

// Close closes the underlying reader when it is closable.
func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// FileSource replays one bar-log file for one security, applying the
// producer-side any-overlap window test before handing records to the
// pipeline. The downstream window filter re-clips exactly.
type FileSource struct {
	reader     *Reader
	securityID schema.SecurityID
	start      time.Time
	end        time.Time
}

// Open opens a bar-log file as a lazy record source over the loose
// window [start, end] in exchange-local time.
func Open(path string, securityID schema.SecurityID, start, end time.Time, opts ReaderOptions) (*FileSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &FileSource{
		reader:     NewReader(file, opts),
		securityID: securityID,
		start:      start,
		end:        end,
	}, nil
}

// Next implements the record source contract.
func (s *FileSource) Next() (schema.Record, error) {
	for {
		rec, err := s.reader.Next()
		if err != nil {
			return schema.Record{}, err
		}
		if s.securityID != 0 && rec.SecurityID != s.securityID {
			continue
		}
		// Any-overlap test: intentionally looser than the caller's
		// window so lookahead consumers can see spill-over records.
		if !rec.End.After(s.start) || rec.Start.After(s.end) {
			continue
		}
		return rec, nil
	}
}

// Close implements the record source contract.
func (s *FileSource) Close() error {
	return s.reader.Close()
}
