// Package barlog stores market records in an append-only binary log and
// replays them as a lazy record source. It is the repo's concrete
// replayable producer for backtests.
package barlog

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"time"

	"github.com/titisda/trading-algorithum/internal/schema"
)

const (
	recordVersion      uint16 = 1
	recordHeaderSize          = 40
	recordChecksumSize        = 4

	flagFillForward uint16 = 1 << 0
)

var (
	recordMagic = [4]byte{'B', 'A', 'R', '1'}
	crcTable    = crc32.MakeTable(crc32.Castagnoli)
)

var (
	ErrInvalidMagic            = errors.New("barlog invalid magic")
	ErrUnsupportedRecordVer    = errors.New("barlog unsupported record version")
	ErrInvalidRecordHeaderSize = errors.New("barlog invalid header size")
	ErrInvalidPayloadSize      = errors.New("barlog invalid payload size")
	ErrChecksumMismatch        = errors.New("barlog checksum mismatch")
)

func payloadSize(kind schema.RecordKind) int {
	switch kind {
	case schema.KindTradeBar:
		return 5 * 8
	case schema.KindQuoteBar:
		return 10 * 8
	case schema.KindTick:
		return 4 * 8
	case schema.KindAuxiliary:
		return 3 * 8
	default:
		return 0
	}
}

func encodeHeader(dst []byte, rec schema.Record, payloadLen int) {
	_ = dst[recordHeaderSize-1]
	copy(dst[0:4], recordMagic[:])
	binary.LittleEndian.PutUint16(dst[4:6], recordVersion)
	binary.LittleEndian.PutUint16(dst[6:8], uint16(recordHeaderSize))
	binary.LittleEndian.PutUint16(dst[8:10], uint16(rec.Kind))
	binary.LittleEndian.PutUint16(dst[10:12], uint16(rec.Aux.Kind))
	binary.LittleEndian.PutUint32(dst[12:16], uint32(rec.SecurityID))
	var flags uint16
	if rec.FillForward {
		flags |= flagFillForward
	}
	binary.LittleEndian.PutUint16(dst[16:18], flags)
	binary.LittleEndian.PutUint16(dst[18:20], 0)
	binary.LittleEndian.PutUint64(dst[20:28], uint64(rec.Start.UnixNano()))
	binary.LittleEndian.PutUint64(dst[28:36], uint64(rec.End.UnixNano()))
	binary.LittleEndian.PutUint32(dst[36:40], uint32(payloadLen))
}

func decodeRecordHeader(src []byte) (schema.Record, uint32, error) {
	if len(src) < recordHeaderSize {
		return schema.Record{}, 0, ErrInvalidRecordHeaderSize
	}
	if !bytes.Equal(src[0:4], recordMagic[:]) {
		return schema.Record{}, 0, ErrInvalidMagic
	}
	if ver := binary.LittleEndian.Uint16(src[4:6]); ver != recordVersion {
		return schema.Record{}, 0, ErrUnsupportedRecordVer
	}
	if headerSize := binary.LittleEndian.Uint16(src[6:8]); headerSize != recordHeaderSize {
		return schema.Record{}, 0, ErrInvalidRecordHeaderSize
	}
	rec := schema.Record{
		Kind:       schema.RecordKind(binary.LittleEndian.Uint16(src[8:10])),
		SecurityID: schema.SecurityID(binary.LittleEndian.Uint32(src[12:16])),
		Start:      time.Unix(0, int64(binary.LittleEndian.Uint64(src[20:28]))).UTC(),
		End:        time.Unix(0, int64(binary.LittleEndian.Uint64(src[28:36]))).UTC(),
	}
	rec.Aux.Kind = schema.AuxKind(binary.LittleEndian.Uint16(src[10:12]))
	flags := binary.LittleEndian.Uint16(src[16:18])
	rec.FillForward = flags&flagFillForward != 0
	payloadLen := binary.LittleEndian.Uint32(src[36:40])
	return rec, payloadLen, nil
}

func encodePayload(dst []byte, rec schema.Record) []byte {
	put := func(v int64) {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(v))
		dst = append(dst, b[:]...)
	}
	switch rec.Kind {
	case schema.KindTradeBar:
		put(int64(rec.Trade.Open))
		put(int64(rec.Trade.High))
		put(int64(rec.Trade.Low))
		put(int64(rec.Trade.Close))
		put(int64(rec.Trade.Volume))
	case schema.KindQuoteBar:
		put(int64(rec.Quote.Bid.Open))
		put(int64(rec.Quote.Bid.High))
		put(int64(rec.Quote.Bid.Low))
		put(int64(rec.Quote.Bid.Close))
		put(int64(rec.Quote.BidSize))
		put(int64(rec.Quote.Ask.Open))
		put(int64(rec.Quote.Ask.High))
		put(int64(rec.Quote.Ask.Low))
		put(int64(rec.Quote.Ask.Close))
		put(int64(rec.Quote.AskSize))
	case schema.KindTick:
		put(int64(rec.Tick.Price))
		put(int64(rec.Tick.Size))
		put(int64(rec.Tick.BidPrice))
		put(int64(rec.Tick.AskPrice))
	case schema.KindAuxiliary:
		put(int64(rec.Aux.Distribution))
		put(int64(rec.Aux.Factor))
		put(int64(rec.Aux.ReferencePrice))
	}
	return dst
}

func decodePayload(rec *schema.Record, payload []byte) error {
	want := payloadSize(rec.Kind)
	if len(payload) != want {
		return ErrInvalidPayloadSize
	}
	at := func(i int) int64 {
		return int64(binary.LittleEndian.Uint64(payload[i*8 : i*8+8]))
	}
	switch rec.Kind {
	case schema.KindTradeBar:
		rec.Trade = schema.TradeFields{
			Bar: schema.Bar{
				Open:  schema.Price(at(0)),
				High:  schema.Price(at(1)),
				Low:   schema.Price(at(2)),
				Close: schema.Price(at(3)),
			},
			Volume: schema.Quantity(at(4)),
		}
	case schema.KindQuoteBar:
		rec.Quote = schema.QuoteFields{
			Bid: schema.Bar{
				Open:  schema.Price(at(0)),
				High:  schema.Price(at(1)),
				Low:   schema.Price(at(2)),
				Close: schema.Price(at(3)),
			},
			BidSize: schema.Quantity(at(4)),
			Ask: schema.Bar{
				Open:  schema.Price(at(5)),
				High:  schema.Price(at(6)),
				Low:   schema.Price(at(7)),
				Close: schema.Price(at(8)),
			},
			AskSize: schema.Quantity(at(9)),
		}
	case schema.KindTick:
		rec.Tick = schema.TickFields{
			Price:    schema.Price(at(0)),
			Size:     schema.Quantity(at(1)),
			BidPrice: schema.Price(at(2)),
			AskPrice: schema.Price(at(3)),
		}
	case schema.KindAuxiliary:
		rec.Aux.Distribution = schema.Price(at(0))
		rec.Aux.Factor = schema.Price(at(1))
		rec.Aux.ReferencePrice = schema.Price(at(2))
	default:
		return ErrInvalidPayloadSize
	}
	return nil
}

func checksum(header []byte, payload []byte) uint32 {
	crc := crc32.Update(0, crcTable, header)
	return crc32.Update(crc, crcTable, payload)
}
