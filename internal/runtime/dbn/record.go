// Package dbn decodes the small part of the binary record format the bridge
// needs: the fixed record header, the symbol-mapping record and the schema
// and symbology enumerations. Every other record is forwarded as opaque bytes.
package dbn

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderSize is the size of the header that starts every record.
const HeaderSize = 16

// RType is the record type tag.
type RType uint8

const (
	RTypeMbp0          RType = 0x00
	RTypeMbp1          RType = 0x01
	RTypeMbp10         RType = 0x0A
	RTypeStatus        RType = 0x12
	RTypeInstrumentDef RType = 0x13
	RTypeImbalance     RType = 0x14
	RTypeError         RType = 0x15
	RTypeSymbolMapping RType = 0x16
	RTypeSystem        RType = 0x17
	RTypeStatistics    RType = 0x18
	RTypeOhlcv1S       RType = 0x20
	RTypeOhlcv1M       RType = 0x21
	RTypeOhlcv1H       RType = 0x22
	RTypeOhlcv1D       RType = 0x23
	RTypeOhlcvEod      RType = 0x24
	RTypeMbo           RType = 0xA0
	RTypeCmbp1         RType = 0xB1
	RTypeCbbo1S        RType = 0xC0
	RTypeCbbo1M        RType = 0xC1
	RTypeTcbbo         RType = 0xC2
	RTypeBbo1S         RType = 0xC3
	RTypeBbo1M         RType = 0xC4
)

var (
	ErrShortRecord = errors.New("dbn: record shorter than header")
	ErrTruncated   = errors.New("dbn: record truncated")
	ErrWrongRType  = errors.New("dbn: unexpected record type")
)

// Header is the common record header. Length counts 4-byte words.
type Header struct {
	Length       uint8
	RType        RType
	PublisherID  uint16
	InstrumentID uint32
	TsEvent      uint64
}

// Size is the full record size in bytes.
func (h Header) Size() int { return int(h.Length) * 4 }

// ParseHeader decodes the header of rec and checks that rec holds the whole
// record.
func ParseHeader(rec []byte) (Header, error) {
	if len(rec) < HeaderSize {
		return Header{}, ErrShortRecord
	}
	h := Header{
		Length:       rec[0],
		RType:        RType(rec[1]),
		PublisherID:  binary.LittleEndian.Uint16(rec[2:4]),
		InstrumentID: binary.LittleEndian.Uint32(rec[4:8]),
		TsEvent:      binary.LittleEndian.Uint64(rec[8:16]),
	}
	if h.Size() < HeaderSize {
		return h, fmt.Errorf("%w: length %d words", ErrShortRecord, h.Length)
	}
	if h.Size() > len(rec) {
		return h, fmt.Errorf("%w: need %d bytes, have %d", ErrTruncated, h.Size(), len(rec))
	}
	return h, nil
}

// PutHeader encodes h into the first HeaderSize bytes of b.
func PutHeader(b []byte, h Header) {
	b[0] = h.Length
	b[1] = byte(h.RType)
	binary.LittleEndian.PutUint16(b[2:4], h.PublisherID)
	binary.LittleEndian.PutUint32(b[4:8], h.InstrumentID)
	binary.LittleEndian.PutUint64(b[8:16], h.TsEvent)
}

// NewRecord builds a record of size bytes (rounded up to a multiple of 4) with
// the given header fields and body. Used to build fixtures and replay
// captures.
func NewRecord(rtype RType, publisherID uint16, instrumentID uint32, tsEvent uint64, body []byte) []byte {
	size := HeaderSize + len(body)
	if rem := size % 4; rem != 0 {
		size += 4 - rem
	}
	if size > 255*4 {
		size = 255 * 4
	}
	rec := make([]byte, size)
	PutHeader(rec, Header{
		Length:       uint8(size / 4),
		RType:        rtype,
		PublisherID:  publisherID,
		InstrumentID: instrumentID,
		TsEvent:      tsEvent,
	})
	copy(rec[HeaderSize:], body)
	return rec
}
