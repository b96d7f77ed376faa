package dbn

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	symbolCstrLenV1 = 22
	symbolCstrLenV2 = 71

	// SymbolMappingSizeV1 is the size of a version 1 symbol-mapping record.
	SymbolMappingSizeV1 = HeaderSize + 2*symbolCstrLenV1 + 4 + 16
	// SymbolMappingSize is the size of a version 2 and 3 symbol-mapping record.
	SymbolMappingSize = HeaderSize + 2 + 2*symbolCstrLenV2 + 16
)

// SymbolMapping announces which symbol an instrument id stands for during a
// time window.
type SymbolMapping struct {
	Header
	STypeIn        SType
	STypeInSymbol  string
	STypeOut       SType
	STypeOutSymbol string
	StartTs        uint64
	EndTs          uint64
}

// DecodeSymbolMapping decodes a version 1, 2 or 3 symbol-mapping record. The
// layout is selected from the header length. Version 1 records carry no
// stype fields; they decode as zero.
func DecodeSymbolMapping(rec []byte) (SymbolMapping, error) {
	h, err := ParseHeader(rec)
	if err != nil {
		return SymbolMapping{}, err
	}
	if h.RType != RTypeSymbolMapping {
		return SymbolMapping{}, fmt.Errorf("%w: 0x%02X", ErrWrongRType, uint8(h.RType))
	}

	m := SymbolMapping{Header: h}
	switch {
	case h.Size() >= SymbolMappingSize:
		off := HeaderSize
		m.STypeIn = SType(rec[off])
		off++
		m.STypeInSymbol = cString(rec[off : off+symbolCstrLenV2])
		off += symbolCstrLenV2
		m.STypeOut = SType(rec[off])
		off++
		m.STypeOutSymbol = cString(rec[off : off+symbolCstrLenV2])
		off += symbolCstrLenV2
		m.StartTs = binary.LittleEndian.Uint64(rec[off : off+8])
		m.EndTs = binary.LittleEndian.Uint64(rec[off+8 : off+16])
	case h.Size() >= SymbolMappingSizeV1:
		off := HeaderSize
		m.STypeInSymbol = cString(rec[off : off+symbolCstrLenV1])
		off += symbolCstrLenV1
		m.STypeOutSymbol = cString(rec[off : off+symbolCstrLenV1])
		off += symbolCstrLenV1 + 4
		m.StartTs = binary.LittleEndian.Uint64(rec[off : off+8])
		m.EndTs = binary.LittleEndian.Uint64(rec[off+8 : off+16])
	default:
		return SymbolMapping{}, fmt.Errorf("%w: symbol mapping of %d bytes", ErrTruncated, h.Size())
	}
	return m, nil
}

// Encode writes m in the version 2 layout. The header length and rtype are
// set by Encode; symbols longer than 70 bytes are cut.
func (m SymbolMapping) Encode() []byte {
	rec := make([]byte, SymbolMappingSize)
	h := m.Header
	h.Length = SymbolMappingSize / 4
	h.RType = RTypeSymbolMapping
	PutHeader(rec, h)

	off := HeaderSize
	rec[off] = byte(m.STypeIn)
	off++
	putCString(rec[off:off+symbolCstrLenV2], m.STypeInSymbol)
	off += symbolCstrLenV2
	rec[off] = byte(m.STypeOut)
	off++
	putCString(rec[off:off+symbolCstrLenV2], m.STypeOutSymbol)
	off += symbolCstrLenV2
	binary.LittleEndian.PutUint64(rec[off:off+8], m.StartTs)
	binary.LittleEndian.PutUint64(rec[off+8:off+16], m.EndTs)
	return rec
}

// EncodeV1 writes m in the version 1 layout.
func (m SymbolMapping) EncodeV1() []byte {
	rec := make([]byte, SymbolMappingSizeV1)
	h := m.Header
	h.Length = SymbolMappingSizeV1 / 4
	h.RType = RTypeSymbolMapping
	PutHeader(rec, h)

	off := HeaderSize
	putCString(rec[off:off+symbolCstrLenV1], m.STypeInSymbol)
	off += symbolCstrLenV1
	putCString(rec[off:off+symbolCstrLenV1], m.STypeOutSymbol)
	off += symbolCstrLenV1 + 4
	binary.LittleEndian.PutUint64(rec[off:off+8], m.StartTs)
	binary.LittleEndian.PutUint64(rec[off+8:off+16], m.EndTs)
	return rec
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func putCString(dst []byte, s string) {
	n := copy(dst[:len(dst)-1], s)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}
