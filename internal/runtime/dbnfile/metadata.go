// Package dbnfile writes and reads DBN files: a binary metadata header
// followed by the raw records, exactly as they arrive from a session.
package dbnfile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/drblury/livebridge/internal/runtime/dbn"
	"github.com/drblury/livebridge/internal/runtime/metadata"
)

const (
	magic = "DBN"

	datasetCstrLen = 16
	reservedLen    = 53
	// fixedLen covers the fields between the length prefix and the schema
	// definition length.
	fixedLen = datasetCstrLen + 2 + 3*8 + 3 + 2 + reservedLen

	defaultSymbolCstrLen = 71
	nullSchema           = math.MaxUint16
	nullSType            = math.MaxUint8
)

var (
	ErrBadMagic           = errors.New("dbnfile: not a DBN stream")
	ErrUnsupportedVersion = errors.New("dbnfile: unsupported version")
)

// EncodeMetadata renders the metadata header for md. Versions 2 and 3 are
// supported; a zero version encodes as metadata.Version.
func EncodeMetadata(md metadata.Metadata) ([]byte, error) {
	if md.Version == 0 {
		md.Version = metadata.Version
	}
	if md.Version < 2 || md.Version > metadata.Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, md.Version)
	}
	if err := md.Validate(); err != nil {
		return nil, err
	}
	cstrLen := md.SymbolCstrLen
	if cstrLen == 0 {
		cstrLen = defaultSymbolCstrLen
	}
	if cstrLen > math.MaxUint16 {
		return nil, fmt.Errorf("dbnfile: symbol_cstr_len %d too large", cstrLen)
	}

	e := &encoder{cstrLen: cstrLen}
	e.cstr(md.Dataset, datasetCstrLen, "dataset")
	schema := uint16(nullSchema)
	if md.Schema != nil {
		schema = uint16(*md.Schema)
	}
	e.u16(schema)
	e.u64(md.Start)
	e.u64(md.End)
	e.u64(md.Limit)
	stypeIn := uint8(nullSType)
	if md.STypeIn != nil {
		stypeIn = uint8(*md.STypeIn)
	}
	e.buf.WriteByte(stypeIn)
	e.buf.WriteByte(uint8(md.STypeOut))
	if md.TsOut {
		e.buf.WriteByte(1)
	} else {
		e.buf.WriteByte(0)
	}
	e.u16(uint16(cstrLen))
	e.buf.Write(make([]byte, reservedLen))
	e.u32(0) // no schema definition

	e.symbols(md.Symbols, "symbols")
	e.symbols(md.Partial, "partial")
	e.symbols(md.NotFound, "not_found")

	e.u32(uint32(len(md.Mappings)))
	for _, m := range md.Mappings {
		e.cstr(m.RawSymbol, cstrLen, "raw_symbol")
		e.u32(uint32(len(m.Intervals)))
		for _, iv := range m.Intervals {
			e.u32(packDate(iv.StartDate))
			e.u32(packDate(iv.EndDate))
			e.cstr(iv.Symbol, cstrLen, "symbol")
		}
	}
	if e.err != nil {
		return nil, e.err
	}

	body := e.buf.Bytes()
	if rem := len(body) % 8; rem != 0 {
		body = append(body, make([]byte, 8-rem)...)
	}
	out := make([]byte, 8, 8+len(body))
	copy(out, magic)
	out[3] = md.Version
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(body)))
	return append(out, body...), nil
}

// DecodeMetadata reads a metadata header from r, leaving r at the first
// record.
func DecodeMetadata(r io.Reader) (metadata.Metadata, error) {
	var prefix [8]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return metadata.Metadata{}, fmt.Errorf("dbnfile: read prefix: %w", err)
	}
	if string(prefix[:3]) != magic {
		return metadata.Metadata{}, ErrBadMagic
	}
	md := metadata.Metadata{Version: prefix[3]}
	if md.Version < 2 || md.Version > metadata.Version {
		return metadata.Metadata{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, md.Version)
	}
	body := make([]byte, binary.LittleEndian.Uint32(prefix[4:8]))
	if _, err := io.ReadFull(r, body); err != nil {
		return metadata.Metadata{}, fmt.Errorf("dbnfile: read metadata: %w", err)
	}
	if len(body) < fixedLen+4 {
		return metadata.Metadata{}, fmt.Errorf("dbnfile: metadata of %d bytes is too short", len(body))
	}

	d := &decoder{b: body}
	md.Dataset = d.cstr(datasetCstrLen)
	if schema := d.u16(); schema != nullSchema {
		s := dbn.Schema(schema)
		md.Schema = &s
	}
	md.Start = d.u64()
	md.End = d.u64()
	md.Limit = d.u64()
	if stypeIn := d.u8(); stypeIn != nullSType {
		s := dbn.SType(stypeIn)
		md.STypeIn = &s
	}
	md.STypeOut = dbn.SType(d.u8())
	md.TsOut = d.u8() != 0
	md.SymbolCstrLen = int(d.u16())
	d.skip(reservedLen)
	d.skip(int(d.u32()))

	cstrLen := md.SymbolCstrLen
	if d.err == nil && cstrLen == 0 {
		return metadata.Metadata{}, errors.New("dbnfile: symbol_cstr_len is zero")
	}
	md.Symbols = d.symbols(cstrLen)
	md.Partial = d.symbols(cstrLen)
	md.NotFound = d.symbols(cstrLen)
	n := d.count(cstrLen + 4)
	md.Mappings = make([]metadata.SymbolMapping, 0, n)
	for i := 0; i < n && d.err == nil; i++ {
		m := metadata.SymbolMapping{RawSymbol: d.cstr(cstrLen)}
		intervals := d.count(8 + cstrLen)
		m.Intervals = make([]metadata.MappingInterval, 0, intervals)
		for j := 0; j < intervals && d.err == nil; j++ {
			m.Intervals = append(m.Intervals, metadata.MappingInterval{
				StartDate: unpackDate(d.u32()),
				EndDate:   unpackDate(d.u32()),
				Symbol:    d.cstr(cstrLen),
			})
		}
		md.Mappings = append(md.Mappings, m)
	}
	if d.err != nil {
		return metadata.Metadata{}, d.err
	}
	return md, nil
}

func packDate(d metadata.Date) uint32 {
	return uint32(d.Year*10000 + int(d.Month)*100 + d.Day)
}

func unpackDate(v uint32) metadata.Date {
	return metadata.Date{Year: int(v / 10000), Month: time.Month(v / 100 % 100), Day: int(v % 100)}
}

type encoder struct {
	buf     bytes.Buffer
	cstrLen int
	err     error
}

func (e *encoder) u16(v uint16) { e.buf.Write(binary.LittleEndian.AppendUint16(nil, v)) }
func (e *encoder) u32(v uint32) { e.buf.Write(binary.LittleEndian.AppendUint32(nil, v)) }
func (e *encoder) u64(v uint64) { e.buf.Write(binary.LittleEndian.AppendUint64(nil, v)) }

// cstr writes s NUL-padded to n bytes. s must leave room for the NUL.
func (e *encoder) cstr(s string, n int, field string) {
	if len(s) >= n && e.err == nil {
		e.err = fmt.Errorf("dbnfile: %s %q longer than %d bytes", field, s, n-1)
	}
	b := make([]byte, n)
	copy(b[:n-1], s)
	e.buf.Write(b)
}

func (e *encoder) symbols(list []string, field string) {
	e.u32(uint32(len(list)))
	for _, s := range list {
		e.cstr(s, e.cstrLen, field)
	}
}

type decoder struct {
	b   []byte
	off int
	err error
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || d.off+n > len(d.b) {
		d.err = fmt.Errorf("dbnfile: metadata truncated at offset %d", d.off)
		return nil
	}
	out := d.b[d.off : d.off+n]
	d.off += n
	return out
}

func (d *decoder) skip(n int) { d.take(n) }

func (d *decoder) u8() uint8 {
	if b := d.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (d *decoder) u16() uint16 {
	if b := d.take(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (d *decoder) u32() uint32 {
	if b := d.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (d *decoder) u64() uint64 {
	if b := d.take(8); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

func (d *decoder) cstr(n int) string {
	b := d.take(n)
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// count reads a u32 element count and rejects counts the remaining bytes
// cannot hold.
func (d *decoder) count(elemSize int) int {
	n := int(d.u32())
	if d.err == nil && elemSize > 0 && n > (len(d.b)-d.off)/elemSize {
		d.err = fmt.Errorf("dbnfile: count %d exceeds metadata length", n)
		return 0
	}
	return n
}

func (d *decoder) symbols(cstrLen int) []string {
	n := d.count(cstrLen)
	out := make([]string, 0, n)
	for i := 0; i < n && d.err == nil; i++ {
		out = append(out, d.cstr(cstrLen))
	}
	return out
}
