package abi

import (
	"errors"
	"time"

	"github.com/drblury/livebridge/internal/runtime/handle"
	"github.com/drblury/livebridge/internal/runtime/metadata"
	"github.com/drblury/livebridge/internal/runtime/symbology"
)

// Symbol maps are not synchronized. Callers must not use one map from
// several goroutines without their own locking.

// MetadataCreate parses a metadata JSON snapshot and registers it.
func MetadataCreate(payload []byte, errBuf []byte) uint64 {
	return create(errBuf, handle.KindMetadata, func() (any, error) {
		md, err := metadata.Parse(payload)
		if err != nil {
			return nil, err
		}
		return &md, nil
	})
}

// MetadataDestroy releases a metadata handle.
func MetadataDestroy(h uint64) {
	quiet(func() { _, _ = take[*metadata.Metadata](h, handle.KindMetadata) })
}

func metadataOf(h uint64) (*metadata.Metadata, error) {
	return resolve[*metadata.Metadata](h, handle.KindMetadata)
}

// MetadataCreateSymbolMap builds a TS map spanning the snapshot's range.
func MetadataCreateSymbolMap(metadataHandle uint64, errBuf []byte) uint64 {
	return create(errBuf, handle.KindTsSymbolMap, func() (any, error) {
		md, err := metadataOf(metadataHandle)
		if err != nil {
			return nil, err
		}
		return symbology.NewTsMap(*md)
	})
}

// MetadataCreateSymbolMapForDate builds a PIT map for one day.
func MetadataCreateSymbolMapForDate(metadataHandle uint64, year int32, month, day uint32, errBuf []byte) uint64 {
	return create(errBuf, handle.KindPitSymbolMap, func() (any, error) {
		md, err := metadataOf(metadataHandle)
		if err != nil {
			return nil, err
		}
		date, err := makeDate(year, month, day)
		if err != nil {
			return nil, err
		}
		return symbology.NewPitMapForDate(*md, date)
	})
}

// PitCreate registers an empty PIT map, filled later through PitOnRecord.
func PitCreate(errBuf []byte) uint64 {
	return create(errBuf, handle.KindPitSymbolMap, func() (any, error) {
		return symbology.NewPitMap(), nil
	})
}

func pit(h uint64) (*symbology.PitMap, error) {
	return resolve[*symbology.PitMap](h, handle.KindPitSymbolMap)
}

// PitIsEmpty returns 1 when empty, 0 when not and -1 for an invalid handle.
func PitIsEmpty(h uint64) (status int32) {
	status = StatusError
	quiet(func() {
		if p, err := pit(h); err == nil {
			status = boolStatus(p.IsEmpty())
		}
	})
	return status
}

// PitSize returns the number of mappings, or 0 for an invalid handle.
func PitSize(h uint64) (size uint64) {
	quiet(func() {
		if p, err := pit(h); err == nil {
			size = uint64(p.Size())
		}
	})
	return size
}

// PitFind writes the symbol of instrumentID into symbolBuf. It returns -2
// when the id is unknown and -3 when symbolBuf is too small; the symbol is
// still written truncated.
func PitFind(h uint64, instrumentID uint32, symbolBuf []byte) (status int32) {
	status = StatusError
	quiet(func() {
		p, err := pit(h)
		if err != nil {
			return
		}
		symbol, ok := p.Find(instrumentID)
		if !ok {
			status = StatusNotFound
			return
		}
		status = writeSymbol(symbolBuf, symbol)
	})
	return status
}

// PitOnRecord folds a symbol-mapping record into the map. Other records are
// ignored.
func PitOnRecord(h uint64, record []byte) (status int32) {
	status = StatusError
	quiet(func() {
		p, err := pit(h)
		if err != nil || record == nil {
			return
		}
		if err := p.OnRecord(record); err != nil {
			status = StatusInvalid
			return
		}
		status = StatusOK
	})
	return status
}

// PitDestroy releases a PIT map handle.
func PitDestroy(h uint64) {
	quiet(func() { _, _ = take[*symbology.PitMap](h, handle.KindPitSymbolMap) })
}

func ts(h uint64) (*symbology.TsMap, error) {
	return resolve[*symbology.TsMap](h, handle.KindTsSymbolMap)
}

// TsIsEmpty returns 1 when empty, 0 when not and -1 for an invalid handle.
func TsIsEmpty(h uint64) (status int32) {
	status = StatusError
	quiet(func() {
		if t, err := ts(h); err == nil {
			status = boolStatus(t.IsEmpty())
		}
	})
	return status
}

// TsSize returns the number of (date, id) entries, or 0 for an invalid
// handle.
func TsSize(h uint64) (size uint64) {
	quiet(func() {
		if t, err := ts(h); err == nil {
			size = uint64(t.Size())
		}
	})
	return size
}

// TsFind writes the symbol of instrumentID on the given day into symbolBuf.
func TsFind(h uint64, year int32, month, day uint32, instrumentID uint32, symbolBuf []byte) (status int32) {
	status = StatusError
	quiet(func() {
		t, err := ts(h)
		if err != nil {
			return
		}
		date, err := makeDate(year, month, day)
		if err != nil {
			status = StatusInvalid
			return
		}
		symbol, ok := t.Find(date, instrumentID)
		if !ok {
			status = StatusNotFound
			return
		}
		status = writeSymbol(symbolBuf, symbol)
	})
	return status
}

// TsDestroy releases a TS map handle.
func TsDestroy(h uint64) {
	quiet(func() { _, _ = take[*symbology.TsMap](h, handle.KindTsSymbolMap) })
}

func makeDate(year int32, month, day uint32) (metadata.Date, error) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return metadata.Date{}, errors.New("invalid calendar date")
	}
	d := metadata.NewDate(int(year), time.Month(month), int(day))
	if t := d.Time(); t.Day() != int(day) || t.Month() != time.Month(month) {
		return metadata.Date{}, errors.New("invalid calendar date")
	}
	return d, nil
}

func writeSymbol(buf []byte, symbol string) int32 {
	if len(buf) == 0 {
		return StatusInvalid
	}
	if !writeCString(buf, symbol) {
		return StatusInvalid
	}
	return StatusOK
}

func boolStatus(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
