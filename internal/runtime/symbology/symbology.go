// Package symbology resolves instrument ids to symbols.
//
// PitMap answers "which symbol is id X right now" for a single day or a live
// session and can be updated in place from symbol-mapping records. TsMap
// answers "which symbol was id X on day D" across a multi-day query.
//
// Neither type is safe for concurrent use. Updates through PitMap.OnRecord
// are expected from one goroutine, normally the one processing records;
// readers on other goroutines must synchronise with it externally.
package symbology

import (
	"fmt"
	"strconv"

	"github.com/drblury/livebridge/internal/runtime/dbn"
	"github.com/drblury/livebridge/internal/runtime/metadata"
)

// PitMap maps instrument ids to symbols at one point in time.
type PitMap struct {
	m map[uint32]string
}

// NewPitMap returns an empty map, as used by a live session before any
// symbol-mapping record arrives.
func NewPitMap() *PitMap {
	return &PitMap{m: make(map[uint32]string)}
}

// NewPitMapForDate builds the map for date from the intervals in md. The date
// must fall inside the snapshot's query range.
func NewPitMapForDate(md metadata.Metadata, date metadata.Date) (*PitMap, error) {
	if err := checkInRange(md, date); err != nil {
		return nil, err
	}
	inverse := md.STypeIn != nil && *md.STypeIn == dbn.STypeInstrumentID

	p := NewPitMap()
	for _, mapping := range md.Mappings {
		for _, iv := range mapping.Intervals {
			if date.Before(iv.StartDate) || !date.Before(iv.EndDate) {
				continue
			}
			if iv.Symbol == "" {
				break
			}
			id, symbol, err := resolvePair(mapping.RawSymbol, iv.Symbol, inverse)
			if err != nil {
				return nil, err
			}
			p.m[id] = symbol
			break
		}
	}
	return p, nil
}

// IsEmpty reports whether the map holds no mappings.
func (p *PitMap) IsEmpty() bool { return len(p.m) == 0 }

// Size reports the number of mappings.
func (p *PitMap) Size() int { return len(p.m) }

// Find returns the symbol for id.
func (p *PitMap) Find(id uint32) (string, bool) {
	s, ok := p.m[id]
	return s, ok
}

// OnRecord folds a symbol-mapping record into the map. Records of any other
// type are ignored.
func (p *PitMap) OnRecord(rec []byte) error {
	h, err := dbn.ParseHeader(rec)
	if err != nil {
		return err
	}
	if h.RType != dbn.RTypeSymbolMapping {
		return nil
	}
	sm, err := dbn.DecodeSymbolMapping(rec)
	if err != nil {
		return err
	}
	p.OnSymbolMapping(sm)
	return nil
}

// OnSymbolMapping records the output symbol of a decoded mapping.
func (p *PitMap) OnSymbolMapping(sm dbn.SymbolMapping) {
	p.m[sm.InstrumentID] = sm.STypeOutSymbol
}

// Each calls fn for every mapping in unspecified order.
func (p *PitMap) Each(fn func(id uint32, symbol string)) {
	for id, s := range p.m {
		fn(id, s)
	}
}

type tsKey struct {
	date metadata.Date
	id   uint32
}

// TsMap maps (date, instrument id) pairs to symbols.
type TsMap struct {
	m map[tsKey]string
}

// NewTsMap expands every interval in md into one entry per day in
// [start_date, end_date).
func NewTsMap(md metadata.Metadata) (*TsMap, error) {
	inverse := md.STypeIn != nil && *md.STypeIn == dbn.STypeInstrumentID

	t := &TsMap{m: make(map[tsKey]string)}
	for _, mapping := range md.Mappings {
		for _, iv := range mapping.Intervals {
			if iv.EndDate.Before(iv.StartDate) {
				return nil, fmt.Errorf("symbology: interval for %q starts %s after it ends %s", mapping.RawSymbol, iv.StartDate, iv.EndDate)
			}
			if iv.Symbol == "" {
				continue
			}
			id, symbol, err := resolvePair(mapping.RawSymbol, iv.Symbol, inverse)
			if err != nil {
				return nil, err
			}
			for d := iv.StartDate; d.Before(iv.EndDate); d = d.AddDays(1) {
				t.m[tsKey{date: d, id: id}] = symbol
			}
		}
	}
	return t, nil
}

// IsEmpty reports whether the map holds no mappings.
func (t *TsMap) IsEmpty() bool { return len(t.m) == 0 }

// Size reports the number of (date, id) entries.
func (t *TsMap) Size() int { return len(t.m) }

// Find returns the symbol of id on date.
func (t *TsMap) Find(date metadata.Date, id uint32) (string, bool) {
	s, ok := t.m[tsKey{date: date, id: id}]
	return s, ok
}

// resolvePair returns the id and symbol of one mapping. When the query was
// made by instrument id the raw symbol holds the id and the interval holds
// the text symbol.
func resolvePair(rawSymbol, intervalSymbol string, inverse bool) (uint32, string, error) {
	idText, symbol := intervalSymbol, rawSymbol
	if inverse {
		idText, symbol = rawSymbol, intervalSymbol
	}
	id, err := strconv.ParseUint(idText, 10, 32)
	if err != nil {
		return 0, "", fmt.Errorf("symbology: invalid instrument id %q for %q", idText, symbol)
	}
	return uint32(id), symbol, nil
}

func checkInRange(md metadata.Metadata, date metadata.Date) error {
	start := metadata.DateOf(dbn.Time(md.Start))
	if date.Before(start) {
		return fmt.Errorf("symbology: date %s before query start %s", date, start)
	}
	if md.End == 0 {
		return nil
	}
	endTime := dbn.Time(md.End)
	end := metadata.DateOf(endTime)
	if !endTime.Equal(end.Time()) {
		end = end.AddDays(1)
	}
	if !date.Before(end) {
		return fmt.Errorf("symbology: date %s outside query range ending %s", date, end)
	}
	return nil
}
