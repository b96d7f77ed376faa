// Package metadata models the session metadata snapshot: the resolved
// subscription parameters plus the symbology mappings that symbol maps are
// built from. Snapshots travel to callers as JSON.
package metadata

import (
	"fmt"

	"github.com/drblury/livebridge/internal/runtime/dbn"
	"github.com/drblury/livebridge/internal/runtime/jsoncodec"
)

// Version is the record format version announced by live sessions.
const Version uint8 = 3

// Metadata is the snapshot delivered before the first record of a session.
type Metadata struct {
	Version       uint8           `json:"version"`
	Dataset       string          `json:"dataset"`
	Schema        *dbn.Schema     `json:"schema"`
	Start         uint64          `json:"start"`
	End           uint64          `json:"end"`
	Limit         uint64          `json:"limit"`
	STypeIn       *dbn.SType      `json:"stype_in"`
	STypeOut      dbn.SType       `json:"stype_out"`
	TsOut         bool            `json:"ts_out"`
	SymbolCstrLen int             `json:"symbol_cstr_len"`
	Symbols       []string        `json:"symbols"`
	Partial       []string        `json:"partial"`
	NotFound      []string        `json:"not_found"`
	Mappings      []SymbolMapping `json:"mappings"`
}

// SymbolMapping lists the intervals over which raw_symbol resolved to other
// symbols.
type SymbolMapping struct {
	RawSymbol string            `json:"raw_symbol"`
	Intervals []MappingInterval `json:"intervals"`
}

// MappingInterval covers [StartDate, EndDate).
type MappingInterval struct {
	StartDate Date   `json:"start_date"`
	EndDate   Date   `json:"end_date"`
	Symbol    string `json:"symbol"`
}

// Marshal serialises md. Nil lists encode as empty arrays.
func Marshal(md Metadata) ([]byte, error) {
	md = md.Clone()
	md.Symbols = orEmpty(md.Symbols)
	md.Partial = orEmpty(md.Partial)
	md.NotFound = orEmpty(md.NotFound)
	for i := range md.Mappings {
		if md.Mappings[i].Intervals == nil {
			md.Mappings[i].Intervals = []MappingInterval{}
		}
	}
	if md.SymbolCstrLen == 0 {
		md.SymbolCstrLen = 71
	}
	data, err := jsoncodec.Marshal(md)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return data, nil
}

// Parse decodes a snapshot and checks that it is coherent.
func Parse(data []byte) (Metadata, error) {
	var md Metadata
	if err := jsoncodec.Unmarshal(data, &md); err != nil {
		return Metadata{}, fmt.Errorf("parse metadata: %w", err)
	}
	if err := md.Validate(); err != nil {
		return Metadata{}, err
	}
	return md, nil
}

// Validate checks the time range and interval ordering.
func (md Metadata) Validate() error {
	if md.End != 0 && md.Start > md.End {
		return fmt.Errorf("metadata: start %d after end %d", md.Start, md.End)
	}
	for _, m := range md.Mappings {
		for _, iv := range m.Intervals {
			if iv.EndDate.Before(iv.StartDate) {
				return fmt.Errorf("metadata: interval for %q starts %s after it ends %s", m.RawSymbol, iv.StartDate, iv.EndDate)
			}
		}
	}
	return nil
}

// Clone returns a deep copy.
func (md Metadata) Clone() Metadata {
	out := md
	if md.Schema != nil {
		s := *md.Schema
		out.Schema = &s
	}
	if md.STypeIn != nil {
		s := *md.STypeIn
		out.STypeIn = &s
	}
	out.Symbols = append([]string(nil), md.Symbols...)
	out.Partial = append([]string(nil), md.Partial...)
	out.NotFound = append([]string(nil), md.NotFound...)
	out.Mappings = make([]SymbolMapping, len(md.Mappings))
	for i, m := range md.Mappings {
		out.Mappings[i] = SymbolMapping{
			RawSymbol: m.RawSymbol,
			Intervals: append([]MappingInterval(nil), m.Intervals...),
		}
	}
	return out
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
