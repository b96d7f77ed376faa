package dbn

import (
	"fmt"
	"time"
)

// Schema identifies a record schema.
type Schema uint16

const (
	SchemaMbo        Schema = 0
	SchemaMbp1       Schema = 1
	SchemaMbp10      Schema = 2
	SchemaTbbo       Schema = 3
	SchemaTrades     Schema = 4
	SchemaOhlcv1S    Schema = 5
	SchemaOhlcv1M    Schema = 6
	SchemaOhlcv1H    Schema = 7
	SchemaOhlcv1D    Schema = 8
	SchemaDefinition Schema = 9
	SchemaStatistics Schema = 10
	SchemaStatus     Schema = 11
	SchemaImbalance  Schema = 12
	SchemaOhlcvEod   Schema = 13
	SchemaCmbp1      Schema = 14
	SchemaCbbo1S     Schema = 15
	SchemaCbbo1M     Schema = 16
	SchemaTcbbo      Schema = 17
	SchemaBbo1S      Schema = 18
	SchemaBbo1M      Schema = 19
)

var schemaNames = [...]string{
	SchemaMbo:        "mbo",
	SchemaMbp1:       "mbp-1",
	SchemaMbp10:      "mbp-10",
	SchemaTbbo:       "tbbo",
	SchemaTrades:     "trades",
	SchemaOhlcv1S:    "ohlcv-1s",
	SchemaOhlcv1M:    "ohlcv-1m",
	SchemaOhlcv1H:    "ohlcv-1h",
	SchemaOhlcv1D:    "ohlcv-1d",
	SchemaDefinition: "definition",
	SchemaStatistics: "statistics",
	SchemaStatus:     "status",
	SchemaImbalance:  "imbalance",
	SchemaOhlcvEod:   "ohlcv-eod",
	SchemaCmbp1:      "cmbp-1",
	SchemaCbbo1S:     "cbbo-1s",
	SchemaCbbo1M:     "cbbo-1m",
	SchemaTcbbo:      "tcbbo",
	SchemaBbo1S:      "bbo-1s",
	SchemaBbo1M:      "bbo-1m",
}

func (s Schema) String() string {
	if int(s) < len(schemaNames) {
		return schemaNames[s]
	}
	return fmt.Sprintf("schema(%d)", uint16(s))
}

// ParseSchema resolves a schema name such as "mbp-1" or "trades".
func ParseSchema(name string) (Schema, error) {
	for i, n := range schemaNames {
		if n == name {
			return Schema(i), nil
		}
	}
	return 0, fmt.Errorf("unknown schema %q", name)
}

// SchemaNames lists every schema name in enum order.
func SchemaNames() []string {
	out := make([]string, len(schemaNames))
	copy(out, schemaNames[:])
	return out
}

// SType is a symbology type.
type SType uint8

const (
	STypeInstrumentID SType = 0
	STypeRawSymbol    SType = 1
	STypeSmart        SType = 2
	STypeContinuous   SType = 3
	STypeParent       SType = 4
)

var stypeNames = [...]string{
	STypeInstrumentID: "instrument_id",
	STypeRawSymbol:    "raw_symbol",
	STypeSmart:        "smart",
	STypeContinuous:   "continuous",
	STypeParent:       "parent",
}

func (s SType) String() string {
	if int(s) < len(stypeNames) {
		return stypeNames[s]
	}
	return fmt.Sprintf("stype(%d)", uint8(s))
}

// ParseSType resolves a symbology type name.
func ParseSType(name string) (SType, error) {
	for i, n := range stypeNames {
		if n == name {
			return SType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown stype %q", name)
}

// UpgradePolicy controls whether older record versions are upgraded.
type UpgradePolicy uint8

const (
	UpgradeAsIs UpgradePolicy = 0
	UpgradeToV3 UpgradePolicy = 1
)

// MaxTimestamp is the latest accepted timestamp, 2200-01-01T00:00:00Z in
// nanoseconds since the epoch.
const MaxTimestamp int64 = 7258118400000000000

// Time converts nanoseconds since the epoch to a UTC time.
func Time(ns uint64) time.Time {
	return time.Unix(0, int64(ns)).UTC()
}
