// Package validate holds the input checks applied before anything reaches the
// feed client. Every failure is an *errors.InvalidArgumentError.
package validate

import (
	"github.com/drblury/livebridge/internal/runtime/dbn"
	lberrors "github.com/drblury/livebridge/internal/runtime/errors"
)

const (
	MaxSymbols          = 100_000
	MaxSymbolLength     = 1024
	MaxTotalSymbolBytes = 10 << 20
)

// NonEmpty rejects an empty required string.
func NonEmpty(param, value string) error {
	if value == "" {
		return lberrors.InvalidArgument(param, "cannot be empty")
	}
	return nil
}

// Schema resolves a schema name.
func Schema(name string) (dbn.Schema, error) {
	if err := NonEmpty("schema", name); err != nil {
		return 0, err
	}
	s, err := dbn.ParseSchema(name)
	if err != nil {
		return 0, lberrors.InvalidArgument("schema", "%q is not a known schema", name)
	}
	return s, nil
}

// Symbols checks the count, per-symbol length and total size of a symbol
// list.
func Symbols(symbols []string) error {
	if len(symbols) == 0 {
		return lberrors.InvalidArgument("symbols", "cannot be empty")
	}
	if len(symbols) > MaxSymbols {
		return lberrors.InvalidArgument("symbols", "count %d exceeds maximum %d", len(symbols), MaxSymbols)
	}
	total := 0
	for i, s := range symbols {
		if s == "" {
			return lberrors.InvalidArgument("symbols", "symbol at index %d cannot be empty", i)
		}
		if len(s) > MaxSymbolLength {
			return lberrors.InvalidArgument("symbols", "symbol at index %d exceeds maximum length %d", i, MaxSymbolLength)
		}
		total += len(s)
		if total > MaxTotalSymbolBytes {
			return lberrors.InvalidArgument("symbols", "total size exceeds %d bytes", MaxTotalSymbolBytes)
		}
	}
	return nil
}

// Timestamp checks that ns lies between the epoch and year 2200.
func Timestamp(param string, ns int64) error {
	if ns < 0 {
		return lberrors.InvalidArgument(param, "cannot be negative")
	}
	if ns > dbn.MaxTimestamp {
		return lberrors.InvalidArgument(param, "exceeds maximum (year 2200)")
	}
	return nil
}

// TimeRange checks both bounds and that start does not come after end.
func TimeRange(start, end int64) error {
	if err := Timestamp("start", start); err != nil {
		return err
	}
	if err := Timestamp("end", end); err != nil {
		return err
	}
	if start > end {
		return lberrors.InvalidArgument("start", "must be before or equal to end")
	}
	return nil
}
