// Package jsoncodec is the single JSON entry point of the module. Metadata
// snapshots, replay captures and broker envelopes all go through sonic with
// encoding/json compatible settings.
package jsoncodec

import (
	"io"

	"github.com/bytedance/sonic"
)

var std = sonic.ConfigStd

func Marshal(v any) ([]byte, error) {
	return std.Marshal(v)
}

func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return std.MarshalIndent(v, prefix, indent)
}

func Unmarshal(data []byte, v any) error {
	return std.Unmarshal(data, v)
}

// Encode writes v followed by a newline, which is the framing used by
// JSON-lines captures.
func Encode(w io.Writer, v any) error {
	return std.NewEncoder(w).Encode(v)
}

// Valid reports whether data is a well-formed JSON document.
func Valid(data []byte) bool {
	return std.Valid(data)
}
