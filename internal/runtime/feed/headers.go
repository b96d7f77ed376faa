package feed

import (
	"strconv"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/livebridge/internal/runtime/dbn"
)

// Message metadata keys carried by record messages.
const (
	HeaderRType        = "rtype"
	HeaderSchema       = "schema"
	HeaderSymbol       = "symbol"
	HeaderInstrumentID = "instrument_id"
	HeaderSessionID    = "session_id"
	HeaderCredential   = "authorization"
)

// Headers is the metadata carried alongside a broker message.
type Headers map[string]string

// NewHeaders builds headers from alternating key/value pairs.
func NewHeaders(pairs ...string) Headers {
	h := make(Headers, len(pairs)/2)
	for i := 0; i < len(pairs)-1; i += 2 {
		h[pairs[i]] = pairs[i+1]
	}
	return h
}

// RecordHeaders describes a record for publishers. The instrument id doubles
// as partition key on brokers that partition.
func RecordHeaders(rec []byte, schema dbn.Schema, symbol string) (Headers, error) {
	hdr, err := dbn.ParseHeader(rec)
	if err != nil {
		return nil, err
	}
	h := NewHeaders(
		HeaderRType, strconv.Itoa(int(hdr.RType)),
		HeaderSchema, schema.String(),
		HeaderInstrumentID, strconv.FormatUint(uint64(hdr.InstrumentID), 10),
	)
	if symbol != "" {
		h[HeaderSymbol] = symbol
	}
	return h, nil
}

// Clone returns a shallow copy.
func (h Headers) Clone() Headers {
	cloned := make(Headers, len(h))
	for k, v := range h {
		cloned[k] = v
	}
	return cloned
}

// With returns a copy with key set to value.
func (h Headers) With(key, value string) Headers {
	cloned := h.Clone()
	cloned[key] = value
	return cloned
}

// RType parses the rtype header.
func (h Headers) RType() (dbn.RType, bool) {
	v, ok := h[HeaderRType]
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(v, 10, 8)
	if err != nil {
		return 0, false
	}
	return dbn.RType(n), true
}

// ToMessage copies the headers into watermill metadata.
func (h Headers) ToMessage(msg *message.Message) {
	for k, v := range h {
		msg.Metadata.Set(k, v)
	}
}

// HeadersOf copies watermill metadata into Headers.
func HeadersOf(msg *message.Message) Headers {
	h := make(Headers, len(msg.Metadata))
	for k, v := range msg.Metadata {
		h[k] = v
	}
	return h
}
