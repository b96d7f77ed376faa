package feed

import (
	"fmt"
	"strconv"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/drblury/livebridge/internal/runtime/dbn"
	lberrors "github.com/drblury/livebridge/internal/runtime/errors"
	"github.com/drblury/livebridge/internal/runtime/validate"
)

// ActionSubscribe is the action of a subscription control request.
const ActionSubscribe = "subscribe"

// Subscription is one subscribe request. Start is nil for live-only data.
type Subscription struct {
	Dataset  string
	Schema   dbn.Schema
	STypeIn  dbn.SType
	Symbols  []string
	Start    *uint64
	Snapshot bool
}

// Validate applies the input limits.
func (s Subscription) Validate() error {
	if err := validate.NonEmpty("dataset", s.Dataset); err != nil {
		return err
	}
	if int(s.Schema) >= len(dbn.SchemaNames()) {
		return lberrors.InvalidArgument("schema", "%d is not a known schema", s.Schema)
	}
	if err := validate.Symbols(s.Symbols); err != nil {
		return err
	}
	if s.Start != nil {
		if *s.Start > uint64(dbn.MaxTimestamp) {
			return lberrors.InvalidArgument("start", "exceeds maximum (year 2200)")
		}
		if s.Snapshot {
			return lberrors.InvalidArgument("snapshot", "cannot be combined with a replay start")
		}
	}
	return nil
}

// Clone copies the symbol list and start pointer.
func (s Subscription) Clone() Subscription {
	out := s
	out.Symbols = append([]string(nil), s.Symbols...)
	if s.Start != nil {
		start := *s.Start
		out.Start = &start
	}
	return out
}

// EncodeSubscribe renders the control request as protobuf JSON. Start is
// sent as a decimal string since JSON numbers lose nanosecond precision.
func EncodeSubscribe(sessionID string, opts Options, sub Subscription) ([]byte, error) {
	symbols := make([]any, len(sub.Symbols))
	for i, s := range sub.Symbols {
		symbols[i] = s
	}

	fields := map[string]any{
		"action":               ActionSubscribe,
		"session_id":           sessionID,
		"dataset":              sub.Dataset,
		"schema":               sub.Schema.String(),
		"stype_in":             sub.STypeIn.String(),
		"symbols":              symbols,
		"snapshot":             sub.Snapshot,
		"ts_out":               opts.SendTsOut,
		"upgrade_policy":       int(opts.UpgradePolicy),
		"heartbeat_interval_s": int(opts.HeartbeatInterval.Seconds()),
	}
	if sub.Start != nil {
		fields["start"] = strconv.FormatUint(*sub.Start, 10)
	}

	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("build subscribe request: %w", err)
	}
	return protojson.Marshal(st)
}

// DecodeControl parses a control request produced by EncodeSubscribe.
func DecodeControl(data []byte) (map[string]any, error) {
	var st structpb.Struct
	if err := protojson.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode control request: %w", err)
	}
	return st.AsMap(), nil
}
