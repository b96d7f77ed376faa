package livebridge

import (
	"context"

	configpkg "github.com/drblury/livebridge/internal/runtime/config"
	"github.com/drblury/livebridge/internal/runtime/dbn"
	errspkg "github.com/drblury/livebridge/internal/runtime/errors"
	"github.com/drblury/livebridge/internal/runtime/feed"
	"github.com/drblury/livebridge/internal/runtime/handle"
	idspkg "github.com/drblury/livebridge/internal/runtime/ids"
	jsoncodec "github.com/drblury/livebridge/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/livebridge/internal/runtime/logging"
	metadatapkg "github.com/drblury/livebridge/internal/runtime/metadata"
	"github.com/drblury/livebridge/internal/runtime/session"
	"github.com/drblury/livebridge/internal/runtime/symbology"
	"github.com/drblury/livebridge/transport"
	awstransport "github.com/drblury/livebridge/transport/aws"
	channeltransport "github.com/drblury/livebridge/transport/channel"
	httptransport "github.com/drblury/livebridge/transport/http"
	kafkatransport "github.com/drblury/livebridge/transport/kafka"
	natstransport "github.com/drblury/livebridge/transport/nats"
	rabbitmqtransport "github.com/drblury/livebridge/transport/rabbitmq"
	redistransport "github.com/drblury/livebridge/transport/redis"
	replaytransport "github.com/drblury/livebridge/transport/replay"
	"github.com/prometheus/client_golang/prometheus"
)

type (
	Config               = configpkg.Config
	InvalidArgumentError = errspkg.InvalidArgumentError
	CallbackError        = errspkg.CallbackError

	Session          = session.LiveSession
	BlockingSession  = session.BlockingSession
	SessionOptions   = session.Options
	SubscribeRequest = session.SubscribeRequest
	Callbacks        = session.Callbacks
	RecordCallback   = session.RecordCallback
	ErrorCallback    = session.ErrorCallback
	MetadataCallback = session.MetadataCallback
	Record           = session.Record
	ConnectionState  = session.ConnectionState
	SessionMetrics   = session.Metrics
	ClientFactory    = session.ClientFactory

	Metadata        = metadatapkg.Metadata
	SymbolMapping   = metadatapkg.SymbolMapping
	MappingInterval = metadatapkg.MappingInterval
	Date            = metadatapkg.Date

	PitMap = symbology.PitMap
	TsMap  = symbology.TsMap

	RType         = dbn.RType
	Schema        = dbn.Schema
	RecordHeader  = dbn.Header
	SType         = dbn.SType
	UpgradePolicy = dbn.UpgradePolicy

	// SymbolMappingRecord is the in-band record that maps an instrument id
	// to a symbol; see PitMap.OnRecord.
	SymbolMappingRecord = dbn.SymbolMapping

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger
	LogLevel      = loggingpkg.Level

	// Transport types
	TransportBuilder      = transport.Builder
	TransportConfig       = transport.Config
	TransportRegistry     = transport.Registry
	TransportCapabilities = transport.Capabilities
)

var (
	LoadConfig     = configpkg.Load
	ValidateConfig = configpkg.ValidateConfig

	NewSession         = session.New
	NewBlockingSession = session.NewBlocking

	ParseMetadata   = metadatapkg.Parse
	MarshalMetadata = metadatapkg.Marshal
	NewDate         = metadatapkg.NewDate
	ParseDate       = metadatapkg.ParseDate

	NewPitMap        = symbology.NewPitMap
	NewPitMapForDate = symbology.NewPitMapForDate
	NewTsMap         = symbology.NewTsMap

	ParseRecordHeader = dbn.ParseHeader
	NewRecord         = dbn.NewRecord
	ParseSchema       = dbn.ParseSchema
	Schemas           = dbn.SchemaNames

	NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger
	NewZapServiceLogger  = loggingpkg.NewZapServiceLogger
	ParseLogLevel        = loggingpkg.ParseLevel

	// Topic layout shared by gateways and sessions
	RecordsTopic = feed.RecordsTopic
	ErrorsTopic  = feed.ErrorsTopic
	ControlTopic = feed.ControlTopic

	DefaultTransportRegistry = transport.DefaultRegistry
	RegisterTransport        = transport.Register
	BuildTransport           = transport.Build

	Marshal   = jsoncodec.Marshal
	Unmarshal = jsoncodec.Unmarshal

	NewID = idspkg.New

	ErrConfigRequired         = errspkg.ErrConfigRequired
	ErrCredentialRequired     = errspkg.ErrCredentialRequired
	ErrDriverRequired         = errspkg.ErrDriverRequired
	ErrRecordCallbackRequired = errspkg.ErrRecordCallbackRequired
	ErrAlreadyStarted         = errspkg.ErrAlreadyStarted
	ErrNotStarted             = errspkg.ErrNotStarted
	ErrNoSubscriptions        = errspkg.ErrNoSubscriptions
	ErrSessionDestroyed       = errspkg.ErrSessionDestroyed
	ErrClientNotInitialized   = errspkg.ErrClientNotInitialized
	ErrBufferTooSmall         = errspkg.ErrBufferTooSmall
	ErrInvalidArgument        = errspkg.ErrInvalidArgument
	ErrFeedClosed             = errspkg.ErrFeedClosed
	ErrTimeout                = errspkg.ErrTimeout
)

// Connection states reported by Session.ConnectionState.
const (
	Disconnected = session.Disconnected
	Connected    = session.Connected
	Streaming    = session.Streaming
)

// Record types most callers switch on.
const (
	RTypeMbp0          = dbn.RTypeMbp0
	RTypeMbp1          = dbn.RTypeMbp1
	RTypeSymbolMapping = dbn.RTypeSymbolMapping
	RTypeError         = dbn.RTypeError
	RTypeSystem        = dbn.RTypeSystem

	STypeInstrumentID = dbn.STypeInstrumentID
	STypeRawSymbol    = dbn.STypeRawSymbol
)

// ConfigFromEnv loads the configuration named by LIVEBRIDGE_CONFIG and
// applies the LIVEBRIDGE_DRIVER and LIVEBRIDGE_LOG_LEVEL overrides.
func ConfigFromEnv(getenv func(string) string) (*Config, error) {
	return configpkg.FromEnv(getenv)
}

// RegisterTransports adds every bundled driver to the default registry.
// The channel, kafka, and http drivers already register on import.
func RegisterTransports() {
	channeltransport.Register()
	kafkatransport.Register()
	httptransport.Register()
	natstransport.Register()
	rabbitmqtransport.Register()
	awstransport.Register()
	redistransport.Register()
	replaytransport.Register()
}

// NewMetrics creates session metrics whose handle gauge follows the process
// handle registry.
func NewMetrics(namespace string, registerer prometheus.Registerer) *SessionMetrics {
	return session.NewMetrics(namespace, registerer, handle.Default.Count)
}

// TransportClients returns a client factory that dials the transport
// selected by cfg.
func TransportClients(cfg *Config, logger ServiceLogger) ClientFactory {
	return session.TransportClientFactory(cfg, logger)
}

// SessionOptionsFromConfig builds session options from cfg, dialing the
// configured transport.
func SessionOptionsFromConfig(cfg *Config, logger ServiceLogger, metrics *SessionMetrics) SessionOptions {
	return SessionOptions{
		Credential:        cfg.Credential,
		Dataset:           cfg.Dataset,
		SendTsOut:         cfg.SendTsOut,
		UpgradePolicy:     dbn.UpgradePolicy(cfg.UpgradePolicy),
		HeartbeatInterval: cfg.HeartbeatInterval,
		StopTimeout:       cfg.StopTimeout,
		DestroyTimeout:    cfg.DestroyTimeout,
		DispatchBuffer:    cfg.DispatchBuffer,
		NewClient:         TransportClients(cfg, logger),
		Logger:            logger,
		Metrics:           metrics,
	}
}

// Subscribe is a shorthand for a single-schema subscription on a session's
// default dataset.
func Subscribe(ctx context.Context, s *Session, schema string, symbols ...string) error {
	return s.Subscribe(ctx, SubscribeRequest{Schema: schema, Symbols: symbols})
}
