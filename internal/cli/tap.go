package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/drblury/livebridge"
	"github.com/drblury/livebridge/internal/runtime/config"
	"github.com/drblury/livebridge/internal/runtime/dbn"
	lberrors "github.com/drblury/livebridge/internal/runtime/errors"
	"github.com/drblury/livebridge/internal/runtime/feed"
	"github.com/drblury/livebridge/internal/runtime/logging"
	"github.com/drblury/livebridge/internal/runtime/metadata"
	"github.com/drblury/livebridge/internal/runtime/session"
	"github.com/drblury/livebridge/transport/replay"
)

// TapOptions holds flags for the tap command.
type TapOptions struct {
	*RootOptions
	Credential  string
	Dataset     string
	Schema      string
	STypeIn     string
	Symbols     []string
	Replay      bool
	Snapshot    bool
	Capture     string
	MetricsAddr string
	Limit       int
	Duration    time.Duration
}

// TapRecord is the JSON form of one printed record header.
type TapRecord struct {
	RType        uint8  `json:"rtype"`
	PublisherID  uint16 `json:"publisher_id"`
	InstrumentID uint32 `json:"instrument_id"`
	TsEvent      string `json:"ts_event"`
	Size         int    `json:"size"`
}

// TapSummary is reported once the tap ends.
type TapSummary struct {
	SessionID string `json:"session_id"`
	Records   int64  `json:"records"`
	Errors    int64  `json:"errors"`
}

// NewTapCommand streams a subscription and prints record headers.
func NewTapCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TapOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "tap",
		Short: "Open a session over the configured transport and print record headers",
		Long: `Subscribes to one schema and prints a line per record until interrupted,
--limit records arrived or --duration elapsed. With --capture every record is
also appended to a JSON-lines file the replay driver can play back.`,
		Example: `  livebridge tap --schema trades --symbols AAPL,MSFT
  livebridge tap -c live.yaml --symbols ES.FUT --stype-in parent --capture es.jsonl --limit 1000`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTap(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Credential, "credential", "", "credential override")
	cmd.Flags().StringVar(&opts.Dataset, "dataset", "", "dataset (defaults to the configured one)")
	cmd.Flags().StringVar(&opts.Schema, "schema", "trades", "record schema")
	cmd.Flags().StringVar(&opts.STypeIn, "stype-in", "", "input symbology type (default raw_symbol)")
	cmd.Flags().StringSliceVar(&opts.Symbols, "symbols", nil, "symbols to subscribe (required)")
	cmd.Flags().BoolVar(&opts.Replay, "replay", false, "start from the beginning of the replay window")
	cmd.Flags().BoolVar(&opts.Snapshot, "snapshot", false, "request a snapshot before live records")
	cmd.Flags().StringVar(&opts.Capture, "capture", "", "append records to this capture file")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve /metrics on this address")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 0, "stop after this many records")
	cmd.Flags().DurationVar(&opts.Duration, "duration", 0, "stop after this long")

	_ = cmd.MarkFlagRequired("symbols")

	return cmd
}

func runTap(opts *TapOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if opts.Credential != "" {
		cfg.Credential = opts.Credential
	}
	if opts.Dataset != "" {
		cfg.Dataset = opts.Dataset
	}
	if opts.MetricsAddr != "" {
		cfg.MetricsAddress = opts.MetricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid config", err)
	}
	schema, err := dbn.ParseSchema(opts.Schema)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --schema", err)
	}

	livebridge.RegisterTransports()
	logger := newTapLogger(cmd, opts.Verbose)
	defer func() { _ = logger.Sync() }()
	serviceLogger := logging.NewZapServiceLogger(logger)

	registry := prometheus.NewRegistry()
	metrics := session.NewMetrics(cfg.MetricsNamespace, registry, nil)
	if err := metrics.Register(); err != nil {
		return WrapExitError(ExitCommandError, "register metrics", err)
	}
	if cfg.MetricsAddress != "" {
		stop := serveMetrics(cfg.MetricsAddress, registry, serviceLogger)
		defer stop()
	}

	var capture *replay.Publisher
	if opts.Capture != "" {
		if capture, err = replay.NewPublisher(opts.Capture); err != nil {
			return WrapExitError(ExitCommandError, "open capture file", err)
		}
		defer capture.Close()
	}

	s, err := session.New(sessionOptions(cfg, serviceLogger, metrics))
	if err != nil {
		return WrapExitError(ExitCommandError, "create session", err)
	}
	defer s.Destroy()
	if err := s.SetLogLevel(int32(tapLevel(cfg, opts.Verbose))); err != nil {
		return WrapExitError(ExitCommandError, "set log level", err)
	}

	ctx, stopSignals := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	req := session.SubscribeRequest{
		Schema:   opts.Schema,
		STypeIn:  opts.STypeIn,
		Symbols:  opts.Symbols,
		Snapshot: opts.Snapshot,
	}
	if opts.Replay {
		start := int64(0)
		req.Start = &start
	}
	if err := s.Subscribe(ctx, req); err != nil {
		return WrapExitError(ExitCommandError, "subscribe", err)
	}

	t := &tap{out: out, capture: capture, topic: feed.RecordsTopic(cfg.Dataset), schema: schema, limit: int64(opts.Limit), done: make(chan struct{})}
	if err := s.Start(ctx, t.callbacks()); err != nil {
		return WrapExitError(ExitCommandError, "start session", err)
	}
	out.VerboseLog("session %s streaming %s over %s", s.ID(), opts.Schema, cfg.Driver)

	var timeout <-chan time.Time
	if opts.Duration > 0 {
		timer := time.NewTimer(opts.Duration)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case <-ctx.Done():
	case <-t.done:
	case <-timeout:
	}
	s.Destroy()

	summary := TapSummary{SessionID: s.ID(), Records: t.records.Load(), Errors: t.errors.Load()}
	if err := out.Success(fmt.Sprintf("records=%d errors=%d", summary.Records, summary.Errors), summary); err != nil {
		return err
	}
	if summary.Errors > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("session reported %d errors", summary.Errors))
	}
	return nil
}

func sessionOptions(cfg *config.Config, logger logging.ServiceLogger, metrics *session.Metrics) session.Options {
	return livebridge.SessionOptionsFromConfig(cfg, logger, metrics)
}

// tapLevel is the configured level, lowered to debug by --verbose.
func tapLevel(cfg *config.Config, verbose bool) logging.Level {
	if verbose {
		return logging.LevelDebug
	}
	level, err := cfg.Level()
	if err != nil {
		return logging.LevelInfo
	}
	return level
}

func newTapLogger(cmd *cobra.Command, verbose bool) *zap.Logger {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	encoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	core := zapcore.NewCore(encoder, zapcore.AddSync(cmd.ErrOrStderr()), level)
	return zap.New(core).Named("tap")
}

func serveMetrics(addr string, registry *prometheus.Registry, logger logging.ServiceLogger) (stop func()) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("Serving metrics", logging.LogFields{"addr": addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", err, logging.LogFields{"addr": addr})
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// tap holds the callback side of a running tap. Callbacks run on the
// session's dispatch goroutine only.
type tap struct {
	out     *OutputFormatter
	capture *replay.Publisher
	topic   string
	schema  dbn.Schema
	limit   int64

	records atomic.Int64
	errors  atomic.Int64

	done     chan struct{}
	doneOnce sync.Once
}

func (t *tap) callbacks() session.Callbacks {
	return session.Callbacks{
		Record:   t.onRecord,
		Error:    t.onError,
		Metadata: t.onMetadata,
	}
}

func (t *tap) finish() {
	t.doneOnce.Do(func() { close(t.done) })
}

func (t *tap) onRecord(rec []byte, rtype dbn.RType, _ uintptr) error {
	hdr, err := dbn.ParseHeader(rec)
	if err != nil {
		return err
	}
	line := TapRecord{
		RType:        uint8(rtype),
		PublisherID:  hdr.PublisherID,
		InstrumentID: hdr.InstrumentID,
		TsEvent:      dbn.Time(hdr.TsEvent).Format(time.RFC3339Nano),
		Size:         len(rec),
	}
	if err := t.out.Success(fmt.Sprintf("rtype=0x%02x publisher=%d instrument=%d ts_event=%s size=%d",
		line.RType, line.PublisherID, line.InstrumentID, line.TsEvent, line.Size), line); err != nil {
		return err
	}

	if t.capture != nil {
		headers, err := feed.RecordHeaders(rec, t.schema, "")
		if err != nil {
			return err
		}
		msg := message.NewMessage(watermill.NewUUID(), append([]byte(nil), rec...))
		headers.ToMessage(msg)
		if err := t.capture.Publish(t.topic, msg); err != nil {
			return fmt.Errorf("capture record: %w", err)
		}
	}

	if n := t.records.Add(1); t.limit > 0 && n >= t.limit {
		t.finish()
	}
	return nil
}

func (t *tap) onError(msg string, code int32, _ uintptr) {
	t.errors.Add(1)
	fmt.Fprintf(t.out.ErrWriter, "session error %d: %s\n", code, msg)
	if code == lberrors.CodeRecordCallbackFailed || code == lberrors.CodeRecordCallbackPanicked {
		t.finish()
	}
}

func (t *tap) onMetadata(payload []byte, _ uintptr) error {
	md, err := metadata.Parse(payload)
	if err != nil {
		return err
	}
	t.out.VerboseLog("metadata dataset=%s symbols=%d mappings=%d", md.Dataset, len(md.Symbols), len(md.Mappings))
	return nil
}
