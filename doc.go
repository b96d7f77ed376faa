// Package livebridge streams live market-data records from an upstream
// gateway to callers that cannot host a Go runtime of their own. It carries
// the session lifecycle (create, subscribe, start, stop, reconnect, destroy),
// a buffered dispatcher that hands each record to caller callbacks on its
// own goroutine, and point-in-time and timeseries symbol maps built from
// session metadata.
//
// Sessions come in two shapes. Session pushes records into a RecordCallback
// and reports failures through an ErrorCallback; BlockingSession queues them
// for NextRecord. Both share subscription tracking, so Reconnect replays every
// subscription onto a fresh client.
//
// The flat C surface lives in package abi and is exported by
// cmd/livebridge-cshared. This package re-exports the Go types for embedding
// the sessions directly in a Go program.
//
// # Transports
//
// The gateway is reached through a Watermill transport chosen by
// Config.Driver:
//   - channel: in-process Go channels, used by tests and embedding
//   - kafka: Sarama-backed Kafka consumer groups
//   - rabbitmq: AMQP queues
//   - nats: NATS Core subjects
//   - aws: SNS fan-out into SQS queues, LocalStack friendly
//   - http: push ingress with control requests posted upstream
//   - redis: Redis streams
//   - replay: JSON-lines captures written by "livebridge tap --capture"
//
// channel, kafka and http register on import. Call RegisterTransports to add
// the rest. nats and aws do not keep publish order and are refused unless
// Config.AllowUnordered is set.
//
// # Files
//
// Package abi also exposes a DBN file writer: a metadata header followed by
// records as they arrived, in the DBN layout.
//
// # Observability
//
// Sessions log through ServiceLogger, which wraps slog, zap or a Watermill
// adapter, and filter by a per-session level set with SetLogLevel.
// NewMetrics exposes Prometheus collectors for dispatched records, callback
// failures and live handles. Every lifecycle operation opens an
// OpenTelemetry span.
package livebridge
