package telemetry

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	defaultMetricInterval = 5 * time.Second
	exporterInitTimeout   = 3 * time.Second
)

// Endpoint is one OTLP collector. The grpc endpoint wins when both are set,
// neither disables the signal.
type Endpoint struct {
	GrpcEndpoint string            `json:"grpc_endpoint"`
	HttpEndpoint string            `json:"http_endpoint"`
	Headers      map[string]string `json:"headers"`
}

type protocol string

const (
	protocolNone protocol = ""
	protocolGrpc protocol = "grpc"
	protocolHttp protocol = "http"
)

func (e Endpoint) target() (protocol, string) {
	switch {
	case e.GrpcEndpoint != "":
		return protocolGrpc, e.GrpcEndpoint
	case e.HttpEndpoint != "":
		return protocolHttp, e.HttpEndpoint
	default:
		return protocolNone, ""
	}
}

type OtlpConfig struct {
	Traces  Endpoint `json:"traces"`
	Metrics Endpoint `json:"metrics"`
}

// Config is the shape of telemetry.json5.
type Config struct {
	Otlp OtlpConfig `json:"otlp"`
	// MetricIntervalSeconds is how often the checker and request counters
	// are pushed, 5 seconds when unset.
	MetricIntervalSeconds int `json:"metric_interval_seconds"`
	// Attributes are added to the resource of every span and metric.
	Attributes map[string]string `json:"attributes"`
}

func (c Config) metricInterval() time.Duration {
	if c.MetricIntervalSeconds <= 0 {
		return defaultMetricInterval
	}
	return time.Duration(c.MetricIntervalSeconds) * time.Second
}

// newResource describes this process. attributes are added in key order so
// the resource is stable between runs.
func newResource(serviceName string, attributes map[string]string) (*resource.Resource, error) {
	keys := make([]string, 0, len(attributes))
	for key := range attributes {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	kvs := []attribute.KeyValue{semconv.ServiceName(serviceName)}
	for _, key := range keys {
		kvs = append(kvs, attribute.String(key, attributes[key]))
	}
	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, kvs...),
	)
}

// newTraceExporter returns nil when traces are not exported.
func newTraceExporter(ctx context.Context, e Endpoint) (trace.SpanExporter, error) {
	ctx, cancel := context.WithTimeout(ctx, exporterInitTimeout)
	defer cancel()

	proto, url := e.target()
	switch proto {
	case protocolGrpc:
		return otlptracegrpc.New(
			ctx,
			otlptracegrpc.WithEndpointURL(url),
			otlptracegrpc.WithHeaders(e.Headers),
		)
	case protocolHttp:
		return otlptracehttp.New(
			ctx,
			otlptracehttp.WithEndpointURL(url),
			otlptracehttp.WithHeaders(e.Headers),
		)
	}
	return nil, nil
}

// newMetricExporter returns nil when metrics are not exported.
func newMetricExporter(ctx context.Context, e Endpoint) (metric.Exporter, error) {
	ctx, cancel := context.WithTimeout(ctx, exporterInitTimeout)
	defer cancel()

	proto, url := e.target()
	switch proto {
	case protocolGrpc:
		return otlpmetricgrpc.New(
			ctx,
			otlpmetricgrpc.WithEndpointURL(url),
			otlpmetricgrpc.WithHeaders(e.Headers),
		)
	case protocolHttp:
		return otlpmetrichttp.New(
			ctx,
			otlpmetrichttp.WithEndpointURL(url),
			otlpmetrichttp.WithHeaders(e.Headers),
		)
	}
	return nil, nil
}

func logExporter(signal string, e Endpoint) {
	proto, url := e.target()
	if proto == protocolNone {
		slog.Debug("telemetry export disabled", "signal", signal)
		return
	}
	slog.Info(
		"telemetry export initialized",
		"signal", signal,
		"type", string(proto),
		"endpoint", url,
		"headers", len(e.Headers) > 0,
	)
}
