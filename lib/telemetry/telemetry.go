package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"os"
	"steamcommunity/lib/configutil"
	"time"

	"github.com/lmittmann/tint"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace"
)

type Telemetry struct {
	TracerProvider *trace.TracerProvider
	MeterProvider  *metric.MeterProvider
}

func (t Telemetry) Shutdown(ctx context.Context) error {
	errlist := []error{}
	if t.TracerProvider != nil {
		err := t.TracerProvider.Shutdown(ctx)
		if err != nil {
			errlist = append(errlist, err)
		}
	}
	if t.MeterProvider != nil {
		err := t.MeterProvider.Shutdown(ctx)
		if err != nil {
			errlist = append(errlist, err)
		}
	}
	return errors.Join(errlist...)
}

// InitSlog installs a colored stderr handler as the default slog logger.
func InitSlog(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
	slog.SetDefault(logger)
}

// SetupFromEnv searches up the filesystem from the working directory for
// telemetry.json5 and sets up export with it. attributes are added to the
// ones the file lists.
func SetupFromEnv(ctx context.Context, serviceName string, attributes map[string]string) (Telemetry, error) {
	config, err := configutil.ReadRecursively[Config]("telemetry.json5")
	if err != nil {
		return Telemetry{}, err
	}
	return Setup(ctx, serviceName, attributes, config)
}

// Setup installs the global tracer and meter providers for every signal
// config exports. Signals without an endpoint keep the no-op providers.
func Setup(ctx context.Context, serviceName string, attributes map[string]string, config Config) (Telemetry, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*15)
	defer cancel()

	merged := maps.Clone(config.Attributes)
	if merged == nil {
		merged = map[string]string{}
	}
	maps.Copy(merged, attributes)
	r, err := newResource(serviceName, merged)
	if err != nil {
		return Telemetry{}, err
	}

	var out Telemetry

	logExporter("traces", config.Otlp.Traces)
	spanExporter, err := newTraceExporter(ctx, config.Otlp.Traces)
	if err != nil {
		return Telemetry{}, err
	}
	if spanExporter != nil {
		out.TracerProvider = trace.NewTracerProvider(
			trace.WithBatcher(spanExporter),
			trace.WithResource(r),
		)
		otel.SetTracerProvider(out.TracerProvider)
	}

	logExporter("metrics", config.Otlp.Metrics)
	metricExporter, err := newMetricExporter(ctx, config.Otlp.Metrics)
	if err != nil {
		out.Shutdown(ctx)
		return Telemetry{}, err
	}
	if metricExporter != nil {
		out.MeterProvider = metric.NewMeterProvider(
			metric.WithReader(metric.NewPeriodicReader(metricExporter, metric.WithInterval(config.metricInterval()))),
			metric.WithResource(r),
		)
		otel.SetMeterProvider(out.MeterProvider)
	}

	return out, nil
}
