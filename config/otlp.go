package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.7.0"
)

// ErrTelemetryNotConfigured is returned when no OTLP endpoint is set
var ErrTelemetryNotConfigured = fmt.Errorf("%w: telemetry is not configured", ErrConfig)

// otlpProtocol selects exporter by the standard OTEL_EXPORTER_OTLP_ env vars
func otlpProtocol() string {
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") +
		os.Getenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT")
	protocol := os.Getenv("OTEL_EXPORTER_OTLP_PROTOCOL") +
		os.Getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL")
	switch {
	case strings.HasPrefix(protocol, "grpc"),
		protocol == "" && (strings.Contains(endpoint, "4317") || strings.Contains(endpoint, "grpc")):
		return "grpc"
	case protocol != "" || endpoint != "":
		return "http"
	}
	return ""
}

func initOTLP(serviceName string) (*tracesdk.TracerProvider, error) {
	var (
		ctx = context.TODO()
		exp *otlptrace.Exporter
		err error
	)
	switch otlpProtocol() {
	case "grpc":
		exp, err = otlptracegrpc.New(ctx)
	case "http":
		exp, err = otlptracehttp.New(ctx)
	default:
		log.Debug().Msg(ErrTelemetryNotConfigured.Error())
		return nil, ErrTelemetryNotConfigured
	}
	if err != nil {
		log.Err(err).Msg("could not create exporter")
		return nil, err
	}
	log.Debug().Msg("telemetry configured OTEL_EXPORTER_OTLP")

	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(serviceName),
		semconv.ServiceVersionKey.String(buildTag),
		attribute.String("buildTime", buildTime),
	}
	tp := tracesdk.NewTracerProvider(
		tracesdk.WithBatcher(exp),
		tracesdk.WithResource(resource.NewWithAttributes(semconv.SchemaURL, attrs...)),
	)
	return tp, nil
}
