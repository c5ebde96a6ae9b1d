// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ratify

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const tracerName = "github.com/blinklabs-io/ratify"

func (r *Ratify) setupTracing(ctx context.Context) error {
	var exporter sdktrace.SpanExporter
	var err error
	if r.config.tracingStdout {
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	} else {
		// Endpoint and headers come from the standard OTEL_EXPORTER_OTLP_* env vars
		exporter, err = otlptracehttp.New(ctx)
	}
	if err != nil {
		return err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(
			resource.NewSchemaless(
				attribute.String("service.name", "ratify"),
			),
		),
	)
	otel.SetTracerProvider(tp)
	r.shutdownFuncs = append(r.shutdownFuncs, tp.Shutdown)
	return nil
}
