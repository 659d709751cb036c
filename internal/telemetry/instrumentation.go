package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Span attributes must stay low cardinality: operation names, components and statuses only.
// Purchase IDs, URLs and file paths go to the logs, never to attributes.

// InstrumentedFunc represents a function that can be instrumented.
type InstrumentedFunc func(ctx context.Context) error

// InstrumentOperation wraps fn in a span tagged with the component and outcome.
func (t *Telemetry) InstrumentOperation(ctx context.Context, operationName, component string, fn InstrumentedFunc) error {
	if t == nil || t.tracer == nil {
		return fn(ctx)
	}

	start := time.Now()
	ctx, span := t.tracer.Start(ctx, operationName)

	defer span.End()

	span.SetAttributes(
		attribute.String("component", component),
		attribute.String("operation", operationName),
	)

	err := fn(ctx)

	status := "success"
	if err != nil {
		status = "error"

		span.SetAttributes(attribute.Bool("error", true))
		span.SetStatus(codes.Error, err.Error())
	}

	span.SetAttributes(
		attribute.String("status", status),
		attribute.Float64("duration_seconds", time.Since(start).Seconds()),
	)

	return err
}

// InstrumentDBOperation instruments catalog store operations.
func (t *Telemetry) InstrumentDBOperation(ctx context.Context, operation string, fn InstrumentedFunc) error {
	start := time.Now()
	err := t.InstrumentOperation(ctx, "db_"+operation, "catalog_store", fn)

	t.RecordDBOperation(operation, statusOf(err), time.Since(start))

	return err
}

// InstrumentClientOperation instruments requests against the storefront.
func (t *Telemetry) InstrumentClientOperation(ctx context.Context, operation string, fn InstrumentedFunc) error {
	err := t.InstrumentOperation(ctx, "client_"+operation, "session", fn)

	t.RecordClientOperation(operation, statusOf(err))

	return err
}

// InstrumentSync instruments one library or product synchronization.
func (t *Telemetry) InstrumentSync(ctx context.Context, kind string, fn InstrumentedFunc) error {
	err := t.InstrumentOperation(ctx, "sync_"+kind, "synchronizer", fn)

	t.RecordSync(kind, statusOf(err))

	return err
}

// InstrumentDownload tracks one download task as active while fn runs.
// The outcome is recorded by the caller through RecordDownload since a skip is not an error.
func (t *Telemetry) InstrumentDownload(ctx context.Context, fn InstrumentedFunc) error {
	t.IncrementActiveDownloads()
	defer t.DecrementActiveDownloads()

	return t.InstrumentOperation(ctx, "download", "downloader", fn)
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}

	return "success"
}
