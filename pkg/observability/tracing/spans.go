package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SpanOperation names a traced operation.
type SpanOperation string

const (
	SpanOperationDBQuery  SpanOperation = "db.query"
	SpanOperationDBInsert SpanOperation = "db.insert"
	SpanOperationDBTx     SpanOperation = "db.transaction"

	SpanOperationCredentialLogin SpanOperation = "credential.login"
	SpanOperationCredentialRenew SpanOperation = "credential.renew"
)

// StartDatabaseSpan starts a client span for a database operation.
func StartDatabaseSpan(ctx context.Context, operation SpanOperation, opts ...DatabaseSpanOption) (context.Context, trace.Span) {
	tracer := otel.Tracer("database")

	spanOpts := &databaseSpanOptions{
		attributes: []attribute.KeyValue{
			attribute.String("db.operation", string(operation)),
		},
	}
	for _, opt := range opts {
		opt(spanOpts)
	}

	spanName := fmt.Sprintf("DB %s", operation)
	if spanOpts.table != "" {
		spanName = fmt.Sprintf("DB %s %s", operation, spanOpts.table)
	}

	ctx, span := tracer.Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(spanOpts.attributes...)
	return ctx, span
}

// DatabaseSpanOption configures a database span.
type DatabaseSpanOption func(*databaseSpanOptions)

type databaseSpanOptions struct {
	table      string
	attributes []attribute.KeyValue
}

// WithDBTable sets the table name.
func WithDBTable(table string) DatabaseSpanOption {
	return func(opts *databaseSpanOptions) {
		opts.table = table
		opts.attributes = append(opts.attributes, attribute.String("db.table", table))
	}
}

// WithDBSystem sets the database system, e.g. "postgresql" or "mysql".
func WithDBSystem(system string) DatabaseSpanOption {
	return func(opts *databaseSpanOptions) {
		opts.attributes = append(opts.attributes, attribute.String("db.system", system))
	}
}

// WithDBStatement sets the statement text.
func WithDBStatement(statement string) DatabaseSpanOption {
	return func(opts *databaseSpanOptions) {
		opts.attributes = append(opts.attributes, attribute.String("db.statement", statement))
	}
}

// WithDBRows records the number of rows affected or returned.
func WithDBRows(rows int) DatabaseSpanOption {
	return func(opts *databaseSpanOptions) {
		opts.attributes = append(opts.attributes, attribute.Int("db.rows", rows))
	}
}

// StartCredentialSpan starts an internal span for a credential operation on
// behalf of principal.
func StartCredentialSpan(ctx context.Context, operation SpanOperation, principal string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer("credential")

	ctx, span := tracer.Start(ctx, fmt.Sprintf("CREDENTIAL %s", operation), trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(
		attribute.String("credential.operation", string(operation)),
		attribute.String("credential.principal", principal),
	)
	span.SetAttributes(attrs...)
	return ctx, span
}

// RecordError marks the span as failed. A nil error is ignored.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// RecordSuccess sets the span status to OK.
func RecordSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// End records err (or success) and ends the span.
func End(span trace.Span, err error) {
	if err != nil {
		RecordError(span, err)
	} else {
		RecordSuccess(span)
	}
	span.End()
}
