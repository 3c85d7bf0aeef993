// Package telemetry instruments fpmas barrier operations (dgraph's
// distribute and synchronize, and the gRPC transport's all-to-all) with
// otel spans, without tying the core to any particular exporter.
package telemetry

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	barrierRankKey  = "fpmas.barrier.rank"
	barrierEpochKey = "fpmas.barrier.epoch"
)

// Operation tracks the span for a single barrier round (one call to
// Distribute, Synchronize, or a gRPC AllToAll).
type Operation struct {
	ctx    context.Context
	tracer trace.Tracer
	span   trace.Span
}

// EmitBarrier starts a span named name ("barrier" if empty; callers pass
// "dgraph.distribute", "dgraph.synchronize" and "comm.all_to_all") tagged
// with the calling rank and the current epoch. With a nil tracer it starts
// no span and returns a nil Operation.
func EmitBarrier(ctx context.Context, tracer trace.Tracer, name string, rank int32, epoch int) (*Operation, context.Context) {
	if tracer == nil {
		return nil, ctx
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "barrier"
	}

	spanCtx, span := tracer.Start(ctx, name, trace.WithAttributes(
		attribute.Int64(barrierRankKey, int64(rank)),
		attribute.Int(barrierEpochKey, epoch),
	))
	return &Operation{ctx: spanCtx, tracer: tracer, span: span}, spanCtx
}

// Context returns the span-carrying context, or a background context if no
// tracer was configured.
func (o *Operation) Context() context.Context {
	if o == nil {
		return context.Background()
	}
	return o.ctx
}

// RunStep wraps one phase of a barrier (linker sync, bulk exchange, clear
// pass, location update...) as a child span.
func (o *Operation) RunStep(ctx context.Context, id string, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}

	if o == nil || o.tracer == nil {
		return fn(ctx)
	}
	if ctx == nil {
		ctx = o.ctx
	}

	stepCtx, span := o.tracer.Start(ctx, id)
	defer span.End()

	if err := fn(stepCtx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// End records the barrier's terminal error, if any, and closes the span.
func (o *Operation) End(err error) {
	if o == nil || o.span == nil {
		return
	}
	if err != nil {
		o.span.RecordError(err)
		o.span.SetStatus(codes.Error, err.Error())
	}
	o.span.End()
}
