package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/pipecd-crm/wfm/pkg/eventbus"
	"github.com/pipecd-crm/wfm/pkg/lock"
	"github.com/pipecd-crm/wfm/pkg/metrics"
	"github.com/pipecd-crm/wfm/pkg/otelhelper"
	"github.com/pipecd-crm/wfm/pkg/persistence"
	"github.com/pipecd-crm/wfm/pkg/schema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Option configures the collaborators shared by the services.
type Option func(*options)

type options struct {
	locker    lock.Locker
	publisher eventbus.EventPublisher
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	logger    *slog.Logger
	metadata  *schema.MetadataValidator
}

// WithLocker sets the per-workflow lock manager. Defaults to an in-process lock.
func WithLocker(locker lock.Locker) Option {
	return func(o *options) {
		o.locker = locker
	}
}

// WithPublisher sets where change events are published. Events are dropped when unset.
func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(o *options) {
		o.publisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) {
		o.tracer = tracer
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetadataSchema validates step metadata on add and update.
func WithMetadataSchema(validator *schema.MetadataValidator) Option {
	return func(o *options) {
		o.metadata = validator
	}
}

func newOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	if o.locker == nil {
		o.locker = lock.NewLocal()
	}

	if o.tracer == nil {
		o.tracer = otelhelper.NoopTracer()
	}

	if o.logger == nil {
		o.logger = slog.Default()
	}

	return o
}

// base holds the storage handle and collaborators of a stateless service.
type base struct {
	options

	persistence persistence.Persistence
}

func newBase(p persistence.Persistence, opts []Option) base {
	return base{
		options:     newOptions(opts),
		persistence: p,
	}
}

// withWorkflowLock runs fn while holding the lock of workflowID.
func (b *base) withWorkflowLock(ctx context.Context, op, workflowID string, fn func() error) error {
	start := time.Now()

	unlock, err := b.locker.Lock(ctx, lock.WorkflowKey(workflowID))

	b.metrics.LockWaited(time.Since(start))

	if err != nil {
		b.logger.ErrorContext(ctx, "failed to acquire workflow lock", "op", op, "workflow_id", workflowID, "error", err)

		return internalError(op, err)
	}

	defer func() {
		if unlockErr := unlock(); unlockErr != nil {
			b.logger.WarnContext(ctx, "failed to release workflow lock", "op", op, "workflow_id", workflowID, "error", unlockErr)
		}
	}()

	return fn()
}

// publish sends a change event after a committed mutation. Failures are logged only.
func (b *base) publish(ctx context.Context, workflowID string, event eventbus.Event) {
	if b.publisher == nil {
		return
	}

	err := b.publisher.Publish(ctx, workflowID, event)
	if err != nil {
		b.logger.WarnContext(ctx, "failed to publish event", "event_type", event.GetType(), "workflow_id", workflowID, "error", err)
	}
}

// fail converts err into a service error, logs internal failures and marks the current span.
func (b *base) fail(ctx context.Context, op string, err error, refMessage string) error {
	serviceErr := fromPersistence(op, err, refMessage)

	if serviceErr.Kind == KindInternal {
		b.logger.ErrorContext(ctx, "operation failed", "op", op, "error", err)
	}

	otelhelper.SetError(trace.SpanFromContext(ctx), serviceErr, string(serviceErr.Kind), serviceErr.Kind == KindInternal)

	return serviceErr
}

// nolint:ireturn,spancheck // Returning interface is intentional for OpenTelemetry tracing
func (b *base) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otelhelper.StartSpan(ctx, b.tracer, name, attrs...)
}
