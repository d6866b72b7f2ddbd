package eventbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/pipecd-crm/wfm/pkg/channels/gochannel"
	"github.com/pipecd-crm/wfm/pkg/eventbus"
	"github.com/pipecd-crm/wfm/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestWatermillEventBus_PublishAndHandle(t *testing.T) {
	pubSub := gochannel.CreateChannel(watermill.NopLogger{})
	bus := eventbus.NewWatermillEventBus(pubSub, pubSub)

	t.Cleanup(func() {
		_ = bus.Close()
	})

	received := make(chan *events.StepsReordered, 1)

	err := bus.Handle(events.StepsReorderedEvent, func(_ context.Context, event any) error {
		reordered, ok := event.(*events.StepsReordered)
		if ok {
			received <- reordered
		}

		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Subscribe(t.Context()))

	// Unhandled types are acked and skipped.
	err = bus.Publish(t.Context(), "wf-1", events.NewWorkflowChanged(events.WorkflowCreatedEvent, "wf-1", nil))
	require.NoError(t, err)

	err = bus.Publish(t.Context(), "wf-1", events.NewStepsReordered("wf-1", []string{"b", "a"}))
	require.NoError(t, err)

	select {
	case event := <-received:
		assert.Equal(t, "wf-1", event.WorkflowID)
		assert.Equal(t, []string{"b", "a"}, event.StepIDs)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestWatermillEventBus_PropagatesTraceContext(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	pubSub := gochannel.CreateChannel(watermill.NopLogger{})
	bus := eventbus.NewWatermillEventBus(pubSub, pubSub)

	t.Cleanup(func() {
		_ = bus.Close()
	})

	received := make(chan trace.SpanContext, 1)

	err := bus.Handle(events.WorkflowDeletedEvent, func(ctx context.Context, _ any) error {
		received <- trace.SpanContextFromContext(ctx)

		return nil
	})
	require.NoError(t, err)
	require.NoError(t, bus.Subscribe(t.Context()))

	ctx, span := sdktrace.NewTracerProvider().Tracer("test").Start(t.Context(), "delete")
	defer span.End()

	err = bus.Publish(ctx, "wf-9", events.NewWorkflowChanged(events.WorkflowDeletedEvent, "wf-9", nil))
	require.NoError(t, err)

	select {
	case remote := <-received:
		assert.True(t, remote.IsRemote())
		assert.Equal(t, span.SpanContext().TraceID(), remote.TraceID())
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestWatermillEventBus_RejectsNilHandler(t *testing.T) {
	pubSub := gochannel.CreateChannel(watermill.NopLogger{})
	bus := eventbus.NewWatermillEventBus(pubSub, pubSub)

	assert.Error(t, bus.Handle(events.WorkflowCreatedEvent, nil))
	assert.NoError(t, bus.Close())
}

func TestWatermillEventBus_ReplaysEventsPublishedBeforeSubscribe(t *testing.T) {
	pubSub := gochannel.CreateTestChannel(watermill.NopLogger{})
	bus := eventbus.NewWatermillEventBus(pubSub, pubSub)

	t.Cleanup(func() {
		_ = bus.Close()
	})

	err := bus.Publish(t.Context(), "wf-3", events.NewStepsReordered("wf-3", []string{"c", "a", "b"}))
	require.NoError(t, err)

	received := make(chan *events.StepsReordered, 1)

	err = bus.Handle(events.StepsReorderedEvent, func(_ context.Context, event any) error {
		reordered, ok := event.(*events.StepsReordered)
		if ok {
			received <- reordered
		}

		return nil
	})
	require.NoError(t, err)
	require.NoError(t, bus.Subscribe(t.Context()))

	select {
	case event := <-received:
		assert.Equal(t, "wf-3", event.WorkflowID)
		assert.Equal(t, []string{"c", "a", "b"}, event.StepIDs)
	case <-time.After(2 * time.Second):
		t.Fatal("persisted event was not replayed")
	}
}
