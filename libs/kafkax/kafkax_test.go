package kafkax

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestSplitBrokers(t *testing.T) {
	assert.Equal(t, []string{"kafka:9092", "kafka-2:9092"}, SplitBrokers(" kafka:9092, ,kafka-2:9092,kafka:9092"))
	assert.Empty(t, SplitBrokers(""))
}

func TestMetaFallsBack(t *testing.T) {
	msg := kafka.Message{Topic: "legalaid.notification.requested.v1", Key: []byte("appt-1")}
	meta := MetaOf(msg)
	assert.Equal(t, "appt-1", meta.EventID)
	assert.Equal(t, "legalaid.notification.requested.v1", meta.EventType)

	msg.Headers = EventMeta{EventID: "evt-9", EventType: "custom"}.Headers()
	assert.Equal(t, EventMeta{EventID: "evt-9", EventType: "custom"}, MetaOf(msg))
}

func TestTraceHeadersRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled, Remote: true})
	ctx := trace.ContextWithRemoteSpanContext(context.Background(), sc)

	msg := kafka.Message{Headers: EventMeta{EventID: "e1"}.Headers()}
	InjectTrace(ctx, &msg)
	InjectTrace(ctx, &msg)
	require.NotEmpty(t, Header(msg.Headers, "traceparent"))
	assert.Len(t, msg.Headers, 3)

	extracted := ExtractTrace(context.Background(), msg)
	assert.Equal(t, traceID, trace.SpanContextFromContext(extracted).TraceID())
}

func TestReadyCheckWithoutBrokers(t *testing.T) {
	require.Error(t, ReadyCheck(nil)(context.Background()))
}
