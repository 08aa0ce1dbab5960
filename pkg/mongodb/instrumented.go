package mongodb

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/dubox-platform/production-service/pkg/logging"
	"github.com/dubox-platform/production-service/pkg/metrics"
	"github.com/dubox-platform/production-service/pkg/resilience"
)

// InstrumentedClient runs collection operations behind a circuit breaker
// and records metrics, spans and query logs for each of them.
type InstrumentedClient struct {
	client  *Client
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
	logger  *logging.Logger
	tracer  trace.Tracer
}

// NewInstrumentedClient creates a new instrumented MongoDB client
func NewInstrumentedClient(client *Client, m *metrics.Metrics, logger *logging.Logger) *InstrumentedClient {
	if logger == nil {
		logger = logging.NewNop()
	}

	cbConfig := resilience.DefaultCircuitBreakerConfig("mongodb")
	cbConfig.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, mongo.ErrNoDocuments) || mongo.IsDuplicateKeyError(err)
	}

	return &InstrumentedClient{
		client:  client,
		breaker: resilience.NewCircuitBreaker(cbConfig, logger, m),
		metrics: m,
		logger:  logger,
		tracer:  otel.Tracer("mongodb"),
	}
}

// Collection returns a collection handle
func (c *InstrumentedClient) Collection(name string) *mongo.Collection {
	return c.client.Collection(name)
}

// Close disconnects the client
func (c *InstrumentedClient) Close(ctx context.Context) error {
	return c.client.Close(ctx)
}

// HealthCheck pings the primary through the circuit breaker
func (c *InstrumentedClient) HealthCheck(ctx context.Context) error {
	return c.breaker.Do(ctx, func() error {
		return c.client.HealthCheck(ctx)
	})
}

// WithTransaction executes fn within a traced transaction
func (c *InstrumentedClient) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, span := c.tracer.Start(ctx, "mongodb.transaction",
		trace.WithAttributes(
			semconv.DBSystemMongoDB,
			semconv.DBNameKey.String(c.client.DatabaseName()),
		),
	)
	defer span.End()

	err := c.client.WithTransaction(ctx, fn)
	endSpan(span, err)
	return err
}

// Exec runs one operation against a collection. Breaker rejections and
// driver errors are returned as-is; callers map them to domain errors.
func (c *InstrumentedClient) Exec(ctx context.Context, collection, operation string, fn func(ctx context.Context) error) error {
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "mongodb."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.DBSystemMongoDB,
			semconv.DBNameKey.String(c.client.DatabaseName()),
			semconv.DBOperationKey.String(operation),
			attribute.String("db.collection", collection),
		),
	)
	defer span.End()

	err := c.breaker.Do(ctx, func() error {
		return fn(ctx)
	})
	duration := time.Since(start)

	success := err == nil || errors.Is(err, mongo.ErrNoDocuments)
	c.metrics.RecordMongoDBOperation(collection, operation, success, duration)
	if success {
		c.logger.DatabaseQuery(ctx, collection, operation, duration, nil)
		endSpan(span, nil)
	} else {
		c.logger.DatabaseQuery(ctx, collection, operation, duration, err)
		endSpan(span, err)
	}
	return err
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}

// IsUnavailable reports whether err means the store could not be reached,
// as opposed to a logical failure such as a missing document.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, resilience.ErrCircuitOpen) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, mongo.ErrClientDisconnected) {
		return true
	}
	return mongo.IsNetworkError(err) || mongo.IsTimeout(err)
}
