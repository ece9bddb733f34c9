package redisclient

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Client wraps a Redis client with OpenTelemetry tracing
type Client struct {
	cmdable redis.Cmdable
	closer  func() error
}

// NewClient creates a new traced Redis client for single Redis instance
func NewClient(client *redis.Client) *Client {
	return &Client{cmdable: client, closer: client.Close}
}

// NewClusterClient creates a new traced Redis client for Redis cluster
func NewClusterClient(client *redis.ClusterClient) *Client {
	return &Client{cmdable: client, closer: client.Close}
}

// startSpan opens a span for one Redis command
func startSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	attrs = append(attrs,
		attribute.String("redis.operation", operation),
		attribute.String("redis.client", "app-scim-sync"),
	)
	ctx, span := otel.Tracer("redis").Start(ctx, "redis."+operation, trace.WithAttributes(attrs...))
	return ctx, span, time.Now()
}

// endSpan records the command result and closes the span. redis.Nil is not an error.
func endSpan(span trace.Span, start time.Time, err error) {
	duration := time.Since(start)
	span.SetAttributes(
		attribute.Int64("redis.duration_ms", duration.Milliseconds()),
		attribute.String("redis.duration", duration.String()),
	)
	if err != nil && !errors.Is(err, redis.Nil) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("redis.error", err.Error()))
	} else {
		span.SetStatus(codes.Ok, "success")
	}
	span.End()
}

// Get wraps Redis Get with tracing
func (c *Client) Get(ctx context.Context, key string) *redis.StringCmd {
	ctx, span, start := startSpan(ctx, "get", attribute.String("redis.key", key))
	cmd := c.cmdable.Get(ctx, key)
	endSpan(span, start, cmd.Err())
	return cmd
}

// SetNX wraps Redis SET NX with an expiration
func (c *Client) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	ctx, span, start := startSpan(ctx, "setnx",
		attribute.String("redis.key", key),
		attribute.String("redis.expiration", expiration.String()),
	)
	cmd := c.cmdable.SetNX(ctx, key, value, expiration)
	endSpan(span, start, cmd.Err())
	return cmd
}

// Del wraps Redis Del with tracing
func (c *Client) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	ctx, span, start := startSpan(ctx, "del", attribute.StringSlice("redis.keys", keys))
	cmd := c.cmdable.Del(ctx, keys...)
	endSpan(span, start, cmd.Err())
	return cmd
}

// PTTL wraps Redis PTTL with tracing
func (c *Client) PTTL(ctx context.Context, key string) *redis.DurationCmd {
	ctx, span, start := startSpan(ctx, "pttl", attribute.String("redis.key", key))
	cmd := c.cmdable.PTTL(ctx, key)
	endSpan(span, start, cmd.Err())
	return cmd
}

// Eval runs a Lua script with tracing. The script body is not recorded.
func (c *Client) Eval(ctx context.Context, script *redis.Script, keys []string, args ...interface{}) *redis.Cmd {
	ctx, span, start := startSpan(ctx, "eval", attribute.StringSlice("redis.keys", keys))
	cmd := script.Run(ctx, c.cmdable, keys, args...)
	endSpan(span, start, cmd.Err())
	return cmd
}

// Ping wraps Redis Ping with tracing
func (c *Client) Ping(ctx context.Context) *redis.StatusCmd {
	ctx, span, start := startSpan(ctx, "ping")
	cmd := c.cmdable.Ping(ctx)
	endSpan(span, start, cmd.Err())
	return cmd
}

// Close releases the underlying connection pool
func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}
