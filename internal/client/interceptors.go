package client

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// IdempotencyHeader carries the mutation key on REST calls. The gRPC client
// sends the same value under the lower-cased metadata key.
const IdempotencyHeader = "Idempotency-Key"

const idempotencyMetadataKey = "idempotency-key"

type idempotencyKeyCtx struct{}

// IdempotencyKey builds the key for one invoice mutation.
func IdempotencyKey(invoiceID, mutation, targetStatus string) string {
	return fmt.Sprintf("%s:%s:%s", invoiceID, mutation, targetStatus)
}

// WithIdempotencyKey attaches key to ctx for the next mutation call.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	if key == "" {
		return ctx
	}
	return context.WithValue(ctx, idempotencyKeyCtx{}, key)
}

// IdempotencyKeyFrom returns the key attached by WithIdempotencyKey.
func IdempotencyKeyFrom(ctx context.Context) string {
	key, _ := ctx.Value(idempotencyKeyCtx{}).(string)
	return key
}

// forwardMetadata is a gRPC unary client interceptor that propagates
// incoming request metadata (including the Bearer auth token) to outgoing
// Invoicing API calls.
func forwardMetadata(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		ctx = metadata.NewOutgoingContext(ctx, md)
	}
	return invoker(ctx, method, req, reply, cc, opts...)
}

// idempotencyMetadata copies the context idempotency key into outgoing metadata.
func idempotencyMetadata(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
	if key := IdempotencyKeyFrom(ctx); key != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, idempotencyMetadataKey, key)
	}
	return invoker(ctx, method, req, reply, cc, opts...)
}

// bearerToken attaches a static service token unless the caller already
// forwarded an authorization header.
func bearerToken(token string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		if token != "" {
			md, _ := metadata.FromOutgoingContext(ctx)
			if len(md.Get("authorization")) == 0 {
				ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
			}
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}
