// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Values are set by middleware (or tests) and consumed by services. Keeping
// this package free of net/http lets domain code read the caller identity and
// the request time without pulling in transport concerns.
//
// Usage in services (read values):
//
//	caller := requestcontext.CallerAddress(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in middleware (set values):
//
//	ctx = requestcontext.WithCallerAddress(ctx, addr)
//	ctx = requestcontext.WithRequestID(ctx, requestID)
//
// Usage in tests (freeze the clock):
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"
)

type (
	callerAddressKey struct{}
	requestIDKey     struct{}
	requestTimeKey   struct{}
)

// WithCallerAddress stores the authenticated caller address in the context.
func WithCallerAddress(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, callerAddressKey{}, addr)
}

// CallerAddress returns the authenticated caller address, or "" if unset.
func CallerAddress(ctx context.Context) string {
	addr, _ := ctx.Value(callerAddressKey{}).(string)
	return addr
}

// WithRequestID stores the correlation id for the current request.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the correlation id, or "" if unset.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// WithTime pins the request time. Middleware sets it once per request so all
// reads within one operation observe the same instant; tests use it to drive
// epoch rollover deterministically.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}

// Now returns the pinned request time, falling back to the wall clock.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}
