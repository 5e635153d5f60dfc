package types

import (
	"context"
)

// UpstreamCaller performs the real outbound call for a logical
// endpoint. Supplied by the host application; the relay treats it as an
// opaque asynchronous operation.
type UpstreamCaller interface {
	Call(ctx context.Context, endpoint string, payload interface{}) (interface{}, error)
}

// UpstreamCallerFunc adapts a plain function to UpstreamCaller.
type UpstreamCallerFunc func(ctx context.Context, endpoint string, payload interface{}) (interface{}, error)

func (f UpstreamCallerFunc) Call(ctx context.Context, endpoint string, payload interface{}) (interface{}, error) {
	return f(ctx, endpoint, payload)
}
