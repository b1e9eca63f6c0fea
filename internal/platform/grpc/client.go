// Package grpc holds client helpers for contentgraph gRPC endpoints.
package grpc

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Stage names the step at which connecting to a server failed.
type Stage string

const (
	// StageConnect is client construction.
	StageConnect Stage = "connect"
	// StageHealth is waiting for the health service.
	StageHealth Stage = "health"
)

// ConnectError reports which step of ConnectHealthy failed.
type ConnectError struct {
	Addr  string
	Stage Stage
	Err   error
}

func (e *ConnectError) Error() string {
	if e == nil {
		return "gRPC connect error"
	}
	return fmt.Sprintf("gRPC %s %s: %v", e.Stage, e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ClientOptions returns the dial options shared by contentgraph clients:
// plaintext transport with trace propagation.
func ClientOptions() []gogrpc.DialOption {
	return []gogrpc.DialOption{
		gogrpc.WithTransportCredentials(insecure.NewCredentials()),
		gogrpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}
}

// ConnectHealthy creates a client for addr and waits until service reports
// SERVING. A positive timeout bounds the wait on top of ctx. Without opts
// ClientOptions is used. The connection is closed when the wait fails.
func ConnectHealthy(ctx context.Context, addr, service string, timeout time.Duration, opts ...gogrpc.DialOption) (*gogrpc.ClientConn, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(opts) == 0 {
		opts = ClientOptions()
	}
	conn, err := gogrpc.NewClient(addr, opts...)
	if err != nil {
		return nil, &ConnectError{Addr: addr, Stage: StageConnect, Err: err}
	}

	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := WaitServing(waitCtx, conn, service); err != nil {
		_ = conn.Close()
		return nil, &ConnectError{Addr: addr, Stage: StageHealth, Err: err}
	}
	return conn, nil
}
