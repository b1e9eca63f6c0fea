package grpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	gogrpc "google.golang.org/grpc"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/louisbranch/contentgraph/internal/platform/timeouts"
)

const (
	pollInitial = 100 * time.Millisecond
	pollMax     = time.Second
)

// WaitServing polls the health status of service until it is SERVING or ctx
// ends. The empty service name checks the server as a whole.
func WaitServing(ctx context.Context, conn *gogrpc.ClientConn, service string) error {
	if conn == nil {
		return errors.New("gRPC connection is not configured")
	}
	client := grpc_health_v1.NewHealthClient(conn)
	delay := pollInitial
	for {
		last, err := checkOnce(ctx, client, service)
		if err == nil && last == grpc_health_v1.HealthCheckResponse_SERVING {
			return nil
		}
		observed := last.String()
		if err != nil {
			observed = err.Error()
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("wait for %q health (last: %s): %w", service, observed, ctx.Err())
		case <-timer.C:
		}
		delay = min(delay*2, pollMax)
	}
}

func checkOnce(ctx context.Context, client grpc_health_v1.HealthClient, service string) (grpc_health_v1.HealthCheckResponse_ServingStatus, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeouts.HealthCheck)
	defer cancel()
	response, err := client.Check(callCtx, &grpc_health_v1.HealthCheckRequest{Service: service})
	if err != nil {
		return grpc_health_v1.HealthCheckResponse_UNKNOWN, err
	}
	return response.GetStatus(), nil
}
