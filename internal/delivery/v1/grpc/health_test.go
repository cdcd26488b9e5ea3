package grpc

import (
	"context"
	"testing"

	"github.com/DRSN-tech/image-metadata/internal/infrastructure/connection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func check(t *testing.T, h *health.Server, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()

	resp, err := h.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestConnectionStateHook(t *testing.T) {
	h := health.NewServer()
	hook := ConnectionStateHook(h)

	hook(connection.Bootstrapping)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, h, MetadataServiceName))

	hook(connection.Failed)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, h, MetadataServiceName))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, h, ""))

	hook(connection.Ready)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, h, MetadataServiceName))
}

func TestServingStatus(t *testing.T) {
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, servingStatus(connection.Uninitialized))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, servingStatus(connection.Ready))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, servingStatus(connection.Failed))
}
