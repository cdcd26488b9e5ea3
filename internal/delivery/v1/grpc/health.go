package grpc

import (
	"github.com/DRSN-tech/image-metadata/internal/infrastructure/connection"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// MetadataServiceName — имя сервиса в grpc.health.v1.
const MetadataServiceName = "image-metadata.Worker"

// ConnectionStateHook публикует состояние соединения с хранилищем
// как статус сервиса и общий статус сервера ("").
func ConnectionStateHook(h *health.Server) connection.StateHook {
	return func(s connection.State) {
		status := servingStatus(s)
		h.SetServingStatus("", status)
		h.SetServingStatus(MetadataServiceName, status)
	}
}

// servingStatus: соединение поднимается лениво, поэтому NOT_SERVING только после неудачного bootstrap.
func servingStatus(s connection.State) healthpb.HealthCheckResponse_ServingStatus {
	if s == connection.Failed {
		return healthpb.HealthCheckResponse_NOT_SERVING
	}

	return healthpb.HealthCheckResponse_SERVING
}
