// Package transport exposes gRPC/HTTP handlers.
package transport

import (
	"github.com/goodnatureofminers/blockinsight7000-ledger/internal/account/service/ingester"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// SyncHealth publishes the sync orchestrator state through the gRPC health service.
// The service is SERVING only while the ledger follows the chain in real time.
type SyncHealth struct {
	server  *health.Server
	service string
}

// NewSyncHealth returns a SyncHealth reporting under service and under the server-wide "" name.
func NewSyncHealth(server *health.Server, service string) *SyncHealth {
	h := &SyncHealth{server: server, service: service}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// OnStateChange implements ingester.StateListener.
func (h *SyncHealth) OnStateChange(state ingester.State) {
	if state == ingester.StateRealTime {
		h.set(healthpb.HealthCheckResponse_SERVING)
		return
	}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	if state.Terminal() {
		h.server.Shutdown()
	}
}

func (h *SyncHealth) set(status healthpb.HealthCheckResponse_ServingStatus) {
	h.server.SetServingStatus("", status)
	h.server.SetServingStatus(h.service, status)
}
