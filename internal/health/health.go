// Package health probes the storefront's dependencies and publishes the result
// through the gRPC health protocol and the HTTP /health endpoint.
package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const probeTimeout = 2 * time.Second

// Check returns nil when the dependency is usable.
type Check func(ctx context.Context) error

type Monitor struct {
	server   *health.Server
	interval time.Duration
	logger   *zap.Logger

	mu     sync.RWMutex
	checks map[string]Check
	status map[string]error
}

func NewMonitor(interval time.Duration, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Monitor{
		server:   health.NewServer(),
		interval: interval,
		logger:   logger,
		checks:   make(map[string]Check),
		status:   make(map[string]error),
	}
}

func (m *Monitor) Register(name string, check Check) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[name] = check
}

// Run probes immediately and then on every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	m.Probe(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.Probe(ctx)
		case <-ctx.Done():
			m.server.Shutdown()
			return
		}
	}
}

func (m *Monitor) Probe(ctx context.Context) {
	m.mu.RLock()
	checks := make(map[string]Check, len(m.checks))
	for name, check := range m.checks {
		checks[name] = check
	}
	m.mu.RUnlock()

	results := make(map[string]error, len(checks))
	healthy := true
	for name, check := range checks {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := check(probeCtx)
		cancel()

		results[name] = err
		servingStatus := healthpb.HealthCheckResponse_SERVING
		if err != nil {
			healthy = false
			servingStatus = healthpb.HealthCheckResponse_NOT_SERVING
			m.logger.Warn("dependency unhealthy", zap.String("dependency", name), zap.Error(err))
		}
		m.server.SetServingStatus(name, servingStatus)
	}

	overall := healthpb.HealthCheckResponse_SERVING
	if !healthy {
		overall = healthpb.HealthCheckResponse_NOT_SERVING
	}
	m.server.SetServingStatus("", overall)

	m.mu.Lock()
	m.status = results
	m.mu.Unlock()
}

// Report returns the last probe result per dependency and whether all were healthy.
func (m *Monitor) Report() (map[string]string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.status))
	for name := range m.status {
		names = append(names, name)
	}
	sort.Strings(names)

	report := make(map[string]string, len(names))
	healthy := true
	for _, name := range names {
		if err := m.status[name]; err != nil {
			report[name] = err.Error()
			healthy = false
			continue
		}
		report[name] = "ok"
	}
	return report, healthy
}

// NewGRPCServer serves the health protocol with tracing and reflection enabled.
func NewGRPCServer(m *Monitor) *grpc.Server {
	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthpb.RegisterHealthServer(grpcServer, m.server)

	// Enable reflection for grpcurl/grpcui
	reflection.Register(grpcServer)
	return grpcServer
}
