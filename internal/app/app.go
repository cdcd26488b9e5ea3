package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/DRSN-tech/image-metadata/internal/cfg"
	v1Grpc "github.com/DRSN-tech/image-metadata/internal/delivery/v1/grpc"
	v1Http "github.com/DRSN-tech/image-metadata/internal/delivery/v1/http"
	"github.com/DRSN-tech/image-metadata/internal/infrastructure/connection"
	"github.com/DRSN-tech/image-metadata/internal/infrastructure/kafka"
	"github.com/DRSN-tech/image-metadata/pkg/closer"
	"github.com/DRSN-tech/image-metadata/pkg/e"
	"github.com/DRSN-tech/image-metadata/pkg/logger"
	"github.com/DRSN-tech/image-metadata/pkg/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/jimlawless/whereami"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const metricsNamespace = "image_metadata"

// App — долгоживущий воркер: Kafka-консьюмер плюс ops-интерфейсы HTTP и gRPC.
type App struct {
	cfg      *cfg.Config
	logger   logger.Logger
	closer   *closer.Closer
	manager  *connection.Manager
	consumer *kafka.Consumer
	httpSrv  *v1Http.Server
	grpcSrv  *v1Grpc.GRPCServer
}

func NewApp(config *cfg.Config, log logger.Logger) (*App, error) {
	ctx := context.Background()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewProm(metricsNamespace, reg)

	grpcSrv := v1Grpc.NewGRPCServer(config.Grpc, log.With("component", "grpc"))
	healthHook := v1Grpc.ConnectionStateHook(grpcSrv.Health())

	uc, mgr, err := initMetadataUC(ctx, config, log, m, connection.WithStateHook(healthHook))
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	healthHook(mgr.State())

	dlq, err := initDeadLetters(ctx, config, log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	consumer := kafka.NewConsumer(config.Kafka, config.Worker.ProcessTimeout, uc, dlq.sink, log.With("component", "consumer"), m)

	router := chi.NewRouter()
	v1Http.NewRouter(router, log).Init(v1Http.NewOpsHandler(mgr, dlq.lister, log), metrics.Handler(reg))
	httpSrv := v1Http.NewServer(router, config.Http)

	// LIFO: консьюмер останавливается первым, соединение с БД закрывается последним
	cl := closer.NewCloser(0, log)
	cl.Add("postgres", mgr.Close)
	cl.Add("dlq", dlq.close)
	cl.Add("grpc server", grpcSrv.Stop)
	cl.Add("http server", httpSrv.Stop)
	cl.Add("kafka consumer", consumer.Stop)

	return &App{
		cfg:      config,
		logger:   log,
		closer:   cl,
		manager:  mgr,
		consumer: consumer,
		httpSrv:  httpSrv,
		grpcSrv:  grpcSrv,
	}, nil
}

// Run блокируется до SIGINT/SIGTERM или падения одного из серверов, затем
// останавливает компоненты в пределах SHUTDOWN_TIMEOUT.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErrors := make(chan error, 2)

	go func() {
		a.logger.Infof("Starting gRPC server on port %s", a.cfg.Grpc.Port)
		if err := a.grpcSrv.Start(); err != nil {
			serverErrors <- e.Wrap("gRPC server", err)
		}
	}()

	go func() {
		a.logger.Infof("Starting HTTP server on port %s", a.cfg.Http.Port)
		if err := a.httpSrv.Run(); err != nil {
			serverErrors <- e.Wrap("HTTP server", err)
		}
	}()

	a.consumer.Start(ctx)

	var runErr error
	select {
	case runErr = <-serverErrors:
		a.logger.Errorf(runErr, "Server failed, shutting down")
	case <-ctx.Done():
		a.logger.Infof("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Worker.ShutdownTimeout)
	defer cancel()

	if err := a.closer.Close(shutdownCtx); err != nil {
		a.logger.Errorf(err, "Graceful shutdown failed")
		return errors.Join(runErr, err)
	}

	a.logger.Infof("Worker stopped, last connection state: %s", a.manager.State())
	return runErr
}
