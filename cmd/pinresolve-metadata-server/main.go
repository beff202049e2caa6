package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/bayleafwalker/pinresolve/internal/fetch"
	"github.com/bayleafwalker/pinresolve/internal/metadata"
	"github.com/bayleafwalker/pinresolve/internal/metrics"
)

func main() {
	var listenAddr string
	var metricsAddr string
	var indexPath string
	var indexURL string
	flag.StringVar(&listenAddr, "listen", ":50051", "address to listen on")
	flag.StringVar(&metricsAddr, "metrics-bind-address", ":8080", "address the metrics endpoint binds to, empty to disable")
	flag.StringVar(&indexPath, "index", "", "YAML metadata index to serve")
	flag.StringVar(&indexURL, "index-url", "", "PyPI JSON API consulted for packages missing from the index")

	opts := zap.Options{Development: true}
	opts.BindFlags(flag.CommandLine)
	flag.Parse()

	log.SetLogger(zap.New(zap.UseFlagOptions(&opts)))
	setupLog := log.Log.WithName("setup")

	provider, err := newProvider(indexPath, indexURL)
	if err != nil {
		setupLog.Error(err, "unable to configure metadata provider")
		os.Exit(1)
	}

	lis, err := net.Listen("tcp", listenAddr)
	if err != nil {
		setupLog.Error(err, "unable to listen", "address", listenAddr)
		os.Exit(1)
	}

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(loggingInterceptor))
	metadata.RegisterServer(grpcServer, provider)
	healthServer := health.NewServer()
	healthServer.SetServingStatus(metadata.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	var metricsServer *http.Server
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
		metricsServer = &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				setupLog.Error(err, "metrics server failed")
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		if metricsServer != nil {
			_ = metricsServer.Close()
		}
	}()

	setupLog.Info("serving metadata", "address", listenAddr, "index", indexPath, "indexURL", indexURL)
	if err := grpcServer.Serve(lis); err != nil {
		setupLog.Error(err, "grpc serve")
		os.Exit(1)
	}
}

func newProvider(indexPath, indexURL string) (metadata.Provider, error) {
	var chain metadata.Chain
	if indexPath != "" {
		idx, err := metadata.LoadIndex(indexPath)
		if err != nil {
			return nil, err
		}
		chain = append(chain, idx)
	}
	if indexURL != "" {
		chain = append(chain, metadata.NewPyPI(indexURL, fetch.New()))
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("at least one of -index and -index-url is required")
	}
	return chain, nil
}

func loggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	logger := log.Log.WithName("metadata").WithValues("method", info.FullMethod)
	start := time.Now()
	resp, err := handler(log.IntoContext(ctx, logger), req)
	logger.V(1).Info("handled request", "duration", time.Since(start), "error", err)
	return resp, err
}
