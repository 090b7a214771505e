// Outline store server
// Serves the outline manager over REST and gRPC with metrics and profiling
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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/nainya/outlinestore/internal/api"
	"github.com/nainya/outlinestore/internal/config"
	"github.com/nainya/outlinestore/internal/logger"
	"github.com/nainya/outlinestore/internal/metrics"
	"github.com/nainya/outlinestore/internal/server"
	"github.com/nainya/outlinestore/pkg/outline"
	"github.com/nainya/outlinestore/pkg/store"
	"github.com/nainya/outlinestore/pkg/store/boltstore"
	"github.com/nainya/outlinestore/pkg/store/filestore"
	"github.com/nainya/outlinestore/pkg/store/sqlitestore"
)

var (
	configPath = flag.String("config", "", "YAML config file")
	httpAddr   = flag.String("http", "", "REST listen address (overrides config)")
	grpcAddr   = flag.String("grpc", "", "gRPC listen address, empty to keep config")
	backend    = flag.String("backend", "", "Store backend: file, bolt, sqlite or memory")
	dataDir    = flag.String("dir", "", "Node directory for the file backend")
	dbPath     = flag.String("db", "", "Database file for the bolt and sqlite backends")
	baseURL    = flag.String("base-url", "", "Base address used in node references")
	logLevel   = flag.String("log-level", "", "debug, info, warn or error")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "outlinestore: %v\n", err)
		os.Exit(1)
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "outlinestore: invalid flags: %v\n", err)
		os.Exit(1)
	}

	log := logger.InitGlobalLogger(logger.Config{
		Level:      cfg.Log.Level,
		Pretty:     cfg.Log.Pretty,
		WithCaller: cfg.Log.Caller,
	})

	if err := run(cfg, log); err != nil {
		log.Error("server exited").Err(err).Send()
		os.Exit(1)
	}
}

func applyFlags(cfg *config.Config) {
	set := func(flagVal string, dst *string) {
		if flagVal != "" {
			*dst = flagVal
		}
	}
	set(*httpAddr, &cfg.Server.HTTPAddr)
	set(*grpcAddr, &cfg.Server.GrpcAddr)
	set(*backend, &cfg.Store.Backend)
	set(*dataDir, &cfg.Store.Dir)
	set(*dbPath, &cfg.Store.Path)
	set(*baseURL, &cfg.Outline.BaseURL)
	set(*logLevel, &cfg.Log.Level)
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.LogServerStart(cfg.Server.HTTPAddr, cfg.Server.GrpcAddr, cfg.Store.Backend)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)
	go m.RunUptime(ctx, 10*time.Second)

	backing, closeStore, err := openStore(cfg.Store)
	if err != nil {
		return err
	}
	defer closeStore()

	st := server.NewInstrumentedStore(backing, m, log)
	mgr := outline.New(cfg.Outline.BaseURL, st, cfg.ManagerOptions())
	log.Info("outline manager ready").
		Str("base_url", cfg.Outline.BaseURL).
		Bool("trust_adjacency", cfg.Outline.TrustAdjacency).
		Str("commit", cfg.ManagerOptions().Commit.String()).
		Send()

	go refreshRecordCount(ctx, st)
	if fs, ok := backing.(*filestore.Store); ok && cfg.Store.Watch {
		go watchFiles(ctx, fs, m, log)
	}

	var auth api.AuthFunc
	if cfg.Auth.JWTSecret != "" {
		auth = api.JWTAuthorizer([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer)
	}
	router := api.NewRouter(mgr, api.Options{
		Auth:        auth,
		Logger:      log,
		Metrics:     m,
		CORSOrigins: cfg.Server.CORSOrigins,
	})
	httpServer := &http.Server{
		Addr:         cfg.Server.HTTPAddr,
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errc := make(chan error, 3)

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("http server: %w", err)
		}
	}()

	var grpcServer *grpc.Server
	if cfg.Server.GrpcAddr != "" {
		lis, err := net.Listen("tcp", cfg.Server.GrpcAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", cfg.Server.GrpcAddr, err)
		}
		interceptors := []grpc.UnaryServerInterceptor{server.GrpcMetricsInterceptor(m, log)}
		if auth != nil {
			interceptors = append(interceptors, server.AuthInterceptor(auth, log))
		}
		grpcServer = grpc.NewServer(
			grpc.ChainUnaryInterceptor(interceptors...),
			grpc.MaxRecvMsgSize(4*1024*1024),
		)
		server.RegisterOutlineServer(grpcServer, server.NewServer(mgr, m))
		// Reflection lets grpcurl discover the service.
		reflection.Register(grpcServer)

		go func() {
			if err := grpcServer.Serve(lis); err != nil {
				errc <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	var obs *server.ObservabilityServer
	if cfg.Server.MetricsPort > 0 {
		ready := func(ctx context.Context) error {
			_, err := backing.Read(ctx, "readiness-probe")
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			return err
		}
		obs = server.NewObservabilityServer(cfg.Server.MetricsPort, reg, ready, log)
		go func() {
			if err := obs.Start(); err != nil {
				errc <- err
			}
		}()
	}

	log.LogServerReady()

	var runErr error
	select {
	case <-ctx.Done():
		log.LogServerShutdown("signal")
	case runErr = <-errc:
		log.LogServerShutdown("listener failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown").Err(err).Send()
	}
	if obs != nil {
		if err := obs.Shutdown(shutdownCtx); err != nil {
			log.Warn("observability shutdown").Err(err).Send()
		}
	}
	return runErr
}

// openStore opens the configured backend and returns it with its closer.
func openStore(cfg config.StoreConfig) (store.Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Backend {
	case "memory":
		return store.NewMemory(), noop, nil
	case "file":
		s, err := filestore.Open(cfg.Dir, filestore.Options{Journal: cfg.Journal})
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "bolt":
		s, err := boltstore.Open(cfg.Path, boltstore.Options{Timeout: 5 * time.Second})
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "sqlite":
		s, err := sqlitestore.Open(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func refreshRecordCount(ctx context.Context, st *server.InstrumentedStore) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		st.RefreshRecordCount(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// watchFiles logs node file changes, including edits made outside this process.
func watchFiles(ctx context.Context, fs *filestore.Store, m *metrics.Metrics, log *logger.Logger) {
	wlog := log.Component("watch")
	err := fs.Watch(ctx, func(c filestore.Change) {
		m.WatchEventsTotal.WithLabelValues(string(c.Kind)).Inc()
		wlog.Info("node file changed").Str("id", c.ID).Str("kind", string(c.Kind)).Send()
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		wlog.Error("watcher stopped").Err(err).Send()
	}
}
