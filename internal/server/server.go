// Package server orchestrates all components: service lifecycle, dispatcher,
// optional COMMS transport, metrics and the HTTP listener.
package server

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/service-host/internal/config"
	"github.com/morezero/service-host/pkg/bootstrap"
	"github.com/morezero/service-host/pkg/commsutil"
	"github.com/morezero/service-host/pkg/dispatcher"
	"github.com/morezero/service-host/pkg/events"
	"github.com/morezero/service-host/pkg/lifecycle"
	"github.com/morezero/service-host/pkg/metrics"
	"github.com/morezero/service-host/pkg/servicecache"
	"github.com/morezero/service-host/pkg/services"
)

const logPrefix = "server:server"

// Server hosts one set of services.
type Server struct {
	cfg        *config.Config
	serviceCfg *bootstrap.ServiceConfig
	metrics    *metrics.Metrics

	cache *servicecache.Cache
	orch  *lifecycle.Orchestrator
	logs  *services.LogService
	disp  *dispatcher.Dispatcher

	httpServer *http.Server
}

// NewServerParams holds parameters for NewServer.
type NewServerParams struct {
	Config        *config.Config
	ServiceConfig *bootstrap.ServiceConfig
	// Metrics may be nil.
	Metrics *metrics.Metrics
	// Publisher receives lifecycle phase events; nil publishes nothing.
	Publisher    events.EventPublisher
	UserServices []any
}

// NewServer wires the service cache, the built-in services and the
// orchestrator. Nothing is registered until Start.
func NewServer(params NewServerParams) (*Server, error) {
	if params.Config == nil {
		return nil, fmt.Errorf("%s - config is required", logPrefix)
	}
	serviceCfg := params.ServiceConfig
	if serviceCfg == nil {
		serviceCfg = bootstrap.GetDefaultServiceConfig()
	}

	s := &Server{
		cfg:        params.Config,
		serviceCfg: serviceCfg,
		metrics:    params.Metrics,
		cache:      servicecache.New(),
		logs:       services.NewLogService(nil),
	}

	s.orch = lifecycle.NewOrchestrator(lifecycle.NewOrchestratorParams{
		Host:      params.Config.ServiceName,
		Publisher: params.Publisher,
		Metrics:   params.Metrics,
	})
	if err := s.orch.SetServiceCache(s.cache); err != nil {
		return nil, err
	}
	s.orch.
		SetBuiltInServices(s.logs, services.NewRequestService).
		SetUserServices(params.UserServices...)

	s.disp = dispatcher.NewDispatcher(dispatcher.Options{
		Production: params.Config.IsProduction(),
		Observer:   requestObserver{orch: s.orch},
		Metrics:    params.Metrics,
	})
	return s, nil
}

// Start registers every service and runs the config, init and run phases.
func (s *Server) Start(ctx context.Context) error {
	s.orch.LoadServices(ctx)

	if err := s.orch.ConfigServices(ctx, lifecycle.Config(s.serviceCfg.Sections())); err != nil {
		return fmt.Errorf("%s - failed to configure services: %w", logPrefix, err)
	}
	if err := s.orch.InitServices(ctx); err != nil {
		return fmt.Errorf("%s - failed to initialize services: %w", logPrefix, err)
	}
	if err := s.orch.RunServices(ctx); err != nil {
		return fmt.Errorf("%s - failed to run services: %w", logPrefix, err)
	}
	return nil
}

// PrimaryService returns the name or identifier of the service mounted at the
// HTTP root: PRIMARY_SERVICE, the service config's primary, or the first user
// service.
func (s *Server) PrimaryService() string {
	if s.cfg.PrimaryService != "" {
		return s.cfg.PrimaryService
	}
	if s.serviceCfg.Primary != "" {
		return s.serviceCfg.Primary
	}
	return s.orch.FirstServiceUUID()
}

func (s *Server) getInstance(ctx context.Context, name string) (any, error) {
	return s.cache.Get(ctx, name)
}

// RequestSubject returns the COMMS subject the primary service is served on.
func (s *Server) RequestSubject(ctx context.Context) string {
	if s.cfg.COMMSRequestSubject != "" {
		return s.cfg.COMMSRequestSubject
	}
	name := s.PrimaryService()
	if instance, err := s.cache.Get(ctx, name); err == nil {
		name = servicecache.NameOf(instance)
	}
	return commsutil.BuildRequestSubject(s.cfg.ServiceName, name)
}

// SubscribeComms serves the primary service on RequestSubject.
func (s *Server) SubscribeComms(ctx context.Context, nc *comms.Conn) (*comms.Subscription, error) {
	subject := s.RequestSubject(ctx)
	sub, err := nc.Subscribe(subject, s.disp.CommsHandler(ctx, s.PrimaryService(), s.getInstance, s.cfg.RequestTimeout))
	if err != nil {
		return nil, fmt.Errorf("%s - failed to subscribe to %s: %w", logPrefix, subject, err)
	}
	slog.Info(fmt.Sprintf("%s - Subscribed to %s", logPrefix, subject))
	return sub, nil
}

// requestObserver forwards to the RequestService once it has been resolved.
type requestObserver struct {
	orch *lifecycle.Orchestrator
}

func (o requestObserver) ObserveRequest(rc *dispatcher.RequestContext, status int, elapsed time.Duration) {
	if obs, ok := o.orch.Request().(dispatcher.Observer); ok {
		obs.ObserveRequest(rc, status, elapsed)
	}
}

// Run starts the server, blocks until shutdown signal, then cleans up.
func Run(userServices ...any) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	configureLogging(cfg.LogLevel)

	if err := cfg.ValidateForServe(); err != nil {
		return err
	}

	slog.Info(fmt.Sprintf("%s - Starting %s", logPrefix, cfg.ServiceName))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Step 1: Load service config
	serviceCfg, err := bootstrap.LoadServiceConfig(cfg.ServiceConfigFile)
	if err != nil {
		return fmt.Errorf("%s - failed to load service config: %w", logPrefix, err)
	}

	// Step 2: Metrics
	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		if m, err = metrics.New(""); err != nil {
			return fmt.Errorf("%s - failed to create metrics: %w", logPrefix, err)
		}
	}

	// Step 3: Connect to COMMS (optional)
	var nc *comms.Conn
	var publisher events.EventPublisher = &events.NoOpPublisher{}
	if cfg.COMMSEnabled {
		nc, err = commsutil.Connect(commsutil.ConnectParams{URL: cfg.COMMSURL, Name: cfg.ServiceName})
		if err != nil {
			return fmt.Errorf("%s - failed to connect to COMMS: %w", logPrefix, err)
		}
		publisher = events.NewCommsPublisher(nc, &events.CommsPublisherOpts{GlobalSubject: cfg.COMMSLifecycleSubject})
	}
	closeComms := func() {
		if nc != nil {
			nc.Close()
		}
	}

	// Step 4: Register and start services
	s, err := NewServer(NewServerParams{
		Config:        cfg,
		ServiceConfig: serviceCfg,
		Metrics:       m,
		Publisher:     publisher,
		UserServices:  userServices,
	})
	if err != nil {
		closeComms()
		return err
	}
	if err := s.Start(ctx); err != nil {
		closeComms()
		return err
	}
	slog.Info(fmt.Sprintf("%s - Primary service: %s", logPrefix, s.PrimaryService()))

	// Step 5: Serve the primary service over COMMS
	var sub *comms.Subscription
	if nc != nil {
		if sub, err = s.SubscribeComms(ctx, nc); err != nil {
			closeComms()
			return err
		}
	}

	// Step 6: Start HTTP server
	tlsCfg, err := buildTLSConfig(cfg)
	if err != nil {
		closeComms()
		return err
	}
	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           s.Router(),
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP server listening on %s (tls=%v)", logPrefix, s.httpServer.Addr, tlsCfg != nil))
		var err error
		if tlsCfg != nil {
			err = s.httpServer.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
		}
	}()

	slog.Info(fmt.Sprintf("%s - %s is ready", logPrefix, cfg.ServiceName))

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if sub != nil {
		if err := sub.Unsubscribe(); err != nil {
			slog.Warn(fmt.Sprintf("%s - unsubscribe: %v", logPrefix, err))
		}
	}
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn(fmt.Sprintf("%s - HTTP shutdown: %v", logPrefix, err))
	}
	if nc != nil {
		if err := nc.Drain(); err != nil {
			slog.Warn(fmt.Sprintf("%s - COMMS drain: %v", logPrefix, err))
		}
	}

	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return nil
}

func configureLogging(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

// buildTLSConfig returns nil when TLS is off. With a client CA, presented
// client certificates are verified against it and are otherwise optional.
func buildTLSConfig(cfg *config.Config) (*tls.Config, error) {
	if !cfg.TLSEnabled() {
		return nil, nil
	}
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if cfg.TLSClientCAFile == "" {
		return tlsCfg, nil
	}

	pem, err := os.ReadFile(cfg.TLSClientCAFile)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to read client CA: %w", logPrefix, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("%s - no certificates found in %s", logPrefix, cfg.TLSClientCAFile)
	}
	tlsCfg.ClientCAs = pool
	tlsCfg.ClientAuth = tls.VerifyClientCertIfGiven
	return tlsCfg, nil
}
