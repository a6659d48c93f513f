// ABOUTME: Gateway orchestrator that wires storage, authorization and the wallet behind gRPC
// ABOUTME: Manages the gRPC and HTTP health servers, telemetry and store lifecycle

package gateway

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"

	"github.com/2389/wallet-gateway/internal/auth"
	"github.com/2389/wallet-gateway/internal/authz"
	"github.com/2389/wallet-gateway/internal/capability"
	"github.com/2389/wallet-gateway/internal/clock"
	"github.com/2389/wallet-gateway/internal/config"
	"github.com/2389/wallet-gateway/internal/diag"
	"github.com/2389/wallet-gateway/internal/events"
	"github.com/2389/wallet-gateway/internal/interaction"
	"github.com/2389/wallet-gateway/internal/pipeline"
	"github.com/2389/wallet-gateway/internal/rpc"
	"github.com/2389/wallet-gateway/internal/telemetry"
	"github.com/2389/wallet-gateway/internal/wallet"
)

// Gateway owns every long-lived component of a running wallet gateway.
type Gateway struct {
	config     *config.Config
	storage    *storage
	engine     *authz.Engine
	wallet     *wallet.Wallet
	grpcServer *grpc.Server
	httpServer *http.Server
	telemetry  *telemetry.Provider
	logger     *slog.Logger

	requests     *events.Broadcaster[authz.Request]
	interactions *events.Broadcaster[interaction.Interaction]
	diagnostics  *events.Broadcaster[diag.Export]
}

// DialExecutor connects to the execution node named in cfg.
func DialExecutor(cfg config.ExecutorConfig) (*grpc.ClientConn, error) {
	creds := credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	if cfg.Insecure {
		creds = insecure.NewCredentials()
	}
	conn, err := grpc.NewClient(cfg.Addr, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("dialing executor %s: %w", cfg.Addr, err)
	}
	return conn, nil
}

// createGRPCServer creates a gRPC server that authenticates every call.
func createGRPCServer(tokens auth.TokenVerifier, logger *slog.Logger) *grpc.Server {
	server := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    15 * time.Second,
			Timeout: 5 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.ChainUnaryInterceptor(auth.UnaryInterceptor(tokens, logger)),
		grpc.ChainStreamInterceptor(auth.StreamInterceptor(tokens, logger)),
	)
	logger.Info("auth interceptors enabled (JWT)")
	return server
}

// New creates a Gateway. exec performs the wallet work; the caller owns its
// connection.
func New(ctx context.Context, cfg *config.Config, exec wallet.Executor, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	tp, err := telemetry.New(ctx, telemetry.Config{
		Enabled:      cfg.Telemetry.Enabled,
		ServiceName:  cfg.Telemetry.ServiceName,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		Insecure:     cfg.Telemetry.Insecure,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}
	metrics, err := telemetry.NewMetrics(nil)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("creating metrics: %w", err)
	}

	st, err := openStorage(ctx, cfg.Storage, logger)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}

	tokens, err := auth.NewJWTIssuer([]byte(cfg.Auth.JWTSecret), clock.Real())
	if err != nil {
		_ = st.close()
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("creating token verifier: %w", err)
	}

	requests := events.NewBroadcaster[authz.Request]("authorizations", logger)
	interactions := events.NewBroadcaster[interaction.Interaction]("interactions", logger)
	diagnostics := events.NewBroadcaster[diag.Export]("diagnostics", logger)

	caps := capability.NewStore(st.kv, capability.Options{
		DefaultMode: capability.Mode(cfg.Authorization.DefaultMode),
		Logger:      logger,
	})
	engine := authz.New(authz.Options{
		Capabilities: caps,
		Requests:     requests,
		Recorder:     st.decisions,
		Metrics:      metrics,
		Timeout:      cfg.Authorization.RequestTimeout,
		MaxPending:   cfg.Authorization.MaxPending,
		ResolvedTTL:  cfg.Authorization.ResolvedTTL,
		Logger:       logger,
	})
	tracker := interaction.NewTracker(st.journal, interactions, clock.Real(), clock.UUIDGenerator{}, logger)
	runner := pipeline.NewRunner(pipeline.Config{
		Authorizer: engine,
		Tracker:    tracker,
		Metrics:    metrics,
		Logger:     logger,
	})
	exporter := diag.NewExporter(diagnostics, clock.Real(), clock.UUIDGenerator{}, 0, logger)
	w, err := wallet.New(wallet.Config{
		Runner:       runner,
		Executor:     exec,
		Capabilities: caps,
		Diagnostics:  exporter,
		Logger:       logger,
	})
	if err != nil {
		_ = st.close()
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("creating wallet: %w", err)
	}

	gw := &Gateway{
		config:       cfg,
		storage:      st,
		engine:       engine,
		wallet:       w,
		grpcServer:   createGRPCServer(tokens, logger),
		telemetry:    tp,
		logger:       logger.With("component", "gateway"),
		requests:     requests,
		interactions: interactions,
		diagnostics:  diagnostics,
	}

	rpc.Register(gw.grpcServer, rpc.NewServer(rpc.Config{
		Wallet:       w,
		Engine:       engine,
		Tracker:      tracker,
		Decisions:    st.decisions,
		Requests:     requests,
		Interactions: interactions,
		Diagnostics:  diagnostics,
		Exporter:     exporter,
		Logger:       logger,
	}))

	// Health endpoints - no auth required
	mux := http.NewServeMux()
	mux.HandleFunc("/health", gw.handleHealth)
	mux.HandleFunc("/health/ready", gw.handleReady)
	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// setupListeners creates TCP listeners for gRPC and, when configured, HTTP.
func (g *Gateway) setupListeners() (grpcLn, httpLn net.Listener, err error) {
	g.logger.Info("starting gateway",
		"grpc_addr", g.config.Server.GRPCAddr,
		"http_addr", g.config.Server.HTTPAddr,
	)

	grpcLn, err = net.Listen("tcp", g.config.Server.GRPCAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("listening on gRPC address: %w", err)
	}
	if g.config.Server.HTTPAddr == "" {
		return grpcLn, nil, nil
	}

	httpLn, err = net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		_ = grpcLn.Close()
		return nil, nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return grpcLn, httpLn, nil
}

// startServers starts the servers in goroutines, returning their error channel.
// A nil httpLn leaves the health server off.
func (g *Gateway) startServers(grpcLn, httpLn net.Listener) chan error {
	errCh := make(chan error, 2)

	go func() {
		g.logger.Info("gRPC server listening", "addr", grpcLn.Addr().String())
		if err := g.grpcServer.Serve(grpcLn); err != nil {
			errCh <- fmt.Errorf("gRPC server: %w", err)
		}
	}()

	if httpLn != nil {
		go func() {
			g.logger.Info("HTTP server listening", "addr", httpLn.Addr().String())
			if err := g.httpServer.Serve(httpLn); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("HTTP server: %w", err)
			}
		}()
	}

	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		g.drainErrors(errCh)
		return err
	}
}

// drainErrors drains any remaining errors from the channel.
func (g *Gateway) drainErrors(errCh chan error) {
	select {
	case additionalErr := <-errCh:
		g.logger.Error("additional server error", "error", additionalErr)
	default:
	}
}

// Run listens on the configured addresses and blocks until ctx is canceled.
// Returns nil on graceful shutdown, or an error if a server fails.
func (g *Gateway) Run(ctx context.Context) error {
	grpcLn, httpLn, err := g.setupListeners()
	if err != nil {
		return err
	}
	return g.Serve(ctx, grpcLn, httpLn)
}

// Serve runs the servers on the given listeners until ctx is canceled, then
// shuts the gateway down. httpLn may be nil.
func (g *Gateway) Serve(ctx context.Context, grpcLn, httpLn net.Listener) error {
	errCh := g.startServers(grpcLn, httpLn)
	serverErr := g.waitForShutdownSignal(ctx, errCh)

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// shutdownGRPCServer gracefully stops the gRPC server or force-stops on context cancel.
// Watch streams only end when their broadcaster closes, so those are closed first.
func (g *Gateway) shutdownGRPCServer(ctx context.Context) {
	g.requests.Close()
	g.interactions.Close()
	g.diagnostics.Close()

	stopped := make(chan struct{})
	go func() {
		g.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		g.grpcServer.Stop()
	}
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown gracefully stops all gateway servers and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway", "pending", len(g.engine.Pending()))

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	g.shutdownGRPCServer(ctx)

	errs = appendCloseError(errs, "store close", g.storage.close())
	errs = appendCloseError(errs, "telemetry shutdown", g.telemetry.Shutdown(ctx))

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK if the approval store is reachable.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := g.storage.ping(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = fmt.Fprintf(w, "store unavailable: %v", err)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d pending)", len(g.engine.Pending()))
}
