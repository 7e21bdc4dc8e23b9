package cmd

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/spf13/cobra"

	"matching_service/config"
	"matching_service/metrics"
	"matching_service/routes"
	"matching_service/services"
	"matching_service/socket"
	"matching_service/utils"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the matching service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	// Initialize Redis client and queue store
	log.Println("Initializing Redis client...")
	client := services.InitializeRedisClient(cfg.Redis)
	defer client.Close()
	store := services.NewRedisService(client, cfg.Match.TTL, cfg.Redis.DB)
	if err := store.Ping(ctx); err != nil {
		return err
	}
	if cfg.Redis.ConfigureNotifications {
		if err := store.EnableExpiryNotifications(ctx); err != nil {
			return err
		}
	}
	log.Printf("Redis client initialized at %s.", cfg.Redis.Addr)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// Initialize Services
	notifier := &socket.Notifier{Registry: socket.NewRegistry(), Metrics: m, CloseGrace: cfg.Server.CloseGrace}
	matchService := &services.MatchService{
		Store:          store,
		Resolver:       services.Resolver{Taxonomy: cfg.Taxonomy},
		Notifier:       notifier,
		Metrics:        m,
		FanoutLimit:    cfg.Match.FanoutLimit,
		PairingTimeout: cfg.Match.PairingTimeout,
	}
	watcher := &services.ExpiryWatcher{
		Store:         store,
		Source:        store,
		Notifier:      notifier,
		Metrics:       m,
		SweepInterval: cfg.Match.SweepInterval,
	}
	verifier := &utils.TokenVerifier{Secret: []byte(cfg.Auth.JWTSecret), AllowedRoles: cfg.Auth.AllowedRoles}

	corsOptions := cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}
	originChecker := cors.New(corsOptions)
	socketServer := socket.NewSocketServer(notifier, verifier, matchService, m, func(r *http.Request) bool {
		return originChecker.OriginAllowed(r)
	})
	go func() {
		if err := socketServer.Serve(); err != nil {
			log.Printf("❌ Socket server stopped: %v", err)
		}
	}()
	defer socketServer.Close()

	watchErr := make(chan error, 1)
	go func() {
		watchErr <- watcher.Run(ctx)
	}()

	// Initialize the router
	r := mux.NewRouter()
	var httpVerifier *utils.TokenVerifier
	if cfg.Auth.ProtectHTTP {
		httpVerifier = verifier
	}
	routes.RegisterMatchRoutes(r, matchService, httpVerifier)
	routes.RegisterSystemRoutes(r, store, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), cfg.Server.SocketPath, socketServer)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: cors.New(corsOptions).Handler(r),
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Printf("Starting server on port %s...", cfg.Server.Port)
		serveErr <- srv.ListenAndServe()
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Println("Shutting down...")
	case err := <-watchErr:
		if !errors.Is(err, context.Canceled) {
			runErr = err
			log.Printf("❌ Expiry watcher stopped: %v", err)
		}
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️ HTTP shutdown: %v", err)
	}
	matchService.Wait()
	return runErr
}
