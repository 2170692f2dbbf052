package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "hivemind/docs"
	"hivemind/internal/config"
	"hivemind/internal/domain/hivemind"
	"hivemind/internal/domain/user"
	api "hivemind/internal/http"
	"hivemind/internal/metrics"
	"hivemind/internal/platform/btc"
	jwtpkg "hivemind/internal/platform/jwt"
	"hivemind/internal/worker"
)

// @title           Hivemind API
// @version         1.0
// @description     Ranked-choice consensus on content-addressed questions
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in              header
// @name            Authorization
func main() {
	cfg := config.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	api.SetLogger(logger)
	metrics.Register()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openBackend(ctx, cfg)
	if err != nil {
		log.Fatalf("store connect error: %v", err)
	}
	defer store.Close()

	params, err := btc.ParamsForNetwork(cfg.BTCNetwork)
	if err != nil {
		log.Fatalf("bitcoin network: %v", err)
	}

	engine := hivemind.NewEngine(store, hivemind.WithAddressValidator(btc.NewAddressValidator(params)))
	opts := []hivemind.ServiceOption{hivemind.WithLogger(logger)}
	if cfg.VerifySignatures {
		opts = append(opts, hivemind.WithSignatureVerifier(btc.NewMessageVerifier(params)))
	} else {
		logger.Warn("opinion signatures are not verified")
	}
	hiveSvc := hivemind.NewService(engine, store, opts...)

	if cfg.CoordinatorPasswordHash == "" {
		logger.Warn("COORDINATOR_PASSWORD_HASH not set, coordinator login disabled")
	}
	userSvc := user.NewService(user.NewStaticRepository(user.User{
		Name:         cfg.CoordinatorName,
		PasswordHash: cfg.CoordinatorPasswordHash,
		Role:         user.RoleCoordinator,
	}))

	jwtMgr := jwtpkg.NewManager(cfg.JWTSecret, cfg.JWTIssuer)

	recalcCh := make(chan worker.OpinionEvent, cfg.RecalcQueueSize)
	resultsWorker := worker.NewResultsWorker(recalcCh, hiveSvc, logger)

	router := api.NewRouter(hiveSvc, userSvc, jwtMgr, recalcCh, store)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	workerDone := make(chan struct{})
	go func() {
		resultsWorker.Run(ctx)
		close(workerDone)
	}()

	go func() {
		logger.Info("server listening", "port", cfg.Port, "backend", cfg.StoreBackend, "network", params.Name)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "err", err)
	}

	cancel()
	<-workerDone

	logger.Info("server stopped")
}
