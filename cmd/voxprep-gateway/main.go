package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/voxprep/voxprep/internal/dotenv"
	"github.com/voxprep/voxprep/pkg/gateway/config"
	"github.com/voxprep/voxprep/pkg/gateway/handlers"
	"github.com/voxprep/voxprep/pkg/gateway/report"
	gatewayserver "github.com/voxprep/voxprep/pkg/gateway/server"
	"github.com/voxprep/voxprep/pkg/gateway/store"
	"github.com/voxprep/voxprep/pkg/gateway/tokens"
)

type gatewayDeps struct {
	loadConfig   func() (config.Config, error)
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultGatewayDeps() gatewayDeps {
	return gatewayDeps{
		loadConfig: config.LoadFromEnv,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
	}
}

func buildServerDeps(ctx context.Context, cfg config.Config, logger *slog.Logger) (gatewayserver.Deps, func(), error) {
	cleanup := func() {}

	var st store.Store
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return gatewayserver.Deps{}, nil, fmt.Errorf("connect postgres: %w", err)
		}
		st = pg
		cleanup = pg.Close
	} else {
		logger.Warn("VOXPREP_DATABASE_URL not set, using in-memory store")
		st = store.NewMemory()
	}

	var minter tokens.Minter
	if cfg.MintTokens {
		m, err := tokens.NewGemini(ctx, cfg.GeminiAPIKey, cfg.Model, cfg.TokenTTL)
		if err != nil {
			cleanup()
			return gatewayserver.Deps{}, nil, fmt.Errorf("token minter: %w", err)
		}
		minter = m
	} else {
		logger.Warn("token minting disabled, handing the API key to clients")
		minter = tokens.Static{Credential: cfg.GeminiAPIKey}
	}

	writer, err := report.NewGemini(ctx, cfg.GeminiAPIKey, cfg.ReportModel)
	if err != nil {
		cleanup()
		return gatewayserver.Deps{}, nil, fmt.Errorf("report writer: %w", err)
	}

	questions, err := handlers.LoadQuestions(cfg.QuestionsFile)
	if err != nil {
		cleanup()
		return gatewayserver.Deps{}, nil, err
	}

	return gatewayserver.Deps{
		Store:     st,
		Minter:    minter,
		Reports:   writer,
		Questions: questions,
	}, cleanup, nil
}

func runGateway(ctx context.Context, logger *slog.Logger, deps gatewayDeps) error {
	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	serverDeps, cleanup, err := buildServerDeps(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	gw := gatewayserver.New(cfg, logger, serverDeps)
	httpSrv := buildHTTPServer(cfg, gw.Handler())

	logger.Info("starting gateway", "addr", cfg.Addr, "auth_mode", cfg.AuthMode, "model", cfg.Model)

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("gateway stopped")
	return nil
}

func runMain(ctx context.Context, stderr io.Writer, deps gatewayDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	if err := dotenv.LoadFile(".env"); err != nil {
		fmt.Fprintf(stderr, "voxprep-gateway: %v\n", err)
		return 1
	}

	if err := runGateway(ctx, logger, deps); err != nil {
		fmt.Fprintf(stderr, "voxprep-gateway: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, defaultGatewayDeps()))
}
