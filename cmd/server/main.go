package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/roomchat/internal/config"
	"github.com/Tyrowin/roomchat/internal/logging"
	"github.com/Tyrowin/roomchat/internal/registry"
	"github.com/Tyrowin/roomchat/internal/router"
	"github.com/Tyrowin/roomchat/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env file is fine; the environment alone is enough.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	log.Logger = logger

	reg := registry.New(logger)
	rt := router.New(reg, logger)
	listener := server.NewListener(rt, server.LimitsFromConfig(cfg), logger)
	origins := server.NewOriginPolicy(cfg.Origins(), logger)
	handlers := server.NewHandlers(listener, reg, origins, cfg.StaticDir, logger)
	httpServer := server.CreateServer(cfg.Addr(), server.SetupRoutes(handlers, cfg.GinMode))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.StartServer(httpServer, logger); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen on %s: %w", httpServer.Addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")
		return errors.Join(
			server.ShutdownServer(httpServer, cfg.ShutdownTimeout, logger),
			listener.Shutdown(cfg.ShutdownTimeout),
		)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info().Msg("server exited gracefully")
	return nil
}
