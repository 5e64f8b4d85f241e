package main

import (
	"context"
	"errors"
	"log"
	oshttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"neonchat/internal/admin"
	"neonchat/internal/config"
	"neonchat/internal/http"
	"neonchat/internal/mirror"
	"neonchat/internal/rooms"
	"neonchat/internal/rtdb"
	"neonchat/internal/session"

	"golang.org/x/sync/errgroup"
)

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	store, err := rtdb.Open(cfg.DBFile)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	mir, err := mirror.Open(cfg.MirrorDSN)
	if err != nil {
		return err
	}

	verifier, err := session.NewVerifier(store)
	if err != nil {
		return err
	}

	sessions, err := session.NewManager(ctx, store, mir, verifier, session.Config{
		AdminUser:     cfg.AdminUser,
		AdminPassword: cfg.AdminPassword,
		TokenExpiry:   cfg.TokenExpiry,
	})
	if err != nil {
		return err
	}

	registry := rooms.NewRegistry(store, mir)
	console := admin.NewConsole(store, mir, sessions, verifier, registry)

	apiServer := http.NewAPIServer(sessions, store, mir, registry, cfg.APIAddr)
	adminServer := http.NewAdminServer(sessions, console, cfg.AdminAddr)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := apiServer.Start()
		if err != nil && err != oshttp.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		err := adminServer.Start()
		if err != nil && err != oshttp.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		log.Println("Shutting down servers...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("API server shutdown error: %v", err)
		}
		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Admin server shutdown error: %v", err)
		}
		return nil
	})

	return g.Wait()
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Application error: %v", err)
	}
}
