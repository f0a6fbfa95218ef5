package main

import (
	"context"
	"errors"
	"flag"
	"log"
	oshttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ogonyok/internal/api"
	"ogonyok/internal/auth"
	"ogonyok/internal/chat"
	"ogonyok/internal/commands"
	"ogonyok/internal/config"
	"ogonyok/internal/group"
	"ogonyok/internal/http"
	"ogonyok/internal/media"
	"ogonyok/internal/presence"
	"ogonyok/internal/rooms"
	"ogonyok/internal/storage"
	"ogonyok/internal/ws"

	"golang.org/x/sync/errgroup"
)

func run(ctx context.Context, addUser string) error {
	cfg, err := config.Load(addUser != "")
	if err != nil {
		return err
	}

	if addUser != "" {
		return commands.AddUser(addUser, cfg)
	}

	store, err := storage.NewBboltStorage(cfg.DBFile)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	tokenService := auth.NewTokenService(ctx, cfg.TokenExpiry)

	mediaStore, err := media.NewLocalStore(cfg.UploadsPath, cfg.BaseURL)
	if err != nil {
		return err
	}

	groupManager := group.NewManager(store, group.Config{
		Lifetime:     cfg.GroupLifetime,
		Extension:    cfg.GroupExtend,
		InviteExpiry: cfg.InviteExpiry,
		BaseURL:      cfg.BaseURL,
	})
	defer groupManager.Close()

	registry := presence.NewRegistry()
	bridge := rooms.NewBridge()

	hub := ws.NewHub(registry, bridge, groupManager)
	chatService := chat.NewService(store, groupManager, registry, bridge, hub, mediaStore)
	hub.SetFanout(chatService)
	groupManager.OnDeleted(hub.CloseRoom)

	// Sweep groups that expired while the process was down and re-arm
	// expiry timers for the rest.
	if err := groupManager.Rehydrate(); err != nil {
		return err
	}

	wsServer := ws.NewServer(tokenService, hub)
	apiHandlers := api.New(tokenService, groupManager, chatService, mediaStore, store)
	adminHandler := api.NewAdminHandler(tokenService, store, cfg.AuthSecret)

	apiServer := http.NewAPIServer(apiHandlers, wsServer, cfg.APIAddr)
	adminServer := http.NewAdminServer(adminHandler, cfg.AdminAddr)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := adminServer.Start()
		if err != nil && err != oshttp.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		err := apiServer.Start()
		if err != nil && err != oshttp.ErrServerClosed {
			return err
		}
		return nil
	})

	// Wait for context cancellation (signal)
	g.Go(func() error {
		<-gCtx.Done()
		log.Println("Shutting down servers...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Admin server shutdown error: %v", err)
		}
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("API server shutdown error: %v", err)
		}
		return nil
	})

	return g.Wait()
}

func main() {
	addUser := flag.String("add-user", "", "Display name to provision (creates user and prints its session token)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *addUser); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Application error: %v", err)
	}
}
