package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"whiteboard-sync/internal/config"
	"whiteboard-sync/internal/directory"
	"whiteboard-sync/internal/discovery"
	"whiteboard-sync/internal/handler"
	"whiteboard-sync/internal/middleware"
	"whiteboard-sync/internal/websocket"
	"whiteboard-sync/pkg/logger"

	"github.com/docopt/docopt-go"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const version = "1.0.0"

const usage = `Whiteboard directory.

Tells every connected peer which boards are shared.

Usage:
    directory [--port=<port>] [--discover]
    directory -h | --help
    directory --version

Options:
    -h --help            Show this screen.
    --version            Show version.
    -p --port=<port>     Listen port.
    --discover           Advertise the directory over mDNS.`

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], version)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	if port, err := opts.Int("--port"); err == nil {
		cfg.Directory.Port = port
	}
	if discover, _ := opts.Bool("--discover"); discover {
		cfg.Discovery.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		logrus.Fatal(err)
	}
	if err := logger.Setup(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		logrus.Fatal(err)
	}
	log := logrus.WithField("component", "main")

	wsManager := websocket.NewManager(websocket.Settings{
		WriteWait:      cfg.WebSocket.WriteWait,
		PongWait:       cfg.WebSocket.PongWait,
		PingPeriod:     cfg.WebSocket.PingPeriod,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		SendBufferSize: cfg.WebSocket.SendBufferSize,
		DialTimeout:    cfg.WebSocket.DialTimeout,
	})

	registry := directory.NewRegistry()
	directoryService := directory.NewService(registry)
	directoryHandler := directory.NewHandler(directoryService)
	wsManager.SetMessageHandler(directoryHandler)
	wsManager.SetLifecycleHandler(directoryHandler)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("Failed to connect to Redis at %s: %v", cfg.Redis.Addr, err)
		}
		relay := directory.NewRelay(rdb, cfg.Redis.Channel)
		directoryService.SetRelay(relay)
		go func() {
			if err := relay.Run(ctx, directoryService); err != nil {
				log.WithError(err).Error("Relay stopped")
			}
		}()
		defer rdb.Close()
	}

	if cfg.Discovery.Enabled {
		hostname, _ := os.Hostname()
		server, err := discovery.Advertise("whiteboard-directory-"+hostname, cfg.Discovery.Service, cfg.Directory.Port)
		if err != nil {
			log.Fatalf("Failed to advertise directory: %v", err)
		}
		defer server.Shutdown()
	}

	wsHandler := handler.NewWebSocketHandler(wsManager)

	r := mux.NewRouter()
	r.Use(middleware.LoggerMiddleware(logrus.WithField("component", "http")))
	r.HandleFunc("/ws", wsHandler.HandleConnection)
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "healthy",
			"peers":  directoryService.Peers(),
			"shared": len(registry.List()),
		})
	}).Methods("GET")

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Directory.Port),
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Infof("Starting whiteboard directory on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down directory...")
	stop()

	if err := wsManager.CloseAll(); err != nil {
		log.WithError(err).Warn("Some connections did not close cleanly")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Info("Directory stopped gracefully")
}
