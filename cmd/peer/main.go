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
	"whiteboard-sync/internal/discovery"
	"whiteboard-sync/internal/handler"
	"whiteboard-sync/internal/middleware"
	"whiteboard-sync/internal/repository"
	"whiteboard-sync/internal/service"
	"whiteboard-sync/internal/websocket"
	"whiteboard-sync/pkg/logger"

	"github.com/docopt/docopt-go"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const version = "1.0.0"

const usage = `Whiteboard peer.

Serves local boards to other peers and subscribes to boards they share.

Usage:
    peer [--host=<host>] [--port=<port>]
        [--directory-host=<host>] [--directory-port=<port>] [--discover]
    peer -h | --help
    peer --version

Options:
    -h --help                   Show this screen.
    --version                   Show version.
    --host=<host>               Address advertised in board identities.
    -p --port=<port>            Listen port for peers and the control API.
    --directory-host=<host>     Directory service host.
    --directory-port=<port>     Directory service port.
    --discover                  Locate the directory service over mDNS.`

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
	cfg.ApplyFlags(opts)
	if err := cfg.Validate(); err != nil {
		logrus.Fatal(err)
	}
	if err := logger.Setup(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		logrus.Fatal(err)
	}
	log := logrus.WithFields(logrus.Fields{"component": "main", "peer": cfg.PeerAddress()})

	wsManager := websocket.NewManager(websocket.Settings{
		WriteWait:      cfg.WebSocket.WriteWait,
		PongWait:       cfg.WebSocket.PongWait,
		PingPeriod:     cfg.WebSocket.PingPeriod,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		SendBufferSize: cfg.WebSocket.SendBufferSize,
		DialTimeout:    cfg.WebSocket.DialTimeout,
	})
	dial := func(ctx context.Context, address string) (service.Conn, error) {
		client, err := wsManager.Dial(ctx, address)
		if err != nil {
			return nil, err
		}
		return client, nil
	}

	boardRepo := repository.NewBoardRepository()
	subscriptions := service.NewSubscriptionService()
	links := service.NewUpstreamLinks()
	viewer := service.NewViewer(boardRepo, service.NewLogCanvas())

	syncService := service.NewSyncService(boardRepo, subscriptions, links, viewer, cfg.PeerAddress())
	sharingService := service.NewSharingService(boardRepo, links, viewer, dial, cfg.PeerAddress())
	sessionService := service.NewSessionService(subscriptions, sharingService)
	boardService := service.NewBoardService(boardRepo, subscriptions, links, syncService, sharingService, viewer, cfg.Server.Host, cfg.Server.Port)

	peerHandler := handler.NewPeerMessageHandler(sessionService, syncService, sharingService)
	wsManager.SetMessageHandler(peerHandler)
	wsManager.SetLifecycleHandler(peerHandler)

	wsHandler := handler.NewWebSocketHandler(wsManager)
	boardHandler := handler.NewBoardHandler(boardService)

	r := mux.NewRouter()
	r.Use(middleware.LoggerMiddleware(logrus.WithField("component", "http")))
	r.Use(middleware.CORSMiddleware(
		cfg.CORS.AllowedOrigins,
		cfg.CORS.AllowedMethods,
		cfg.CORS.AllowedHeaders,
	))

	boardHandler.Register(r.PathPrefix("/api/v1").Subrouter())
	r.HandleFunc("/ws", wsHandler.HandleConnection)
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":      "healthy",
			"peer":        cfg.PeerAddress(),
			"boards":      len(boardRepo.List()),
			"connections": wsManager.Count(),
		})
	}).Methods("GET")

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Infof("Starting whiteboard peer on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	if _, err := boardService.CreateBoard(); err != nil {
		log.Fatalf("Failed to create initial board: %v", err)
	}

	if err := connectDirectory(cfg, wsManager, sharingService); err != nil {
		log.WithError(err).Warn("Running without a directory service; boards cannot be shared")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down peer...")

	if err := boardService.Shutdown(); err != nil {
		log.WithError(err).Warn("Some boards were not cleanly withdrawn")
	}
	if err := wsManager.CloseAll(); err != nil {
		log.WithError(err).Warn("Some connections did not close cleanly")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Info("Peer stopped gracefully")
}

func connectDirectory(cfg *config.Config, manager *websocket.Manager, sharing *service.SharingService) error {
	address := cfg.DirectoryAddress()
	if cfg.Discovery.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Discovery.Timeout)
		defer cancel()
		host, port, err := discovery.Lookup(ctx, cfg.Discovery.Service)
		if err != nil {
			return err
		}
		address = fmt.Sprintf("%s:%d", host, port)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.WebSocket.DialTimeout)
	defer cancel()
	client, err := manager.Dial(ctx, address)
	if err != nil {
		return err
	}
	sharing.SetDirectory(client)
	logrus.WithFields(logrus.Fields{"component": "main", "directory": address}).Info("Connected to directory service")
	return nil
}
