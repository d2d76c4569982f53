package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/redis/go-redis/v9"

	"collabtext/internal/config"
	"collabtext/internal/document"
	"collabtext/internal/notify"
	"collabtext/internal/server"
	"collabtext/internal/storage"
)

// app holds everything built at startup. There is no global mutable state;
// shutdown releases the pieces in reverse construction order.
type app struct {
	cfg      config.Config
	store    storage.EventStore
	rdb      *redis.Client
	pub      notify.Publisher
	registry *document.Registry
	http     *http.Server
	mdns     *zeroconf.Server
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		store.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
	}
	log.Println("connected to redis")

	pub := notify.NewRedisPublisher(rdb)
	registry := document.NewRegistry(store, pub, document.Options{
		HistoryWindow: cfg.HistoryWindow,
		SnapshotEvery: cfg.SnapshotEvery,
	})
	handler := server.NewHandler(registry, notify.NewRedisSubscriber(rdb), cfg.SubmitTimeout)

	return &app{
		cfg:      cfg,
		store:    store,
		rdb:      rdb,
		pub:      pub,
		registry: registry,
		http:     &http.Server{Addr: cfg.ListenAddr, Handler: handler.Router()},
	}, nil
}

func openStore(ctx context.Context, cfg config.Config) (storage.EventStore, error) {
	switch cfg.Store {
	case config.StoreMemory:
		log.Println("using in-memory event store; documents will not survive restarts")
		return storage.NewMemoryStore(), nil
	case config.StoreBolt:
		log.Printf("using bolt event store at %s", cfg.BoltPath)
		return storage.NewBoltStore(cfg.BoltPath)
	case config.StorePostgres:
		store, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		log.Println("connected to postgres")
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store)
	}
}

func (a *app) run() error {
	if a.cfg.MDNSAnnounce {
		a.announce()
	}
	log.Printf("collabtext server listening on %s", a.cfg.ListenAddr)
	if err := a.http.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// announce registers the server on the LAN so local peers can discover it.
func (a *app) announce() {
	host, _ := os.Hostname()
	port := 8081
	if _, p, err := net.SplitHostPort(a.cfg.ListenAddr); err == nil {
		if n, err := strconv.Atoi(p); err == nil {
			port = n
		}
	}
	srv, err := zeroconf.Register(
		fmt.Sprintf("collabtext-%s", host),
		"_collabtext._tcp",
		"local.",
		port,
		[]string{"txtv=0"},
		nil,
	)
	if err != nil {
		log.Printf("mdns registration failed: %v", err)
		return
	}
	a.mdns = srv
	log.Printf("mdns service registered on port %d", port)
}

func (a *app) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.http.Shutdown(ctx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	if a.mdns != nil {
		a.mdns.Shutdown()
	}
	a.registry.Close()
	a.pub.Close()
	if err := a.rdb.Close(); err != nil {
		log.Printf("redis close: %v", err)
	}
	if err := a.store.Close(); err != nil {
		log.Printf("store close: %v", err)
	}
}

func main() {
	cfg := config.FromEnv()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	a, err := newApp(ctx, cfg)
	cancel()
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- a.run() }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		log.Printf("received %v, shutting down", s)
	case err := <-errCh:
		if err != nil {
			log.Printf("server error: %v", err)
		}
	}
	a.shutdown()
}
