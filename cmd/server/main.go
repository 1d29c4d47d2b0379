package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lumipos/backend/internal/cart"
	"lumipos/backend/internal/catalog"
	catmemory "lumipos/backend/internal/catalog/memory"
	catpostgres "lumipos/backend/internal/catalog/postgres"
	"lumipos/backend/internal/config"
	"lumipos/backend/internal/httpapi"
	"lumipos/backend/internal/numbering"
	"lumipos/backend/internal/snapshot"
)

func main() {
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo catalog.Repository
	closers := make([]func() error, 0, 3)

	if cfg.DatabaseURL != "" {
		pg, err := catpostgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Println("catalog: postgres")
	} else {
		repo = catmemory.NewSeeded()
		log.Println("catalog: in-memory")
	}

	var snapshots snapshot.Store = snapshot.NewMemoryStore()
	var issuer numbering.Issuer = numbering.NewMemoryIssuer()
	if cfg.RedisAddr != "" {
		redisSnapshots := snapshot.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisSnapshots.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using in-memory snapshots and numbering", err)
		} else {
			snapshots = redisSnapshots
			closers = append(closers, redisSnapshots.Close)

			redisIssuer := numbering.NewRedisIssuer(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
			issuer = redisIssuer
			closers = append(closers, redisIssuer.Close)
			log.Println("snapshots: redis")
		}
	} else {
		log.Println("snapshots: in-memory")
	}

	events := httpapi.NewEventLog(128)
	notifier := cart.MultiNotifier{cart.LogNotifier{}, events}

	svc := cart.New(repo, snapshots, issuer, notifier, cfg.StoreID)
	svc.Restore(ctx)
	go svc.RefreshStoreContext(context.Background())

	refreshCtx, stopRefresh := context.WithCancel(context.Background())
	go stockRefreshLoop(refreshCtx, svc, time.Duration(cfg.StockRefreshSeconds)*time.Second)

	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(svc, repo, auth, events, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("POS cart backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	stopRefresh()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	// Flushes the last pending cart snapshot.
	svc.Close()

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

// stockRefreshLoop periodically pulls fresh stock levels for the products in
// the cart and reconciles line quantities against them.
func stockRefreshLoop(ctx context.Context, svc *cart.Service, interval time.Duration) {
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			svc.RefreshStock(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	return nil
}
