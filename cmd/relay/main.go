package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"relay/internal/callback"
	"relay/internal/config"
	"relay/internal/db"
	"relay/internal/dispatch"
	httpx "relay/internal/http"
	"relay/internal/imessage"
	"relay/internal/receipt"
)

const version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	gdb, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}
	if err := db.AutoMigrateAndIndexes(gdb); err != nil {
		log.Fatal(err)
	}

	sender := &imessage.AppleScriptSender{}
	reporter := &callback.Reporter{BaseURL: cfg.WebBaseURL, Secret: cfg.GatewaySecret}
	r := httpx.NewRouter(cfg, gdb, sender, reporter, version)

	ctx, cancel := context.WithCancel(context.Background())

	if cfg.WorkerEnabled {
		chatPath := cfg.ChatDBPath
		if chatPath == "" {
			chatPath = receipt.DefaultPath()
		}
		chatDB := &receipt.ChatDB{Path: chatPath}
		tracker := &receipt.Tracker{
			Correlator: &receipt.Correlator{
				DB:            chatDB,
				RetryAttempts: cfg.CorrelationRetryAttempts,
				RetryDelay:    cfg.CorrelationRetryDelay,
			},
			Poller: &receipt.Poller{
				DB:       chatDB,
				Interval: cfg.ReceiptPollInterval,
				Timeout:  cfg.ReceiptPollTimeout,
			},
			Reporter: reporter,
		}

		worker := &dispatch.Dispatcher{
			ID:                 "gateway-worker",
			Store:              &dispatch.Store{DB: gdb},
			Sender:             sender,
			Reporter:           reporter,
			Receipts:           tracker,
			Limits:             cfg.RateLimits,
			PollInterval:       cfg.WorkerPollInterval,
			MaxAttempts:        cfg.MaxAttempts,
			BaseBackoffSeconds: cfg.BaseBackoffSeconds,
			MaxBackoffSeconds:  cfg.MaxBackoffSeconds,
		}
		go worker.Run(ctx)
	} else {
		log.Println("[worker] disabled")
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("listening on %s\n", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	// graceful shutdown
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}
