package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/onchainx/matchcore/pkg/config"
	"github.com/onchainx/matchcore/pkg/exchange"
	"github.com/onchainx/matchcore/pkg/gateway"
	"github.com/onchainx/matchcore/pkg/host"
	"github.com/onchainx/matchcore/pkg/storage"
	"github.com/onchainx/matchcore/pkg/util"
)

func main() {
	cfg := config.LoadFromEnv("")

	logger, err := util.NewLoggerWithFile(cfg.Logging.LogFile, cfg.Logging.Level)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Logging.LogFile)

	store, err := storage.Open(cfg.Storage.DBPath)
	if err != nil {
		sugar.Fatalw("storage_open_failed", "err", err)
	}
	defer store.Close()

	clock := host.EngineClock{Clock: host.WallClock{}}

	ownerHex := os.Getenv("EXCHANGE_OWNER")
	if ownerHex == "" {
		ownerHex = "0x0000000000000000000000000000000000000001"
	}
	owner := common.HexToAddress(ownerHex)

	var ex *exchange.Exchange
	if snap, ok, err := store.Load(); err != nil {
		sugar.Fatalw("snapshot_load_failed", "err", err)
	} else if ok {
		sugar.Infow("snapshot_loaded", "wallets", len(snap.Wallets), "orderbooks", len(snap.Orderbooks))
		ex = exchange.Restore(snap, cfg.Engine, clock)
	} else {
		sugar.Infow("snapshot_absent_starting_fresh", "owner", owner.Hex())
		ex = exchange.New(owner, cfg.Engine, clock)
	}

	srv := gateway.NewServer(ex, sugar)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(cfg.Gateway.ListenAddr); err != nil {
			sugar.Fatalw("gateway_failed", "err", err)
		}
	}()

	// Snapshot periodically so a restart can resume from a recent state
	// instead of genesis; the exchange has no write-ahead log of
	// individual fills, so this periodic whole-state save is the only
	// durability the demo binary offers (see pkg/storage package doc).
	snapshotInterval := 30 * time.Second
	ticker := time.NewTicker(snapshotInterval)
	defer ticker.Stop()

	sugar.Infow("exchange_gateway_started", "addr", cfg.Gateway.ListenAddr, "snapshot_interval", snapshotInterval)

	for {
		select {
		case <-ctx.Done():
			sugar.Info("shutting_down_saving_snapshot")
			if err := store.Save(srv.Snapshot()); err != nil {
				sugar.Errorw("final_snapshot_failed", "err", err)
			}
			return
		case <-ticker.C:
			if err := store.Save(srv.Snapshot()); err != nil {
				sugar.Errorw("periodic_snapshot_failed", "err", err)
			}
		}
	}
}
