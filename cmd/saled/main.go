package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"salechain/config"
	"salechain/core/state"
	"salechain/native/sale"
	"salechain/observability/logging"
	"salechain/rpc"
	"salechain/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	memory := flag.Bool("memory", false, "DEV ONLY: keep all state in memory instead of the data directory")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	logger := logging.Setup("saled", cfg.NetworkName)

	var db storage.Database
	if *memory {
		logger.Warn("running with in-memory state; nothing will be persisted")
		db = storage.NewMemDB()
	} else {
		leveldb, err := storage.NewLevelDB(cfg.DataDir)
		if err != nil {
			panic(fmt.Sprintf("Failed to open database: %v", err))
		}
		db = leveldb
	}
	defer db.Close()

	manager := state.NewManager(db)
	engine, err := buildEngine(cfg, manager, logger)
	if err != nil {
		logger.Error("failed to initialise sale engine", slog.Any("error", err))
		os.Exit(1)
	}

	server := rpc.NewServer(engine, manager, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.RPCAddress)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			logger.Error("RPC server failed", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", slog.Any("error", err))
	}
}

func buildEngine(cfg *config.Config, manager *state.Manager, logger *slog.Logger) (*sale.Engine, error) {
	for _, asset := range cfg.Assets {
		if err := manager.RegisterToken(asset.Symbol, asset.Name, asset.Decimals); err != nil {
			return nil, fmt.Errorf("register asset %s: %w", asset.Symbol, err)
		}
	}

	engine := sale.NewEngine(manager)

	if authority, ok, err := cfg.Authority(); err != nil {
		return nil, err
	} else if ok {
		engine.SetAuthority(authority.Raw())
	} else {
		logger.Warn("no authority configured; restricted sale operations are disabled")
	}
	if treasury, ok, err := cfg.Treasury(); err != nil {
		return nil, err
	} else if ok {
		engine.SetDestination(treasury.Raw())
	}
	if signer, ok, err := cfg.Signer(); err != nil {
		return nil, err
	} else if ok {
		engine.SetAuthorizer(sale.NewKeyAuthorizer(signer))
	} else {
		logger.Warn("no whitelist signer configured; purchases will be rejected")
	}

	for _, asset := range sale.PaymentAssets {
		bound, err := manager.BindToken(string(asset), engine.Vault())
		if err != nil {
			return nil, fmt.Errorf("bind payment asset %s: %w", asset, err)
		}
		engine.RegisterToken(asset, bound)
	}

	if err := seedSale(cfg, engine, logger); err != nil {
		return nil, err
	}
	return engine, nil
}

// seedSale applies the configured initial sale parameters when present. An
// already-started sale keeps its stored configuration.
func seedSale(cfg *config.Config, engine *sale.Engine, logger *slog.Logger) error {
	if cfg.Sale.StartTime == 0 && cfg.Sale.EndTime == 0 {
		return nil
	}
	authority, ok, err := cfg.Authority()
	if err != nil || !ok {
		if err == nil {
			err = fmt.Errorf("sale parameters configured but AuthorityAddress is unset")
		}
		return err
	}
	price, allocation, softCap, hardCap, minimum, err := cfg.SaleAmounts()
	if err != nil {
		return err
	}
	saleCfg := &sale.SaleConfig{
		StartTime:         cfg.Sale.StartTime,
		EndTime:           cfg.Sale.EndTime,
		PriceUSD:          price,
		TotalAllocation:   allocation,
		SoftCap:           softCap,
		HardCap:           hardCap,
		MinimumPurchase:   minimum,
		SoldTokenDecimals: cfg.Sale.SoldTokenDecimals,
	}
	switch err := engine.Configure(authority.Raw(), saleCfg); err {
	case nil:
		logger.Info("sale configured from config file",
			"start", cfg.Sale.StartTime, "end", cfg.Sale.EndTime)
		return nil
	case sale.ErrSaleAlreadyStarted:
		logger.Info("sale already started; keeping stored configuration")
		return nil
	default:
		return fmt.Errorf("seed sale configuration: %w", err)
	}
}
