package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lpgateway/internal/chain"
	"lpgateway/internal/config"
	"lpgateway/internal/custody"
	"lpgateway/internal/dex"
	"lpgateway/internal/httpapi"
	"lpgateway/internal/index"
	"lpgateway/internal/preflight"
	"lpgateway/internal/service"
	"lpgateway/internal/session"
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	registry, err := config.NewChainRegistry(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	endpoints := make([]chain.Endpoint, 0, len(registry.IDs()))
	for _, c := range registry.Chains() {
		endpoints = append(endpoints, chain.Endpoint{ChainID: c.ID, RPCURL: c.RPCURL})
	}
	pool, err := chain.Dial(ctx, endpoints)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer pool.Close()

	api := custody.NewAPI(custody.APIConfig{
		BaseURL:   cfg.CustodyURL,
		AppID:     cfg.CustodyAppID,
		AppSecret: cfg.CustodyAppSecret,
		Timeout:   cfg.HTTPTimeout,
	}, logger)

	engine, cleanup, err := buildEngine(ctx, cfg, registry, api, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	// nothing is served until the policy is confirmed
	if err := engine.Initialize(ctx); err != nil {
		return fmt.Errorf("policy initialization: %w", err)
	}

	tokens := dex.NewTokenMetaCache(pool, registry, logger)
	states := dex.NewStateReader(pool, registry, logger)
	gateway := custody.NewClient(api, logger)

	svc := service.New(service.Deps{
		Registry:   registry,
		Gate:       engine,
		Discoverer: dex.NewDiscoverer(states, tokens, registry, logger, dex.WithDefaultPool(cfg.DefaultFee, cfg.DefaultTickSpacing)),
		Assembler:  dex.NewAssembler(states, registry, logger, dex.WithDefaults(cfg.DefaultSlippagePct, cfg.DefaultDeadline)),
		Preflight:  preflight.NewValidator(pool, registry, logger),
		Tokens:     tokens,
		Wallets:    session.NewStore(gateway, engine, logger),
		Custody:    gateway,
		Index:      index.NewClient(registry, cfg.HTTPTimeout, logger),
		Positions:  service.ChainPositions{Callers: pool, Registry: registry},
		Logger:     logger,
	})

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           httpapi.NewRouter(svc, engine, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("lpgateway start",
		zap.String("listen", cfg.Listen),
		zap.Uint64s("chains", registry.IDs()),
		zap.Strings("policy_ids", engine.PolicyIDs()),
		zap.String("custody_url", cfg.CustodyURL),
		zap.String("custody_app_secret", redact(cfg.CustodyAppSecret)),
		zap.String("pg_dsn", redact(cfg.PGDSN)),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("lpgateway shutting down")
	return srv.Shutdown(shutdownCtx)
}
