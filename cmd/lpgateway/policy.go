package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lpgateway/internal/config"
	"lpgateway/internal/custody"
	"lpgateway/internal/policy"
	"lpgateway/internal/storage/postgres"
)

func expectedPolicy(cfg config.Config, registry *config.ChainRegistry) (policy.Policy, error) {
	ceiling, ok := new(big.Int).SetString(strings.TrimSpace(cfg.ValueCeilingWei), 10)
	if !ok {
		return policy.Policy{}, fmt.Errorf("invalid value ceiling %q", cfg.ValueCeilingWei)
	}
	return policy.ExpectedPolicy(registry, ceiling, cfg.PolicyName, cfg.SignerKeyID)
}

// buildEngine wires the policy engine with its pin store. The returned func releases the store.
func buildEngine(ctx context.Context, cfg config.Config, registry *config.ChainRegistry, api *custody.API, logger *zap.Logger) (*policy.Engine, func(), error) {
	expected, err := expectedPolicy(cfg, registry)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {}
	var pins policy.PinStore
	switch {
	case cfg.PGDSN != "":
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
		pins = &policy.DBPinStore{Store: store}
		cleanup = store.Close
	case cfg.PinFile != "":
		pins = &policy.FilePinStore{Path: cfg.PinFile}
	}

	engine := policy.NewEngine(policy.NewHTTPStore(api), pins, expected, cfg.PolicyID, logger)
	return engine, cleanup, nil
}

func runPolicyEnsure(cmd *cobra.Command, _ []string) error {
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

	if err := engine.Initialize(ctx); err != nil {
		return fmt.Errorf("policy initialization: %w", err)
	}
	for _, id := range engine.PolicyIDs() {
		fmt.Fprintln(cmd.OutOrStdout(), id)
	}
	return nil
}

func runPolicyExpected(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	registry, err := config.NewChainRegistry(cfg)
	if err != nil {
		return err
	}
	expected, err := expectedPolicy(cfg, registry)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(expected)
}
