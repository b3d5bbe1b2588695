package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "lpgateway",
		Short:        "Policy-gated liquidity minting gateway",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Initialize the signing policy and serve HTTP",
		RunE:  runServe,
	}
	addCommonFlags(serveCmd.Flags())
	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")
	serveCmd.Flags().Uint32("default-fee", 3000, "fee reported when no pool exists")
	serveCmd.Flags().Int32("default-tick-spacing", 60, "tick spacing reported when no pool exists")
	serveCmd.Flags().Float64("default-slippage-pct", 0.5, "default mint slippage in percent")
	serveCmd.Flags().Duration("default-deadline", 20*time.Minute, "default mint deadline")
	serveCmd.Flags().String("index-url", "", "position index endpoints (comma-separated chain=url)")
	root.AddCommand(serveCmd)

	policyCmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect or reconcile the signing policy",
	}

	ensureCmd := &cobra.Command{
		Use:   "ensure",
		Short: "Verify the pinned policy or create one, then print its id",
		RunE:  runPolicyEnsure,
	}
	addCommonFlags(ensureCmd.Flags())
	policyCmd.AddCommand(ensureCmd)

	expectedCmd := &cobra.Command{
		Use:   "expected",
		Short: "Print the locally composed policy as JSON",
		RunE:  runPolicyExpected,
	}
	addCommonFlags(expectedCmd.Flags())
	policyCmd.AddCommand(expectedCmd)

	root.AddCommand(policyCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addCommonFlags(flags *pflag.FlagSet) {
	flags.String("rpc", "", "chain RPC endpoints (comma-separated chain=url)")
	flags.StringSlice("enabled-chains", nil, "chain ids to serve (default: every chain with an rpc url)")
	flags.String("custody-url", "", "custody API base URL")
	flags.String("custody-app-id", "", "custody app id")
	flags.String("custody-app-secret", "", "custody app secret")
	flags.String("signer-key-id", "", "signer identity that must own the policy")
	flags.String("policy-id", "", "pinned policy id")
	flags.String("policy-name", "lpgateway-liquidity", "policy name")
	flags.String("value-ceiling-wei", "1000000000000000000", "maximum native value per transaction in wei")
	flags.String("pin-file", "", "local file that remembers the created policy id")
	flags.String("pg-dsn", "", "Postgres DSN for the policy pin (overrides pin-file)")
	flags.Duration("http-timeout", 15*time.Second, "timeout for custody and index requests")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func redact(secret string) string {
	if secret == "" {
		return secret
	}
	return "***"
}
