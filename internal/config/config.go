package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	Listen             string
	LogLevel           string
	Chains             []ChainEntry
	EnabledChains      []string
	RPC                map[string]string
	IndexURL           map[string]string
	CustodyURL         string
	CustodyAppID       string
	CustodyAppSecret   string
	SignerKeyID        string
	PolicyID           string
	PolicyName         string
	ValueCeilingWei    string
	PinFile            string
	PGDSN              string
	DefaultFee         uint32
	DefaultTickSpacing int32
	DefaultSlippagePct float64
	DefaultDeadline    time.Duration
	HTTPTimeout        time.Duration
}

// ChainEntry is a chain declared in the config file. Zero fields fall back to the built-in chain.
type ChainEntry struct {
	ID              uint64 `mapstructure:"id"`
	Name            string `mapstructure:"name"`
	RPC             string `mapstructure:"rpc"`
	IndexURL        string `mapstructure:"index-url"`
	PoolManager     string `mapstructure:"pool-manager"`
	PositionManager string `mapstructure:"position-manager"`
	StateView       string `mapstructure:"state-view"`
	Permit2         string `mapstructure:"permit2"`
	NativeSymbol    string `mapstructure:"native-symbol"`
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LPGATEWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen", ":8080")
	v.SetDefault("log-level", "info")
	v.SetDefault("policy-name", "lpgateway-liquidity")
	v.SetDefault("value-ceiling-wei", "1000000000000000000")
	v.SetDefault("default-fee", 3000)
	v.SetDefault("default-tick-spacing", 60)
	v.SetDefault("default-slippage-pct", 0.5)
	v.SetDefault("default-deadline", 20*time.Minute)
	v.SetDefault("http-timeout", 15*time.Second)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var chains []ChainEntry
	if v.IsSet("chains") {
		if err := v.UnmarshalKey("chains", &chains); err != nil {
			return Config{}, fmt.Errorf("decode chains: %w", err)
		}
	}

	cfg := Config{
		Listen:             v.GetString("listen"),
		LogLevel:           v.GetString("log-level"),
		Chains:             chains,
		EnabledChains:      getStringSlice(v, "enabled-chains"),
		RPC:                getStringMap(v, "rpc"),
		IndexURL:           getStringMap(v, "index-url"),
		CustodyURL:         v.GetString("custody-url"),
		CustodyAppID:       v.GetString("custody-app-id"),
		CustodyAppSecret:   v.GetString("custody-app-secret"),
		SignerKeyID:        v.GetString("signer-key-id"),
		PolicyID:           v.GetString("policy-id"),
		PolicyName:         v.GetString("policy-name"),
		ValueCeilingWei:    v.GetString("value-ceiling-wei"),
		PinFile:            v.GetString("pin-file"),
		PGDSN:              v.GetString("pg-dsn"),
		DefaultFee:         v.GetUint32("default-fee"),
		DefaultTickSpacing: v.GetInt32("default-tick-spacing"),
		DefaultSlippagePct: v.GetFloat64("default-slippage-pct"),
		DefaultDeadline:    v.GetDuration("default-deadline"),
		HTTPTimeout:        v.GetDuration("http-timeout"),
	}

	return cfg, nil
}

// Validate checks settings the service cannot start without.
func (c Config) Validate() error {
	if c.CustodyURL == "" {
		return fmt.Errorf("custody url is required")
	}
	if c.SignerKeyID == "" {
		return fmt.Errorf("signer key id is required")
	}
	if c.DefaultSlippagePct < 0 || c.DefaultSlippagePct >= 100 {
		return fmt.Errorf("default slippage must be in [0, 100): %v", c.DefaultSlippagePct)
	}
	if c.DefaultDeadline <= 0 {
		return fmt.Errorf("default deadline must be positive")
	}
	return nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func getStringMap(v *viper.Viper, key string) map[string]string {
	if !v.IsSet(key) {
		return map[string]string{}
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case map[string]string:
		return typed
	case map[string]interface{}:
		out := make(map[string]string, len(typed))
		for k, v := range typed {
			out[k] = fmt.Sprintf("%v", v)
		}
		return out
	case string:
		return parseStringMap(typed)
	default:
		return map[string]string{}
	}
}

// parseStringMap parses "1=https://a,8453=https://b".
func parseStringMap(input string) map[string]string {
	out := make(map[string]string)
	if strings.TrimSpace(input) == "" {
		return out
	}
	for _, pair := range strings.Split(input, ",") {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	return out
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	return cleanStrings(strings.Split(input, ","))
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
