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
	RPCURL  string
	ChainID uint64

	SwapContract   string
	OracleContract string
	BountyContract string

	SwapID       string
	SubmissionTx string
	SellToken    string
	BuyToken     string
	SellAmount   string

	PollInterval  time.Duration
	StartLookback uint64

	BailOutLatency time.Duration
	SettleDuration time.Duration
	SettleGrace    time.Duration
	DisputeRound   time.Duration

	GasCompensation string
	ReceiptAttempts int
	ReceiptInterval time.Duration

	SlippageBoundBps int64
	ActionCosts      map[string]string

	ExplorerBaseURL string
	JournalPath     string
	PgDSN           string
	LogLevel        string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TRACKER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("poll-interval", 5*time.Second)
	v.SetDefault("start-lookback", uint64(128))
	v.SetDefault("bailout-latency", 30*time.Minute)
	v.SetDefault("settle-duration", 2*time.Hour)
	v.SetDefault("settle-grace", 5*time.Minute)
	v.SetDefault("dispute-round", time.Hour)
	v.SetDefault("gas-compensation", "0")
	v.SetDefault("receipt-attempts", 10)
	v.SetDefault("receipt-interval", 2*time.Second)
	v.SetDefault("slippage-bound-bps", int64(50))
	v.SetDefault("journal", "./data/events.jsonl")
	v.SetDefault("log-level", "info")

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

	cfg := Config{
		RPCURL:           v.GetString("rpc"),
		ChainID:          v.GetUint64("chain-id"),
		SwapContract:     v.GetString("swap-contract"),
		OracleContract:   v.GetString("oracle-contract"),
		BountyContract:   v.GetString("bounty-contract"),
		SwapID:           v.GetString("swap-id"),
		SubmissionTx:     v.GetString("submission-tx"),
		SellToken:        v.GetString("sell-token"),
		BuyToken:         v.GetString("buy-token"),
		SellAmount:       v.GetString("sell-amount"),
		PollInterval:     v.GetDuration("poll-interval"),
		StartLookback:    v.GetUint64("start-lookback"),
		BailOutLatency:   v.GetDuration("bailout-latency"),
		SettleDuration:   v.GetDuration("settle-duration"),
		SettleGrace:      v.GetDuration("settle-grace"),
		DisputeRound:     v.GetDuration("dispute-round"),
		GasCompensation:  v.GetString("gas-compensation"),
		ReceiptAttempts:  v.GetInt("receipt-attempts"),
		ReceiptInterval:  v.GetDuration("receipt-interval"),
		SlippageBoundBps: v.GetInt64("slippage-bound-bps"),
		ActionCosts:      getStringMap(v, "action-costs"),
		ExplorerBaseURL:  v.GetString("explorer-url"),
		JournalPath:      v.GetString("journal"),
		PgDSN:            v.GetString("pg-dsn"),
		LogLevel:         v.GetString("log-level"),
	}

	return cfg, nil
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
		for k, item := range typed {
			out[k] = fmt.Sprintf("%v", item)
		}
		return out
	case string:
		return parseStringMap(typed)
	default:
		return map[string]string{}
	}
}

func parseStringMap(input string) map[string]string {
	out := make(map[string]string)
	if strings.TrimSpace(input) == "" {
		return out
	}
	pairs := strings.Split(input, ",")
	for _, pair := range pairs {
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
