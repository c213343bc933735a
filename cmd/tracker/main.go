package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"swaptrack/internal/chain"
	"swaptrack/internal/config"
	"swaptrack/internal/engine"
	"swaptrack/internal/journal"
	"swaptrack/internal/journal/postgres"
	"swaptrack/internal/model"
	"swaptrack/internal/tracker"
)

func main() {
	root := &cobra.Command{
		Use:          "swaptrack",
		Short:        "openSwap order lifecycle tracker",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	trackCmd := &cobra.Command{
		Use:   "track",
		Short: "Track one swap order until it executes or fails",
		RunE:  runTrack,
	}

	trackCmd.Flags().String("rpc", "", "ledger RPC URL")
	trackCmd.Flags().Uint64("chain-id", 0, "chain id recorded in the journal")
	trackCmd.Flags().String("swap-contract", "", "swap contract address")
	trackCmd.Flags().String("oracle-contract", "", "oracle contract address")
	trackCmd.Flags().String("bounty-contract", "", "bounty contract address")
	trackCmd.Flags().String("swap-id", "", "order id to track (bytes32 hex)")
	trackCmd.Flags().String("submission-tx", "", "submission transaction hash")
	trackCmd.Flags().String("sell-token", "", "sell token address")
	trackCmd.Flags().String("buy-token", "", "buy token address")
	trackCmd.Flags().String("sell-amount", "", "sell notional in base units")
	trackCmd.Flags().Duration("poll-interval", 5*time.Second, "log polling interval")
	trackCmd.Flags().Uint64("start-lookback", 128, "blocks scanned behind head on the first poll")
	trackCmd.Flags().Duration("bailout-latency", 30*time.Minute, "latency bail-out duration")
	trackCmd.Flags().Duration("settle-duration", 2*time.Hour, "settlement duration")
	trackCmd.Flags().Duration("settle-grace", 5*time.Minute, "settlement grace period")
	trackCmd.Flags().Duration("dispute-round", time.Hour, "dispute round length")
	trackCmd.Flags().String("gas-compensation", "0", "fixed gas compensation in wei")
	trackCmd.Flags().Int("receipt-attempts", 10, "receipt wait attempts")
	trackCmd.Flags().Duration("receipt-interval", 2*time.Second, "receipt wait interval")
	trackCmd.Flags().Int64("slippage-bound-bps", 50, "static slippage bound in basis points")
	trackCmd.Flags().String("action-costs", "", "per-action gas costs (comma-separated op=wei)")
	trackCmd.Flags().String("explorer-url", "", "explorer base URL for tx links")
	trackCmd.Flags().String("journal", "./data/events.jsonl", "event journal JSONL path")
	trackCmd.Flags().String("pg-dsn", "", "Postgres DSN for the event journal (overrides JSONL)")
	trackCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(trackCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runTrack(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	swapID, err := parseHash(cfg.SwapID, "swap-id")
	if err != nil {
		return err
	}
	submissionTx := common.Hash{}
	if cfg.SubmissionTx != "" {
		submissionTx, err = parseHash(cfg.SubmissionTx, "submission-tx")
		if err != nil {
			return err
		}
	}

	trackerCfg, err := buildTrackerConfig(cfg)
	if err != nil {
		return err
	}
	summary, err := buildOrderSummary(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	eventJournal, closeJournal, err := buildJournal(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeJournal()

	volatility := engine.NewStaticVolatility(big.NewInt(cfg.SlippageBoundBps))
	gasFee, err := buildGasFee(cfg)
	if err != nil {
		return err
	}

	swapTracker, err := tracker.New(trackerCfg, chainClient, volatility, gasFee, eventJournal, logger)
	if err != nil {
		return err
	}

	swapTracker.OnMatched(func(e tracker.HookEvent) {
		fields := []zap.Field{zap.String("swap_id", e.SwapID.Hex())}
		if e.Deadline != nil {
			fields = append(fields, zap.Uint64("bailout_at", e.Deadline.ExpiresAt()))
		}
		logger.Info("order matched", fields...)
	})
	swapTracker.OnExecuted(func(e tracker.HookEvent) {
		logger.Info("order executed", zap.String("swap_id", e.SwapID.Hex()))
	})
	swapTracker.OnCancelled(func(e tracker.HookEvent) {
		logger.Info("order failed",
			zap.String("swap_id", e.SwapID.Hex()),
			zap.String("reason", e.Failure.Reason.String()),
		)
	})
	swapTracker.OnTick(func(status tracker.Status) {
		if status.BailOut.Armed || status.Settle.Armed {
			logger.Debug("countdown",
				zap.String("step", status.Step.String()),
				zap.Uint64("bailout_remaining", status.BailOut.Remaining),
				zap.Uint64("settle_remaining", status.Settle.Remaining),
				zap.Bool("bailout_ready", status.BailOut.Ready),
				zap.Bool("settle_ready", status.Settle.Ready),
			)
		}
	})

	if err := swapTracker.StartTracking(ctx, swapID, submissionTx, summary); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		swapTracker.StopTracking()
	case <-swapTracker.Done():
	}

	if status, ok := swapTracker.Snapshot(); ok {
		logger.Info("final state",
			zap.String("step", status.Step.String()),
			zap.Int("disputes", status.DisputeCount),
			zap.String("bounty", status.Expense.Bounty.String()),
			zap.String("fulfillment_fee", status.Expense.FulfillmentFee.String()),
			zap.String("gas", status.Expense.Gas.String()),
			zap.String("total", status.Expense.Total.String()),
		)
	}

	return nil
}

func buildTrackerConfig(cfg config.Config) (tracker.Config, error) {
	swapContract, err := parseAddress(cfg.SwapContract, "swap-contract")
	if err != nil {
		return tracker.Config{}, err
	}
	oracleContract, err := parseAddress(cfg.OracleContract, "oracle-contract")
	if err != nil {
		return tracker.Config{}, err
	}
	bountyContract, err := parseAddress(cfg.BountyContract, "bounty-contract")
	if err != nil {
		return tracker.Config{}, err
	}
	gasComp, err := parseBigInt(cfg.GasCompensation, "gas-compensation")
	if err != nil {
		return tracker.Config{}, err
	}

	return tracker.Config{
		ChainID:         cfg.ChainID,
		SwapContract:    swapContract,
		OracleContract:  oracleContract,
		BountyContract:  bountyContract,
		PollInterval:    cfg.PollInterval,
		StartLookback:   cfg.StartLookback,
		BailOutLatency:  cfg.BailOutLatency,
		SettleDuration:  cfg.SettleDuration,
		SettleGrace:     cfg.SettleGrace,
		DisputeRound:    cfg.DisputeRound,
		GasCompensation: gasComp,
		ReceiptAttempts: cfg.ReceiptAttempts,
		ReceiptInterval: cfg.ReceiptInterval,
		ExplorerBaseURL: cfg.ExplorerBaseURL,
	}, nil
}

func buildOrderSummary(cfg config.Config) (model.OrderSummary, error) {
	summary := model.OrderSummary{}
	if cfg.SellToken != "" {
		token, err := parseAddress(cfg.SellToken, "sell-token")
		if err != nil {
			return model.OrderSummary{}, err
		}
		summary.SellToken = token
	}
	if cfg.BuyToken != "" {
		token, err := parseAddress(cfg.BuyToken, "buy-token")
		if err != nil {
			return model.OrderSummary{}, err
		}
		summary.BuyToken = token
	}
	if cfg.SellAmount != "" {
		amount, err := parseBigInt(cfg.SellAmount, "sell-amount")
		if err != nil {
			return model.OrderSummary{}, err
		}
		summary.SellAmount = amount
	}
	return summary, nil
}

func buildJournal(ctx context.Context, cfg config.Config) (journal.Journal, func(), error) {
	if cfg.PgDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PgDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect journal db: %w", err)
		}
		return store, store.Close, nil
	}
	if cfg.JournalPath != "" {
		return journal.NewJsonlJournal(cfg.JournalPath), func() {}, nil
	}
	return nil, func() {}, nil
}

func buildGasFee(cfg config.Config) (*engine.StaticGasFee, error) {
	costs := make(map[string]*big.Int, len(cfg.ActionCosts))
	for op, raw := range cfg.ActionCosts {
		cost, err := parseBigInt(raw, "action-costs."+op)
		if err != nil {
			return nil, err
		}
		costs[op] = cost
	}
	return engine.NewStaticGasFee(costs), nil
}

func parseAddress(input, name string) (common.Address, error) {
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid %s: %q", name, input)
	}
	return common.HexToAddress(input), nil
}

func parseHash(input, name string) (common.Hash, error) {
	data, err := hexutil.Decode(input)
	if err != nil || len(data) != 32 {
		return common.Hash{}, fmt.Errorf("invalid %s: %q", name, input)
	}
	return common.BytesToHash(data), nil
}

func parseBigInt(input, name string) (*big.Int, error) {
	value, ok := new(big.Int).SetString(input, 10)
	if !ok {
		return nil, fmt.Errorf("invalid %s: %q", name, input)
	}
	return value, nil
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
