package tracker

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"swaptrack/internal/model"
	"swaptrack/internal/protocol"
)

// Sink consumes decoded events in poll order.
type Sink interface {
	Filter() protocol.Filter
	Apply(ctx context.Context, ev model.SwapEvent) bool
}

// PollerConfig configures one session's poller.
type PollerConfig struct {
	SwapContract   common.Address
	OracleContract common.Address
	BountyContract common.Address

	// StartLookback is how many blocks behind the chain head the first
	// poll starts, so logs emitted between submission and session start
	// are still observed.
	StartLookback uint64
}

// Poller advances a block-range watermark and feeds decoded events into
// a sink. A busy flag drops overlapping invocations instead of queueing
// them; the watermark only moves on a fully successful cycle, so a
// failed cycle is simply retried by the next tick.
type Poller struct {
	cfg      PollerConfig
	provider Provider
	decoder  *protocol.Decoder
	logger   *zap.Logger

	// Fixed processing priority: swap contract, then oracle, then
	// bounty. Within a contract, provider order is preserved.
	priority map[common.Address]int

	watermark uint64
	primed    bool
	busy      atomic.Bool
}

// NewPoller builds a poller for one session.
func NewPoller(cfg PollerConfig, provider Provider, decoder *protocol.Decoder, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		cfg:      cfg,
		provider: provider,
		decoder:  decoder,
		logger:   logger,
		priority: map[common.Address]int{
			cfg.SwapContract:   0,
			cfg.OracleContract: 1,
			cfg.BountyContract: 2,
		},
	}
}

// Watermark returns the last fully scanned block number.
func (p *Poller) Watermark() uint64 {
	return p.watermark
}

// PollOnce runs one polling cycle: a single batched log query covering
// [watermark+1, latest] across all three contracts. Overlapping calls
// are dropped. Decode failures skip the single offending log; any
// network failure aborts the cycle with the watermark untouched.
func (p *Poller) PollOnce(ctx context.Context, sink Sink) error {
	if !p.busy.CompareAndSwap(false, true) {
		p.logger.Debug("poll already in progress, dropped")
		return nil
	}
	defer p.busy.Store(false)

	latest, err := p.provider.LatestBlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("latest block: %w", err)
	}

	from := p.watermark + 1
	if !p.primed {
		if latest > p.cfg.StartLookback {
			from = latest - p.cfg.StartLookback
		} else {
			from = 0
		}
	} else if latest <= p.watermark {
		return nil
	}

	addresses := []common.Address{p.cfg.SwapContract, p.cfg.OracleContract, p.cfg.BountyContract}
	logs, err := p.provider.FilterLogs(ctx, from, latest, addresses)
	if err != nil {
		return fmt.Errorf("filter logs: %w", err)
	}

	sort.SliceStable(logs, func(i, j int) bool {
		return p.priority[logs[i].Address] < p.priority[logs[j].Address]
	})

	for _, log := range logs {
		// The filter is re-read per log: an OrderMatched earlier in
		// this cycle unlocks report-keyed logs later in the same cycle.
		ev, err := p.decoder.Decode(log, sink.Filter())
		if err != nil {
			topic0 := ""
			if len(log.Topics) > 0 {
				topic0 = log.Topics[0].Hex()
			}
			p.logger.Warn("decode failed, log skipped", zap.Any("decode_error", model.DecodeError{
				BlockNumber: log.BlockNumber,
				TxHash:      log.TxHash.Hex(),
				LogIndex:    uint64(log.Index),
				Address:     log.Address.Hex(),
				Topic0:      topic0,
				Error:       err.Error(),
			}))
			continue
		}
		if ev == nil {
			continue
		}

		ts, err := p.provider.BlockTimestamp(ctx, log.BlockNumber)
		if err != nil {
			return fmt.Errorf("block timestamp %d: %w", log.BlockNumber, err)
		}
		ev.Timestamp = ts

		sink.Apply(ctx, *ev)
	}

	p.watermark = latest
	p.primed = true
	return nil
}
