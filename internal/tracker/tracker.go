package tracker

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"swaptrack/internal/engine"
	"swaptrack/internal/journal"
	"swaptrack/internal/model"
	"swaptrack/internal/protocol"
)

// Config holds the protocol constants and runtime settings for a
// tracker, typically loaded through the config package.
type Config struct {
	ChainID uint64

	SwapContract   common.Address
	OracleContract common.Address
	BountyContract common.Address

	PollInterval  time.Duration
	StartLookback uint64

	BailOutLatency time.Duration
	SettleDuration time.Duration
	SettleGrace    time.Duration
	DisputeRound   time.Duration

	GasCompensation *big.Int

	ReceiptAttempts int
	ReceiptInterval time.Duration

	ExplorerBaseURL string
}

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.StartLookback == 0 {
		c.StartLookback = 128
	}
	if c.ReceiptAttempts <= 0 {
		c.ReceiptAttempts = 10
	}
	if c.ReceiptInterval <= 0 {
		c.ReceiptInterval = 2 * time.Second
	}
}

func (c Config) durations() Durations {
	return Durations{
		BailOutLatency: uint64(c.BailOutLatency / time.Second),
		SettleDuration: uint64(c.SettleDuration / time.Second),
		SettleGrace:    uint64(c.SettleGrace / time.Second),
	}
}

// Status is the observable state surface, rebuilt on demand and on
// every display tick.
type Status struct {
	SwapID       common.Hash
	SubmissionTx common.Hash

	Step         model.Step
	Steps        map[model.Step]model.StepMark
	Disputed     bool
	DisputeCount int

	BailOut Countdown
	Settle  Countdown

	Failure model.Failure
	Expense model.ExpenseBreakdown

	Watermark uint64

	SlippageBoundBps *big.Int
	ActionCosts      map[string]*big.Int
	DisputeRound     time.Duration
}

type session struct {
	token   uint64
	machine *Machine
	poller  *Poller
	recon   *Reconciler
	cancel  context.CancelFunc
	done    chan struct{}
}

// Tracker drives one swap session at a time: it polls the ledger,
// applies decoded events through the state machine, and exposes the
// resulting state. A new session supersedes the previous one through
// the generation guard; superseded in-flight results are discarded, not
// aborted.
type Tracker struct {
	cfg        Config
	provider   Provider
	volatility engine.VolatilityEngine
	gasFee     engine.GasFeeEngine
	journal    journal.Journal
	decoder    *protocol.Decoder
	logger     *zap.Logger

	mu      sync.Mutex
	gen     generation
	session *session
	hooks   Hooks
	onTick  func(Status)
	pending []func()

	nowFn func() uint64
}

// New constructs a tracker with explicitly injected collaborators.
func New(
	cfg Config,
	provider Provider,
	volatility engine.VolatilityEngine,
	gasFee engine.GasFeeEngine,
	eventJournal journal.Journal,
	logger *zap.Logger,
) (*Tracker, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider is nil")
	}
	if cfg.SwapContract == (common.Address{}) {
		return nil, fmt.Errorf("swap contract address is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.applyDefaults()

	decoder, err := protocol.NewDecoder()
	if err != nil {
		return nil, fmt.Errorf("build decoder: %w", err)
	}

	t := &Tracker{
		cfg:        cfg,
		provider:   provider,
		volatility: volatility,
		gasFee:     gasFee,
		journal:    eventJournal,
		decoder:    decoder,
		logger:     logger,
		nowFn:      func() uint64 { return uint64(time.Now().Unix()) },
	}

	if volatility != nil {
		volatility.OnChange(func() {
			t.fireTick()
		})
	}

	return t, nil
}

// OnMatched registers the matched lifecycle hook.
func (t *Tracker) OnMatched(cb func(HookEvent)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hooks.OnMatched = cb
}

// OnExecuted registers the terminal success hook.
func (t *Tracker) OnExecuted(cb func(HookEvent)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hooks.OnExecuted = cb
}

// OnCancelled registers the terminal failure hook.
func (t *Tracker) OnCancelled(cb func(HookEvent)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hooks.OnCancelled = cb
}

// OnTick registers the 1 Hz display callback.
func (t *Tracker) OnTick(cb func(Status)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onTick = cb
}

// StartTracking begins a new session, invalidating any prior one. The
// previous session's in-flight results are voided by the generation
// guard rather than cancelled mid-request.
func (t *Tracker) StartTracking(ctx context.Context, swapID, submissionTx common.Hash, summary model.OrderSummary) error {
	if swapID == (common.Hash{}) {
		return fmt.Errorf("swap id is required")
	}

	t.mu.Lock()

	token := t.gen.next()
	if t.session != nil {
		t.session.cancel()
		t.session = nil
	}

	swap := model.NewTrackedSwap(swapID, submissionTx, summary)
	swap.Steps[model.StepSubmitted] = model.StepMark{Timestamp: t.nowFn(), TxHash: submissionTx}

	recon := NewReconciler(t.provider, t.cfg.ReceiptAttempts, t.cfg.ReceiptInterval, t.logger)
	machine := NewMachine(swap, t.cfg.durations(), t.deferredHooks(), t.cfg.GasCompensation, t.logger)
	poller := NewPoller(PollerConfig{
		SwapContract:   t.cfg.SwapContract,
		OracleContract: t.cfg.OracleContract,
		BountyContract: t.cfg.BountyContract,
		StartLookback:  t.cfg.StartLookback,
	}, t.provider, t.decoder, t.logger)

	runCtx, cancel := context.WithCancel(ctx)
	sess := &session{
		token:   token,
		machine: machine,
		poller:  poller,
		recon:   recon,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	t.session = sess
	t.mu.Unlock()

	t.logger.Info("tracking started",
		zap.String("swap_id", swapID.Hex()),
		zap.String("submission_tx", submissionTx.Hex()),
		zap.Uint64("generation", token),
	)

	go t.run(runCtx, sess)
	return nil
}

// StopTracking halts polling and timers for the active session. A
// request already in flight completes but its effects are discarded.
func (t *Tracker) StopTracking() {
	t.mu.Lock()
	t.gen.next()
	sess := t.session
	t.session = nil
	t.mu.Unlock()

	if sess != nil {
		sess.cancel()
		t.logger.Info("tracking stopped")
	}
}

// Hide halts the session the same way StopTracking does.
func (t *Tracker) Hide() {
	t.StopTracking()
}

// Done returns a channel closed when the active session's loop exits.
// It returns nil when no session is active.
func (t *Tracker) Done() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session == nil {
		return nil
	}
	return t.session.done
}

// Snapshot returns the observable state of the active session.
func (t *Tracker) Snapshot() (Status, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session == nil {
		return Status{}, false
	}
	return t.statusLocked(t.session), true
}

// AwaitReceipt waits for a transaction receipt with the configured
// bounded retry policy. It is meant for user-triggered actions such as
// bail-out or self-settle submissions; it returns ErrReceiptTimeout
// instead of blocking indefinitely.
func (t *Tracker) AwaitReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return awaitReceipt(ctx, t.provider, txHash, t.cfg.ReceiptAttempts, t.cfg.ReceiptInterval)
}

// ExplorerTxURL builds an explorer link for a transaction hash.
func (t *Tracker) ExplorerTxURL(txHash common.Hash) string {
	if t.cfg.ExplorerBaseURL == "" {
		return ""
	}
	return strings.TrimRight(t.cfg.ExplorerBaseURL, "/") + "/tx/" + txHash.Hex()
}

func (t *Tracker) statusLocked(sess *session) Status {
	swap := sess.machine.Swap()
	now := t.nowFn()

	steps := make(map[model.Step]model.StepMark, len(swap.Steps))
	for step, mark := range swap.Steps {
		steps[step] = mark
	}

	status := Status{
		SwapID:       swap.SwapID,
		SubmissionTx: swap.SubmissionTx,
		Step:         swap.Step,
		Steps:        steps,
		Disputed:     swap.Disputed,
		DisputeCount: swap.DisputeCount,
		BailOut:      countdown(swap.BailOut, now),
		Settle:       countdown(swap.Settle, now),
		Failure:      swap.Failure,
		Expense:      swap.Expense,
		Watermark:    sess.poller.Watermark(),
		DisputeRound: t.cfg.DisputeRound,
	}

	if t.volatility != nil {
		status.SlippageBoundBps = t.volatility.SlippageBoundBps()
	}
	if t.gasFee != nil && t.gasFee.Ready() {
		costs := make(map[string]*big.Int)
		for _, op := range []string{engine.OpBailOut, engine.OpSelfSettle} {
			if cost, ok := t.gasFee.Estimate(op); ok {
				costs[op] = cost
			}
		}
		status.ActionCosts = costs
	}

	return status
}

// deferredHooks wraps the registered hooks so they are queued while the
// tracker mutex is held and delivered after it is released.
func (t *Tracker) deferredHooks() Hooks {
	return Hooks{
		OnMatched: func(e HookEvent) {
			if cb := t.hooks.OnMatched; cb != nil {
				t.pending = append(t.pending, func() { cb(e) })
			}
		},
		OnExecuted: func(e HookEvent) {
			if cb := t.hooks.OnExecuted; cb != nil {
				t.pending = append(t.pending, func() { cb(e) })
			}
		},
		OnCancelled: func(e HookEvent) {
			if cb := t.hooks.OnCancelled; cb != nil {
				t.pending = append(t.pending, func() { cb(e) })
			}
		},
	}
}

func (t *Tracker) run(ctx context.Context, sess *session) {
	defer close(sess.done)

	sink := &guardedSink{tracker: t, sess: sess}

	// First poll happens immediately on session start.
	if t.pollCycle(ctx, sess, sink) {
		return
	}

	pollTicker := time.NewTicker(t.cfg.PollInterval)
	defer pollTicker.Stop()

	// 1 Hz redraw of countdowns; deadline arithmetic itself is pure.
	displayTicker := time.NewTicker(time.Second)
	defer displayTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			if t.pollCycle(ctx, sess, sink) {
				return
			}
		case <-displayTicker.C:
			t.fireTick()
		}
	}
}

// pollCycle runs one poll and reports whether the session reached a
// terminal state. Poll failures are transient: the watermark stays put
// and the next tick retries.
func (t *Tracker) pollCycle(ctx context.Context, sess *session, sink Sink) bool {
	if err := sess.poller.PollOnce(ctx, sink); err != nil {
		if ctx.Err() != nil {
			return true
		}
		t.logger.Warn("poll cycle failed, retrying on next tick", zap.Error(err))
		return false
	}

	t.mu.Lock()
	terminal := t.gen.valid(sess.token) && sess.machine.Swap().Terminal()
	step := sess.machine.Swap().Step
	t.mu.Unlock()

	if terminal {
		t.fireTick()
		t.logger.Info("session reached terminal state", zap.String("step", step.String()))
	}
	return terminal
}

func (t *Tracker) fireTick() {
	t.mu.Lock()
	cb := t.onTick
	if cb == nil || t.session == nil {
		t.mu.Unlock()
		return
	}
	status := t.statusLocked(t.session)
	t.mu.Unlock()

	cb(status)
}

func (t *Tracker) appendJournal(ctx context.Context, ev model.SwapEvent) {
	if t.journal == nil {
		return
	}

	record := model.EventRecord{
		ChainID:     t.cfg.ChainID,
		BlockNumber: ev.BlockNumber,
		TxHash:      ev.TxHash.Hex(),
		LogIndex:    uint64(ev.LogIndex),
		Address:     ev.Address.Hex(),
		EventName:   ev.Kind.String(),
		Timestamp:   ev.Timestamp,
		IngestedAt:  time.Now().UTC().Format(time.RFC3339Nano),
	}
	if ev.SwapID != (common.Hash{}) {
		record.SwapID = ev.SwapID.Hex()
	}
	if ev.ReportID != (common.Hash{}) {
		record.ReportID = ev.ReportID.Hex()
	}
	if ev.Price != nil {
		record.Price = ev.Price.String()
	}
	if ev.Amount != nil {
		record.Amount = ev.Amount.String()
	}

	if err := t.journal.Append(ctx, []model.EventRecord{record}); err != nil {
		t.logger.Warn("journal append failed", zap.Error(err))
	}
}

// guardedSink funnels decoded events into the machine, voiding effects
// of a superseded session before any mutation.
type guardedSink struct {
	tracker *Tracker
	sess    *session
}

func (g *guardedSink) Filter() protocol.Filter {
	g.tracker.mu.Lock()
	defer g.tracker.mu.Unlock()
	return g.sess.machine.Filter()
}

func (g *guardedSink) Apply(ctx context.Context, ev model.SwapEvent) bool {
	t := g.tracker

	t.mu.Lock()
	if !t.gen.valid(g.sess.token) {
		t.mu.Unlock()
		return false
	}
	applied := g.sess.machine.Apply(ctx, ev)
	inputs, reconcile := g.sess.machine.PendingReconciliation()
	drained := t.pending
	t.pending = nil
	t.mu.Unlock()

	for _, fn := range drained {
		fn()
	}

	// The reconciliation waits on a receipt, so it runs without the
	// tracker lock; the result is written back under the generation
	// check like any other late-arriving effect.
	if reconcile {
		expense := g.sess.recon.Reconcile(ctx, inputs)
		t.mu.Lock()
		if t.gen.valid(g.sess.token) {
			g.sess.machine.SetExpense(expense)
		}
		t.mu.Unlock()
	}

	if applied {
		t.appendJournal(ctx, ev)
	}
	return applied
}
