package tracker

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"swaptrack/internal/model"
	"swaptrack/internal/protocol"
)

// Durations are the protocol constants the deadline arithmetic needs,
// in seconds of block time.
type Durations struct {
	BailOutLatency uint64
	SettleDuration uint64
	SettleGrace    uint64
}

// HookEvent is the payload delivered to lifecycle hooks.
type HookEvent struct {
	SwapID   common.Hash
	Deadline *model.Deadline
	Failure  model.Failure
}

// Hooks are the lifecycle callbacks exposed to the host application.
type Hooks struct {
	OnMatched   func(HookEvent)
	OnExecuted  func(HookEvent)
	OnCancelled func(HookEvent)
}

// Machine consumes decoded events and owns every mutation of the
// tracked swap: step transitions, dispute counting, timer arming, and
// gathering the expense reconciliation inputs. The reconciliation
// itself involves network I/O and runs outside the machine; see
// PendingReconciliation and SetExpense.
type Machine struct {
	swap      *model.TrackedSwap
	durations Durations
	hooks     Hooks
	gasComp   *big.Int
	logger    *zap.Logger

	// Reconciliation inputs gathered from events along the way.
	feeRateBps *big.Int
	bounty     *big.Int
	price      *big.Int

	reconciled bool
}

// NewMachine builds a state machine around a fresh session entity.
func NewMachine(
	swap *model.TrackedSwap,
	durations Durations,
	hooks Hooks,
	gasComp *big.Int,
	logger *zap.Logger,
) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{
		swap:      swap,
		durations: durations,
		hooks:     hooks,
		gasComp:   gasComp,
		logger:    logger,
	}
}

// Swap exposes the tracked entity for snapshotting.
func (m *Machine) Swap() *model.TrackedSwap {
	return m.swap
}

// Filter returns the decoder filter for the current session state.
func (m *Machine) Filter() protocol.Filter {
	return protocol.Filter{
		SwapID:    m.swap.SwapID,
		ReportID:  m.swap.ReportID,
		HasReport: m.swap.HasReport,
	}
}

// Apply feeds one decoded event through the transition rules. It
// returns true when the event changed state; re-delivered instances and
// post-terminal events return false. BountyPaid is the one exception to
// the terminal guard: execution and bounty payout plausibly share a
// block, and contract priority puts the swap log first, so the bounty
// must still fold into an already-computed expense breakdown.
func (m *Machine) Apply(_ context.Context, ev model.SwapEvent) bool {
	if m.swap.Terminal() && ev.Kind != model.EventBountyPaid {
		return false
	}
	if !m.swap.MarkProcessed(ev.Key()) {
		return false
	}

	mark := model.StepMark{Timestamp: ev.Timestamp, TxHash: ev.TxHash}

	switch ev.Kind {
	case model.EventOrderMatched:
		m.applyMatched(ev, mark)
	case model.EventReportSubmitted:
		m.applyReportSubmitted(ev, mark)
	case model.EventReportDisputed:
		m.applyReportDisputed(ev, mark)
	case model.EventBountyPaid:
		m.applyBounty(ev)
	case model.EventOrderExecuted:
		m.applyExecuted(ev, mark)
	case model.EventOrderCancelled:
		m.applyFailure(model.FailureCancelled, model.RefundNoneReported, ev, mark)
	case model.EventOrderRefunded:
		m.applyFailure(model.FailureRefunded, ev.Reason, ev, mark)
	default:
		m.logger.Warn("unhandled event kind", zap.Int("kind", int(ev.Kind)))
		return false
	}

	m.logger.Info("event applied",
		zap.String("event", ev.Kind.String()),
		zap.String("step", m.swap.Step.String()),
		zap.Uint64("block", ev.BlockNumber),
		zap.Int("disputes", m.swap.DisputeCount),
	)
	return true
}

func (m *Machine) applyMatched(ev model.SwapEvent, mark model.StepMark) {
	if !m.swap.HasReport {
		m.swap.ReportID = ev.ReportID
		m.swap.HasReport = true
	}
	m.feeRateBps = ev.FeeRateBps

	m.completeThrough(model.StepMatched, mark)
	m.swap.BailOut = armDeadline(ev.Timestamp, m.durations.BailOutLatency)

	if m.hooks.OnMatched != nil {
		m.hooks.OnMatched(HookEvent{SwapID: m.swap.SwapID, Deadline: m.swap.BailOut})
	}
}

func (m *Machine) applyReportSubmitted(ev model.SwapEvent, mark model.StepMark) {
	m.price = ev.Price
	m.completeThrough(model.StepReported, mark)

	// A live report makes the latency bail-out moot; eligibility to
	// self-settle starts counting from this report's block time.
	m.swap.BailOut = nil
	m.swap.Settle = armDeadline(ev.Timestamp, m.durations.SettleDuration+m.durations.SettleGrace)
}

func (m *Machine) applyReportDisputed(ev model.SwapEvent, mark model.StepMark) {
	m.price = ev.Price
	// A dispute implies a report existed even if its log was missed.
	m.completeThrough(model.StepReported, mark)

	m.swap.Disputed = true
	m.swap.DisputeCount++
	// Re-armed from the dispute's own timestamp, not extended.
	m.swap.Settle = armDeadline(ev.Timestamp, m.durations.SettleDuration+m.durations.SettleGrace)
}

func (m *Machine) applyBounty(ev model.SwapEvent) {
	m.bounty = ev.Amount
	if m.reconciled && ev.Amount != nil {
		// Reconciliation already ran; fold the late bounty in.
		m.swap.Expense.Total.Sub(m.swap.Expense.Total, m.swap.Expense.Bounty)
		m.swap.Expense.Bounty.Set(ev.Amount)
		m.swap.Expense.Total.Add(m.swap.Expense.Total, ev.Amount)
	}
}

func (m *Machine) applyExecuted(ev model.SwapEvent, mark model.StepMark) {
	// Polling may have missed every intermediate log; execution is
	// authoritative, so all earlier steps are forced complete.
	m.completeThrough(model.StepExecuted, mark)
	m.swap.BailOut = nil
	m.swap.Settle = nil

	if m.hooks.OnExecuted != nil {
		m.hooks.OnExecuted(HookEvent{SwapID: m.swap.SwapID})
	}
}

// PendingReconciliation returns the gathered expense inputs while the
// one-time reconciliation at terminal success has not run yet. The
// caller runs the Reconciler without holding any tracker lock and
// stores the result through SetExpense.
func (m *Machine) PendingReconciliation() (ExpenseInputs, bool) {
	if m.reconciled || m.swap.Step != model.StepExecuted {
		return ExpenseInputs{}, false
	}
	return ExpenseInputs{
		Bounty:          m.bounty,
		FeeRateBps:      m.feeRateBps,
		SellAmount:      m.swap.Summary.SellAmount,
		SettlementPrice: m.price,
		SubmissionTx:    m.swap.SubmissionTx,
		GasCompensation: m.gasComp,
	}, true
}

// SetExpense stores the reconciled breakdown. Later same-cycle bounty
// events still fold in through applyBounty.
func (m *Machine) SetExpense(expense model.ExpenseBreakdown) {
	m.reconciled = true
	m.swap.Expense = expense
}

func (m *Machine) applyFailure(kind model.FailureKind, reason model.RefundReason, ev model.SwapEvent, mark model.StepMark) {
	m.swap.Failure = model.Failure{
		Kind:      kind,
		Reason:    reason,
		Timestamp: ev.Timestamp,
		TxHash:    ev.TxHash,
	}
	m.swap.BailOut = nil
	m.swap.Settle = nil

	if m.hooks.OnCancelled != nil {
		m.hooks.OnCancelled(HookEvent{SwapID: m.swap.SwapID, Failure: m.swap.Failure})
	}
}

// completeThrough marks every step up to target complete, backfilling
// any the poller never saw, and never moves the step backwards.
func (m *Machine) completeThrough(target model.Step, mark model.StepMark) {
	for st := model.StepSubmitted; st <= target; st++ {
		if _, ok := m.swap.Steps[st]; !ok {
			m.swap.Steps[st] = mark
		}
	}
	if target > m.swap.Step {
		m.swap.Step = target
	}
}
