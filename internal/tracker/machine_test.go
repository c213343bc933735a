package tracker

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"swaptrack/internal/model"
)

var testDurations = Durations{
	BailOutLatency: 30,
	SettleDuration: 4,
	SettleGrace:    3,
}

func newTestMachine(t *testing.T, hooks Hooks) *Machine {
	t.Helper()
	swap := model.NewTrackedSwap(testHash(0x01), testHash(0xf0), model.OrderSummary{
		SellAmount: big.NewInt(1_000_000),
	})
	return NewMachine(swap, testDurations, hooks, big.NewInt(0), nil)
}

// reconcile runs the expense reconciliation the way the polling sink
// does after the lock is released.
func reconcile(t *testing.T, m *Machine) {
	t.Helper()
	inputs, ok := m.PendingReconciliation()
	if !ok {
		t.Fatalf("reconciliation must be pending at terminal success")
	}
	recon := NewReconciler(nil, 1, time.Millisecond, nil)
	m.SetExpense(recon.Reconcile(context.Background(), inputs))
}

func matchedEvent(tx byte, ts uint64) model.SwapEvent {
	return model.SwapEvent{
		Kind:       model.EventOrderMatched,
		Timestamp:  ts,
		TxHash:     testHash(tx),
		SwapID:     testHash(0x01),
		ReportID:   testHash(0x02),
		FeeRateBps: big.NewInt(25),
	}
}

func reportEvent(tx byte, ts uint64) model.SwapEvent {
	return model.SwapEvent{
		Kind:      model.EventReportSubmitted,
		Timestamp: ts,
		TxHash:    testHash(tx),
		ReportID:  testHash(0x02),
		Price:     big.NewInt(1234),
	}
}

func disputeEvent(tx byte, ts uint64) model.SwapEvent {
	return model.SwapEvent{
		Kind:      model.EventReportDisputed,
		Timestamp: ts,
		TxHash:    testHash(tx),
		ReportID:  testHash(0x02),
		Price:     big.NewInt(1200),
	}
}

func bountyEvent(tx byte, ts uint64, amount int64) model.SwapEvent {
	return model.SwapEvent{
		Kind:      model.EventBountyPaid,
		Timestamp: ts,
		TxHash:    testHash(tx),
		ReportID:  testHash(0x02),
		Amount:    big.NewInt(amount),
	}
}

func executedEvent(tx byte, ts uint64) model.SwapEvent {
	return model.SwapEvent{
		Kind:      model.EventOrderExecuted,
		Timestamp: ts,
		TxHash:    testHash(tx),
		SwapID:    testHash(0x01),
		Amount:    big.NewInt(999),
	}
}

func TestMatchedArmsBailOutDeadline(t *testing.T) {
	m := newTestMachine(t, Hooks{})
	ctx := context.Background()

	if !m.Apply(ctx, matchedEvent(0xa1, 1000)) {
		t.Fatalf("matched event not applied")
	}

	swap := m.Swap()
	if swap.Step != model.StepMatched {
		t.Fatalf("step mismatch: %v", swap.Step)
	}
	if !swap.HasReport || swap.ReportID != testHash(0x02) {
		t.Fatalf("report id not captured")
	}
	if swap.BailOut == nil {
		t.Fatalf("bail-out deadline not armed")
	}

	// Match at t=1000 with latency 30: unavailable at 1029, available at 1030.
	if swap.BailOut.Expired(1029) {
		t.Fatalf("bail-out available one second early")
	}
	if !swap.BailOut.Expired(1030) {
		t.Fatalf("bail-out unavailable at expiry")
	}
}

func TestReportArmsSettleDeadline(t *testing.T) {
	m := newTestMachine(t, Hooks{})
	ctx := context.Background()

	m.Apply(ctx, matchedEvent(0xa1, 1000))
	m.Apply(ctx, reportEvent(0xa2, 2000))

	swap := m.Swap()
	if swap.Step != model.StepReported {
		t.Fatalf("step mismatch: %v", swap.Step)
	}
	if swap.BailOut != nil {
		t.Fatalf("bail-out must be disarmed once a report lands")
	}
	if swap.Settle == nil {
		t.Fatalf("settle deadline not armed")
	}

	// Report at t=2000 with S=4, G=3: self-settle at 2007, not before.
	if swap.Settle.Expired(2006) {
		t.Fatalf("self-settle available one second early")
	}
	if !swap.Settle.Expired(2007) {
		t.Fatalf("self-settle unavailable at expiry")
	}
}

func TestDisputeRestartsSettleCountdown(t *testing.T) {
	m := newTestMachine(t, Hooks{})
	ctx := context.Background()

	m.Apply(ctx, matchedEvent(0xa1, 1000))
	m.Apply(ctx, reportEvent(0xa2, 2000))
	m.Apply(ctx, disputeEvent(0xa3, 2500))

	swap := m.Swap()
	if swap.DisputeCount != 1 || !swap.Disputed {
		t.Fatalf("dispute not recorded: %+v", swap)
	}
	// Re-armed from the dispute's own timestamp, not the first report's.
	if swap.Settle.Anchor != 2500 {
		t.Fatalf("settle anchor mismatch: %d", swap.Settle.Anchor)
	}
	if swap.Settle.ExpiresAt() != 2507 {
		t.Fatalf("settle expiry mismatch: %d", swap.Settle.ExpiresAt())
	}
}

func TestEventRedeliveryIsIdempotent(t *testing.T) {
	m := newTestMachine(t, Hooks{})
	ctx := context.Background()

	m.Apply(ctx, matchedEvent(0xa1, 1000))
	m.Apply(ctx, reportEvent(0xa2, 2000))

	dispute := disputeEvent(0xa3, 2500)
	if !m.Apply(ctx, dispute) {
		t.Fatalf("first dispute delivery not applied")
	}
	laterAnchor := m.Swap().Settle.Anchor

	if m.Apply(ctx, dispute) {
		t.Fatalf("re-delivered dispute must be a no-op")
	}
	if m.Swap().DisputeCount != 1 {
		t.Fatalf("dispute count changed on re-delivery: %d", m.Swap().DisputeCount)
	}
	if m.Swap().Settle.Anchor != laterAnchor {
		t.Fatalf("settle deadline re-armed on re-delivery")
	}
}

func TestTwoDistinctDisputesBothCount(t *testing.T) {
	m := newTestMachine(t, Hooks{})
	ctx := context.Background()

	m.Apply(ctx, matchedEvent(0xa1, 1000))
	m.Apply(ctx, disputeEvent(0xb1, 2100))
	m.Apply(ctx, disputeEvent(0xb2, 2200))
	m.Apply(ctx, executedEvent(0xb3, 3000))

	swap := m.Swap()
	if swap.DisputeCount != 2 {
		t.Fatalf("dispute count mismatch: %d", swap.DisputeCount)
	}
	if swap.Step != model.StepExecuted {
		t.Fatalf("step mismatch: %v", swap.Step)
	}
	if swap.Failure.Kind != model.FailureNone {
		t.Fatalf("unexpected failure: %+v", swap.Failure)
	}
}

func TestBountyBeforeExecutionEntersExpense(t *testing.T) {
	m := newTestMachine(t, Hooks{})
	ctx := context.Background()

	m.Apply(ctx, matchedEvent(0xa1, 1000))
	m.Apply(ctx, bountyEvent(0xa2, 1500, 700))
	m.Apply(ctx, executedEvent(0xa3, 2000))
	reconcile(t, m)

	expense := m.Swap().Expense
	if expense.Bounty.Cmp(big.NewInt(700)) != 0 {
		t.Fatalf("bounty mismatch: %s", expense.Bounty)
	}
	if expense.Total.Cmp(big.NewInt(3200)) != 0 {
		t.Fatalf("total mismatch: %s", expense.Total)
	}
}

func TestBountyAfterExecutionFoldsIntoExpense(t *testing.T) {
	m := newTestMachine(t, Hooks{})
	ctx := context.Background()

	// Contract priority processes the swap log first, so when payout
	// and execution share a block the bounty arrives after the swap is
	// already terminal.
	m.Apply(ctx, matchedEvent(0xa1, 1000))
	m.Apply(ctx, executedEvent(0xa2, 2000))
	reconcile(t, m)

	if !m.Apply(ctx, bountyEvent(0xa3, 2000, 700)) {
		t.Fatalf("bounty after terminal success must still apply")
	}

	expense := m.Swap().Expense
	if expense.Bounty.Cmp(big.NewInt(700)) != 0 {
		t.Fatalf("bounty mismatch: %s", expense.Bounty)
	}
	// Fee 2500 from 25 bps of 1,000,000 plus the folded-in bounty.
	if expense.Total.Cmp(big.NewInt(3200)) != 0 {
		t.Fatalf("total mismatch: %s", expense.Total)
	}
	if _, ok := m.PendingReconciliation(); ok {
		t.Fatalf("reconciliation must not run twice")
	}
}

func TestCancelledIsTerminalWithoutReason(t *testing.T) {
	var failure model.Failure
	m := newTestMachine(t, Hooks{
		OnCancelled: func(e HookEvent) { failure = e.Failure },
	})
	ctx := context.Background()

	m.Apply(ctx, matchedEvent(0xa1, 1000))
	m.Apply(ctx, model.SwapEvent{
		Kind:      model.EventOrderCancelled,
		Timestamp: 1500,
		TxHash:    testHash(0xd5),
		SwapID:    testHash(0x01),
	})

	swap := m.Swap()
	if !swap.Terminal() || swap.Failure.Kind != model.FailureCancelled {
		t.Fatalf("cancel must be terminal: %+v", swap.Failure)
	}
	if swap.Failure.Reason != model.RefundNoneReported {
		t.Fatalf("cancel carries no refund sub-reason: %v", swap.Failure.Reason)
	}
	if swap.BailOut != nil || swap.Settle != nil {
		t.Fatalf("timers must be disarmed at terminal failure")
	}
	if failure.Kind != model.FailureCancelled {
		t.Fatalf("cancelled hook payload mismatch: %+v", failure)
	}
}

func TestExecutedShortCircuitsMissedSteps(t *testing.T) {
	executed := false
	m := newTestMachine(t, Hooks{
		OnExecuted: func(HookEvent) { executed = true },
	})

	// Only the Executed event arrives, simulating missed polls.
	if !m.Apply(context.Background(), executedEvent(0xc1, 5000)) {
		t.Fatalf("executed event not applied")
	}

	swap := m.Swap()
	for step := model.StepSubmitted; step <= model.StepExecuted; step++ {
		if _, ok := swap.Steps[step]; !ok {
			t.Fatalf("step %v not force-completed", step)
		}
	}
	if swap.BailOut != nil || swap.Settle != nil {
		t.Fatalf("timers must be disarmed at terminal success")
	}
	if _, ok := m.PendingReconciliation(); !ok {
		t.Fatalf("expense reconciliation must be pending after execution")
	}
	if !executed {
		t.Fatalf("executed hook not fired")
	}
}

func TestRefundIsTerminalWithReason(t *testing.T) {
	var failure model.Failure
	m := newTestMachine(t, Hooks{
		OnCancelled: func(e HookEvent) { failure = e.Failure },
	})
	ctx := context.Background()

	m.Apply(ctx, matchedEvent(0xa1, 1000))
	m.Apply(ctx, model.SwapEvent{
		Kind:      model.EventOrderRefunded,
		Timestamp: 1500,
		TxHash:    testHash(0xd1),
		SwapID:    testHash(0x01),
		Reason:    model.RefundPriceSlippage,
	})

	swap := m.Swap()
	if !swap.Terminal() {
		t.Fatalf("refund must be terminal")
	}
	if swap.Failure.Kind != model.FailureRefunded || swap.Failure.Reason != model.RefundPriceSlippage {
		t.Fatalf("failure mismatch: %+v", swap.Failure)
	}
	if swap.BailOut != nil || swap.Settle != nil {
		t.Fatalf("timers must be disarmed at terminal failure")
	}
	if failure.Reason != model.RefundPriceSlippage {
		t.Fatalf("cancelled hook payload mismatch: %+v", failure)
	}

	// Nothing moves after a terminal state.
	if m.Apply(ctx, executedEvent(0xd2, 1600)) {
		t.Fatalf("post-terminal event must be ignored")
	}
}

func TestReportIDImmutableAfterCapture(t *testing.T) {
	m := newTestMachine(t, Hooks{})
	ctx := context.Background()

	m.Apply(ctx, matchedEvent(0xa1, 1000))

	second := matchedEvent(0xa2, 1100)
	second.ReportID = testHash(0x55)
	m.Apply(ctx, second)

	if m.Swap().ReportID != testHash(0x02) {
		t.Fatalf("report id must not change once captured")
	}
}

func testHash(b byte) common.Hash {
	var h common.Hash
	h[31] = b
	return h
}
