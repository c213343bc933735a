package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Step is one rung of the forward swap lifecycle ladder.
type Step int

const (
	StepSubmitted Step = iota
	StepMatched
	StepReported
	StepSettled
	StepExecuted
)

// String returns the display name of a step.
func (s Step) String() string {
	switch s {
	case StepSubmitted:
		return "submitted"
	case StepMatched:
		return "matched"
	case StepReported:
		return "reported"
	case StepSettled:
		return "settled"
	case StepExecuted:
		return "executed"
	default:
		return "unknown"
	}
}

// RefundReason is the bail-out sub-reason carried by a refund event.
type RefundReason uint8

const (
	RefundNoneReported RefundReason = iota
	RefundPriceSlippage
	RefundTimingAnomaly
)

// String returns the display name of a refund reason.
func (r RefundReason) String() string {
	switch r {
	case RefundNoneReported:
		return "none-yet-reported"
	case RefundPriceSlippage:
		return "price-slippage"
	case RefundTimingAnomaly:
		return "timing-anomaly"
	default:
		return "unknown"
	}
}

// FailureKind distinguishes the two terminal failure outcomes.
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailureCancelled
	FailureRefunded
)

// Failure records a terminal failure outcome, if any.
type Failure struct {
	Kind      FailureKind
	Reason    RefundReason
	Timestamp uint64
	TxHash    common.Hash
}

// StepMark records when and in which transaction a step completed.
type StepMark struct {
	Timestamp uint64
	TxHash    common.Hash
}

// OrderSummary carries the order parameters known at submission time.
type OrderSummary struct {
	SellToken  common.Address
	BuyToken   common.Address
	SellAmount *big.Int
}

// TrackedSwap is the single live entity mutated by the state machine.
type TrackedSwap struct {
	SwapID       common.Hash
	SubmissionTx common.Hash
	Summary      OrderSummary

	// ReportID is unset until the order is matched; once set it is
	// immutable for the session.
	ReportID  common.Hash
	HasReport bool

	Step         Step
	Steps        map[Step]StepMark
	Disputed     bool
	DisputeCount int

	// Processed holds the (txHash, logIndex) pairs already applied.
	Processed map[EventKey]struct{}

	BailOut *Deadline
	Settle  *Deadline

	Failure Failure
	Expense ExpenseBreakdown
}

// NewTrackedSwap creates a fresh session entity in the Submitted step.
func NewTrackedSwap(swapID, submissionTx common.Hash, summary OrderSummary) *TrackedSwap {
	return &TrackedSwap{
		SwapID:       swapID,
		SubmissionTx: submissionTx,
		Summary:      summary,
		Step:         StepSubmitted,
		Steps:        make(map[Step]StepMark),
		Processed:    make(map[EventKey]struct{}),
		Expense:      ZeroExpense(),
	}
}

// MarkProcessed records an event instance; it returns false when the
// instance was seen before.
func (s *TrackedSwap) MarkProcessed(key EventKey) bool {
	if _, ok := s.Processed[key]; ok {
		return false
	}
	s.Processed[key] = struct{}{}
	return true
}

// Terminal reports whether the swap reached a terminal outcome.
func (s *TrackedSwap) Terminal() bool {
	return s.Step == StepExecuted || s.Failure.Kind != FailureNone
}
