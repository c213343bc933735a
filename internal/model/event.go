package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// EventKind tags the decoded event variant.
type EventKind int

const (
	EventOrderMatched EventKind = iota
	EventOrderExecuted
	EventOrderCancelled
	EventOrderRefunded
	EventReportSubmitted
	EventReportDisputed
	EventBountyPaid
)

// String returns the event name as emitted by the contracts.
func (k EventKind) String() string {
	switch k {
	case EventOrderMatched:
		return "OrderMatched"
	case EventOrderExecuted:
		return "OrderExecuted"
	case EventOrderCancelled:
		return "OrderCancelled"
	case EventOrderRefunded:
		return "OrderRefunded"
	case EventReportSubmitted:
		return "ReportSubmitted"
	case EventReportDisputed:
		return "ReportDisputed"
	case EventBountyPaid:
		return "BountyPaid"
	default:
		return "unknown"
	}
}

// EventKey identifies one event instance for at-most-once application.
type EventKey struct {
	TxHash   common.Hash
	LogIndex uint
}

// SwapEvent is a decoded protocol event, populated per kind.
type SwapEvent struct {
	Kind        EventKind
	BlockNumber uint64
	Timestamp   uint64
	TxHash      common.Hash
	LogIndex    uint
	Address     common.Address

	SwapID   common.Hash
	ReportID common.Hash

	Solver     common.Address
	Reporter   common.Address
	FeeRateBps *big.Int
	Price      *big.Int
	Amount     *big.Int
	Reason     RefundReason
}

// Key returns the idempotence key for this event instance.
func (e SwapEvent) Key() EventKey {
	return EventKey{TxHash: e.TxHash, LogIndex: e.LogIndex}
}
