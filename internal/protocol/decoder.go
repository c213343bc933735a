package protocol

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"swaptrack/internal/model"
)

// Filter restricts decoding to the tracked session. The order id space
// is shared across all users, so every parser checks the embedded id
// before a log is allowed to produce an event. Report-keyed logs are
// dropped wholesale until a report id has been captured from
// OrderMatched.
type Filter struct {
	SwapID    common.Hash
	ReportID  common.Hash
	HasReport bool
}

type decodeFn func(log types.Log, filter Filter) (*model.SwapEvent, error)

// Decoder maps topic0 to a pure per-event parser. Topic hashes are
// derived from the canonical ABI signatures, never hard-coded.
type Decoder struct {
	registry map[common.Hash]decodeFn
}

// NewDecoder builds the decoder registry from the protocol ABIs.
func NewDecoder() (*Decoder, error) {
	swapABI, err := SwapABI()
	if err != nil {
		return nil, err
	}
	oracleABI, err := OracleABI()
	if err != nil {
		return nil, err
	}
	bountyABI, err := BountyABI()
	if err != nil {
		return nil, err
	}

	d := &Decoder{registry: make(map[common.Hash]decodeFn)}
	d.registry[swapABI.Events["OrderMatched"].ID] = decodeOrderMatched(swapABI.Events["OrderMatched"])
	d.registry[swapABI.Events["OrderExecuted"].ID] = decodeOrderExecuted(swapABI.Events["OrderExecuted"])
	d.registry[swapABI.Events["OrderCancelled"].ID] = decodeOrderCancelled(swapABI.Events["OrderCancelled"])
	d.registry[swapABI.Events["OrderRefunded"].ID] = decodeOrderRefunded(swapABI.Events["OrderRefunded"])
	d.registry[oracleABI.Events["ReportSubmitted"].ID] = decodeReport(oracleABI.Events["ReportSubmitted"], model.EventReportSubmitted)
	d.registry[oracleABI.Events["ReportDisputed"].ID] = decodeReport(oracleABI.Events["ReportDisputed"], model.EventReportDisputed)
	d.registry[bountyABI.Events["BountyPaid"].ID] = decodeBountyPaid(bountyABI.Events["BountyPaid"])

	return d, nil
}

// Decode turns a raw log into a SwapEvent. It returns (nil, nil) when
// the topic is unrecognized or the embedded id does not belong to the
// tracked session, and an error only for malformed logs.
func (d *Decoder) Decode(log types.Log, filter Filter) (*model.SwapEvent, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("missing topics")
	}
	decode, ok := d.registry[log.Topics[0]]
	if !ok {
		return nil, nil
	}
	return decode(log, filter)
}

func baseEvent(kind model.EventKind, log types.Log) *model.SwapEvent {
	return &model.SwapEvent{
		Kind:        kind,
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
		LogIndex:    log.Index,
		Address:     log.Address,
	}
}

func decodeOrderMatched(event abi.Event) decodeFn {
	return func(log types.Log, filter Filter) (*model.SwapEvent, error) {
		if len(log.Topics) != 2 {
			return nil, fmt.Errorf("%s: expected 2 topics, got %d", event.Name, len(log.Topics))
		}
		if log.Topics[1] != filter.SwapID {
			return nil, nil
		}

		values, err := event.Inputs.NonIndexed().Unpack(log.Data)
		if err != nil {
			return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
		}
		if len(values) != 3 {
			return nil, fmt.Errorf("%s: unexpected value count %d", event.Name, len(values))
		}
		reportID, err := asHash(values[0])
		if err != nil {
			return nil, err
		}
		solver, err := asAddress(values[1])
		if err != nil {
			return nil, err
		}
		feeRate, err := asBigInt(values[2])
		if err != nil {
			return nil, err
		}

		ev := baseEvent(model.EventOrderMatched, log)
		ev.SwapID = log.Topics[1]
		ev.ReportID = reportID
		ev.Solver = solver
		ev.FeeRateBps = feeRate
		return ev, nil
	}
}

func decodeOrderExecuted(event abi.Event) decodeFn {
	return func(log types.Log, filter Filter) (*model.SwapEvent, error) {
		if len(log.Topics) != 2 {
			return nil, fmt.Errorf("%s: expected 2 topics, got %d", event.Name, len(log.Topics))
		}
		if log.Topics[1] != filter.SwapID {
			return nil, nil
		}

		values, err := event.Inputs.NonIndexed().Unpack(log.Data)
		if err != nil {
			return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
		}
		if len(values) != 2 {
			return nil, fmt.Errorf("%s: unexpected value count %d", event.Name, len(values))
		}
		solver, err := asAddress(values[0])
		if err != nil {
			return nil, err
		}
		amountOut, err := asBigInt(values[1])
		if err != nil {
			return nil, err
		}

		ev := baseEvent(model.EventOrderExecuted, log)
		ev.SwapID = log.Topics[1]
		ev.Solver = solver
		ev.Amount = amountOut
		return ev, nil
	}
}

func decodeOrderCancelled(event abi.Event) decodeFn {
	return func(log types.Log, filter Filter) (*model.SwapEvent, error) {
		if len(log.Topics) != 2 {
			return nil, fmt.Errorf("%s: expected 2 topics, got %d", event.Name, len(log.Topics))
		}
		if log.Topics[1] != filter.SwapID {
			return nil, nil
		}

		ev := baseEvent(model.EventOrderCancelled, log)
		ev.SwapID = log.Topics[1]
		return ev, nil
	}
}

func decodeOrderRefunded(event abi.Event) decodeFn {
	return func(log types.Log, filter Filter) (*model.SwapEvent, error) {
		if len(log.Topics) != 2 {
			return nil, fmt.Errorf("%s: expected 2 topics, got %d", event.Name, len(log.Topics))
		}
		if log.Topics[1] != filter.SwapID {
			return nil, nil
		}

		values, err := event.Inputs.NonIndexed().Unpack(log.Data)
		if err != nil {
			return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
		}
		if len(values) != 1 {
			return nil, fmt.Errorf("%s: unexpected value count %d", event.Name, len(values))
		}
		reason, err := asUint8(values[0])
		if err != nil {
			return nil, err
		}
		if reason > uint8(model.RefundTimingAnomaly) {
			return nil, fmt.Errorf("%s: unknown refund reason %d", event.Name, reason)
		}

		ev := baseEvent(model.EventOrderRefunded, log)
		ev.SwapID = log.Topics[1]
		ev.Reason = model.RefundReason(reason)
		return ev, nil
	}
}

func decodeReport(event abi.Event, kind model.EventKind) decodeFn {
	return func(log types.Log, filter Filter) (*model.SwapEvent, error) {
		if len(log.Topics) != 3 {
			return nil, fmt.Errorf("%s: expected 3 topics, got %d", event.Name, len(log.Topics))
		}
		if !filter.HasReport || log.Topics[1] != filter.ReportID {
			return nil, nil
		}

		values, err := event.Inputs.NonIndexed().Unpack(log.Data)
		if err != nil {
			return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
		}
		if len(values) != 1 {
			return nil, fmt.Errorf("%s: unexpected value count %d", event.Name, len(values))
		}
		price, err := asBigInt(values[0])
		if err != nil {
			return nil, err
		}

		ev := baseEvent(kind, log)
		ev.ReportID = log.Topics[1]
		ev.Reporter = common.BytesToAddress(log.Topics[2].Bytes())
		ev.Price = price
		return ev, nil
	}
}

func decodeBountyPaid(event abi.Event) decodeFn {
	return func(log types.Log, filter Filter) (*model.SwapEvent, error) {
		if len(log.Topics) != 3 {
			return nil, fmt.Errorf("%s: expected 3 topics, got %d", event.Name, len(log.Topics))
		}
		if !filter.HasReport || log.Topics[1] != filter.ReportID {
			return nil, nil
		}

		values, err := event.Inputs.NonIndexed().Unpack(log.Data)
		if err != nil {
			return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
		}
		if len(values) != 1 {
			return nil, fmt.Errorf("%s: unexpected value count %d", event.Name, len(values))
		}
		amount, err := asBigInt(values[0])
		if err != nil {
			return nil, err
		}

		ev := baseEvent(model.EventBountyPaid, log)
		ev.ReportID = log.Topics[1]
		ev.Amount = amount
		return ev, nil
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	typed, ok := value.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("expected *big.Int, got %T", value)
	}
	return typed, nil
}

func asAddress(value interface{}) (common.Address, error) {
	typed, ok := value.(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("expected address, got %T", value)
	}
	return typed, nil
}

func asHash(value interface{}) (common.Hash, error) {
	typed, ok := value.([32]byte)
	if !ok {
		return common.Hash{}, fmt.Errorf("expected bytes32, got %T", value)
	}
	return common.Hash(typed), nil
}

func asUint8(value interface{}) (uint8, error) {
	typed, ok := value.(uint8)
	if !ok {
		return 0, fmt.Errorf("expected uint8, got %T", value)
	}
	return typed, nil
}
