package protocol

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"swaptrack/internal/model"
)

func TestDecodeOrderMatched(t *testing.T) {
	swapABI, err := SwapABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	decoder, err := NewDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	orderID := testHash(0x01)
	reportID := testHash(0x02)
	solver := common.HexToAddress("0x2222222222222222222222222222222222222222")

	data, err := swapABI.Events["OrderMatched"].Inputs.NonIndexed().Pack(
		[32]byte(reportID),
		solver,
		big.NewInt(25),
	)
	if err != nil {
		t.Fatalf("pack matched: %v", err)
	}

	log := buildLog(swapABI.Events["OrderMatched"].ID, data, []common.Hash{orderID})

	ev, err := decoder.Decode(log, Filter{SwapID: orderID})
	if err != nil {
		t.Fatalf("decode matched: %v", err)
	}
	if ev == nil {
		t.Fatalf("event was filtered out")
	}

	if ev.Kind != model.EventOrderMatched {
		t.Fatalf("kind mismatch: %v", ev.Kind)
	}
	if ev.SwapID != orderID || ev.ReportID != reportID {
		t.Fatalf("id mismatch: %+v", ev)
	}
	if ev.Solver != solver {
		t.Fatalf("solver mismatch: %s", ev.Solver.Hex())
	}
	if ev.FeeRateBps.Cmp(big.NewInt(25)) != 0 {
		t.Fatalf("fee rate mismatch: %s", ev.FeeRateBps)
	}
}

func TestDecodeDiscardsForeignOrder(t *testing.T) {
	swapABI, err := SwapABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	decoder, err := NewDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	data, err := swapABI.Events["OrderExecuted"].Inputs.NonIndexed().Pack(
		common.HexToAddress("0x2222222222222222222222222222222222222222"),
		big.NewInt(500),
	)
	if err != nil {
		t.Fatalf("pack executed: %v", err)
	}

	log := buildLog(swapABI.Events["OrderExecuted"].ID, data, []common.Hash{testHash(0x99)})

	ev, err := decoder.Decode(log, Filter{SwapID: testHash(0x01)})
	if err != nil {
		t.Fatalf("decode executed: %v", err)
	}
	if ev != nil {
		t.Fatalf("foreign order must be discarded, got %+v", ev)
	}
}

func TestDecodeReportGatedUntilMatched(t *testing.T) {
	oracleABI, err := OracleABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	decoder, err := NewDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	reportID := testHash(0x02)
	reporter := common.HexToAddress("0x3333333333333333333333333333333333333333")

	data, err := oracleABI.Events["ReportSubmitted"].Inputs.NonIndexed().Pack(big.NewInt(1234))
	if err != nil {
		t.Fatalf("pack report: %v", err)
	}

	log := buildLog(oracleABI.Events["ReportSubmitted"].ID, data, []common.Hash{
		reportID,
		common.BytesToHash(reporter.Bytes()),
	})

	// No report id captured yet: the log is dropped wholesale.
	ev, err := decoder.Decode(log, Filter{SwapID: testHash(0x01)})
	if err != nil {
		t.Fatalf("decode gated report: %v", err)
	}
	if ev != nil {
		t.Fatalf("report must be gated before a report id is known")
	}

	ev, err = decoder.Decode(log, Filter{SwapID: testHash(0x01), ReportID: reportID, HasReport: true})
	if err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if ev == nil {
		t.Fatalf("matching report must decode")
	}
	if ev.Kind != model.EventReportSubmitted {
		t.Fatalf("kind mismatch: %v", ev.Kind)
	}
	if ev.Price.Cmp(big.NewInt(1234)) != 0 {
		t.Fatalf("price mismatch: %s", ev.Price)
	}
	if ev.Reporter != reporter {
		t.Fatalf("reporter mismatch: %s", ev.Reporter.Hex())
	}

	// A matching report id from another session's report is still foreign.
	ev, err = decoder.Decode(log, Filter{SwapID: testHash(0x01), ReportID: testHash(0x77), HasReport: true})
	if err != nil {
		t.Fatalf("decode foreign report: %v", err)
	}
	if ev != nil {
		t.Fatalf("foreign report id must be discarded")
	}
}

func TestDecodeOrderRefundedReason(t *testing.T) {
	swapABI, err := SwapABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	decoder, err := NewDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	orderID := testHash(0x01)

	data, err := swapABI.Events["OrderRefunded"].Inputs.NonIndexed().Pack(uint8(model.RefundPriceSlippage))
	if err != nil {
		t.Fatalf("pack refunded: %v", err)
	}

	log := buildLog(swapABI.Events["OrderRefunded"].ID, data, []common.Hash{orderID})

	ev, err := decoder.Decode(log, Filter{SwapID: orderID})
	if err != nil {
		t.Fatalf("decode refunded: %v", err)
	}
	if ev == nil {
		t.Fatalf("refund was filtered out")
	}
	if ev.Reason != model.RefundPriceSlippage {
		t.Fatalf("reason mismatch: %v", ev.Reason)
	}
}

func TestDecodeUnknownTopicIgnored(t *testing.T) {
	decoder, err := NewDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	log := buildLog(testHash(0xff), nil, []common.Hash{testHash(0x01)})

	ev, err := decoder.Decode(log, Filter{SwapID: testHash(0x01)})
	if err != nil {
		t.Fatalf("unknown topic must not error: %v", err)
	}
	if ev != nil {
		t.Fatalf("unknown topic must be ignored")
	}
}

func TestDecodeMalformedDataErrors(t *testing.T) {
	swapABI, err := SwapABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	decoder, err := NewDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	orderID := testHash(0x01)
	log := buildLog(swapABI.Events["OrderMatched"].ID, []byte{0x01, 0x02}, []common.Hash{orderID})

	if _, err := decoder.Decode(log, Filter{SwapID: orderID}); err == nil {
		t.Fatalf("expected decode error for truncated data")
	}
}

func buildLog(topic0 common.Hash, data []byte, indexed []common.Hash) types.Log {
	topics := make([]common.Hash, 0, len(indexed)+1)
	topics = append(topics, topic0)
	topics = append(topics, indexed...)

	return types.Log{
		Address:     common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Topics:      topics,
		Data:        data,
		BlockNumber: 12345,
		TxHash:      testHash(0xde),
		Index:       1,
	}
}

func testHash(b byte) common.Hash {
	var h common.Hash
	h[31] = b
	return h
}
