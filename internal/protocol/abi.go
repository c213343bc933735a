package protocol

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const swapABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "bytes32", "name": "orderId", "type": "bytes32"},
      {"indexed": false, "internalType": "bytes32", "name": "reportId", "type": "bytes32"},
      {"indexed": false, "internalType": "address", "name": "solver", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "feeRateBps", "type": "uint256"}
    ],
    "name": "OrderMatched",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "bytes32", "name": "orderId", "type": "bytes32"},
      {"indexed": false, "internalType": "address", "name": "solver", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "amountOut", "type": "uint256"}
    ],
    "name": "OrderExecuted",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "bytes32", "name": "orderId", "type": "bytes32"},
      {"indexed": false, "internalType": "address", "name": "caller", "type": "address"}
    ],
    "name": "OrderCancelled",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "bytes32", "name": "orderId", "type": "bytes32"},
      {"indexed": false, "internalType": "uint8", "name": "reason", "type": "uint8"}
    ],
    "name": "OrderRefunded",
    "type": "event"
  }
]`

const oracleABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "bytes32", "name": "reportId", "type": "bytes32"},
      {"indexed": true, "internalType": "address", "name": "reporter", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "price", "type": "uint256"}
    ],
    "name": "ReportSubmitted",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "bytes32", "name": "reportId", "type": "bytes32"},
      {"indexed": true, "internalType": "address", "name": "disputer", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "price", "type": "uint256"}
    ],
    "name": "ReportDisputed",
    "type": "event"
  }
]`

const bountyABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "bytes32", "name": "reportId", "type": "bytes32"},
      {"indexed": true, "internalType": "address", "name": "recipient", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "amount", "type": "uint256"}
    ],
    "name": "BountyPaid",
    "type": "event"
  }
]`

var (
	parsedABIs struct {
		swap   abi.ABI
		oracle abi.ABI
		bounty abi.ABI
	}
	abiOnce sync.Once
	abiErr  error
)

func parseABIs() error {
	abiOnce.Do(func() {
		parsedABIs.swap, abiErr = abi.JSON(strings.NewReader(swapABIJSON))
		if abiErr != nil {
			return
		}
		parsedABIs.oracle, abiErr = abi.JSON(strings.NewReader(oracleABIJSON))
		if abiErr != nil {
			return
		}
		parsedABIs.bounty, abiErr = abi.JSON(strings.NewReader(bountyABIJSON))
	})
	return abiErr
}

// SwapABI returns the parsed swap contract ABI.
func SwapABI() (abi.ABI, error) {
	if err := parseABIs(); err != nil {
		return abi.ABI{}, err
	}
	return parsedABIs.swap, nil
}

// OracleABI returns the parsed oracle contract ABI.
func OracleABI() (abi.ABI, error) {
	if err := parseABIs(); err != nil {
		return abi.ABI{}, err
	}
	return parsedABIs.oracle, nil
}

// BountyABI returns the parsed bounty contract ABI.
func BountyABI() (abi.ABI, error) {
	if err := parseABIs(); err != nil {
		return abi.ABI{}, err
	}
	return parsedABIs.bounty, nil
}
