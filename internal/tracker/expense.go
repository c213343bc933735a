package tracker

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"swaptrack/internal/model"
)

const feeRateDenominator = 10000

// ExpenseInputs collects everything the reconciliation needs. Any nil
// field simply contributes zero.
type ExpenseInputs struct {
	Bounty          *big.Int
	FeeRateBps      *big.Int
	SellAmount      *big.Int
	SettlementPrice *big.Int
	SubmissionTx    common.Hash
	GasCompensation *big.Int
}

// Reconciler computes the cost breakdown once, on terminal success. The
// single network input is the submission receipt; everything else comes
// from decoded events and configuration.
type Reconciler struct {
	provider        Provider
	receiptAttempts int
	receiptInterval time.Duration
	logger          *zap.Logger
}

// NewReconciler builds a Reconciler.
func NewReconciler(provider Provider, receiptAttempts int, receiptInterval time.Duration, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		provider:        provider,
		receiptAttempts: receiptAttempts,
		receiptInterval: receiptInterval,
		logger:          logger,
	}
}

// Reconcile produces the additive breakdown. It never fails: components
// that cannot be determined default to zero.
func (r *Reconciler) Reconcile(ctx context.Context, in ExpenseInputs) model.ExpenseBreakdown {
	out := model.ZeroExpense()

	if in.Bounty != nil {
		out.Bounty.Set(in.Bounty)
	}
	if in.SettlementPrice != nil {
		out.SettlementPrice.Set(in.SettlementPrice)
	}

	if in.FeeRateBps != nil && in.SellAmount != nil {
		fee := new(big.Int).Mul(in.SellAmount, in.FeeRateBps)
		fee.Div(fee, big.NewInt(feeRateDenominator))
		out.FulfillmentFee.Set(fee)
	}

	out.Gas.Set(r.submissionGas(ctx, in.SubmissionTx))
	if in.GasCompensation != nil {
		out.Gas.Add(out.Gas, in.GasCompensation)
	}

	out.Total.Add(out.Total, out.Bounty)
	out.Total.Add(out.Total, out.FulfillmentFee)
	out.Total.Add(out.Total, out.Gas)

	return out
}

func (r *Reconciler) submissionGas(ctx context.Context, txHash common.Hash) *big.Int {
	zero := new(big.Int)
	if r.provider == nil || txHash == (common.Hash{}) {
		return zero
	}

	receipt, err := awaitReceipt(ctx, r.provider, txHash, r.receiptAttempts, r.receiptInterval)
	if err != nil {
		r.logger.Warn("submission receipt unavailable", zap.String("tx", txHash.Hex()), zap.Error(err))
		return zero
	}
	if receipt.EffectiveGasPrice == nil {
		return zero
	}

	gasUsed := new(big.Int).SetUint64(receipt.GasUsed)
	return gasUsed.Mul(gasUsed, receipt.EffectiveGasPrice)
}
