package tracker

import (
	"context"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
)

func TestReconcileDefaultsToZero(t *testing.T) {
	recon := NewReconciler(nil, 1, time.Millisecond, nil)

	out := recon.Reconcile(context.Background(), ExpenseInputs{})

	for name, got := range map[string]*big.Int{
		"bounty":          out.Bounty,
		"fulfillment fee": out.FulfillmentFee,
		"gas":             out.Gas,
		"total":           out.Total,
	} {
		if got.Sign() != 0 {
			t.Fatalf("%s must default to zero, got %s", name, got)
		}
	}
}

func TestReconcileFeeFromRateAndNotional(t *testing.T) {
	recon := NewReconciler(nil, 1, time.Millisecond, nil)

	out := recon.Reconcile(context.Background(), ExpenseInputs{
		Bounty:     big.NewInt(700),
		FeeRateBps: big.NewInt(25),
		SellAmount: big.NewInt(1_000_000),
	})

	// 25 bps of 1,000,000 is 2,500.
	if out.FulfillmentFee.Cmp(big.NewInt(2500)) != 0 {
		t.Fatalf("fee mismatch: %s", out.FulfillmentFee)
	}
	if out.Bounty.Cmp(big.NewInt(700)) != 0 {
		t.Fatalf("bounty mismatch: %s", out.Bounty)
	}
	if out.Total.Cmp(big.NewInt(3200)) != 0 {
		t.Fatalf("total mismatch: %s", out.Total)
	}
}

func TestReconcileGasFromReceipt(t *testing.T) {
	provider := &fakeProvider{
		receipt: &types.Receipt{
			GasUsed:           21000,
			EffectiveGasPrice: big.NewInt(3),
		},
	}
	recon := NewReconciler(provider, 1, time.Millisecond, nil)

	out := recon.Reconcile(context.Background(), ExpenseInputs{
		SubmissionTx:    testHash(0xaa),
		GasCompensation: big.NewInt(100),
	})

	// 21000 * 3 + 100 compensation.
	if out.Gas.Cmp(big.NewInt(63100)) != 0 {
		t.Fatalf("gas mismatch: %s", out.Gas)
	}
	if out.Total.Cmp(out.Gas) != 0 {
		t.Fatalf("total must equal gas when other components are zero: %s", out.Total)
	}
}

func TestReconcileSurvivesMissingReceipt(t *testing.T) {
	provider := &fakeProvider{receiptErr: fmt.Errorf("not found")}
	recon := NewReconciler(provider, 2, time.Millisecond, nil)

	out := recon.Reconcile(context.Background(), ExpenseInputs{
		Bounty:       big.NewInt(700),
		SubmissionTx: testHash(0xaa),
	})

	if out.Gas.Sign() != 0 {
		t.Fatalf("gas must fall back to zero without a receipt: %s", out.Gas)
	}
	if out.Total.Cmp(big.NewInt(700)) != 0 {
		t.Fatalf("total mismatch: %s", out.Total)
	}
}
