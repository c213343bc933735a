package model

import "math/big"

// ExpenseBreakdown is the additive cost summary computed once at
// terminal success. Components that could not be determined stay zero.
type ExpenseBreakdown struct {
	Bounty         *big.Int
	FulfillmentFee *big.Int
	Gas            *big.Int
	Total          *big.Int

	// SettlementPrice is the price the protocol itself settled at,
	// extracted from the report events rather than a live feed.
	SettlementPrice *big.Int
}

// ZeroExpense returns a breakdown with every component set to zero.
func ZeroExpense() ExpenseBreakdown {
	return ExpenseBreakdown{
		Bounty:          new(big.Int),
		FulfillmentFee:  new(big.Int),
		Gas:             new(big.Int),
		Total:           new(big.Int),
		SettlementPrice: new(big.Int),
	}
}
