package journal

import (
	"context"

	"swaptrack/internal/model"
)

// Journal is an append-only audit sink for decoded events. The tracker
// only ever writes; session state is always rebuilt from the ledger.
type Journal interface {
	Append(ctx context.Context, records []model.EventRecord) error
}
