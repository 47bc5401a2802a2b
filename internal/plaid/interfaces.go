package plaid

import (
	"context"

	"github.com/Veraticus/spice-sync/internal/model"
)

// ChangeFeed defines the contract for fetching incremental account and
// transaction changes for one linked credential.
// An empty cursor requests the full history.
type ChangeFeed interface {
	SyncTransactions(ctx context.Context, accessToken, cursor string) (*model.SyncBatch, error)
}
