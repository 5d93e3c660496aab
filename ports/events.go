package ports

import (
	"context"
	"time"
)

// Bookkeeper records access timestamps without blocking the caller.
// Implementations publish the update and return; failures are the
// implementation's to log.
type Bookkeeper interface {
	WalletAccessed(ctx context.Context, walletID string, at time.Time)
	APIKeyUsed(ctx context.Context, keyID string, at time.Time)
}
