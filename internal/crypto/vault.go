// Package crypto keeps aggregator access tokens out of plaintext storage.
// A Vault seals a token into an opaque string that is safe to persist on the
// linked item and opens it again when a sync needs to call the aggregator.
package crypto

import (
	"context"
)

type Vault interface {
	Seal(ctx context.Context, uid, itemID, token string) (string, error)
	Open(ctx context.Context, uid, itemID, sealed string) (string, error)
	// Discard destroys whatever the vault holds for the item. Vaults that keep
	// nothing outside the sealed string treat it as a no-op.
	Discard(ctx context.Context, uid, itemID string) error
}
