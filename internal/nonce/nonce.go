// Package nonce records consumed token nonces. Marking is linearizable: of
// any number of concurrent MarkUsed calls for one nonce, exactly one wins.
package nonce

import (
	"context"
	"time"

	id "ghostpass/pkg/domain"
)

// Store is the nonce-used set. Entries only need to outlive the token they
// belong to; after expiry the expiry check rejects the token first.
type Store interface {
	// MarkUsed reports true when this call consumed the nonce.
	MarkUsed(ctx context.Context, nonce id.Nonce, retain time.Duration) (bool, error)
	// Release undoes a mark whose scan could not be audited.
	Release(ctx context.Context, nonce id.Nonce) error
}
