package memory

import (
	"context"
	"sync"
)

type txContextKey struct{}

// TxManager serializes "transactions" with one process-wide mutex. The
// memory stores have no rollback; tests that exercise failure paths assert
// on observable state rather than on atomicity.
type TxManager struct {
	mu sync.Mutex
}

func NewTxManager() *TxManager {
	return &TxManager{}
}

func (m *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txContextKey{}) != nil {
		return fn(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(context.WithValue(ctx, txContextKey{}, struct{}{}))
}
