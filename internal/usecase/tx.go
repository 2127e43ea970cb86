package usecase

import "context"

// TxManager runs fn inside one storage transaction. The transaction rides on
// the context, so repository calls made with the derived context join it.
//
// WithinTx is reentrant: when the context already carries a transaction the
// callback runs inside the existing one. Services compose freely (the
// settlement flow calls hold capture which posts ledger entries, all in the
// outermost transaction).
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
