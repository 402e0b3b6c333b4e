package service

import (
	"context"
	"sync"
	"time"

	id "actarchive/pkg/domain"
	dErrors "actarchive/pkg/domain-errors"
)

// DocumentStoreTx provides a transactional boundary for document mutations.
// Implementations may wrap a database transaction or, in-memory, a lock.
type DocumentStoreTx interface {
	RunInTx(ctx context.Context, fn func(store Store) error) error
}

// numDocumentShards spreads in-memory transactions across locks keyed by
// document ID, so transitions on different documents do not serialize.
const numDocumentShards = 64

// DefaultTxTimeout bounds a transaction whose context has no deadline.
const DefaultTxTimeout = 5 * time.Second

type shardedDocumentTx struct {
	shards  [numDocumentShards]sync.Mutex
	store   Store
	timeout time.Duration
}

// NewInMemoryTx wraps store with sharded locks.
func NewInMemoryTx(store Store) DocumentStoreTx {
	return &shardedDocumentTx{store: store, timeout: DefaultTxTimeout}
}

func (t *shardedDocumentTx) RunInTx(ctx context.Context, fn func(store Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	shard := selectShard(ctx)
	t.shards[shard].Lock()
	defer t.shards[shard].Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	return fn(t.store)
}

// selectShard picks a shard from the document ID in context, or shard 0.
func selectShard(ctx context.Context) int {
	if documentID, ok := ctx.Value(txDocumentKeyCtx).(id.DocumentID); ok {
		return int(uint64(documentID) % numDocumentShards)
	}
	return 0
}

type txDocumentKey struct{}

var txDocumentKeyCtx = txDocumentKey{}

// withTxDocument tags ctx with the document a transaction works on.
func withTxDocument(ctx context.Context, documentID id.DocumentID) context.Context {
	return context.WithValue(ctx, txDocumentKeyCtx, documentID)
}
