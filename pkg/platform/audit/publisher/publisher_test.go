package publisher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "actarchive/pkg/domain"
	audit "actarchive/pkg/platform/audit"
	"actarchive/pkg/platform/audit/store/memory"
	"actarchive/pkg/requestcontext"
)

func TestPublisher_SyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	fixed := time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithRequestID(requestcontext.WithTime(context.Background(), fixed), "req-42")

	err := pub.Emit(ctx, audit.Event{DocumentID: 7, Action: audit.ActionUploaded})
	require.NoError(t, err)

	events, err := store.ListByDocument(context.Background(), id.DocumentID(7))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.ActionUploaded, events[0].Action)
	assert.Equal(t, fixed, events[0].Timestamp)
	assert.Equal(t, "req-42", events[0].RequestID)
	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", events[0].ID.String())
}

func TestPublisher_AsyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(10))
	defer pub.Close()

	err := pub.Emit(context.Background(), audit.Event{DocumentID: 3, Action: audit.ActionApproved})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		events, _ := store.ListByDocument(context.Background(), id.DocumentID(3))
		return len(events) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(100))

	for range 10 {
		err := pub.Emit(context.Background(), audit.Event{DocumentID: 9, Action: audit.ActionReviewStarted})
		require.NoError(t, err)
	}

	pub.Close()

	events, err := store.ListByDocument(context.Background(), id.DocumentID(9))
	require.NoError(t, err)
	assert.Len(t, events, 10)

	// Emit after Close falls back to a synchronous append.
	require.NoError(t, pub.Emit(context.Background(), audit.Event{DocumentID: 9, Action: audit.ActionApproved}))
	events, err = store.ListByDocument(context.Background(), id.DocumentID(9))
	require.NoError(t, err)
	assert.Len(t, events, 11)
}
