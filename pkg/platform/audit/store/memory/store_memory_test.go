package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "actarchive/pkg/domain"
	audit "actarchive/pkg/platform/audit"
)

func TestInMemoryStore_AppendOnly(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	details := map[string]string{"to_status": "stored"}
	require.NoError(t, store.Append(ctx, audit.Event{DocumentID: 1, Action: audit.ActionUploaded}))
	require.NoError(t, store.Append(ctx, audit.Event{DocumentID: 1, Action: audit.ActionApproved, Details: details}))
	require.NoError(t, store.Append(ctx, audit.Event{DocumentID: 2, Action: audit.ActionUploaded}))

	events, err := store.ListByDocument(ctx, id.DocumentID(1))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, audit.ActionUploaded, events[0].Action)
	assert.Equal(t, audit.ActionApproved, events[1].Action)

	// Mutating the caller's map or a returned copy never rewrites history.
	details["to_status"] = "pending"
	events[1].Details["to_status"] = "rejected_for_update"
	again, err := store.ListByDocument(ctx, id.DocumentID(1))
	require.NoError(t, err)
	assert.Equal(t, "stored", again[1].Details["to_status"])

	store.Clear()
	events, err = store.ListByDocument(ctx, id.DocumentID(1))
	require.NoError(t, err)
	assert.Empty(t, events)
}
