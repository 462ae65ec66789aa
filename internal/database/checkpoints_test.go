package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailchat/internal/models"
)

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestCheckpointStore(t *testing.T) *CheckpointStore {
	t.Helper()
	store, err := NewCheckpointStore(newTestDB(t))
	require.NoError(t, err)
	return store
}

func TestNewCheckpointStore_RequiresDB(t *testing.T) {
	store, err := NewCheckpointStore(nil)
	assert.Error(t, err)
	assert.Nil(t, store)
}

func TestCheckpointStore_LoadUnknownMailbox(t *testing.T) {
	store := newTestCheckpointStore(t)

	checkpoint, err := store.Load(context.Background(), "me@example.com")
	require.NoError(t, err)

	assert.Equal(t, "me@example.com", checkpoint.MailboxID)
	assert.Empty(t, checkpoint.Cursor)
	assert.Equal(t, models.SyncStatusIdle, checkpoint.Status)
	assert.Nil(t, checkpoint.LastError)
	assert.Zero(t, checkpoint.LastSyncedAt)
}

func TestCheckpointStore_CommitPage(t *testing.T) {
	store := newTestCheckpointStore(t)
	ctx := context.Background()

	indexed := []models.IngestedMessage{
		{MessageID: "msg-1", ContentHash: "hash-1", ChunkCount: 2},
		{MessageID: "msg-2", ContentHash: "hash-2", ChunkCount: 1},
	}
	require.NoError(t, store.CommitPage(ctx, "me@example.com", "12345", indexed))

	checkpoint, err := store.Load(ctx, "me@example.com")
	require.NoError(t, err)
	assert.Equal(t, "12345", checkpoint.Cursor)
	assert.Greater(t, checkpoint.LastSyncedAt, int64(0))

	hash, err := store.LookupHash(ctx, "me@example.com", "msg-1")
	require.NoError(t, err)
	assert.Equal(t, "hash-1", hash)

	count, err := store.CountIngested(ctx, "me@example.com")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestCheckpointStore_CommitPageReplay(t *testing.T) {
	// Replaying a page after a crash must not duplicate ledger rows
	store := newTestCheckpointStore(t)
	ctx := context.Background()

	page := []models.IngestedMessage{
		{MessageID: "msg-1", ContentHash: "hash-1", ChunkCount: 2},
	}
	require.NoError(t, store.CommitPage(ctx, "me@example.com", "100", page))

	page[0].ContentHash = "hash-1b"
	require.NoError(t, store.CommitPage(ctx, "me@example.com", "101", page))

	count, err := store.CountIngested(ctx, "me@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	hash, err := store.LookupHash(ctx, "me@example.com", "msg-1")
	require.NoError(t, err)
	assert.Equal(t, "hash-1b", hash)

	checkpoint, err := store.Load(ctx, "me@example.com")
	require.NoError(t, err)
	assert.Equal(t, "101", checkpoint.Cursor)
}

func TestCheckpointStore_CommitPageEmptyPage(t *testing.T) {
	// A page where every message was skipped still advances the cursor
	store := newTestCheckpointStore(t)
	ctx := context.Background()

	require.NoError(t, store.CommitPage(ctx, "me@example.com", "7", nil))

	checkpoint, err := store.Load(ctx, "me@example.com")
	require.NoError(t, err)
	assert.Equal(t, "7", checkpoint.Cursor)
}

func TestCheckpointStore_SetStatus(t *testing.T) {
	store := newTestCheckpointStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetStatus(ctx, "me@example.com", models.SyncStatusSyncing, nil))

	checkpoint, err := store.Load(ctx, "me@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusSyncing, checkpoint.Status)
	assert.Nil(t, checkpoint.LastError)

	failure := "provider unreachable"
	require.NoError(t, store.SetStatus(ctx, "me@example.com", models.SyncStatusError, &failure))

	checkpoint, err = store.Load(ctx, "me@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusError, checkpoint.Status)
	require.NotNil(t, checkpoint.LastError)
	assert.Equal(t, "provider unreachable", *checkpoint.LastError)

	// Going back to idle clears the stored error
	require.NoError(t, store.SetStatus(ctx, "me@example.com", models.SyncStatusIdle, nil))

	checkpoint, err = store.Load(ctx, "me@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusIdle, checkpoint.Status)
	assert.Nil(t, checkpoint.LastError)
}

func TestCheckpointStore_SetStatusPreservesCursor(t *testing.T) {
	store := newTestCheckpointStore(t)
	ctx := context.Background()

	require.NoError(t, store.CommitPage(ctx, "me@example.com", "42", nil))
	require.NoError(t, store.SetStatus(ctx, "me@example.com", models.SyncStatusIdle, nil))

	checkpoint, err := store.Load(ctx, "me@example.com")
	require.NoError(t, err)
	assert.Equal(t, "42", checkpoint.Cursor)
}

func TestCheckpointStore_ResetCursor(t *testing.T) {
	store := newTestCheckpointStore(t)
	ctx := context.Background()

	indexed := []models.IngestedMessage{{MessageID: "msg-1", ContentHash: "h", ChunkCount: 1}}
	require.NoError(t, store.CommitPage(ctx, "me@example.com", "42", indexed))
	require.NoError(t, store.ResetCursor(ctx, "me@example.com"))

	checkpoint, err := store.Load(ctx, "me@example.com")
	require.NoError(t, err)
	assert.Empty(t, checkpoint.Cursor)

	// Ledger survives the reset so a full rescan can skip unchanged mail
	hash, err := store.LookupHash(ctx, "me@example.com", "msg-1")
	require.NoError(t, err)
	assert.Equal(t, "h", hash)
}

func TestCheckpointStore_DeleteIngested(t *testing.T) {
	store := newTestCheckpointStore(t)
	ctx := context.Background()

	indexed := []models.IngestedMessage{
		{MessageID: "msg-1", ContentHash: "h1", ChunkCount: 1},
		{MessageID: "msg-2", ContentHash: "h2", ChunkCount: 1},
		{MessageID: "msg-3", ContentHash: "h3", ChunkCount: 1},
	}
	require.NoError(t, store.CommitPage(ctx, "me@example.com", "1", indexed))

	require.NoError(t, store.DeleteIngested(ctx, "me@example.com", []string{"msg-1", "msg-3"}))

	count, err := store.CountIngested(ctx, "me@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	hash, err := store.LookupHash(ctx, "me@example.com", "msg-2")
	require.NoError(t, err)
	assert.Equal(t, "h2", hash)
}

func TestCheckpointStore_DeleteIngestedEmpty(t *testing.T) {
	store := newTestCheckpointStore(t)
	assert.NoError(t, store.DeleteIngested(context.Background(), "me@example.com", nil))
}

func TestCheckpointStore_ListIngestedIDs(t *testing.T) {
	store := newTestCheckpointStore(t)
	ctx := context.Background()

	indexed := []models.IngestedMessage{
		{MessageID: "msg-c", ContentHash: "h1", ChunkCount: 1},
		{MessageID: "msg-a", ContentHash: "h2", ChunkCount: 1},
		{MessageID: "msg-b", ContentHash: "h3", ChunkCount: 1},
	}
	require.NoError(t, store.CommitPage(ctx, "me@example.com", "1", indexed))
	require.NoError(t, store.CommitPage(ctx, "other@example.com", "1",
		[]models.IngestedMessage{{MessageID: "msg-z", ContentHash: "hz", ChunkCount: 1}}))

	ids, err := store.ListIngestedIDs(ctx, "me@example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"msg-a", "msg-b", "msg-c"}, ids)

	ids, err = store.ListIngestedIDs(ctx, "empty@example.com")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestCheckpointStore_PurgeMailbox(t *testing.T) {
	store := newTestCheckpointStore(t)
	ctx := context.Background()

	indexed := []models.IngestedMessage{{MessageID: "msg-1", ContentHash: "h", ChunkCount: 1}}
	require.NoError(t, store.CommitPage(ctx, "me@example.com", "42", indexed))
	require.NoError(t, store.CommitPage(ctx, "other@example.com", "9",
		[]models.IngestedMessage{{MessageID: "msg-2", ContentHash: "h2", ChunkCount: 1}}))

	require.NoError(t, store.PurgeMailbox(ctx, "me@example.com"))

	// Unlike ResetCursor, the ledger is gone too
	hash, err := store.LookupHash(ctx, "me@example.com", "msg-1")
	require.NoError(t, err)
	assert.Empty(t, hash)

	checkpoint, err := store.Load(ctx, "me@example.com")
	require.NoError(t, err)
	assert.Empty(t, checkpoint.Cursor)
	assert.Equal(t, models.SyncStatusIdle, checkpoint.Status)

	// Other mailboxes keep their state
	hash, err = store.LookupHash(ctx, "other@example.com", "msg-2")
	require.NoError(t, err)
	assert.Equal(t, "h2", hash)
}

func TestCheckpointStore_MailboxesAreIsolated(t *testing.T) {
	store := newTestCheckpointStore(t)
	ctx := context.Background()

	require.NoError(t, store.CommitPage(ctx, "a@example.com", "10",
		[]models.IngestedMessage{{MessageID: "msg-1", ContentHash: "ha", ChunkCount: 1}}))
	require.NoError(t, store.CommitPage(ctx, "b@example.com", "20",
		[]models.IngestedMessage{{MessageID: "msg-1", ContentHash: "hb", ChunkCount: 1}}))

	hashA, err := store.LookupHash(ctx, "a@example.com", "msg-1")
	require.NoError(t, err)
	hashB, err := store.LookupHash(ctx, "b@example.com", "msg-1")
	require.NoError(t, err)
	assert.Equal(t, "ha", hashA)
	assert.Equal(t, "hb", hashB)

	checkpointA, err := store.Load(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "10", checkpointA.Cursor)
}
