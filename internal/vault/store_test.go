package vault

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Both implementations run through the same behavioral suite.
func storeImplementations(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "vault.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"sqlite": sqlite,
		"memory": NewMemoryStore(),
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	for name, store := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Put("approval_123", `{"status":"pending"}`, "approvals"))

			doc, err := store.Get("approval_123")
			require.NoError(t, err)
			assert.Equal(t, "approval_123", doc.Key)
			assert.Equal(t, "approvals", doc.Category)
			assert.Equal(t, `{"status":"pending"}`, doc.Content)
			assert.False(t, doc.CreatedAt.IsZero())
		})
	}
}

func TestPutReplacesContent(t *testing.T) {
	for name, store := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Put("job_1", "v1", "jobs"))
			require.NoError(t, store.Put("job_1", "v2", "jobs"))

			doc, err := store.Get("job_1")
			require.NoError(t, err)
			assert.Equal(t, "v2", doc.Content)

			docs, err := store.List("jobs")
			require.NoError(t, err)
			assert.Len(t, docs, 1)
		})
	}
}

func TestGetMissingKey(t *testing.T) {
	for name, store := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get("nope")
			assert.ErrorIs(t, err, ErrDocumentNotFound)
		})
	}
}

func TestListByCategory(t *testing.T) {
	for name, store := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Put("job_b", "{}", "jobs"))
			require.NoError(t, store.Put("job_a", "{}", "jobs"))
			require.NoError(t, store.Put("approval_1", "{}", "approvals"))

			jobs, err := store.List("jobs")
			require.NoError(t, err)
			require.Len(t, jobs, 2)
			assert.Equal(t, "job_a", jobs[0].Key)
			assert.Equal(t, "job_b", jobs[1].Key)

			all, err := store.List("")
			require.NoError(t, err)
			assert.Len(t, all, 3)
		})
	}
}

func TestDelete(t *testing.T) {
	for name, store := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Put("gone", "{}", "jobs"))
			require.NoError(t, store.Delete("gone"))

			_, err := store.Get("gone")
			assert.ErrorIs(t, err, ErrDocumentNotFound)

			// Deleting again is not an error.
			assert.NoError(t, store.Delete("gone"))
		})
	}
}
