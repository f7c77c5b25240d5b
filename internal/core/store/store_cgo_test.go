//go:build cgo

package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/feedwatch/feedwatch/internal/config"
)

func TestOpenLibsql(t *testing.T) {
	ctx := context.Background()
	for name, path := range map[string]string{
		"memory": ":memory:",
		"file":   "file:" + filepath.Join(t.TempDir(), "feedwatch.db"),
	} {
		t.Run(name, func(t *testing.T) {
			store, err := Open(ctx, config.StoreConfig{Driver: "libsql", Path: path})
			require.NoError(t, err)
			t.Cleanup(func() { _ = store.Close() })

			require.Equal(t, "libsql", store.Driver())
			require.Equal(t, 1, store.DB.Stats().MaxOpenConnections)
			require.NoError(t, store.Migrate(ctx))
			require.NoError(t, store.AddTarget(ctx, "alice"))
		})
	}
}
