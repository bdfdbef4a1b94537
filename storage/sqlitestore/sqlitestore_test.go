package sqlitestore

import (
	"context"
	"testing"

	"github.com/dpup/grantrelay/storage"
	"github.com/dpup/grantrelay/storage/storagetests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSqliteStore(t *testing.T) {
	storagetests.Run(t, func() storage.Store {
		s, err := New(":memory:")
		require.NoError(t, err)
		return s
	})
}

func TestSqliteStore_withPrefixAndDedicatedTable(t *testing.T) {
	storagetests.Run(t, func() storage.Store {
		s, err := New(":memory:", WithPrefix("prefix_"))
		require.NoError(t, err)
		require.NoError(t, s.(storage.ModelInitializer).InitModel(context.Background(), storagetests.Credential{}))
		return s
	})
}

func TestTarget(t *testing.T) {
	s, err := New(":memory:", WithPrefix("custom_"))
	require.NoError(t, err)
	st := s.(*store)
	require.NoError(t, st.InitModel(context.Background(), storagetests.Credential{}))

	table, where, args := st.target(storagetests.Credential{}, "alice")
	assert.Equal(t, "custom_credentials", table)
	assert.Equal(t, "id = ?", where)
	assert.Equal(t, []any{"alice"}, args)

	table, where, args = st.target(storagetests.Session{}, "s1")
	assert.Equal(t, "custom_default", table)
	assert.Equal(t, "id = ? AND entity_type = ?", where)
	assert.Equal(t, []any{"s1", "sessions"}, args)
}
