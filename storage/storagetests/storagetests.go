// Package storagetests provides common acceptance tests for storage.Store
// implementations.
package storagetests

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/dpup/grantrelay/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Credential struct {
	ID           string
	RefreshToken string
	Scopes       []string
}

func (c Credential) PK() string {
	return c.ID
}

type Session struct {
	ID      string
	Subject string
}

func (s Session) PK() string {
	return s.ID
}

type BadModel struct {
	ID    string
	Cycle *BadModel
}

func (b BadModel) PK() string {
	return b.ID
}

// Run executes the acceptance suite. newStore must return an empty store on
// every call.
func Run(t *testing.T, newStore func() storage.Store) {
	ctx := context.Background()

	t.Run("UpsertReadRoundTrip", func(t *testing.T) {
		alice := Credential{ID: "alice", RefreshToken: "rt_1", Scopes: []string{"calendar.readonly"}}
		bob := Credential{ID: "bob", RefreshToken: "rt_2"}

		store := newStore()
		require.NoError(t, store.Upsert(ctx, alice, bob))

		var got Credential
		require.NoError(t, store.Read(ctx, "alice", &got))
		assert.Equal(t, alice, got)

		got = Credential{}
		require.NoError(t, store.Read(ctx, "bob", &got))
		assert.Equal(t, bob, got)
	})

	t.Run("UpsertOverwrites", func(t *testing.T) {
		store := newStore()
		require.NoError(t, store.Upsert(ctx, Credential{ID: "alice", RefreshToken: "rt_1", Scopes: []string{"a"}}))
		require.NoError(t, store.Upsert(ctx, Credential{ID: "alice", RefreshToken: "rt_2"}))

		var got Credential
		require.NoError(t, store.Read(ctx, "alice", &got))
		assert.Equal(t, Credential{ID: "alice", RefreshToken: "rt_2"}, got, "no fields should be merged")
	})

	t.Run("ReadNotFound", func(t *testing.T) {
		store := newStore()
		err := store.Read(ctx, "nobody", &Credential{})
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("ReadNilModel", func(t *testing.T) {
		store := newStore()
		var c *Credential
		assert.ErrorIs(t, store.Read(ctx, "alice", c), storage.ErrNilModel)
	})

	t.Run("UpsertBadModel", func(t *testing.T) {
		bm := BadModel{ID: "XXX"}
		bm.Cycle = &bm

		store := newStore()
		err := store.Upsert(ctx, bm)
		assert.ErrorIs(t, err, storage.ErrInvalidModel)

		exists, err := store.Exists(ctx, "XXX", BadModel{})
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("Exists", func(t *testing.T) {
		store := newStore()
		require.NoError(t, store.Upsert(ctx, Credential{ID: "alice"}))

		exists, err := store.Exists(ctx, "alice", Credential{})
		require.NoError(t, err)
		assert.True(t, exists)

		exists, err = store.Exists(ctx, "bob", Credential{})
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("ModelsAreIsolated", func(t *testing.T) {
		store := newStore()
		require.NoError(t, store.Upsert(ctx, Credential{ID: "shared", RefreshToken: "rt"}))
		require.NoError(t, store.Upsert(ctx, Session{ID: "shared", Subject: "alice"}))

		var c Credential
		require.NoError(t, store.Read(ctx, "shared", &c))
		assert.Equal(t, "rt", c.RefreshToken)

		var s Session
		require.NoError(t, store.Read(ctx, "shared", &s))
		assert.Equal(t, "alice", s.Subject)

		exists, err := store.Exists(ctx, "alice", Session{})
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("ConcurrentUpserts", func(t *testing.T) {
		store := newStore()
		var wg sync.WaitGroup
		for i := range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, store.Upsert(ctx, Credential{ID: "alice", RefreshToken: fmt.Sprintf("rt_%d", i)}))
			}()
		}
		wg.Wait()

		var got Credential
		require.NoError(t, store.Read(ctx, "alice", &got))
		assert.Regexp(t, `^rt_\d$`, got.RefreshToken)
	})
}
