package credentials

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/dpup/grantrelay"
	"github.com/dpup/grantrelay/grant"
	"github.com/dpup/grantrelay/storage"
	"github.com/dpup/grantrelay/storage/memorystore"
	"github.com/dpup/grantrelay/storage/sqlitestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]storage.Store {
	sqlite, err := sqlitestore.New(":memory:")
	require.NoError(t, err)
	return map[string]storage.Store{
		"memory": memorystore.New(),
		"sqlite": sqlite,
	}
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := New(backend)

			_, err := s.Get(ctx, "u1")
			require.ErrorIs(t, err, grant.ErrNoCredentialOnFile)

			require.NoError(t, s.Set(ctx, "u1", grant.CredentialRecord{RefreshToken: "rt_1"}))
			require.NoError(t, s.Set(ctx, "u1", grant.CredentialRecord{RefreshToken: "rt_2"}))

			rec, err := s.Get(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, "rt_2", rec.RefreshToken)

			_, err = s.Get(ctx, "u2")
			assert.ErrorIs(t, err, grant.ErrNoCredentialOnFile)
		})
	}
}

func TestStore_EmptySubject(t *testing.T) {
	s := New(memorystore.New())
	assert.Error(t, s.Set(context.Background(), "", grant.CredentialRecord{RefreshToken: "rt"}))
}

func TestUserDocLayout(t *testing.T) {
	b, err := json.Marshal(userDoc{Subject: "u1", RefreshToken: "rt_1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"refreshToken":"rt_1"}`, string(b))
	assert.Equal(t, "users", storage.Name(userDoc{}))
}

func TestPlugin(t *testing.T) {
	backend, err := sqlitestore.New(":memory:")
	require.NoError(t, err)

	r := &grantrelay.Registry{}
	p := Plugin()
	r.Register(p)
	r.Register(storage.Plugin(backend))
	require.NoError(t, r.Init(context.Background()))

	var cs grant.CredentialStore = p
	require.NoError(t, cs.Set(context.Background(), "u1", grant.CredentialRecord{RefreshToken: "rt_1"}))
	rec, err := cs.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "rt_1", rec.RefreshToken)
}

func TestPlugin_MissingStorage(t *testing.T) {
	r := &grantrelay.Registry{}
	r.Register(Plugin())
	assert.ErrorContains(t, r.Init(context.Background()), "missing dependency, 'storage' not registered")
}
