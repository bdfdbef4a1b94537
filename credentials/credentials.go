// Package credentials persists grant.CredentialRecords in a storage.Store.
//
// One document per subject is kept in the `users` collection, holding only
// the refresh token:
//
//	users/<subject> = {"refreshToken": "1//0g..."}
package credentials

import (
	"context"

	"github.com/dpup/grantrelay"
	"github.com/dpup/grantrelay/errors"
	"github.com/dpup/grantrelay/grant"
	"github.com/dpup/grantrelay/storage"
	"google.golang.org/grpc/codes"
)

// PluginName can be used to query the credentials plugin.
const PluginName = "credentials"

// userDoc is the stored document. The subject is the key, not part of the
// body.
type userDoc struct {
	Subject      string `json:"-"`
	RefreshToken string `json:"refreshToken"`
}

func (d userDoc) PK() string   { return d.Subject }
func (d userDoc) Name() string { return "users" }

// Store adapts a storage.Store to grant.CredentialStore.
type Store struct {
	store storage.Store
}

// New returns a credential store backed by s.
func New(s storage.Store) *Store {
	return &Store{store: s}
}

// Get loads the record for subject.
func (c *Store) Get(ctx context.Context, subject grant.Subject) (*grant.CredentialRecord, error) {
	var doc userDoc
	err := c.store.Read(ctx, string(subject), &doc)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, errors.Mark(grant.ErrNoCredentialOnFile, 0)
	} else if err != nil {
		return nil, err
	}
	return &grant.CredentialRecord{RefreshToken: doc.RefreshToken}, nil
}

// Set overwrites the record for subject.
func (c *Store) Set(ctx context.Context, subject grant.Subject, rec grant.CredentialRecord) error {
	if subject == "" {
		return errors.NewC("credentials: empty subject", codes.InvalidArgument)
	}
	return c.store.Upsert(ctx, userDoc{Subject: string(subject), RefreshToken: rec.RefreshToken})
}

// Plugin returns a plugin exposing a credential store built on the registered
// storage plugin.
func Plugin() *CredentialsPlugin {
	return &CredentialsPlugin{}
}

// CredentialsPlugin implements grant.CredentialStore once initialized.
type CredentialsPlugin struct {
	*Store
}

// From grantrelay.Plugin.
func (p *CredentialsPlugin) Name() string {
	return PluginName
}

// From grantrelay.DependentPlugin.
func (p *CredentialsPlugin) Deps() []string {
	return []string{storage.PluginName}
}

// From grantrelay.InitializablePlugin.
func (p *CredentialsPlugin) Init(ctx context.Context, r *grantrelay.Registry) error {
	s := storage.From(r)
	if s == nil {
		return errors.NewC("credentials: storage plugin does not provide a store", codes.FailedPrecondition)
	}
	if mi, ok := s.(storage.ModelInitializer); ok {
		if err := mi.InitModel(ctx, userDoc{}); err != nil {
			return err
		}
	}
	p.Store = New(s)
	return nil
}
