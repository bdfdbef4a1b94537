// Package storage contains a small persistence interface used to keep
// grantrelay's credential records. Backends live in sub-packages.
//
// Models are represented as structs and should have a `PK() string` method.
//
// Examples:
//
//	server := grantrelay.New(
//		grantrelay.WithPlugin(storage.Plugin(memorystore.New())),
//	)
//
//	func (p *MyPlugin) Init(ctx context.Context, r *grantrelay.Registry) error {
//		p.store = r.Get(storage.PluginName).(storage.Store)
//	}
package storage

import "github.com/dpup/grantrelay"

// PluginName can be used to query the storage plugin.
const PluginName = "storage"

// Table prefix used by the SQL backends unless configured otherwise.
const DefaultPrefix = "grantrelay_"

func init() {
	grantrelay.RegisterConfigKeys(
		grantrelay.ConfigKeyInfo{
			Key:         "storage.driver",
			Description: "Storage backend: memory, sqlite or postgres",
			Type:        "string",
			Default:     "memory",
		},
		grantrelay.ConfigKeyInfo{
			Key:         "storage.dsn",
			Description: "Connection string for the sqlite or postgres backend",
			Type:        "string",
			Secret:      true,
		},
		grantrelay.ConfigKeyInfo{
			Key:         "storage.prefix",
			Description: "Prefix for tables created by SQL backends",
			Type:        "string",
			Default:     DefaultPrefix,
		},
	)
}

// Plugin wraps a storage implementation for registration.
func Plugin(impl Store) grantrelay.Plugin {
	return &wrapper{Store: impl}
}

type wrapper struct {
	Store
}

func (p *wrapper) Name() string {
	return PluginName
}

// From returns the store registered with the registry, or nil.
func From(r *grantrelay.Registry) Store {
	switch p := r.Get(PluginName).(type) {
	case *wrapper:
		return p.Store
	case Store:
		return p
	}
	return nil
}
