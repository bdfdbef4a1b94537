package storage

import (
	"context"

	"github.com/dpup/grantrelay/errors"
	"google.golang.org/grpc/codes"
)

var (
	ErrNotFound     = errors.NewC("storage: no document with that id", codes.NotFound)
	ErrInvalidModel = errors.NewC("storage: model can't be encoded or decoded", codes.InvalidArgument)
	ErrNilModel     = errors.NewC("storage: model must be a non-nil pointer", codes.InvalidArgument)
)

// Store keeps documents by id, one table per model type. Writes are
// unconditional, so concurrent writers of one id are last-write-wins.
type Store interface {
	// Read decodes the document stored under id into model, or returns
	// ErrNotFound.
	Read(ctx context.Context, id string, model Model) error

	// Upsert writes each model under its PK, replacing whatever was there.
	Upsert(ctx context.Context, models ...Model) error

	Exists(ctx context.Context, id string, model Model) (bool, error)
}

// ModelInitializer is implemented by stores that prepare a table per model.
// Callers invoke InitModel once, during startup, for each model they use.
type ModelInitializer interface {
	InitModel(ctx context.Context, model Model) error
}
