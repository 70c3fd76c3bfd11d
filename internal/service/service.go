package service

import (
	"context"

	"github.com/pkg/errors"
)

// Transactor opens units of work.  *database.Executor implements it.
type Transactor interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ErrInvalidArgument marks input a service refuses before touching storage.
var ErrInvalidArgument = errors.New("invalid argument")
