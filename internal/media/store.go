package media

import (
	"context"
	"errors"
)

var (
	ErrAlreadyExists = errors.New("media already exists")
	ErrNotFound      = errors.New("media not found")
)

// Store keeps named blobs. Names are write-once.
type Store interface {
	Save(ctx context.Context, name string, data []byte) error
	Get(ctx context.Context, name string) ([]byte, error)
	ListNames(ctx context.Context) ([]string, error)
}
