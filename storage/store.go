package storage

import (
	"context"
	"errors"
)

var (
	ErrNotFound      = errors.New("No keys stored under that name")
	ErrInvalidKeys   = errors.New("Keys have the wrong length or alphabet")
	ErrInvalidName   = errors.New("Name must not be empty")
	ErrInvalidBackup = errors.New("Backup is not a valid JSON document")
	ErrClosed        = errors.New("Store is closed")
)

// Keys is a destination key pair as returned by the bridge.
type Keys struct {
	Public  string `json:"public"`
	Private string `json:"private"`
}

// Store keeps named key pairs so a destination can be reused across runs.
// The backup format is a JSON document mapping names to Keys.
type Store interface {
	Put(ctx context.Context, name string, keys Keys) error
	Get(ctx context.Context, name string) (Keys, error)
	List(ctx context.Context) ([]string, error)

	Restore(values []byte) error
	Backup() ([]byte, error)

	Close() error
}
