package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// InmemoryStore keeps every key pair in one JSON document. It is also the
// bridge's address book.
type InmemoryStore struct {
	mu     sync.Mutex
	values []byte
	closed bool
}

func NewInmemoryStore() *InmemoryStore {
	return &InmemoryStore{
		values: []byte("{}"),
	}
}

func (i *InmemoryStore) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.closed = true

	return nil
}

func (i *InmemoryStore) Put(ctx context.Context, name string, keys Keys) (err error) {
	if name == "" {
		return ErrInvalidName
	}

	if err := keys.Validate(); err != nil {
		return err
	}

	raw, err := encodeKeys(keys)
	if err != nil {
		return err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return ErrClosed
	}

	i.values, err = sjson.SetRawBytes(i.values, escapePath(name), raw)

	return err
}

func (i *InmemoryStore) Get(ctx context.Context, name string) (Keys, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return Keys{}, ErrClosed
	}

	result := gjson.GetBytes(i.values, escapePath(name))
	if name == "" || !result.Exists() {
		return Keys{}, ErrNotFound
	}

	return decodeKeys(result), nil
}

func (i *InmemoryStore) List(ctx context.Context) ([]string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return nil, ErrClosed
	}

	names := make([]string, 0)

	gjson.ParseBytes(i.values).ForEach(func(key, _ gjson.Result) bool {
		names = append(names, key.String())
		return true
	})

	sort.Strings(names)

	return names, nil
}

func (i *InmemoryStore) Restore(values []byte) error {
	if !gjson.ValidBytes(values) || !gjson.ParseBytes(values).IsObject() {
		return ErrInvalidBackup
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	i.values = append([]byte(nil), values...)

	return nil
}

func (i *InmemoryStore) Backup() ([]byte, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	return append([]byte(nil), i.values...), nil
}

var _ Store = (*InmemoryStore)(nil)
