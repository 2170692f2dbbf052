// Package datastore backs the content store with go-datastore: an
// in-memory map for tests and single-process runs, or badger on disk.
package datastore

import (
	"context"
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"
	ds "github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	badgerds "github.com/ipfs/go-ds-badger2"

	"hivemind/internal/metrics"
	"hivemind/internal/platform/cas"
)

var (
	contentPrefix = ds.NewKey("/content")
	refPrefix     = ds.NewKey("/refs")
	pingKey       = ds.NewKey("/ping")
)

type Store struct {
	d       ds.Datastore
	backend string
}

// NewMemory returns a store held entirely in process memory.
func NewMemory() *Store {
	return &Store{d: dssync.MutexWrap(ds.NewMapDatastore()), backend: "memory"}
}

// NewBadger opens (or creates) a badger database under path.
func NewBadger(path string) (*Store, error) {
	opts := badgerds.DefaultOptions
	d, err := badgerds.NewDatastore(path, &opts)
	if err != nil {
		return nil, fmt.Errorf("open badger datastore %s: %w", path, err)
	}
	return &Store{d: d, backend: "badger"}, nil
}

// New wraps an existing datastore.
func New(d ds.Datastore, backend string) *Store {
	return &Store{d: d, backend: backend}
}

func contentKey(id cid.Cid) ds.Key {
	return contentPrefix.ChildString(id.String())
}

func refKey(name string) ds.Key {
	return refPrefix.ChildString(name)
}

func (s *Store) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	id, err := cas.Sum(data)
	if err != nil {
		return cid.Undef, err
	}
	key := contentKey(id)

	has, err := s.d.Has(ctx, key)
	if err == nil && !has {
		err = s.d.Put(ctx, key, data)
	}
	metrics.IncStoreOp(s.backend, "put", err)
	if err != nil {
		return cid.Undef, fmt.Errorf("%w: put %s: %w", cas.ErrStoreUnavailable, id, err)
	}
	return id, nil
}

func (s *Store) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	data, err := s.d.Get(ctx, contentKey(id))
	if errors.Is(err, ds.ErrNotFound) {
		metrics.IncStoreOp(s.backend, "get", nil)
		return nil, fmt.Errorf("%w: %s", cas.ErrContentNotFound, id)
	}
	metrics.IncStoreOp(s.backend, "get", err)
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %w", cas.ErrStoreUnavailable, id, err)
	}
	return data, nil
}

func (s *Store) SetRef(ctx context.Context, name string, id cid.Cid) error {
	err := s.d.Put(ctx, refKey(name), id.Bytes())
	metrics.IncStoreOp(s.backend, "set_ref", err)
	if err != nil {
		return fmt.Errorf("%w: set ref %s: %w", cas.ErrStoreUnavailable, name, err)
	}
	return nil
}

func (s *Store) Ref(ctx context.Context, name string) (cid.Cid, error) {
	raw, err := s.d.Get(ctx, refKey(name))
	if errors.Is(err, ds.ErrNotFound) {
		return cid.Undef, fmt.Errorf("%w: %s", cas.ErrRefNotFound, name)
	}
	metrics.IncStoreOp(s.backend, "ref", err)
	if err != nil {
		return cid.Undef, fmt.Errorf("%w: ref %s: %w", cas.ErrStoreUnavailable, name, err)
	}
	id, err := cid.Cast(raw)
	if err != nil {
		return cid.Undef, fmt.Errorf("%w: ref %s holds a malformed id: %w", cas.ErrStoreUnavailable, name, err)
	}
	return id, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.d.Has(ctx, pingKey); err != nil {
		return fmt.Errorf("%w: %w", cas.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.d.Close()
}
