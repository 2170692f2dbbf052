// Package cache puts an LRU in front of a content store. Content is
// immutable, so cached blobs never go stale; refs always hit the backend.
package cache

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru"
	"github.com/ipfs/go-cid"

	"hivemind/internal/platform/cas"
)

const DefaultSize = 4096

type Store struct {
	cas.Backend
	blobs *lru.ARCCache
}

func New(inner cas.Backend, size int) (*Store, error) {
	if size <= 0 {
		size = DefaultSize
	}
	blobs, err := lru.NewARC(size)
	if err != nil {
		return nil, fmt.Errorf("create content cache: %w", err)
	}
	return &Store{Backend: inner, blobs: blobs}, nil
}

func (s *Store) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	id, err := s.Backend.Put(ctx, data)
	if err != nil {
		return cid.Undef, err
	}
	s.blobs.Add(id, clone(data))
	return id, nil
}

func (s *Store) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if v, ok := s.blobs.Get(id); ok {
		return clone(v.([]byte)), nil
	}
	data, err := s.Backend.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.blobs.Add(id, clone(data))
	return data, nil
}

// Len reports how many blobs are cached.
func (s *Store) Len() int {
	return s.blobs.Len()
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
