package cas

import (
	"context"
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
)

var (
	ErrContentNotFound  = errors.New("content not found")
	ErrStoreUnavailable = errors.New("content store unavailable")
	ErrRefNotFound      = errors.New("ref not found")
)

// Prefix describes every identity minted here: CIDv1, dag-cbor, sha2-256.
var Prefix = cid.Prefix{
	Version:  1,
	Codec:    cid.DagCBOR,
	MhType:   mh.SHA2_256,
	MhLength: -1,
}

// Store is a content-addressed blob store. Put computes the identity of the
// bytes it is given; storing the same bytes twice is a no-op.
type Store interface {
	Put(ctx context.Context, data []byte) (cid.Cid, error)
	Get(ctx context.Context, id cid.Cid) ([]byte, error)
}

// RefStore maps names to identities. It is the only mutable data kept next
// to the immutable records and is used to track the head of a state chain.
type RefStore interface {
	SetRef(ctx context.Context, name string, id cid.Cid) error
	Ref(ctx context.Context, name string) (cid.Cid, error)
}

// Backend is what a concrete repository offers to the service.
type Backend interface {
	Store
	RefStore
	Ping(ctx context.Context) error
	Close() error
}

// Sum returns the content identity of data.
func Sum(data []byte) (cid.Cid, error) {
	return Prefix.Sum(data)
}

// Parse decodes the string form of a content identity.
func Parse(s string) (cid.Cid, error) {
	id, err := cid.Decode(s)
	if err != nil {
		return cid.Undef, fmt.Errorf("parse content id %q: %w", s, err)
	}
	return id, nil
}

// Identify encodes v canonically and returns its identity without storing it.
func Identify(v any) (cid.Cid, []byte, error) {
	data, err := Marshal(v)
	if err != nil {
		return cid.Undef, nil, fmt.Errorf("encode record: %w", err)
	}
	id, err := Sum(data)
	if err != nil {
		return cid.Undef, nil, err
	}
	return id, data, nil
}

// PutObject stores the canonical encoding of v.
func PutObject(ctx context.Context, s Store, v any) (cid.Cid, error) {
	want, data, err := Identify(v)
	if err != nil {
		return cid.Undef, err
	}
	got, err := s.Put(ctx, data)
	if err != nil {
		return cid.Undef, err
	}
	if !got.Equals(want) {
		return cid.Undef, fmt.Errorf("%w: store returned %s for content %s", ErrStoreUnavailable, got, want)
	}
	return got, nil
}

// GetObject loads id and decodes it into v after checking the bytes hash
// back to id.
func GetObject(ctx context.Context, s Store, id cid.Cid, v any) error {
	if !id.Defined() {
		return fmt.Errorf("%w: undefined content id", ErrContentNotFound)
	}
	data, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := Verify(id, data); err != nil {
		return err
	}
	if err := Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", id, err)
	}
	return nil
}

// Verify reports whether data hashes to id.
func Verify(id cid.Cid, data []byte) error {
	got, err := id.Prefix().Sum(data)
	if err != nil {
		return fmt.Errorf("%w: hash %s: %w", ErrStoreUnavailable, id, err)
	}
	if !got.Equals(id) {
		return fmt.Errorf("%w: content for %s hashes to %s", ErrStoreUnavailable, id, got)
	}
	return nil
}
