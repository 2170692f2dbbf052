package hivemind

import (
	"context"
	"fmt"
	"time"

	"github.com/ipfs/go-cid"

	"hivemind/internal/platform/cas"
)

// AddressValidator decides whether a string is a well-formed chain address.
type AddressValidator interface {
	IsValidAddress(address string) bool
}

// Engine binds the records of this package to a content store and the
// collaborators they need for validation.
type Engine struct {
	store     cas.Store
	addresses AddressValidator
	now       func() time.Time
}

type EngineOption func(*Engine)

func WithAddressValidator(v AddressValidator) EngineOption {
	return func(e *Engine) { e.addresses = v }
}

// WithClock replaces the clock used to timestamp opinions.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

func NewEngine(store cas.Store, opts ...EngineOption) *Engine {
	e := &Engine{store: store, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Store() cas.Store {
	return e.store
}

func (e *Engine) put(ctx context.Context, v any) (cid.Cid, error) {
	return cas.PutObject(ctx, e.store, v)
}

func (e *Engine) get(ctx context.Context, id cid.Cid, v any) error {
	return cas.GetObject(ctx, e.store, id, v)
}

func parseIDs(raw []string) ([]cid.Cid, error) {
	ids := make([]cid.Cid, len(raw))
	for i, s := range raw {
		id, err := cas.Parse(s)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

func idStrings(ids []cid.Cid) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func optionalID(s string) (cid.Cid, error) {
	if s == "" {
		return cid.Undef, nil
	}
	id, err := cas.Parse(s)
	if err != nil {
		return cid.Undef, fmt.Errorf("decode reference: %w", err)
	}
	return id, nil
}
