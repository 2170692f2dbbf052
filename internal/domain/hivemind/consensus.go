package hivemind

import (
	"context"
	"fmt"

	"github.com/ipfs/go-cid"
)

// RankedOption is an option with its value and tally, as ordered by Options.
type RankedOption struct {
	ID    cid.Cid
	Value any
	Tally Tally
}

// Options returns the options by descending score; equal scores keep the
// order the options were added in.
func (s *State) Options(ctx context.Context) ([]RankedOption, error) {
	ordered := rankOrder(s.options, s.results)
	values, err := loadAll(ctx, ordered, func(ctx context.Context, id cid.Cid) (any, error) {
		o, err := s.e.LoadOption(ctx, id)
		if err != nil {
			return nil, err
		}
		return o.value, nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]RankedOption, len(ordered))
	for i, id := range ordered {
		out[i] = RankedOption{ID: id, Value: values[i], Tally: s.results[id]}
	}
	return out, nil
}

// Consensus returns the value of the top option when its score is strictly
// higher than the runner-up's. A tie, or a state without options, gives nil.
func (s *State) Consensus(ctx context.Context) (any, error) {
	opts, err := s.Options(ctx)
	if err != nil {
		return nil, err
	}
	switch {
	case len(opts) == 0:
		return nil, nil
	case len(opts) == 1:
		return opts[0].Value, nil
	case opts[0].Tally.Score > opts[1].Tally.Score:
		return opts[0].Value, nil
	}
	return nil, nil
}

// RankedConsensus returns every option value in score order.
func (s *State) RankedConsensus(ctx context.Context) ([]any, error) {
	opts, err := s.Options(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(opts))
	for i, o := range opts {
		out[i] = o.Value
	}
	return out, nil
}

// GetConsensus answers in the question's consensus mode: a single value
// (or nil) for Single, a []any for Ranked.
func (s *State) GetConsensus(ctx context.Context) (any, error) {
	switch s.q.mode {
	case ConsensusSingle:
		return s.Consensus(ctx)
	case ConsensusRanked:
		return s.RankedConsensus(ctx)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownConsensusMode, s.q.mode)
}
