package hivemind

import (
	"context"
	"fmt"

	"github.com/ipfs/go-cid"

	"hivemind/internal/platform/cas"
)

// Opinion is one participant's ranked ballot, bound to a state snapshot.
type Opinion struct {
	e *Engine

	state        cid.Cid
	question     cid.Cid
	options      []cid.Cid
	opinionator  string
	rankedChoice []cid.Cid
}

type opinionRecord struct {
	State        string   `json:"state"`
	Opinionator  string   `json:"opinionator"`
	RankedChoice []string `json:"ranked_choice"`
}

// NewOpinion binds an empty opinion to the saved state snapshot stateID.
func (e *Engine) NewOpinion(ctx context.Context, stateID cid.Cid) (*Opinion, error) {
	var rec stateRecord
	if err := e.get(ctx, stateID, &rec); err != nil {
		return nil, fmt.Errorf("load state %s: %w", stateID, err)
	}
	options, err := parseIDs(rec.Options)
	if err != nil {
		return nil, fmt.Errorf("load state %s: %w", stateID, err)
	}
	question, err := cas.Parse(rec.Question)
	if err != nil {
		return nil, fmt.Errorf("load state %s: %w", stateID, err)
	}
	return &Opinion{e: e, state: stateID, question: question, options: options}, nil
}

func (o *Opinion) State() cid.Cid      { return o.state }
func (o *Opinion) Opinionator() string { return o.opinionator }

func (o *Opinion) RankedChoice() []cid.Cid {
	return append([]cid.Cid(nil), o.rankedChoice...)
}

// Set records the ballot. Every id must be an option of the bound state
// and appear at most once; a partial ranking is fine.
func (o *Opinion) Set(opinionator string, ranked []cid.Cid) error {
	if opinionator == "" {
		return fmt.Errorf("%w: opinionator required", ErrInvalidOpinion)
	}
	if err := checkBallot(o.options, ranked); err != nil {
		return err
	}
	o.opinionator = opinionator
	o.rankedChoice = append([]cid.Cid(nil), ranked...)
	return nil
}

func checkBallot(options, ranked []cid.Cid) error {
	known := make(map[cid.Cid]struct{}, len(options))
	for _, id := range options {
		known[id] = struct{}{}
	}
	seen := make(map[cid.Cid]struct{}, len(ranked))
	for _, id := range ranked {
		if _, ok := known[id]; !ok {
			return fmt.Errorf("%w: unknown option %s", ErrInvalidOpinion, id)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: option %s ranked twice", ErrInvalidOpinion, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// IsComplete reports whether every option of the bound state is ranked.
func (o *Opinion) IsComplete() bool {
	return len(o.UnrankedOptionIDs()) == 0
}

// UnrankedOptionIDs returns the options of the bound state missing from
// the ballot, in state order.
func (o *Opinion) UnrankedOptionIDs() []cid.Cid {
	ranked := make(map[cid.Cid]struct{}, len(o.rankedChoice))
	for _, id := range o.rankedChoice {
		ranked[id] = struct{}{}
	}
	var out []cid.Cid
	for _, id := range o.options {
		if _, ok := ranked[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

func (o *Opinion) ContentID() (cid.Cid, error) {
	id, _, err := cas.Identify(o.record())
	return id, err
}

func (o *Opinion) Save(ctx context.Context) (cid.Cid, error) {
	if o.opinionator == "" {
		return cid.Undef, fmt.Errorf("%w: opinionator required", ErrInvalidOpinion)
	}
	id, err := o.e.put(ctx, o.record())
	if err != nil {
		return cid.Undef, fmt.Errorf("save opinion: %w", err)
	}
	return id, nil
}

func (o *Opinion) record() opinionRecord {
	return opinionRecord{
		State:        o.state.String(),
		Opinionator:  o.opinionator,
		RankedChoice: idStrings(o.rankedChoice),
	}
}

// LoadOpinion decodes a stored opinion together with the option set of the
// state it was bound to.
func (e *Engine) LoadOpinion(ctx context.Context, id cid.Cid) (*Opinion, error) {
	var rec opinionRecord
	if err := e.get(ctx, id, &rec); err != nil {
		return nil, fmt.Errorf("load opinion %s: %w", id, err)
	}
	stateID, err := cas.Parse(rec.State)
	if err != nil {
		return nil, fmt.Errorf("load opinion %s: %w", id, err)
	}
	ranked, err := parseIDs(rec.RankedChoice)
	if err != nil {
		return nil, fmt.Errorf("load opinion %s: %w", id, err)
	}
	o, err := e.NewOpinion(ctx, stateID)
	if err != nil {
		return nil, fmt.Errorf("load opinion %s: %w", id, err)
	}
	o.opinionator = rec.Opinionator
	o.rankedChoice = ranked
	return o, nil
}
