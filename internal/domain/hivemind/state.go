package hivemind

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"

	"github.com/ipfs/go-cid"

	"hivemind/internal/platform/cas"
)

const defaultWeight = 1.0

// OpinionEntry is the live opinion of one opinionator in a state.
type OpinionEntry struct {
	Opinion   cid.Cid
	Signature string
	Timestamp int64 // unix nanoseconds
}

// Tally holds the tournament counters of one option.
type Tally struct {
	Win     float64 `json:"win"`
	Loss    float64 `json:"loss"`
	Unknown float64 `json:"unknown"`
	Score   float64 `json:"score"`
}

// State aggregates the options and opinions of one question. It is
// mutated in memory and every Save appends an immutable snapshot to the
// chain, linked to the snapshot saved before it. A State is not safe for
// concurrent use; callers serialize writers per question.
type State struct {
	e *Engine

	question      cid.Cid
	q             *Question
	options       []cid.Cid
	opinions      map[string]OpinionEntry
	weights       map[string]float64
	results       map[cid.Cid]Tally
	contributions map[string]float64

	id       cid.Cid
	previous cid.Cid
	dirty    bool

	// ballots caches ranked choices by opinion id; opinions are immutable.
	ballots map[cid.Cid][]cid.Cid
}

type opinionEntryRecord struct {
	Opinion   string `json:"opinion"`
	Signature string `json:"signature"`
	Timestamp int64  `json:"timestamp"`
}

type stateRecord struct {
	Question      string                        `json:"question"`
	Options       []string                      `json:"options"`
	Opinions      map[string]opinionEntryRecord `json:"opinions"`
	Weights       map[string]float64            `json:"weights"`
	Results       map[string]Tally              `json:"results"`
	Contributions map[string]float64            `json:"contributions"`
	Previous      string                        `json:"previous,omitempty"`
}

// NewState starts an empty, unsaved state for the saved question.
func (e *Engine) NewState(ctx context.Context, questionID cid.Cid) (*State, error) {
	q, err := e.LoadQuestion(ctx, questionID)
	if err != nil {
		return nil, err
	}
	return &State{
		e:             e,
		question:      questionID,
		q:             q,
		opinions:      map[string]OpinionEntry{},
		weights:       map[string]float64{},
		results:       map[cid.Cid]Tally{},
		contributions: map[string]float64{},
		ballots:       map[cid.Cid][]cid.Cid{},
		dirty:         true,
	}, nil
}

// LoadState restores the snapshot id. Saving it again links the new
// snapshot to id.
func (e *Engine) LoadState(ctx context.Context, id cid.Cid) (*State, error) {
	var rec stateRecord
	if err := e.get(ctx, id, &rec); err != nil {
		return nil, fmt.Errorf("load state %s: %w", id, err)
	}
	s, err := e.stateFromRecord(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("load state %s: %w", id, err)
	}
	s.id = id
	return s, nil
}

func (e *Engine) stateFromRecord(ctx context.Context, rec stateRecord) (*State, error) {
	qid, err := cas.Parse(rec.Question)
	if err != nil {
		return nil, err
	}
	s, err := e.NewState(ctx, qid)
	if err != nil {
		return nil, err
	}
	s.dirty = false

	if s.options, err = parseIDs(rec.Options); err != nil {
		return nil, err
	}
	if s.previous, err = optionalID(rec.Previous); err != nil {
		return nil, err
	}
	for name, entry := range rec.Opinions {
		id, err := cas.Parse(entry.Opinion)
		if err != nil {
			return nil, err
		}
		s.opinions[name] = OpinionEntry{Opinion: id, Signature: entry.Signature, Timestamp: entry.Timestamp}
	}
	for name, w := range rec.Weights {
		s.weights[name] = w
	}
	for key, t := range rec.Results {
		id, err := cas.Parse(key)
		if err != nil {
			return nil, err
		}
		s.results[id] = t
	}
	for name, c := range rec.Contributions {
		s.contributions[name] = c
	}
	return s, nil
}

func (s *State) record() stateRecord {
	rec := stateRecord{
		Question:      s.question.String(),
		Options:       idStrings(s.options),
		Opinions:      make(map[string]opinionEntryRecord, len(s.opinions)),
		Weights:       make(map[string]float64, len(s.weights)),
		Results:       make(map[string]Tally, len(s.results)),
		Contributions: make(map[string]float64, len(s.contributions)),
	}
	for name, entry := range s.opinions {
		rec.Opinions[name] = opinionEntryRecord{
			Opinion:   entry.Opinion.String(),
			Signature: entry.Signature,
			Timestamp: entry.Timestamp,
		}
	}
	for name, w := range s.weights {
		rec.Weights[name] = w
	}
	for id, t := range s.results {
		rec.Results[id.String()] = t
	}
	for name, c := range s.contributions {
		rec.Contributions[name] = c
	}
	return rec
}

// ID is the identity of the last saved snapshot, or cid.Undef.
func (s *State) ID() cid.Cid          { return s.id }
func (s *State) Previous() cid.Cid    { return s.previous }
func (s *State) QuestionID() cid.Cid  { return s.question }
func (s *State) Question() *Question  { return s.q }
func (s *State) OptionIDs() []cid.Cid { return append([]cid.Cid(nil), s.options...) }
func (s *State) HasChanges() bool     { return s.dirty }

func (s *State) HasOption(id cid.Cid) bool {
	return s.optionIndex(id) >= 0
}

func (s *State) optionIndex(id cid.Cid) int {
	for i, o := range s.options {
		if o.Equals(id) {
			return i
		}
	}
	return -1
}

func (s *State) Opinions() map[string]OpinionEntry {
	out := make(map[string]OpinionEntry, len(s.opinions))
	for k, v := range s.opinions {
		out[k] = v
	}
	return out
}

func (s *State) Results() map[cid.Cid]Tally {
	out := make(map[cid.Cid]Tally, len(s.results))
	for k, v := range s.results {
		out[k] = v
	}
	return out
}

// Weights returns the weight of every opinionator the state knows about.
func (s *State) Weights() map[string]float64 {
	out := make(map[string]float64, len(s.weights))
	for k, v := range s.weights {
		out[k] = v
	}
	return out
}

func (s *State) Contributions() map[string]float64 {
	out := make(map[string]float64, len(s.contributions))
	for k, v := range s.contributions {
		out[k] = v
	}
	return out
}

// AddOption appends a saved option of this question. It reports false
// when the option is already present. An option that fails validation is
// rejected with ErrInvalidOption and the state is left as it was.
func (s *State) AddOption(ctx context.Context, id cid.Cid) (bool, error) {
	if s.HasOption(id) {
		return false, nil
	}
	o, err := s.e.LoadOption(ctx, id)
	if err != nil {
		return false, err
	}
	if !o.question.Equals(s.question) {
		return false, fmt.Errorf("%w: option %s belongs to question %s", ErrInvalidOption, id, o.question)
	}
	o.q = s.q
	if err := o.Validate(ctx); err != nil {
		return false, err
	}

	s.options = append(s.options, id)
	s.results[id] = Tally{}
	s.dirty = true
	return true, nil
}

// AddOpinion attaches a saved opinion, replacing any earlier opinion of
// the same opinionator. The opinionator keeps the weight already set for
// them, or the default of 1.
func (s *State) AddOpinion(ctx context.Context, id cid.Cid, signature string) error {
	return s.addOpinion(ctx, id, signature, nil)
}

// AddWeightedOpinion is AddOpinion that also sets the opinionator's weight.
func (s *State) AddWeightedOpinion(ctx context.Context, id cid.Cid, signature string, weight float64) error {
	if err := checkWeight(weight); err != nil {
		return err
	}
	return s.addOpinion(ctx, id, signature, &weight)
}

func (s *State) addOpinion(ctx context.Context, id cid.Cid, signature string, weight *float64) error {
	o, err := s.e.LoadOpinion(ctx, id)
	if err != nil {
		return err
	}
	if !o.question.Equals(s.question) {
		return fmt.Errorf("%w: opinion %s answers another question", ErrInvalidOpinion, id)
	}
	if o.opinionator == "" {
		return fmt.Errorf("%w: opinion %s has no opinionator", ErrInvalidOpinion, id)
	}
	if err := checkBallot(s.options, o.rankedChoice); err != nil {
		return err
	}

	w := s.GetWeight(o.opinionator)
	if weight != nil {
		w = *weight
	}
	s.opinions[o.opinionator] = OpinionEntry{
		Opinion:   id,
		Signature: signature,
		Timestamp: s.e.now().UnixNano(),
	}
	s.weights[o.opinionator] = w
	s.ballots[id] = o.rankedChoice
	s.dirty = true
	return nil
}

// GetWeight returns the opinionator's weight, 1 when none was set.
func (s *State) GetWeight(opinionator string) float64 {
	if w, ok := s.weights[opinionator]; ok {
		return w
	}
	return defaultWeight
}

func (s *State) SetWeight(opinionator string, weight float64) error {
	if opinionator == "" {
		return fmt.Errorf("%w: opinionator required", ErrConfiguration)
	}
	if err := checkWeight(weight); err != nil {
		return err
	}
	if w, ok := s.weights[opinionator]; ok && w == weight {
		return nil
	}
	s.weights[opinionator] = weight
	s.dirty = true
	return nil
}

func checkWeight(w float64) error {
	if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
		return fmt.Errorf("%w: weight must be a finite non-negative number, got %v", ErrConfiguration, w)
	}
	return nil
}

// Save writes a snapshot when something changed since the last save and
// returns its identity. Saving an unchanged state returns the current id.
func (s *State) Save(ctx context.Context) (cid.Cid, error) {
	if !s.dirty && s.id.Defined() {
		return s.id, nil
	}
	rec := s.record()
	if s.id.Defined() {
		rec.Previous = s.id.String()
	}
	id, err := s.e.put(ctx, rec)
	if err != nil {
		return cid.Undef, fmt.Errorf("save state: %w", err)
	}
	s.previous, s.id, s.dirty = s.id, id, false
	return id, nil
}

// Clone returns an independent copy. Saving the copy forks the chain at
// the copy's current snapshot.
func (s *State) Clone() *State {
	c := *s
	c.options = append([]cid.Cid(nil), s.options...)
	c.opinions = s.Opinions()
	c.results = s.Results()
	c.contributions = s.Contributions()
	c.weights = make(map[string]float64, len(s.weights))
	for k, v := range s.weights {
		c.weights[k] = v
	}
	c.ballots = make(map[cid.Cid][]cid.Cid, len(s.ballots))
	for k, v := range s.ballots {
		c.ballots[k] = v
	}
	return &c
}

// CalculateResults runs the tournament over the live opinions, stores the
// scores and contributions and saves the state.
func (s *State) CalculateResults(ctx context.Context) (cid.Cid, error) {
	ballots, err := s.loadBallots(ctx)
	if err != nil {
		return cid.Undef, err
	}
	results, contributions := tournament(s.options, ballots)
	if !reflect.DeepEqual(results, s.results) || !reflect.DeepEqual(contributions, s.contributions) {
		s.results, s.contributions = results, contributions
		s.dirty = true
	}
	return s.Save(ctx)
}

func (s *State) loadBallots(ctx context.Context) ([]ballot, error) {
	ids := make([]cid.Cid, 0, len(s.opinions))
	for _, entry := range s.opinions {
		if _, ok := s.ballots[entry.Opinion]; !ok {
			ids = append(ids, entry.Opinion)
		}
	}
	loaded, err := loadAll(ctx, ids, func(ctx context.Context, id cid.Cid) ([]cid.Cid, error) {
		var rec opinionRecord
		if err := s.e.get(ctx, id, &rec); err != nil {
			return nil, fmt.Errorf("load opinion %s: %w", id, err)
		}
		return parseIDs(rec.RankedChoice)
	})
	if err != nil {
		return nil, err
	}
	for i, id := range ids {
		s.ballots[id] = loaded[i]
	}

	out := make([]ballot, 0, len(s.opinions))
	for name, entry := range s.opinions {
		ranked, ok := s.ballots[entry.Opinion]
		if !ok {
			return nil, errors.New("ballot cache out of sync")
		}
		out = append(out, ballot{
			opinionator: name,
			ranked:      ranked,
			timestamp:   entry.Timestamp,
			weight:      s.GetWeight(name),
		})
	}
	return out, nil
}
