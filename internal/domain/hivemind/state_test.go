package hivemind

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/ipfs/go-cid"
)

func scores(st *State, ids []cid.Cid) []float64 {
	res := st.Results()
	out := make([]float64, len(ids))
	for i, id := range ids {
		out[i] = res[id].Score
	}
	return out
}

func TestOpposedBallotsTie(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	st, ids := newTestState(t, e, ConsensusSingle, "X", "Y", "Z")
	x, y, z := ids[0], ids[1], ids[2]

	vote(t, e, st, "alice", x, y, z)
	vote(t, e, st, "bob", z, y, x)
	if _, err := st.CalculateResults(ctx); err != nil {
		t.Fatalf("calculate: %v", err)
	}

	// Each option wins exactly half of its pairwise comparisons.
	if got := scores(st, ids); !reflect.DeepEqual(got, []float64{0.5, 0.5, 0.5}) {
		t.Fatalf("unexpected scores %v", got)
	}
	if tally := st.Results()[y]; tally.Win != 2 || tally.Loss != 2 || tally.Unknown != 0 {
		t.Fatalf("unexpected tally for Y: %+v", tally)
	}

	single, err := st.Consensus(ctx)
	if err != nil || single != nil {
		t.Fatalf("expected no single consensus, got %v (err=%v)", single, err)
	}
	ranked, err := st.RankedConsensus(ctx)
	if err != nil {
		t.Fatalf("ranked: %v", err)
	}
	if !reflect.DeepEqual(ranked, []any{"X", "Y", "Z"}) {
		t.Fatalf("ties must keep insertion order, got %v", ranked)
	}

	c := st.Contributions()
	if c["alice"] != 1 || c["bob"] != 0 {
		t.Fatalf("unexpected contributions %v", c)
	}
}

func TestCommonFavouriteWins(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	st, ids := newTestState(t, e, ConsensusSingle, "X", "Y", "Z")
	x, y, z := ids[0], ids[1], ids[2]

	vote(t, e, st, "alice", y, x, z)
	vote(t, e, st, "bob", y, z, x)
	if _, err := st.CalculateResults(ctx); err != nil {
		t.Fatalf("calculate: %v", err)
	}

	if got := scores(st, ids); !reflect.DeepEqual(got, []float64{0.25, 1, 0.25}) {
		t.Fatalf("unexpected scores %v", got)
	}
	single, err := st.Consensus(ctx)
	if err != nil || single != "Y" {
		t.Fatalf("expected Y, got %v (err=%v)", single, err)
	}
	ranked, err := st.RankedConsensus(ctx)
	if err != nil || !reflect.DeepEqual(ranked, []any{"Y", "X", "Z"}) {
		t.Fatalf("unexpected ranking %v (err=%v)", ranked, err)
	}
	c := st.Contributions()
	if c["alice"] != 1 || c["bob"] != 0 {
		t.Fatalf("unexpected contributions %v", c)
	}
}

func TestGetConsensusFollowsMode(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	st, ids := newTestState(t, e, ConsensusRanked, "A", "B")

	vote(t, e, st, "alice", ids[1], ids[0])
	if _, err := st.CalculateResults(ctx); err != nil {
		t.Fatalf("calculate: %v", err)
	}
	got, err := st.GetConsensus(ctx)
	if err != nil {
		t.Fatalf("consensus: %v", err)
	}
	if !reflect.DeepEqual(got, []any{"B", "A"}) {
		t.Fatalf("expected ranked values, got %#v", got)
	}
}

func TestConsensusEdgeCases(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	empty, _ := newTestState(t, e, ConsensusSingle)
	if v, err := empty.Consensus(ctx); err != nil || v != nil {
		t.Fatalf("no options: got %v (err=%v)", v, err)
	}

	e2, _ := newTestEngine(t)
	lone, _ := newTestState(t, e2, ConsensusSingle, "only")
	if v, err := lone.Consensus(ctx); err != nil || v != "only" {
		t.Fatalf("single option: got %v (err=%v)", v, err)
	}
}

func TestEmptyBallotEarnsNothing(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	st, ids := newTestState(t, e, ConsensusSingle, "X", "Y")
	x, y := ids[0], ids[1]

	emptyID := vote(t, e, st, "alice")
	vote(t, e, st, "bob", x)

	op, err := e.LoadOpinion(ctx, emptyID)
	if err != nil {
		t.Fatalf("load opinion: %v", err)
	}
	if op.IsComplete() {
		t.Fatal("empty ballot must not be complete")
	}
	if got := op.UnrankedOptionIDs(); len(got) != 2 || !got[0].Equals(x) || !got[1].Equals(y) {
		t.Fatalf("unexpected unranked ids %v", got)
	}

	if _, err := st.CalculateResults(ctx); err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if got := scores(st, ids); !reflect.DeepEqual(got, []float64{0.5, 0}) {
		t.Fatalf("unexpected scores %v", got)
	}
	c := st.Contributions()
	if c["alice"] != 0 {
		t.Fatalf("empty ballot must contribute 0, got %v", c["alice"])
	}
	if c["bob"] != 0.375 {
		t.Fatalf("unexpected contribution for bob: %v", c["bob"])
	}
}

func TestUnknownOptionRejected(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	st, ids := newTestState(t, e, ConsensusSingle, "X", "Y")
	vote(t, e, st, "alice", ids[0])
	before := st.Opinions()

	// An option of the same question that was never added to st.
	stray := mustOption(t, e, st.QuestionID(), "W")

	op, err := e.NewOpinion(ctx, st.ID())
	if err != nil {
		t.Fatalf("new opinion: %v", err)
	}
	if err := op.Set("bob", []cid.Cid{ids[1], stray}); !errors.Is(err, ErrInvalidOpinion) {
		t.Fatalf("expected ErrInvalidOpinion, got %v", err)
	}
	if err := op.Set("bob", []cid.Cid{ids[1], ids[1]}); !errors.Is(err, ErrInvalidOpinion) {
		t.Fatalf("duplicate: expected ErrInvalidOpinion, got %v", err)
	}

	// A ballot bound to a fork that knows the stray option.
	fork := st.Clone()
	if _, err := fork.AddOption(ctx, stray); err != nil {
		t.Fatalf("add to fork: %v", err)
	}
	if _, err := fork.Save(ctx); err != nil {
		t.Fatalf("save fork: %v", err)
	}
	forked, err := e.NewOpinion(ctx, fork.ID())
	if err != nil {
		t.Fatalf("new opinion: %v", err)
	}
	if err := forked.Set("bob", []cid.Cid{stray}); err != nil {
		t.Fatalf("set: %v", err)
	}
	forkedID, err := forked.Save(ctx)
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := st.AddOpinion(ctx, forkedID, ""); !errors.Is(err, ErrInvalidOpinion) {
		t.Fatalf("expected ErrInvalidOpinion, got %v", err)
	}
	if !reflect.DeepEqual(st.Opinions(), before) {
		t.Fatalf("opinions changed: %v", st.Opinions())
	}
	if st.HasOption(stray) {
		t.Fatal("fork leaked into the original state")
	}
}

func TestOpinionForOtherQuestionRejected(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	st, _ := newTestState(t, e, ConsensusSingle, "X")

	other := mustQuestion(t, e, "Another?", AnswerBool, ConsensusSingle, nil)
	otherState, err := e.NewState(ctx, other)
	if err != nil {
		t.Fatalf("new state: %v", err)
	}
	yes := mustOption(t, e, other, true)
	if _, err := otherState.AddOption(ctx, yes); err != nil {
		t.Fatalf("add option: %v", err)
	}
	opID := vote(t, e, otherState, "alice", yes)

	if err := st.AddOpinion(ctx, opID, ""); !errors.Is(err, ErrInvalidOpinion) {
		t.Fatalf("expected ErrInvalidOpinion, got %v", err)
	}
	if added, err := st.AddOption(ctx, yes); added || !errors.Is(err, ErrInvalidOption) {
		t.Fatalf("expected ErrInvalidOption, got added=%v err=%v", added, err)
	}
}

func TestAddOptionIsIdempotent(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	st, ids := newTestState(t, e, ConsensusSingle, "X")

	added, err := st.AddOption(ctx, ids[0])
	if err != nil || added {
		t.Fatalf("expected no-op, got added=%v err=%v", added, err)
	}
	if len(st.OptionIDs()) != 1 || st.HasChanges() {
		t.Fatal("duplicate option must not change the state")
	}
}

func TestLaterOpinionReplacesEarlier(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	st, ids := newTestState(t, e, ConsensusSingle, "X", "Y")

	vote(t, e, st, "alice", ids[0], ids[1])
	second := vote(t, e, st, "alice", ids[1], ids[0])

	ops := st.Opinions()
	if len(ops) != 1 || !ops["alice"].Opinion.Equals(second) {
		t.Fatalf("expected only the later opinion, got %v", ops)
	}
	if _, err := st.CalculateResults(ctx); err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if got := scores(st, ids); !reflect.DeepEqual(got, []float64{0, 1}) {
		t.Fatalf("unexpected scores %v", got)
	}
}

func TestWeightsScaleTallies(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	st, ids := newTestState(t, e, ConsensusSingle, "X", "Y")

	if err := st.SetWeight("alice", 3); err != nil {
		t.Fatalf("set weight: %v", err)
	}
	vote(t, e, st, "alice", ids[0], ids[1])
	vote(t, e, st, "bob", ids[1], ids[0])

	if st.GetWeight("alice") != 3 || st.GetWeight("bob") != 1 || st.GetWeight("carol") != 1 {
		t.Fatalf("unexpected weights %v %v %v", st.GetWeight("alice"), st.GetWeight("bob"), st.GetWeight("carol"))
	}
	if _, err := st.CalculateResults(ctx); err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if got := scores(st, ids); !reflect.DeepEqual(got, []float64{0.75, 0.25}) {
		t.Fatalf("unexpected scores %v", got)
	}

	for _, w := range []float64{-1, math.NaN(), math.Inf(1)} {
		if err := st.SetWeight("bob", w); !errors.Is(err, ErrConfiguration) {
			t.Fatalf("weight %v: expected ErrConfiguration, got %v", w, err)
		}
	}
	if st.GetWeight("bob") != 1 {
		t.Fatal("rejected weight must not be stored")
	}
}

func TestAddWeightedOpinion(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	st, ids := newTestState(t, e, ConsensusSingle, "X", "Y")

	op, err := e.NewOpinion(ctx, st.ID())
	if err != nil {
		t.Fatalf("new opinion: %v", err)
	}
	if err := op.Set("alice", ids); err != nil {
		t.Fatalf("set: %v", err)
	}
	id, err := op.Save(ctx)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := st.AddWeightedOpinion(ctx, id, "", -2); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if err := st.AddWeightedOpinion(ctx, id, "", 2.5); err != nil {
		t.Fatalf("add: %v", err)
	}
	if st.GetWeight("alice") != 2.5 {
		t.Fatalf("unexpected weight %v", st.GetWeight("alice"))
	}
}

// ballots used by the property tests below: partial, empty and weighted.
func propertyState(t *testing.T) (*Engine, *State, []cid.Cid) {
	t.Helper()
	e, _ := newTestEngine(t)
	st, ids := newTestState(t, e, ConsensusSingle, "A", "B", "C", "D")
	a, b, c, d := ids[0], ids[1], ids[2], ids[3]

	vote(t, e, st, "p1", a, b, c, d)
	vote(t, e, st, "p2", c, a)
	vote(t, e, st, "p3", d)
	vote(t, e, st, "p4")
	vote(t, e, st, "p5", b, d, a, c)
	if err := st.SetWeight("p2", 2.5); err != nil {
		t.Fatalf("set weight: %v", err)
	}
	if err := st.SetWeight("p5", 0); err != nil {
		t.Fatalf("set weight: %v", err)
	}
	if _, err := st.CalculateResults(context.Background()); err != nil {
		t.Fatalf("calculate: %v", err)
	}
	return e, st, ids
}

func TestTallySymmetry(t *testing.T) {
	_, st, ids := propertyState(t)

	var win, loss, total float64
	for _, tally := range st.Results() {
		win += tally.Win
		loss += tally.Loss
		total += tally.Win + tally.Loss + tally.Unknown
	}
	if win != loss {
		t.Fatalf("every win must be someone's loss: win=%v loss=%v", win, loss)
	}

	// each option meets every other option once per ballot
	weights := 1 + 2.5 + 1 + 1 + 0
	want := weights * float64(len(ids)*(len(ids)-1))
	if total != want {
		t.Fatalf("total tally %v, want %v", total, want)
	}
}

func TestScoreBounds(t *testing.T) {
	_, st, _ := propertyState(t)
	for id, tally := range st.Results() {
		if tally.Score < 0 || tally.Score > 1 {
			t.Fatalf("score of %s out of range: %v", id, tally.Score)
		}
	}

	e, _ := newTestEngine(t)
	fresh, ids := newTestState(t, e, ConsensusSingle, "A", "B")
	if _, err := fresh.CalculateResults(context.Background()); err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if got := scores(fresh, ids); !reflect.DeepEqual(got, []float64{0, 0}) {
		t.Fatalf("uncompared options must score 0, got %v", got)
	}
}

func TestContributionBounds(t *testing.T) {
	_, st, _ := propertyState(t)
	c := st.Contributions()
	if len(c) != 5 {
		t.Fatalf("expected a contribution per opinionator, got %v", c)
	}
	var sum float64
	for name, v := range c {
		if v < 0 || v > 1 {
			t.Fatalf("contribution of %s out of range: %v", name, v)
		}
		sum += v
	}
	if sum > float64(len(c)) {
		t.Fatalf("sum of contributions %v exceeds %d", sum, len(c))
	}
	if c["p4"] != 0 {
		t.Fatalf("empty ballot earned %v", c["p4"])
	}
}

func TestCalculateResultsIsDeterministic(t *testing.T) {
	e, st, _ := propertyState(t)
	ctx := context.Background()

	first, firstResults, firstContrib := st.ID(), st.Results(), st.Contributions()

	again, err := st.CalculateResults(ctx)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if !again.Equals(first) {
		t.Fatalf("recalculating an unchanged state must not add a snapshot: %s != %s", again, first)
	}

	loaded, err := e.LoadState(ctx, first)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	reloaded, err := loaded.CalculateResults(ctx)
	if err != nil {
		t.Fatalf("calculate loaded: %v", err)
	}
	if !reloaded.Equals(first) {
		t.Fatal("a loaded state must reproduce the same results")
	}
	if !reflect.DeepEqual(loaded.Results(), firstResults) || !reflect.DeepEqual(loaded.Contributions(), firstContrib) {
		t.Fatal("results differ after reload")
	}
}
