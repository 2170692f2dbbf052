package hivemind

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"hivemind/internal/platform/cas"
)

func TestSetConstraintsRejectsUnknownKey(t *testing.T) {
	e, _ := newTestEngine(t)
	q := e.NewQuestion("Name?")

	err := q.SetConstraints(map[string]any{"min_lenght": 2})
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestSetConstraintsFailureKeepsPrevious(t *testing.T) {
	e, _ := newTestEngine(t)
	q := e.NewQuestion("Name?")
	if err := q.SetConstraints(map[string]any{"min_length": 2, "max_length": 5}); err != nil {
		t.Fatalf("set constraints: %v", err)
	}

	bad := []map[string]any{
		{"min_length": "two"},
		{"max_length": 1},
		{"regex": "(unclosed"},
		{"regex": 12},
		{"min_value": 1},
		{"choices": "red"},
	}
	for _, c := range bad {
		if err := q.SetConstraints(c); !errors.Is(err, ErrConfiguration) {
			t.Fatalf("constraints %v: expected ErrConfiguration, got %v", c, err)
		}
	}

	got := q.Constraints()
	if got.MinLength == nil || *got.MinLength != 2 || got.MaxLength == nil || *got.MaxLength != 5 {
		t.Fatalf("previous constraints lost: %+v", got)
	}
	if got.Regex != nil {
		t.Fatalf("regex must not be set, got %q", *got.Regex)
	}
}

func TestSetConstraintsMergesAndRemoves(t *testing.T) {
	e, _ := newTestEngine(t)
	q := e.NewQuestion("Count?")
	if err := q.SetAnswerType(AnswerInteger); err != nil {
		t.Fatalf("set answer type: %v", err)
	}
	if err := q.SetConstraints(map[string]any{"min_value": 1}); err != nil {
		t.Fatalf("set min: %v", err)
	}
	if err := q.SetConstraints(map[string]any{"max_value": 9, "choices": []any{1, 3, 5}}); err != nil {
		t.Fatalf("set max: %v", err)
	}

	c := q.Constraints()
	if c.MinValue == nil || *c.MinValue != 1 || c.MaxValue == nil || *c.MaxValue != 9 {
		t.Fatalf("unexpected range: %+v", c)
	}
	if !reflect.DeepEqual(c.Choices, []any{int64(1), int64(3), int64(5)}) {
		t.Fatalf("choices not normalized: %#v", c.Choices)
	}

	if err := q.SetConstraints(map[string]any{"min_value": nil}); err != nil {
		t.Fatalf("remove min: %v", err)
	}
	if q.Constraints().MinValue != nil {
		t.Fatal("expected min_value removed")
	}
}

func TestSetConstraintsChecksChoicesAgainstType(t *testing.T) {
	e, _ := newTestEngine(t)
	q := e.NewQuestion("Count?")
	if err := q.SetAnswerType(AnswerInteger); err != nil {
		t.Fatalf("set answer type: %v", err)
	}
	if err := q.SetConstraints(map[string]any{"choices": []any{1, "two"}}); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestSetConstraintsChecksChoicesAgainstConstraints(t *testing.T) {
	e, _ := newTestEngine(t)
	cases := []struct {
		answerType  AnswerType
		constraints map[string]any
	}{
		{AnswerFloat, map[string]any{"decimals": 2, "choices": []any{1.25, 2.5}}},
		{AnswerInteger, map[string]any{"max_value": 10, "choices": []any{5, 11}}},
		{AnswerString, map[string]any{"regex": "[a-z]+", "choices": []any{"ok", "NO"}}},
		{AnswerString, map[string]any{"max_length": 3, "choices": []any{"abcd"}}},
		{AnswerComplex, map[string]any{"specs": map[string]any{"name": "String"}, "choices": []any{map[string]any{"age": 3}}}},
	}
	for _, tc := range cases {
		q := e.NewQuestion("Pick one?")
		if err := q.SetAnswerType(tc.answerType); err != nil {
			t.Fatalf("set answer type: %v", err)
		}
		if err := q.SetConstraints(tc.constraints); !errors.Is(err, ErrConfiguration) {
			t.Fatalf("%s %v: expected ErrConfiguration, got %v", tc.answerType, tc.constraints, err)
		}
		if len(q.Constraints().Choices) != 0 {
			t.Fatalf("%s: rejected constraints must not be kept", tc.answerType)
		}
	}

	q := e.NewQuestion("Price?")
	if err := q.SetAnswerType(AnswerFloat); err != nil {
		t.Fatalf("set answer type: %v", err)
	}
	if err := q.SetConstraints(map[string]any{"decimals": 2, "choices": []any{1.25, 2.75}}); err != nil {
		t.Fatalf("satisfiable choices rejected: %v", err)
	}
}

func TestComplexSpecsMustBeScalar(t *testing.T) {
	e, _ := newTestEngine(t)
	q := e.NewQuestion("Who?")
	if err := q.SetAnswerType(AnswerComplex); err != nil {
		t.Fatalf("set answer type: %v", err)
	}
	if err := q.SetConstraints(map[string]any{"specs": map[string]any{"pic": "Image"}}); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if err := q.SetConstraints(map[string]any{"specs": map[string]any{"age": "Age"}}); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for unknown type, got %v", err)
	}
	if err := q.SetConstraints(map[string]any{"specs": map[string]string{"name": "String", "age": "Integer"}}); err != nil {
		t.Fatalf("set specs: %v", err)
	}
}

func TestSetAnswerTypeKeepsConstraintsCoherent(t *testing.T) {
	e, _ := newTestEngine(t)
	q := e.NewQuestion("Name?")
	if err := q.SetConstraints(map[string]any{"regex": "[a-z]+"}); err != nil {
		t.Fatalf("set constraints: %v", err)
	}

	if err := q.SetAnswerType(AnswerInteger); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if q.AnswerType() != AnswerString {
		t.Fatalf("answer type changed to %s", q.AnswerType())
	}
	if err := q.SetAnswerType("Hologram"); !errors.Is(err, ErrUnknownAnswerType) {
		t.Fatalf("expected ErrUnknownAnswerType, got %v", err)
	}
	if err := q.SetConsensusMode("Plurality"); !errors.Is(err, ErrUnknownConsensusMode) {
		t.Fatalf("expected ErrUnknownConsensusMode, got %v", err)
	}
}

func TestQuestionTopicID(t *testing.T) {
	e, _ := newTestEngine(t)

	a := e.NewQuestion("Who will win the cup?")
	a.SetTags("sports, football")
	b := e.NewQuestion("who WILL win the Cup")
	b.SetTags("Football sports")
	if a.ID() != b.ID() {
		t.Fatalf("expected equal topic ids, got %s and %s", a.ID(), b.ID())
	}

	if err := b.SetAnswerType(AnswerAddress); err != nil {
		t.Fatalf("set answer type: %v", err)
	}
	if a.ID() == b.ID() {
		t.Fatal("answer type must be part of the topic id")
	}
}

func TestQuestionSaveLoadRoundTrip(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	q := e.NewQuestion("Fee rate?")
	q.SetDescription("sat/vB for the next block")
	q.SetTags("btc fees")
	if err := q.SetAnswerType(AnswerFloat); err != nil {
		t.Fatalf("set answer type: %v", err)
	}
	if err := q.SetConsensusMode(ConsensusRanked); err != nil {
		t.Fatalf("set mode: %v", err)
	}
	if err := q.SetConstraints(map[string]any{"min_value": 0.5, "decimals": 1, "choices": []any{1.5, 2, 10.5}}); err != nil {
		t.Fatalf("set constraints: %v", err)
	}

	id, err := q.Save(ctx)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	want, err := q.ContentID()
	if err != nil || !want.Equals(id) {
		t.Fatalf("content id %s does not match saved id %s (err=%v)", want, id, err)
	}

	got, err := e.LoadQuestion(ctx, id)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Text() != q.Text() || got.Description() != q.Description() || got.Tags() != q.Tags() {
		t.Fatalf("text fields differ: %+v", got)
	}
	if got.AnswerType() != AnswerFloat || got.ConsensusMode() != ConsensusRanked {
		t.Fatalf("enums differ: %s %s", got.AnswerType(), got.ConsensusMode())
	}
	if !reflect.DeepEqual(got.Constraints().Choices, []any{1.5, 2.0, 10.5}) {
		t.Fatalf("choices differ: %#v", got.Constraints().Choices)
	}
	again, err := got.Save(ctx)
	if err != nil || !again.Equals(id) {
		t.Fatalf("re-saving a loaded question must give the same id, got %s (err=%v)", again, err)
	}
}

func TestLoadQuestionRejectsUnknownEnums(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()

	badType, err := cas.PutObject(ctx, store, questionRecord{Text: "x", AnswerType: "Hologram", ConsensusMode: "Single"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := e.LoadQuestion(ctx, badType); !errors.Is(err, ErrUnknownAnswerType) {
		t.Fatalf("expected ErrUnknownAnswerType, got %v", err)
	}

	badMode, err := cas.PutObject(ctx, store, questionRecord{Text: "x", AnswerType: "Bool", ConsensusMode: "Plurality"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := e.LoadQuestion(ctx, badMode); !errors.Is(err, ErrUnknownConsensusMode) {
		t.Fatalf("expected ErrUnknownConsensusMode, got %v", err)
	}
}

func TestLoadQuestionMissing(t *testing.T) {
	e, _ := newTestEngine(t)
	missing, err := cas.Sum([]byte("nothing"))
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if _, err := e.LoadQuestion(context.Background(), missing); !errors.Is(err, cas.ErrContentNotFound) {
		t.Fatalf("expected ErrContentNotFound, got %v", err)
	}
}
