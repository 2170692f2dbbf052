package hivemind

import (
	"context"
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"

	"hivemind/internal/platform/cas"
)

// Option is one candidate answer to a question.
type Option struct {
	e *Engine

	question   cid.Cid
	q          *Question
	answerType AnswerType
	value      any
	hasValue   bool
}

type optionRecord struct {
	Question   string `json:"question"`
	AnswerType string `json:"answer_type"`
	Value      any    `json:"value"`
}

// NewOption attaches a new, empty option to the saved question.
func (e *Engine) NewOption(ctx context.Context, questionID cid.Cid) (*Option, error) {
	q, err := e.LoadQuestion(ctx, questionID)
	if err != nil {
		return nil, err
	}
	return &Option{e: e, question: questionID, q: q, answerType: q.answerType}, nil
}

func (o *Option) Question() cid.Cid      { return o.question }
func (o *Option) AnswerType() AnswerType { return o.answerType }
func (o *Option) Value() any             { return o.value }

// Set validates value against the question and stores it. An invalid
// value leaves the option unchanged.
func (o *Option) Set(ctx context.Context, value any) error {
	v, err := o.e.validateValue(ctx, o.q, value)
	if err != nil {
		return err
	}
	o.value, o.hasValue = v, true
	return nil
}

// Validate re-checks the current value against the question.
func (o *Option) Validate(ctx context.Context) error {
	if !o.hasValue {
		return fmt.Errorf("%w: no value set", ErrInvalidOption)
	}
	q := o.q
	if q == nil {
		var err error
		if q, err = o.e.LoadQuestion(ctx, o.question); err != nil {
			return err
		}
		o.q = q
	}
	if q.answerType != o.answerType {
		return fmt.Errorf("%w: answer type %s does not match question type %s", ErrInvalidOption, o.answerType, q.answerType)
	}
	_, err := o.e.validateValue(ctx, q, o.value)
	return err
}

func (o *Option) IsValid(ctx context.Context) bool {
	return o.Validate(ctx) == nil
}

func (o *Option) ContentID() (cid.Cid, error) {
	id, _, err := cas.Identify(o.record())
	return id, err
}

func (o *Option) Save(ctx context.Context) (cid.Cid, error) {
	if !o.hasValue {
		return cid.Undef, fmt.Errorf("%w: no value set", ErrInvalidOption)
	}
	id, err := o.e.put(ctx, o.record())
	if err != nil {
		return cid.Undef, fmt.Errorf("save option: %w", err)
	}
	return id, nil
}

func (o *Option) record() optionRecord {
	return optionRecord{
		Question:   o.question.String(),
		AnswerType: string(o.answerType),
		Value:      o.value,
	}
}

// LoadOption decodes a stored option. The value is brought back to its
// stored Go type but not re-validated; State.AddOption does that.
func (e *Engine) LoadOption(ctx context.Context, id cid.Cid) (*Option, error) {
	var rec optionRecord
	if err := e.get(ctx, id, &rec); err != nil {
		return nil, fmt.Errorf("load option %s: %w", id, err)
	}
	t, err := ParseAnswerType(rec.AnswerType)
	if err != nil {
		return nil, fmt.Errorf("load option %s: %w", id, err)
	}
	qid, err := cas.Parse(rec.Question)
	if err != nil {
		return nil, fmt.Errorf("load option %s: %w", id, err)
	}
	v, err := coerceFor(t, nil, cas.Normalize(rec.Value))
	if err != nil {
		if !errors.Is(err, ErrUnknownAnswerType) {
			err = fmt.Errorf("%w: %v", ErrInvalidOption, err)
		}
		return nil, fmt.Errorf("load option %s: %w", id, err)
	}
	return &Option{e: e, question: qid, answerType: t, value: v, hasValue: true}, nil
}
