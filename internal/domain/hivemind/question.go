package hivemind

import (
	"context"
	"fmt"

	"github.com/ipfs/go-cid"

	"hivemind/internal/domain/tags"
	"hivemind/internal/platform/cas"
)

// Question is the typed poll definition. It is configured through its
// setters and becomes immutable once saved: a changed configuration is a
// new record with a new content identity.
type Question struct {
	e *Engine

	text        string
	description string
	tags        string
	answerType  AnswerType
	mode        ConsensusMode
	constraints Constraints
}

type questionRecord struct {
	Text          string      `json:"text"`
	Description   string      `json:"description"`
	Tags          string      `json:"tags"`
	AnswerType    string      `json:"answer_type"`
	ConsensusMode string      `json:"consensus_mode"`
	Constraints   Constraints `json:"constraints"`
}

// NewQuestion returns a String question with Single consensus.
func (e *Engine) NewQuestion(text string) *Question {
	return &Question{e: e, text: text, answerType: AnswerString, mode: ConsensusSingle}
}

func (q *Question) Text() string                 { return q.text }
func (q *Question) Description() string          { return q.description }
func (q *Question) Tags() string                 { return q.tags }
func (q *Question) AnswerType() AnswerType       { return q.answerType }
func (q *Question) ConsensusMode() ConsensusMode { return q.mode }
func (q *Question) Constraints() Constraints     { return q.constraints.clone() }

func (q *Question) SetText(text string)               { q.text = text }
func (q *Question) SetDescription(description string) { q.description = description }
func (q *Question) SetTags(tags string)               { q.tags = tags }

// SetAnswerType switches the answer type. Constraints already set must
// still apply to the new type, otherwise nothing changes.
func (q *Question) SetAnswerType(t AnswerType) error {
	t, err := ParseAnswerType(string(t))
	if err != nil {
		return err
	}
	c := q.constraints.clone()
	if err := c.check(t); err != nil {
		return err
	}
	q.answerType, q.constraints = t, c
	return nil
}

func (q *Question) SetConsensusMode(m ConsensusMode) error {
	m, err := ParseConsensusMode(string(m))
	if err != nil {
		return err
	}
	q.mode = m
	return nil
}

// SetConstraints merges updates into the current constraints. Keys map to
// the json names of Constraints; a nil value removes a key. On error the
// previous constraints are kept.
func (q *Question) SetConstraints(updates map[string]any) error {
	c, err := q.constraints.merge(q.answerType, updates)
	if err != nil {
		return err
	}
	q.constraints = c
	return nil
}

// ID returns the topic identity: a tag hash over the text, the answer type
// and the tags, so rephrasings with the same words collapse together.
func (q *Question) ID() string {
	return tags.FromString(q.text + " " + string(q.answerType) + " " + q.tags)
}

// ContentID returns the identity the question has, or would have, once saved.
func (q *Question) ContentID() (cid.Cid, error) {
	id, _, err := cas.Identify(q.record())
	return id, err
}

func (q *Question) Save(ctx context.Context) (cid.Cid, error) {
	id, err := q.e.put(ctx, q.record())
	if err != nil {
		return cid.Undef, fmt.Errorf("save question: %w", err)
	}
	return id, nil
}

func (q *Question) record() questionRecord {
	return questionRecord{
		Text:          q.text,
		Description:   q.description,
		Tags:          q.tags,
		AnswerType:    string(q.answerType),
		ConsensusMode: string(q.mode),
		Constraints:   q.constraints,
	}
}

func (e *Engine) LoadQuestion(ctx context.Context, id cid.Cid) (*Question, error) {
	var rec questionRecord
	if err := e.get(ctx, id, &rec); err != nil {
		return nil, fmt.Errorf("load question %s: %w", id, err)
	}

	t, err := ParseAnswerType(rec.AnswerType)
	if err != nil {
		return nil, fmt.Errorf("load question %s: %w", id, err)
	}
	m, err := ParseConsensusMode(rec.ConsensusMode)
	if err != nil {
		return nil, fmt.Errorf("load question %s: %w", id, err)
	}

	c := rec.Constraints
	for i, choice := range c.Choices {
		c.Choices[i] = cas.Normalize(choice)
	}
	if err := c.check(t); err != nil {
		return nil, fmt.Errorf("load question %s: %w", id, err)
	}

	return &Question{
		e:           e,
		text:        rec.Text,
		description: rec.Description,
		tags:        rec.Tags,
		answerType:  t,
		mode:        m,
		constraints: c,
	}, nil
}
