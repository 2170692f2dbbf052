// Package hivemind implements the ranked-choice consensus engine: typed
// questions, validated options, ranked opinions and the state that tallies
// them into a consensus. Every record is content addressed through a
// cas.Store and every state snapshot links to the one saved before it.
package hivemind

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration        = errors.New("invalid question configuration")
	ErrInvalidOption        = errors.New("invalid option")
	ErrInvalidOpinion       = errors.New("invalid opinion")
	ErrUnknownAnswerType    = errors.New("unknown answer type")
	ErrUnknownConsensusMode = errors.New("unknown consensus mode")
)

type AnswerType string

const (
	AnswerString         AnswerType = "String"
	AnswerBool           AnswerType = "Bool"
	AnswerInteger        AnswerType = "Integer"
	AnswerFloat          AnswerType = "Float"
	AnswerNestedQuestion AnswerType = "NestedQuestion"
	AnswerImage          AnswerType = "Image"
	AnswerVideo          AnswerType = "Video"
	AnswerComplex        AnswerType = "Complex"
	AnswerAddress        AnswerType = "Address"
)

var answerTypes = []AnswerType{
	AnswerString, AnswerBool, AnswerInteger, AnswerFloat, AnswerNestedQuestion,
	AnswerImage, AnswerVideo, AnswerComplex, AnswerAddress,
}

// ParseAnswerType returns ErrUnknownAnswerType for anything outside the
// closed set above.
func ParseAnswerType(s string) (AnswerType, error) {
	for _, t := range answerTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAnswerType, s)
}

// scalar reports whether t may be used as a field type in a Complex spec.
func (t AnswerType) scalar() bool {
	switch t {
	case AnswerString, AnswerBool, AnswerInteger, AnswerFloat:
		return true
	}
	return false
}

type ConsensusMode string

const (
	ConsensusSingle ConsensusMode = "Single"
	ConsensusRanked ConsensusMode = "Ranked"
)

func ParseConsensusMode(s string) (ConsensusMode, error) {
	switch ConsensusMode(s) {
	case ConsensusSingle, ConsensusRanked:
		return ConsensusMode(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownConsensusMode, s)
}
