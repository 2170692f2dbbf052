package api

import (
	"encoding/json"

	"github.com/ipfs/go-cid"

	"hivemind/internal/domain/hivemind"
)

type questionResponse struct {
	ID            string               `json:"id"`
	Topic         string               `json:"topic"`
	Head          string               `json:"head,omitempty"`
	Text          string               `json:"text"`
	Description   string               `json:"description"`
	Tags          string               `json:"tags"`
	AnswerType    string               `json:"answer_type"`
	ConsensusMode string               `json:"consensus_mode"`
	Constraints   hivemind.Constraints `json:"constraints"`
}

type opinionEntryResponse struct {
	Opinion   string `json:"opinion"`
	Signature string `json:"signature"`
	Timestamp int64  `json:"timestamp"`
}

type stateResponse struct {
	ID            string                          `json:"id"`
	Previous      string                          `json:"previous,omitempty"`
	Question      string                          `json:"question"`
	Options       []string                        `json:"options"`
	Opinions      map[string]opinionEntryResponse `json:"opinions"`
	Weights       map[string]float64              `json:"weights"`
	Results       map[string]hivemind.Tally       `json:"results"`
	Contributions map[string]float64              `json:"contributions"`
}

type rankedOptionResponse struct {
	ID    string         `json:"id"`
	Value any            `json:"value"`
	Tally hivemind.Tally `json:"tally"`
}

type consensusResponse struct {
	State     string                 `json:"state"`
	Mode      string                 `json:"mode"`
	Consensus any                    `json:"consensus"`
	Options   []rankedOptionResponse `json:"options"`
}

type fieldDiffResponse struct {
	Field string `json:"field"`
	Key   string `json:"key,omitempty"`
	Old   any    `json:"old"`
	New   any    `json:"new"`
}

type changeResponse struct {
	ID       string              `json:"id"`
	Previous string              `json:"previous,omitempty"`
	Diffs    []fieldDiffResponse `json:"diffs"`
}

func cidString(id cid.Cid) string {
	if !id.Defined() {
		return ""
	}
	return id.String()
}

func toQuestionResponse(id, head cid.Cid, q *hivemind.Question) questionResponse {
	return questionResponse{
		ID:            id.String(),
		Topic:         q.ID(),
		Head:          cidString(head),
		Text:          q.Text(),
		Description:   q.Description(),
		Tags:          q.Tags(),
		AnswerType:    string(q.AnswerType()),
		ConsensusMode: string(q.ConsensusMode()),
		Constraints:   q.Constraints(),
	}
}

func toStateResponse(st *hivemind.State) stateResponse {
	resp := stateResponse{
		ID:            cidString(st.ID()),
		Previous:      cidString(st.Previous()),
		Question:      st.QuestionID().String(),
		Options:       make([]string, 0),
		Opinions:      make(map[string]opinionEntryResponse),
		Weights:       st.Weights(),
		Results:       make(map[string]hivemind.Tally),
		Contributions: st.Contributions(),
	}
	for _, id := range st.OptionIDs() {
		resp.Options = append(resp.Options, id.String())
	}
	for name, entry := range st.Opinions() {
		resp.Opinions[name] = opinionEntryResponse{
			Opinion:   entry.Opinion.String(),
			Signature: entry.Signature,
			Timestamp: entry.Timestamp,
		}
	}
	for id, t := range st.Results() {
		resp.Results[id.String()] = t
	}
	return resp
}

func toConsensusResponse(v *hivemind.ConsensusView) consensusResponse {
	resp := consensusResponse{
		State:     v.State.String(),
		Mode:      string(v.Mode),
		Consensus: v.Consensus,
		Options:   make([]rankedOptionResponse, 0, len(v.Options)),
	}
	for _, o := range v.Options {
		resp.Options = append(resp.Options, rankedOptionResponse{ID: o.ID.String(), Value: o.Value, Tally: o.Tally})
	}
	return resp
}

func toChangeResponses(changes []hivemind.Change) []changeResponse {
	out := make([]changeResponse, 0, len(changes))
	for _, c := range changes {
		diffs := make([]fieldDiffResponse, 0, len(c.Diffs))
		for _, d := range c.Diffs {
			diffs = append(diffs, fieldDiffResponse{Field: d.Field, Key: d.Key, Old: d.Old, New: d.New})
		}
		out = append(out, changeResponse{ID: c.ID.String(), Previous: cidString(c.Previous), Diffs: diffs})
	}
	return out
}

// jsonValue turns json.Number leaves into int64 when integral and float64
// otherwise, so nested option values encode as numbers.
func jsonValue(v any) any {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = jsonValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = jsonValue(e)
		}
		return out
	default:
		return v
	}
}
