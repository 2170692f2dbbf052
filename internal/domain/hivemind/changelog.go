package hivemind

import (
	"context"
	"fmt"
	"sort"

	"github.com/ipfs/go-cid"
)

// FieldDiff is one changed entry of a state field. Old is nil for added
// entries and New is nil for removed ones.
type FieldDiff struct {
	Field string
	Key   string
	Old   any
	New   any
}

// Change describes what snapshot ID changed relative to Previous.
type Change struct {
	ID       cid.Cid
	Previous cid.Cid
	Diffs    []FieldDiff
}

// ChangeLog walks back from the last saved snapshot and diffs each one
// against its predecessor, newest first. maxDepth <= 0 walks to the root.
func (s *State) ChangeLog(ctx context.Context, maxDepth int) ([]Change, error) {
	if !s.id.Defined() {
		return nil, nil
	}

	var (
		log []Change
		cur = s.id
		rec stateRecord
	)
	if err := s.e.get(ctx, cur, &rec); err != nil {
		return nil, fmt.Errorf("load state %s: %w", cur, err)
	}

	for {
		prevID, err := optionalID(rec.Previous)
		if err != nil {
			return nil, err
		}
		var prev stateRecord
		if prevID.Defined() {
			if err := s.e.get(ctx, prevID, &prev); err != nil {
				return nil, fmt.Errorf("load state %s: %w", prevID, err)
			}
		}

		log = append(log, Change{ID: cur, Previous: prevID, Diffs: diffStates(prev, rec)})
		if !prevID.Defined() || (maxDepth > 0 && len(log) >= maxDepth) {
			return log, nil
		}
		cur, rec = prevID, prev
	}
}

func diffStates(old, cur stateRecord) []FieldDiff {
	var diffs []FieldDiff
	if old.Question != cur.Question {
		diffs = append(diffs, FieldDiff{Field: "question", Old: nilIfEmpty(old.Question), New: cur.Question})
	}
	diffs = append(diffs, diffOptions(old.Options, cur.Options)...)
	diffs = append(diffs, diffMap("opinions", old.Opinions, cur.Opinions)...)
	diffs = append(diffs, diffMap("weights", old.Weights, cur.Weights)...)
	diffs = append(diffs, diffMap("results", old.Results, cur.Results)...)
	diffs = append(diffs, diffMap("contributions", old.Contributions, cur.Contributions)...)
	return diffs
}

// diffOptions reports options by position; an option moving position
// shows up as both its old and new index.
func diffOptions(old, cur []string) []FieldDiff {
	oldIdx := make(map[string]int, len(old))
	for i, id := range old {
		oldIdx[id] = i
	}
	curIdx := make(map[string]int, len(cur))
	for i, id := range cur {
		curIdx[id] = i
	}

	var diffs []FieldDiff
	for i, id := range old {
		if j, ok := curIdx[id]; !ok {
			diffs = append(diffs, FieldDiff{Field: "options", Key: id, Old: i})
		} else if i != j {
			diffs = append(diffs, FieldDiff{Field: "options", Key: id, Old: i, New: j})
		}
	}
	for j, id := range cur {
		if _, ok := oldIdx[id]; !ok {
			diffs = append(diffs, FieldDiff{Field: "options", Key: id, New: j})
		}
	}
	return diffs
}

func diffMap[V comparable](field string, old, cur map[string]V) []FieldDiff {
	keys := make([]string, 0, len(old)+len(cur))
	for k := range old {
		keys = append(keys, k)
	}
	for k := range cur {
		if _, ok := old[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var diffs []FieldDiff
	for _, k := range keys {
		ov, inOld := old[k]
		nv, inCur := cur[k]
		switch {
		case inOld && inCur && ov == nv:
			continue
		case !inOld:
			diffs = append(diffs, FieldDiff{Field: field, Key: k, New: nv})
		case !inCur:
			diffs = append(diffs, FieldDiff{Field: field, Key: k, Old: ov})
		default:
			diffs = append(diffs, FieldDiff{Field: field, Key: k, Old: ov, New: nv})
		}
	}
	return diffs
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
