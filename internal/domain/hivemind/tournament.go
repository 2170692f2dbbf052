package hivemind

import (
	"context"
	"math"
	"sort"

	"github.com/ipfs/go-cid"
	"golang.org/x/sync/errgroup"
)

type ballot struct {
	opinionator string
	ranked      []cid.Cid
	timestamp   int64
	weight      float64
}

// tournament is the pure part of CalculateResults. Every unordered pair of
// options is decided by every ballot; ballots are visited in opinionator
// order so floating point sums come out the same on every run.
func tournament(options []cid.Cid, ballots []ballot) (map[cid.Cid]Tally, map[string]float64) {
	sort.Slice(ballots, func(i, j int) bool {
		return ballots[i].opinionator < ballots[j].opinionator
	})

	ranks := make([]map[cid.Cid]int, len(ballots))
	for i, b := range ballots {
		ranks[i] = rankIndex(b.ranked)
	}

	tallies := make([]Tally, len(options))
	for i := 0; i < len(options); i++ {
		for j := i + 1; j < len(options); j++ {
			a, b := options[i], options[j]
			for k, bal := range ballots {
				switch compare(a, b, ranks[k]) {
				case preferA:
					tallies[i].Win += bal.weight
					tallies[j].Loss += bal.weight
				case preferB:
					tallies[j].Win += bal.weight
					tallies[i].Loss += bal.weight
				default:
					tallies[i].Unknown += bal.weight
					tallies[j].Unknown += bal.weight
				}
			}
		}
	}

	results := make(map[cid.Cid]Tally, len(options))
	for i, id := range options {
		t := tallies[i]
		if total := t.Win + t.Loss + t.Unknown; total > 0 {
			t.Score = t.Win / total
		}
		results[id] = t
	}
	return results, contributions(rankOrder(options, results), ballots)
}

type preference int

const (
	noPreference preference = iota
	preferA
	preferB
)

// compare prefers the option ranked higher, or the only one ranked.
func compare(a, b cid.Cid, rank map[cid.Cid]int) preference {
	ia, okA := rank[a]
	ib, okB := rank[b]
	switch {
	case okA && okB:
		if ia < ib {
			return preferA
		}
		return preferB
	case okA:
		return preferA
	case okB:
		return preferB
	}
	return noPreference
}

func rankIndex(ranked []cid.Cid) map[cid.Cid]int {
	m := make(map[cid.Cid]int, len(ranked))
	for i, id := range ranked {
		m[id] = i
	}
	return m
}

// rankOrder sorts options by descending score, then insertion order.
func rankOrder(options []cid.Cid, results map[cid.Cid]Tally) []cid.Cid {
	idx := make([]int, len(options))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(x, y int) bool {
		sx, sy := results[options[idx[x]]].Score, results[options[idx[y]]].Score
		if sx != sy {
			return sx > sy
		}
		return idx[x] < idx[y]
	})
	out := make([]cid.Cid, len(idx))
	for i, k := range idx {
		out[i] = options[k]
	}
	return out
}

// contributions rewards opinionators whose ballot is close to the
// reference ranking, discounted by how late the ballot arrived.
func contributions(reference []cid.Cid, ballots []ballot) map[string]float64 {
	order := append([]ballot(nil), ballots...)
	sort.Slice(order, func(i, j int) bool {
		if order[i].timestamp != order[j].timestamp {
			return order[i].timestamp < order[j].timestamp
		}
		return order[i].opinionator < order[j].opinionator
	})

	n := len(order)
	nOptions := len(reference)
	earliness := make([]float64, n)
	deviance := make([]float64, n)
	var total float64
	for i, b := range order {
		if len(b.ranked) > 0 {
			earliness[i] = 1 - float64(i)/float64(n)
		}
		rank := rankIndex(b.ranked)
		var dev int
		for j, id := range reference {
			if k, ok := rank[id]; ok {
				dev += abs(j - k)
			} else {
				dev += nOptions - j
			}
		}
		deviance[i] = float64(dev)
		total += deviance[i]
	}

	out := make(map[string]float64, n)
	for i, b := range order {
		c := earliness[i]
		if total > 0 {
			c = (1 - deviance[i]/total) * earliness[i]
		}
		out[b.opinionator] = math.Max(0, c)
	}
	return out
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// loadAll runs load for every id concurrently; results keep the order of ids.
func loadAll[T any](ctx context.Context, ids []cid.Cid, load func(context.Context, cid.Cid) (T, error)) ([]T, error) {
	out := make([]T, len(ids))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, id := range ids {
		g.Go(func() error {
			v, err := load(ctx, id)
			if err != nil {
				return err
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
