package hivemind

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ipfs/go-cid"

	"hivemind/internal/platform/cas"
)

type memoryStore struct {
	mu   sync.Mutex
	data map[cid.Cid][]byte
	refs map[string]cid.Cid
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		data: make(map[cid.Cid][]byte),
		refs: make(map[string]cid.Cid),
	}
}

func (m *memoryStore) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	id, err := cas.Sum(data)
	if err != nil {
		return cid.Undef, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[id] = append([]byte(nil), data...)
	return id, nil
}

func (m *memoryStore) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.data[id]
	if !ok {
		return nil, cas.ErrContentNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *memoryStore) SetRef(ctx context.Context, name string, id cid.Cid) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refs[name] = id
	return nil
}

func (m *memoryStore) Ref(ctx context.Context, name string) (cid.Cid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.refs[name]
	if !ok {
		return cid.Undef, cas.ErrRefNotFound
	}
	return id, nil
}

// tickClock advances one second per reading so opinions get distinct,
// increasing timestamps in submission order.
type tickClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *tickClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type prefixValidator string

func (p prefixValidator) IsValidAddress(address string) bool {
	return strings.HasPrefix(address, string(p))
}

func newTestEngine(t *testing.T) (*Engine, *memoryStore) {
	t.Helper()
	store := newMemoryStore()
	clock := &tickClock{t: time.Unix(1700000000, 0)}
	e := NewEngine(store, WithClock(clock.Now), WithAddressValidator(prefixValidator("bc1")))
	return e, store
}

func mustQuestion(t *testing.T, e *Engine, text string, at AnswerType, mode ConsensusMode, constraints map[string]any) cid.Cid {
	t.Helper()
	q := e.NewQuestion(text)
	if err := q.SetAnswerType(at); err != nil {
		t.Fatalf("set answer type: %v", err)
	}
	if err := q.SetConsensusMode(mode); err != nil {
		t.Fatalf("set consensus mode: %v", err)
	}
	if constraints != nil {
		if err := q.SetConstraints(constraints); err != nil {
			t.Fatalf("set constraints: %v", err)
		}
	}
	id, err := q.Save(context.Background())
	if err != nil {
		t.Fatalf("save question: %v", err)
	}
	return id
}

func mustOption(t *testing.T, e *Engine, qid cid.Cid, value any) cid.Cid {
	t.Helper()
	ctx := context.Background()
	o, err := e.NewOption(ctx, qid)
	if err != nil {
		t.Fatalf("new option: %v", err)
	}
	if err := o.Set(ctx, value); err != nil {
		t.Fatalf("set option %v: %v", value, err)
	}
	id, err := o.Save(ctx)
	if err != nil {
		t.Fatalf("save option: %v", err)
	}
	return id
}

// newTestState saves a question of the given mode and a state holding one
// string option per value.
func newTestState(t *testing.T, e *Engine, mode ConsensusMode, values ...string) (*State, []cid.Cid) {
	t.Helper()
	ctx := context.Background()
	qid := mustQuestion(t, e, "Which letter?", AnswerString, mode, nil)
	st, err := e.NewState(ctx, qid)
	if err != nil {
		t.Fatalf("new state: %v", err)
	}
	ids := make([]cid.Cid, len(values))
	for i, v := range values {
		ids[i] = mustOption(t, e, qid, v)
		added, err := st.AddOption(ctx, ids[i])
		if err != nil || !added {
			t.Fatalf("add option %s: added=%v err=%v", v, added, err)
		}
	}
	if _, err := st.Save(ctx); err != nil {
		t.Fatalf("save state: %v", err)
	}
	return st, ids
}

// vote saves a ballot bound to the state's last snapshot and attaches it.
func vote(t *testing.T, e *Engine, st *State, opinionator string, ranked ...cid.Cid) cid.Cid {
	t.Helper()
	ctx := context.Background()
	if _, err := st.Save(ctx); err != nil {
		t.Fatalf("save state: %v", err)
	}
	op, err := e.NewOpinion(ctx, st.ID())
	if err != nil {
		t.Fatalf("new opinion: %v", err)
	}
	if err := op.Set(opinionator, ranked); err != nil {
		t.Fatalf("set opinion: %v", err)
	}
	id, err := op.Save(ctx)
	if err != nil {
		t.Fatalf("save opinion: %v", err)
	}
	if err := st.AddOpinion(ctx, id, "sig-"+opinionator); err != nil {
		t.Fatalf("add opinion: %v", err)
	}
	return id
}
