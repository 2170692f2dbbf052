package hivemind

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ipfs/go-cid"

	"hivemind/internal/metrics"
	"hivemind/internal/platform/cas"
)

var (
	ErrQuestionNotFound = errors.New("question not found")
	ErrInvalidSignature = errors.New("invalid signature")
)

// SignatureVerifier checks that signature was made over message by the
// key behind address.
type SignatureVerifier interface {
	Verify(address, message, signature string) (bool, error)
}

type QuestionInput struct {
	Text          string
	Description   string
	Tags          string
	AnswerType    AnswerType
	ConsensusMode ConsensusMode
	Constraints   map[string]any
}

type OpinionInput struct {
	// State is the snapshot the ballot was signed against; the current head
	// when undefined.
	State        cid.Cid
	Opinionator  string
	RankedChoice []cid.Cid
	Signature    string
}

type ConsensusView struct {
	State     cid.Cid
	Mode      ConsensusMode
	Consensus any
	Options   []RankedOption
}

// Service coordinates the engine for many questions. It keeps the head of
// every question's state chain in a RefStore and lets one writer at a time
// touch a question.
type Service struct {
	engine   *Engine
	refs     cas.RefStore
	verifier SignatureVerifier
	logger   *slog.Logger

	mu    sync.Mutex
	locks map[cid.Cid]*questionLock
}

// questionLock is dropped from Service.locks once no caller holds or
// waits on it.
type questionLock struct {
	sync.Mutex
	refs int
}

type ServiceOption func(*Service)

// WithSignatureVerifier makes SubmitOpinion require a valid signature by
// the opinionator over the opinion id.
func WithSignatureVerifier(v SignatureVerifier) ServiceOption {
	return func(s *Service) { s.verifier = v }
}

func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

func NewService(engine *Engine, refs cas.RefStore, opts ...ServiceOption) *Service {
	s := &Service{
		engine: engine,
		refs:   refs,
		logger: slog.Default(),
		locks:  make(map[cid.Cid]*questionLock),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Engine() *Engine {
	return s.engine
}

func (s *Service) lock(qid cid.Cid) func() {
	s.mu.Lock()
	l, ok := s.locks[qid]
	if !ok {
		l = &questionLock{}
		s.locks[qid] = l
	}
	l.refs++
	s.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, qid)
		}
		s.mu.Unlock()
	}
}

func headRef(qid cid.Cid) string {
	return "head/" + qid.String()
}

// CreateQuestion saves the question and its first, empty state. Creating
// an identical question again returns the existing ids.
func (s *Service) CreateQuestion(ctx context.Context, in QuestionInput) (cid.Cid, cid.Cid, error) {
	if in.Text == "" {
		return cid.Undef, cid.Undef, fmt.Errorf("%w: text required", ErrConfiguration)
	}
	q := s.engine.NewQuestion(in.Text)
	q.SetDescription(in.Description)
	q.SetTags(in.Tags)
	if in.AnswerType != "" {
		if err := q.SetAnswerType(in.AnswerType); err != nil {
			return cid.Undef, cid.Undef, err
		}
	}
	if in.ConsensusMode != "" {
		if err := q.SetConsensusMode(in.ConsensusMode); err != nil {
			return cid.Undef, cid.Undef, err
		}
	}
	if len(in.Constraints) > 0 {
		if err := q.SetConstraints(in.Constraints); err != nil {
			return cid.Undef, cid.Undef, err
		}
	}

	qid, err := q.Save(ctx)
	if err != nil {
		return cid.Undef, cid.Undef, err
	}

	unlock := s.lock(qid)
	defer unlock()

	head, err := s.refs.Ref(ctx, headRef(qid))
	if err == nil {
		return qid, head, nil
	}
	if !errors.Is(err, cas.ErrRefNotFound) {
		return cid.Undef, cid.Undef, err
	}

	st, err := s.engine.NewState(ctx, qid)
	if err != nil {
		return cid.Undef, cid.Undef, err
	}
	head, err = s.commit(ctx, qid, st)
	if err != nil {
		return cid.Undef, cid.Undef, err
	}
	s.logger.Info("question created", "question", qid.String(), "topic", q.ID(), "state", head.String())
	return qid, head, nil
}

func (s *Service) Question(ctx context.Context, qid cid.Cid) (*Question, error) {
	q, err := s.engine.LoadQuestion(ctx, qid)
	if errors.Is(err, cas.ErrContentNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrQuestionNotFound, qid)
	}
	return q, err
}

// State loads the head snapshot of the question's chain.
func (s *Service) State(ctx context.Context, qid cid.Cid) (*State, error) {
	head, err := s.refs.Ref(ctx, headRef(qid))
	if errors.Is(err, cas.ErrRefNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrQuestionNotFound, qid)
	}
	if err != nil {
		return nil, err
	}
	return s.engine.LoadState(ctx, head)
}

func (s *Service) commit(ctx context.Context, qid cid.Cid, st *State) (cid.Cid, error) {
	id, err := st.Save(ctx)
	if err != nil {
		return cid.Undef, err
	}
	if err := s.refs.SetRef(ctx, headRef(qid), id); err != nil {
		return cid.Undef, fmt.Errorf("advance head of %s: %w", qid, err)
	}
	return id, nil
}

// ProposeOption validates and saves value as an option and adds it to the
// question's state. It returns the option id and the new head.
func (s *Service) ProposeOption(ctx context.Context, qid cid.Cid, value any) (cid.Cid, cid.Cid, error) {
	unlock := s.lock(qid)
	defer unlock()

	st, err := s.State(ctx, qid)
	if err != nil {
		return cid.Undef, cid.Undef, err
	}
	opt, err := s.engine.NewOption(ctx, qid)
	if err != nil {
		return cid.Undef, cid.Undef, err
	}
	if err := opt.Set(ctx, value); err != nil {
		return cid.Undef, cid.Undef, err
	}
	oid, err := opt.Save(ctx)
	if err != nil {
		return cid.Undef, cid.Undef, err
	}
	added, err := st.AddOption(ctx, oid)
	if err != nil {
		return cid.Undef, cid.Undef, err
	}
	if !added {
		return oid, st.ID(), nil
	}
	head, err := s.commit(ctx, qid, st)
	if err != nil {
		return cid.Undef, cid.Undef, err
	}
	s.logger.Info("option added", "question", qid.String(), "option", oid.String(), "state", head.String())
	return oid, head, nil
}

// OpinionMessage returns the text an opinionator signs for a ballot: the
// id the opinion will have once saved.
func (s *Service) OpinionMessage(ctx context.Context, qid cid.Cid, in OpinionInput) (cid.Cid, string, error) {
	op, err := s.buildOpinion(ctx, qid, in)
	if err != nil {
		return cid.Undef, "", err
	}
	id, err := op.ContentID()
	if err != nil {
		return cid.Undef, "", err
	}
	return op.State(), id.String(), nil
}

func (s *Service) buildOpinion(ctx context.Context, qid cid.Cid, in OpinionInput) (*Opinion, error) {
	stateID := in.State
	if !stateID.Defined() {
		head, err := s.refs.Ref(ctx, headRef(qid))
		if errors.Is(err, cas.ErrRefNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrQuestionNotFound, qid)
		}
		if err != nil {
			return nil, err
		}
		stateID = head
	}
	op, err := s.engine.NewOpinion(ctx, stateID)
	if err != nil {
		return nil, err
	}
	if !op.question.Equals(qid) {
		return nil, fmt.Errorf("%w: state %s belongs to another question", ErrInvalidOpinion, stateID)
	}
	if err := op.Set(in.Opinionator, in.RankedChoice); err != nil {
		return nil, err
	}
	return op, nil
}

// SubmitOpinion saves the ballot and makes it the opinionator's live
// opinion in the question's state.
func (s *Service) SubmitOpinion(ctx context.Context, qid cid.Cid, in OpinionInput) (cid.Cid, cid.Cid, error) {
	unlock := s.lock(qid)
	defer unlock()

	st, err := s.State(ctx, qid)
	if err != nil {
		return cid.Undef, cid.Undef, err
	}
	op, err := s.buildOpinion(ctx, qid, in)
	if err != nil {
		return cid.Undef, cid.Undef, err
	}
	opID, err := op.ContentID()
	if err != nil {
		return cid.Undef, cid.Undef, err
	}
	if s.verifier != nil {
		ok, err := s.verifier.Verify(in.Opinionator, opID.String(), in.Signature)
		if err != nil {
			return cid.Undef, cid.Undef, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		if !ok {
			return cid.Undef, cid.Undef, fmt.Errorf("%w: opinion %s by %s", ErrInvalidSignature, opID, in.Opinionator)
		}
	}
	if _, err := op.Save(ctx); err != nil {
		return cid.Undef, cid.Undef, err
	}
	if err := st.AddOpinion(ctx, opID, in.Signature); err != nil {
		return cid.Undef, cid.Undef, err
	}
	head, err := s.commit(ctx, qid, st)
	if err != nil {
		return cid.Undef, cid.Undef, err
	}
	s.logger.Info("opinion added", "question", qid.String(), "opinionator", in.Opinionator, "opinion", opID.String())
	return opID, head, nil
}

func (s *Service) SetWeight(ctx context.Context, qid cid.Cid, opinionator string, weight float64) (cid.Cid, error) {
	unlock := s.lock(qid)
	defer unlock()

	st, err := s.State(ctx, qid)
	if err != nil {
		return cid.Undef, err
	}
	if err := st.SetWeight(opinionator, weight); err != nil {
		return cid.Undef, err
	}
	return s.commit(ctx, qid, st)
}

// Recalculate runs the tournament on the head state and advances the head.
func (s *Service) Recalculate(ctx context.Context, qid cid.Cid) (cid.Cid, error) {
	unlock := s.lock(qid)
	defer unlock()

	start := time.Now()
	head, err := s.recalculate(ctx, qid)
	metrics.ObserveResults(time.Since(start), err)
	if err != nil {
		s.logger.Error("recalculate failed", "question", qid.String(), "err", err)
		return cid.Undef, err
	}
	s.logger.Info("results calculated", "question", qid.String(), "state", head.String(), "duration_ms", time.Since(start).Milliseconds())
	return head, nil
}

func (s *Service) recalculate(ctx context.Context, qid cid.Cid) (cid.Cid, error) {
	st, err := s.State(ctx, qid)
	if err != nil {
		return cid.Undef, err
	}
	id, err := st.CalculateResults(ctx)
	if err != nil {
		return cid.Undef, err
	}
	if err := s.refs.SetRef(ctx, headRef(qid), id); err != nil {
		return cid.Undef, fmt.Errorf("advance head of %s: %w", qid, err)
	}
	return id, nil
}

// Consensus reads the consensus of the head state as last calculated.
func (s *Service) Consensus(ctx context.Context, qid cid.Cid) (*ConsensusView, error) {
	st, err := s.State(ctx, qid)
	if err != nil {
		return nil, err
	}
	value, err := st.GetConsensus(ctx)
	if err != nil {
		return nil, err
	}
	opts, err := st.Options(ctx)
	if err != nil {
		return nil, err
	}
	return &ConsensusView{State: st.ID(), Mode: st.Question().ConsensusMode(), Consensus: value, Options: opts}, nil
}

func (s *Service) ChangeLog(ctx context.Context, qid cid.Cid, maxDepth int) ([]Change, error) {
	st, err := s.State(ctx, qid)
	if err != nil {
		return nil, err
	}
	return st.ChangeLog(ctx, maxDepth)
}

// Content returns the canonical bytes stored under id, checked against id.
func (s *Service) Content(ctx context.Context, id cid.Cid) ([]byte, error) {
	data, err := s.engine.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := cas.Verify(id, data); err != nil {
		return nil, err
	}
	return data, nil
}
