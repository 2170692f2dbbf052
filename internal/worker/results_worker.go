package worker

import (
	"context"
	"log/slog"

	"github.com/ipfs/go-cid"
)

// OpinionEvent tells the worker that a question's state gained input and
// its results are stale.
type OpinionEvent struct {
	QuestionID cid.Cid
}

type Recalculator interface {
	Recalculate(ctx context.Context, qid cid.Cid) (cid.Cid, error)
}

// ResultsWorker recalculates results in the background, one question at a
// time. Events queued for the same question while a batch is collected
// trigger a single recalculation.
type ResultsWorker struct {
	Ch     <-chan OpinionEvent
	calc   Recalculator
	logger *slog.Logger
}

func NewResultsWorker(ch <-chan OpinionEvent, calc Recalculator, logger *slog.Logger) *ResultsWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResultsWorker{Ch: ch, calc: calc, logger: logger}
}

// Notify queues an event without blocking; it reports false when the
// queue is full.
func Notify(ch chan<- OpinionEvent, qid cid.Cid) bool {
	select {
	case ch <- OpinionEvent{QuestionID: qid}:
		return true
	default:
		return false
	}
}

func (w *ResultsWorker) Run(ctx context.Context) {
	w.logger.Info("results worker started")
	defer w.logger.Info("results worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Ch:
			if !ok {
				return
			}
			for _, qid := range w.collect(ev) {
				if ctx.Err() != nil {
					return
				}
				head, err := w.calc.Recalculate(ctx, qid)
				if err != nil {
					w.logger.Error("recalculate", "question", qid.String(), "err", err)
					continue
				}
				w.logger.Debug("results updated", "question", qid.String(), "state", head.String())
			}
		}
	}
}

// collect drains whatever is already queued behind first, keeping the
// order in which questions were first seen.
func (w *ResultsWorker) collect(first OpinionEvent) []cid.Cid {
	batch := []cid.Cid{first.QuestionID}
	seen := map[cid.Cid]bool{first.QuestionID: true}
	for {
		select {
		case ev, ok := <-w.Ch:
			if !ok {
				return batch
			}
			if !seen[ev.QuestionID] {
				seen[ev.QuestionID] = true
				batch = append(batch, ev.QuestionID)
			}
		default:
			return batch
		}
	}
}
