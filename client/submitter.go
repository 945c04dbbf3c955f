package client

import (
	"context"
	"fmt"
	"iter"
	"time"

	"go.uber.org/zap"

	"redeem.dev/kit/protocol"
)

type FailurePolicy int

const (
	StopOnFirstFailure FailurePolicy = iota
	ContinueOnFailure
)

type Outcome int

const (
	OutcomeSucceeded Outcome = iota
	OutcomeFailed
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// BatchOutcome is the result of one batch in a run. Txid is set once the
// transport accepted the transaction, even if confirmation later failed.
type BatchOutcome struct {
	Index    int
	Outcome  Outcome
	Txid     string
	Attempts int
	Err      error
}

type Phase int

const (
	PhasePending Phase = iota
	PhaseSubmitting
	PhaseSucceeded
	PhaseFailed
)

// RunState is Pending, Submitting(Index), Succeeded or Failed(Index).
type RunState struct {
	Phase Phase
	Index int
}

func (s RunState) String() string {
	switch s.Phase {
	case PhasePending:
		return "pending"
	case PhaseSubmitting:
		return fmt.Sprintf("submitting(%d)", s.Index)
	case PhaseSucceeded:
		return "succeeded"
	case PhaseFailed:
		return fmt.Sprintf("failed(%d)", s.Index)
	default:
		return "unknown"
	}
}

type SubmitResult struct {
	State    RunState
	Outcomes []BatchOutcome
	NeverRun []int
}

func (r *SubmitResult) Succeeded() bool { return r.State.Phase == PhaseSucceeded }

// FailedIndex is the first failed batch, or -1.
func (r *SubmitResult) FailedIndex() int {
	for _, o := range r.Outcomes {
		if o.Outcome == OutcomeFailed {
			return o.Index
		}
	}
	return -1
}

// LedgerChanged reports whether any batch of the run may have landed.
func (r *SubmitResult) LedgerChanged() bool {
	for _, o := range r.Outcomes {
		if o.Outcome == OutcomeSucceeded || (o.Outcome == OutcomeFailed && o.Txid != "") {
			return true
		}
	}
	return false
}

type SubmitterOptions struct {
	ConfirmTimeout time.Duration
	Retry          RetryPolicy
	Logger         *zap.Logger
}

// Submitter sends batches strictly in order, one at a time.
type Submitter struct {
	transport Transport
	timeout   time.Duration
	retry     RetryPolicy
	log       *zap.Logger
	sleep     func(context.Context, time.Duration) error
}

func NewSubmitter(t Transport, opts SubmitterOptions) *Submitter {
	timeout := opts.ConfirmTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Submitter{
		transport: t,
		timeout:   timeout,
		retry:     opts.Retry,
		log:       orNop(opts.Logger),
		sleep:     sleepCtx,
	}
}

// Outcomes submits lazily: each batch is sent only when the consumer asks
// for its outcome. Batches that will never run are yielded as Skipped.
// Cancelling ctx stops the run before the next batch; a confirmation wait
// already in progress runs to its timeout.
func (s *Submitter) Outcomes(ctx context.Context, batches []*Batch, policy FailurePolicy) iter.Seq[BatchOutcome] {
	return func(yield func(BatchOutcome) bool) {
		halted := false
		var haltErr error
		for i, b := range batches {
			if !halted {
				if err := ctx.Err(); err != nil {
					halted, haltErr = true, err
				}
			}
			if halted {
				submitBatchesTotal.WithLabelValues(OutcomeSkipped.String()).Inc()
				if !yield(BatchOutcome{Index: i, Outcome: OutcomeSkipped, Err: haltErr}) {
					return
				}
				continue
			}
			out := s.submitOne(ctx, i, b)
			submitBatchesTotal.WithLabelValues(out.Outcome.String()).Inc()
			if !yield(out) {
				return
			}
			if out.Outcome == OutcomeFailed && policy == StopOnFirstFailure {
				halted = true
			}
		}
	}
}

// Submit drains Outcomes, calling onBatchResult for every batch that was
// attempted. The error is a *StageError naming the first failed (or, after
// cancellation, first unrun) batch.
func (s *Submitter) Submit(ctx context.Context, batches []*Batch, policy FailurePolicy, onBatchResult func(int, BatchOutcome)) (*SubmitResult, error) {
	res := &SubmitResult{State: RunState{Phase: PhasePending}}
	for out := range s.Outcomes(ctx, batches, policy) {
		res.Outcomes = append(res.Outcomes, out)
		if out.Outcome == OutcomeSkipped {
			res.NeverRun = append(res.NeverRun, out.Index)
			continue
		}
		res.State = RunState{Phase: PhaseSubmitting, Index: out.Index}
		if onBatchResult != nil {
			onBatchResult(out.Index, out)
		}
	}

	if i := res.FailedIndex(); i >= 0 {
		res.State = RunState{Phase: PhaseFailed, Index: i}
		return res, submitErr(i, res.LedgerChanged(), res.Outcomes[i].Err)
	}
	if len(res.NeverRun) > 0 {
		i := res.NeverRun[0]
		res.State = RunState{Phase: PhaseFailed, Index: i}
		return res, submitErr(i, res.LedgerChanged(), res.Outcomes[i].Err)
	}
	res.State = RunState{Phase: PhaseSucceeded}
	return res, nil
}

func (s *Submitter) submitOne(ctx context.Context, i int, b *Batch) BatchOutcome {
	out := BatchOutcome{Index: i, Outcome: OutcomeFailed}
	raw, err := b.Serialize()
	if err != nil {
		out.Err = err
		return out
	}
	inflight := context.WithoutCancel(ctx)
	log := s.log.With(zap.Int("batch", i))

	var (
		last    error
		pending string
	)
	for attempt := 0; attempt <= s.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := s.sleep(ctx, s.retry.Backoff(attempt)); err != nil {
				last = fmt.Errorf("retry abandoned: %w", err)
				break
			}
		}
		if pending != "" {
			// Resends carry the same signature, so the earlier txid's status
			// is the batch's status once the ledger has seen it.
			conf, err := s.confirm(inflight, pending)
			switch {
			case err != nil:
				log.Warn("status recheck failed", zap.String("txid", pending), zap.Error(err))
			case conf.Status != TimedOut:
				return s.settle(out, log, pending, conf)
			default:
				log.Info("earlier send still unconfirmed, resending", zap.String("txid", pending))
			}
		}
		out.Attempts++
		submitAttemptsTotal.Inc()

		txid, err := s.transport.Send(inflight, raw)
		if err != nil {
			log.Warn("send failed", zap.Int("attempt", out.Attempts), zap.Error(err))
			if protocol.IsRetryable(err) {
				last = err
				continue
			}
			out.Err = err
			return out
		}
		out.Txid = txid

		conf, err := s.confirm(inflight, txid)
		if err != nil {
			log.Warn("confirm failed", zap.String("txid", txid), zap.Error(err))
			if protocol.IsRetryable(err) {
				pending, last = txid, err
				continue
			}
			out.Err = err
			return out
		}
		if conf.Status != TimedOut {
			return s.settle(out, log, txid, conf)
		}
		log.Warn("confirmation timed out", zap.String("txid", txid), zap.Duration("timeout", s.timeout))
		pending = txid
		last = errf(protocol.ERR_TRANSIENT, "batch %d: not confirmed within %s", i, s.timeout)
	}
	out.Err = errf(protocol.ERR_SUBMISSION_FAILED, "batch %d: gave up after %d attempts: %v", i, out.Attempts, last)
	return out
}

func (s *Submitter) confirm(ctx context.Context, txid string) (Confirmation, error) {
	start := time.Now()
	conf, err := s.transport.Confirm(ctx, txid, s.timeout)
	confirmDuration.Observe(time.Since(start).Seconds())
	return conf, err
}

// settle records a final Confirmed or Rejected status for txid.
func (s *Submitter) settle(out BatchOutcome, log *zap.Logger, txid string, conf Confirmation) BatchOutcome {
	out.Txid = txid
	if conf.Status == Confirmed {
		log.Info("batch confirmed", zap.String("txid", txid), zap.Int("attempts", out.Attempts))
		out.Outcome = OutcomeSucceeded
		return out
	}
	log.Warn("batch rejected", zap.String("txid", txid), zap.String("reason", conf.Reason))
	out.Err = errf(protocol.ERR_TRANSACTION_REJECTED, "batch %d: %s", out.Index, conf.Reason)
	return out
}
