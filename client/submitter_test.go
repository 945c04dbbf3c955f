package client

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redeem.dev/kit/protocol"
)

func signedBatches(t *testing.T, n int) []*Batch {
	t.Helper()
	payer := testKeypair(t, "submitter-payer")
	var instrs []protocol.Instruction
	for i := 0; i < n; i++ {
		instrs = append(instrs, memo(payer.Pubkey(), byte(i), 4))
	}
	batches, err := NewBatcher(payer.Pubkey(), testBlockhash).Batch(instrs, 1)
	require.NoError(t, err)
	for i, b := range batches {
		batches[i], err = AttachLocalSignature(b, payer)
		require.NoError(t, err)
	}
	return batches
}

func transient() error { return protocol.Errorf(protocol.ERR_TRANSIENT, "503 from node") }

func TestSubmitStopsOnFirstFailure(t *testing.T) {
	tr := &fakeTransport{steps: []step{
		{},
		{confirm: Confirmation{Status: Rejected, Reason: "custom program error: 0x1"}},
	}}
	var seen []int
	failedBefore := testutil.ToFloat64(submitBatchesTotal.WithLabelValues("failed"))
	skippedBefore := testutil.ToFloat64(submitBatchesTotal.WithLabelValues("skipped"))

	res, err := newTestSubmitter(tr, 3).Submit(context.Background(), signedBatches(t, 3), StopOnFirstFailure, func(i int, _ BatchOutcome) {
		seen = append(seen, i)
	})
	requireCode(t, err, protocol.ERR_TRANSACTION_REJECTED)
	assert.Equal(t, []int{0, 1}, seen)
	assert.Equal(t, 2, tr.sends(), "batch 3 is never sent")
	assert.Equal(t, []int{2}, res.NeverRun)
	assert.Equal(t, RunState{Phase: PhaseFailed, Index: 1}, res.State)
	assert.Equal(t, "failed(1)", res.State.String())
	assert.Equal(t, 1, res.FailedIndex())
	assert.Equal(t, 1, res.Outcomes[1].Attempts)

	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, StageSubmit, se.Stage)
	assert.Equal(t, 1, se.BatchIndex)
	assert.True(t, se.LedgerChanged)

	assert.Equal(t, failedBefore+1, testutil.ToFloat64(submitBatchesTotal.WithLabelValues("failed")))
	assert.Equal(t, skippedBefore+1, testutil.ToFloat64(submitBatchesTotal.WithLabelValues("skipped")))
}

func TestSubmitContinueOnFailure(t *testing.T) {
	tr := &fakeTransport{steps: []step{
		{confirm: Confirmation{Status: Rejected}},
		{},
		{},
	}}
	res, err := newTestSubmitter(tr, 0).Submit(context.Background(), signedBatches(t, 3), ContinueOnFailure, nil)
	require.Error(t, err)
	assert.Equal(t, 3, tr.sends())
	assert.Empty(t, res.NeverRun)
	assert.Equal(t, 0, res.FailedIndex())
	assert.Equal(t, OutcomeSucceeded, res.Outcomes[2].Outcome)
}

func TestSubmitAllSucceed(t *testing.T) {
	tr := &fakeTransport{}
	attemptsBefore := testutil.ToFloat64(submitAttemptsTotal)
	res, err := newTestSubmitter(tr, 1).Submit(context.Background(), signedBatches(t, 2), StopOnFirstFailure, nil)
	require.NoError(t, err)
	assert.True(t, res.Succeeded())
	assert.Equal(t, []string{"txa", "txb"}, []string{res.Outcomes[0].Txid, res.Outcomes[1].Txid})
	assert.Equal(t, attemptsBefore+2, testutil.ToFloat64(submitAttemptsTotal))
}

func TestSubmitRetriesTransient(t *testing.T) {
	tr := &fakeTransport{steps: []step{
		{sendErr: transient()},
		{confirm: Confirmation{Status: TimedOut}},
		{},
	}}
	batches := signedBatches(t, 1)
	res, err := newTestSubmitter(tr, 3).Submit(context.Background(), batches, StopOnFirstFailure, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Outcomes[0].Attempts)
	assert.Equal(t, "txc", res.Outcomes[0].Txid)

	raw, err := batches[0].Serialize()
	require.NoError(t, err)
	for _, sent := range tr.sent {
		assert.Equal(t, raw, sent, "retries resend the same signed bytes")
	}
}

func TestSubmitRechecksTimedOutSend(t *testing.T) {
	tr := &fakeTransport{statuses: map[string][]Confirmation{
		"txa": {{Status: TimedOut}, {Status: Confirmed}},
	}}
	res, err := newTestSubmitter(tr, 3).Submit(context.Background(), signedBatches(t, 1), StopOnFirstFailure, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, tr.sends(), "a batch that landed late is not resent")
	assert.Equal(t, OutcomeSucceeded, res.Outcomes[0].Outcome)
	assert.Equal(t, "txa", res.Outcomes[0].Txid)
	assert.Equal(t, 1, res.Outcomes[0].Attempts)

	tr = &fakeTransport{statuses: map[string][]Confirmation{
		"txa": {{Status: TimedOut}, {Status: Rejected, Reason: "custom program error: 0x3"}},
	}}
	res, err = newTestSubmitter(tr, 3).Submit(context.Background(), signedBatches(t, 1), StopOnFirstFailure, nil)
	requireCode(t, err, protocol.ERR_TRANSACTION_REJECTED)
	assert.Equal(t, 1, tr.sends())
	assert.Equal(t, "txa", res.Outcomes[0].Txid)
}

func TestSubmitRetryExhausted(t *testing.T) {
	tr := &fakeTransport{steps: []step{{sendErr: transient()}, {sendErr: transient()}, {sendErr: transient()}}}
	res, err := newTestSubmitter(tr, 2).Submit(context.Background(), signedBatches(t, 1), StopOnFirstFailure, nil)
	requireCode(t, err, protocol.ERR_SUBMISSION_FAILED)
	assert.Equal(t, 3, tr.sends())
	assert.Equal(t, 3, res.Outcomes[0].Attempts)
	assert.False(t, res.LedgerChanged())
}

func TestSubmitNeverRetriesRejection(t *testing.T) {
	tr := &fakeTransport{steps: []step{{confirm: Confirmation{Status: Rejected, Reason: "blockhash not found"}}}}
	_, err := newTestSubmitter(tr, 5).Submit(context.Background(), signedBatches(t, 1), StopOnFirstFailure, nil)
	requireCode(t, err, protocol.ERR_TRANSACTION_REJECTED)
	assert.Equal(t, 1, tr.sends())

	tr = &fakeTransport{steps: []step{{sendErr: protocol.Errorf(protocol.ERR_SIGNATURE_INVALID, "bad sig")}}}
	_, err = newTestSubmitter(tr, 5).Submit(context.Background(), signedBatches(t, 1), StopOnFirstFailure, nil)
	requireCode(t, err, protocol.ERR_SIGNATURE_INVALID)
	assert.Equal(t, 1, tr.sends())
}

func TestSubmitUnsignedBatchFails(t *testing.T) {
	payer := testKey("unsigned")
	batches, err := NewBatcher(payer, testBlockhash).Batch([]protocol.Instruction{memo(payer, 1, 4)}, 1)
	require.NoError(t, err)
	tr := &fakeTransport{}
	_, err = newTestSubmitter(tr, 1).Submit(context.Background(), batches, StopOnFirstFailure, nil)
	requireCode(t, err, protocol.ERR_MISSING_SIGNATURE)
	assert.Zero(t, tr.sends())
}

func TestSubmitCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tr := &fakeTransport{onSend: func(n int) {
		if n == 0 {
			cancel()
		}
	}}
	var seen []int
	res, err := newTestSubmitter(tr, 1).Submit(ctx, signedBatches(t, 3), StopOnFirstFailure, func(i int, _ BatchOutcome) {
		seen = append(seen, i)
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []int{0}, seen)
	assert.Equal(t, OutcomeSucceeded, res.Outcomes[0].Outcome, "in-flight batch runs to completion")
	assert.Equal(t, []int{1, 2}, res.NeverRun)
	assert.Equal(t, 1, tr.sends())

	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 1, se.BatchIndex)
	assert.True(t, se.LedgerChanged)
}

func TestSubmitCancellationDuringConfirm(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tr := &fakeTransport{onConfirm: func(id string) {
		if id == "txa" {
			cancel()
		}
	}}
	res, err := newTestSubmitter(tr, 1).Submit(ctx, signedBatches(t, 2), StopOnFirstFailure, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, OutcomeSucceeded, res.Outcomes[0].Outcome, "confirmation wait outlives cancellation")
	assert.Equal(t, "txa", res.Outcomes[0].Txid)
	assert.Equal(t, []int{1}, res.NeverRun)
	assert.Equal(t, 1, tr.sends())
}

func TestOutcomesIsLazy(t *testing.T) {
	tr := &fakeTransport{}
	s := newTestSubmitter(tr, 0)
	for out := range s.Outcomes(context.Background(), signedBatches(t, 4), StopOnFirstFailure) {
		assert.Equal(t, 0, out.Index)
		break
	}
	assert.Equal(t, 1, tr.sends())
}
