package client

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"redeem.dev/kit/client/store"
	"redeem.dev/kit/crypto"
	"redeem.dev/kit/protocol"
)

type ClaimState int

const (
	StateAssembled ClaimState = iota
	StateAwaitingCode
	StateVerified
	StateSubmitted
	StateCompleted
	StateRejected
	StateAbandoned
)

func (s ClaimState) String() string {
	switch s {
	case StateAssembled:
		return "assembled"
	case StateAwaitingCode:
		return "awaiting_code"
	case StateVerified:
		return "verified"
	case StateSubmitted:
		return "submitted"
	case StateCompleted:
		return "completed"
	case StateRejected:
		return "rejected"
	case StateAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// ClaimStore persists what an interrupted claim needs to resume.
type ClaimStore interface {
	PutLastQuery(raw string) error
	PutMintKey(k store.SessionKey, w *crypto.WrappedKey) error
	MintKey(k store.SessionKey) (*crypto.WrappedKey, bool, error)
	DeleteMintKey(k store.SessionKey) error
	PutClaim(k store.SessionKey, rec store.ClaimRecord) error
}

type GateDeps struct {
	Programs  Programs
	Ledger    LedgerSnapshotReader
	Rent      RentOracle
	Blockhash BlockhashSource
	Wallet    WalletSigner
	Delivery  CodeDelivery
	Verifier  CodeVerifier
	Submitter *Submitter
	// Store and KEK are optional; without them every assembly generates a
	// fresh mint key.
	Store  ClaimStore
	KEK    []byte
	Logger *zap.Logger
}

// Gate runs gumdrop edition claims through the optional one-time-code
// co-signature phase.
type Gate struct {
	deps    GateDeps
	builder *ClaimBuilder
	log     *zap.Logger
}

func NewGate(deps GateDeps) *Gate {
	return &Gate{deps: deps, builder: NewClaimBuilder(deps.Programs), log: orNop(deps.Logger)}
}

// ClaimSession is one claim attempt. It is driven by a single flow and is
// not safe for concurrent use.
type ClaimSession struct {
	gate        *Gate
	key         store.SessionKey
	query       *ClaimQuery
	claim       *EditionClaim
	state       ClaimState
	batches     []*Batch
	cosignIndex int
	deliveryID  string
	failedIndex int
	result      *SubmitResult
}

func (s *ClaimSession) State() ClaimState { return s.state }
func (s *ClaimSession) Mode() CoSignMode { return s.claim.Mode }
func (s *ClaimSession) Claim() *EditionClaim { return s.claim }
func (s *ClaimSession) Query() *ClaimQuery { return s.query }
func (s *ClaimSession) Key() store.SessionKey { return s.key }
func (s *ClaimSession) DeliveryID() string { return s.deliveryID }
func (s *ClaimSession) Batches() []*Batch { return append([]*Batch(nil), s.batches...) }
func (s *ClaimSession) Result() *SubmitResult { return s.result }

// NeedsCode reports whether a batch waits on the co-signing service.
func (s *ClaimSession) NeedsCode() bool { return s.cosignIndex >= 0 }

// FailedIndex is the failing batch of a rejected session, or -1.
func (s *ClaimSession) FailedIndex() int { return s.failedIndex }

// Assemble validates the claim against the ledger and builds its batches.
// An in-flight mint key stored for the same session is reused, and the
// mint setup is skipped if that mint already exists.
func (g *Gate) Assemble(ctx context.Context, q *ClaimQuery) (*ClaimSession, error) {
	s, err := g.assemble(ctx, q)
	return s, stageErr(StagePlan, err)
}

func (g *Gate) assemble(ctx context.Context, q *ClaimQuery) (*ClaimSession, error) {
	wallet := g.deps.Wallet.Pubkey()
	if g.deps.Store != nil && q.Raw() != "" {
		if err := g.deps.Store.PutLastQuery(q.Raw()); err != nil {
			return nil, errors.Wrap(err, "save claim query")
		}
	}
	claimant, _, err := ResolveClaimant(g.deps.Programs.Gumdrop, wallet, q, q.Master)
	if err != nil {
		return nil, err
	}
	key := store.SessionKey{Distributor: q.Distributor, Index: q.Index, Claimant: claimant}

	mint, fresh, err := g.mintKey(key)
	if err != nil {
		return nil, err
	}
	claim, err := g.builder.BuildEditionClaim(ctx, q, wallet, mint.Pubkey(), g.deps.Ledger, g.deps.Rent)
	if err != nil {
		return nil, err
	}
	blockhash, err := g.deps.Blockhash.LatestBlockhash(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "recent blockhash")
	}

	bt := NewBatcher(wallet, blockhash)
	var batches []*Batch
	if len(claim.Setup) > 0 {
		setup, err := bt.Batch(claim.Setup, len(claim.Setup))
		if err != nil {
			return nil, err
		}
		batches = append(batches, setup...)
	}
	claimBatches, err := bt.Batch(claim.Claim, 1)
	if err != nil {
		return nil, err
	}
	batches = append(batches, claimBatches...)

	for i, b := range batches {
		if !b.Requires(mint.Pubkey()) {
			continue
		}
		if batches[i], err = AttachLocalSignature(b, mint); err != nil {
			return nil, err
		}
	}

	s := &ClaimSession{
		gate:        g,
		key:         key,
		query:       q,
		claim:       claim,
		state:       StateAssembled,
		batches:     batches,
		cosignIndex: -1,
		failedIndex: -1,
	}
	if claim.Mode == CoSignRequired {
		for i, b := range batches {
			if b.Requires(claim.Temporal) {
				s.cosignIndex = i
				break
			}
		}
	}

	if fresh && g.deps.Store != nil {
		w, err := crypto.WrapKeypair(g.deps.KEK, mint)
		if err != nil {
			return nil, errors.Wrap(err, "wrap mint key")
		}
		if err := g.deps.Store.PutMintKey(key, w); err != nil {
			return nil, errors.Wrap(err, "save mint key")
		}
	}
	s.checkpoint()

	g.log.Info("claim assembled",
		zap.Stringer("claimant", claimant),
		zap.Stringer("mint", mint.Pubkey()),
		zap.Stringer("mode", claim.Mode),
		zap.Int("batches", len(batches)),
		zap.Bool("resumed", !fresh))
	return s, nil
}

func (g *Gate) mintKey(key store.SessionKey) (*crypto.Keypair, bool, error) {
	if g.deps.Store != nil {
		w, ok, err := g.deps.Store.MintKey(key)
		if err != nil {
			return nil, false, errors.Wrap(err, "load mint key")
		}
		if ok {
			kp, err := crypto.UnwrapKeypair(g.deps.KEK, w)
			if err != nil {
				return nil, false, errors.Wrap(err, "unwrap mint key")
			}
			return kp, false, nil
		}
	}
	kp, err := crypto.GenerateKeypair(nil)
	if err != nil {
		return nil, false, err
	}
	return kp, true, nil
}

func (s *ClaimSession) invalid(op string) error {
	return stageErr(StageCosign, errf(protocol.ERR_INVALID_STATE, "%s not allowed in state %s", op, s.state))
}

// RequestCode asks the delivery collaborator to send a one-time code to the
// claimant handle. It may be repeated while awaiting a code.
func (s *ClaimSession) RequestCode(ctx context.Context) error {
	if !s.NeedsCode() {
		return stageErr(StageCosign, errf(protocol.ERR_INVALID_STATE, "claim does not need a co-signature (mode %s)", s.claim.Mode))
	}
	if s.state != StateAssembled && s.state != StateAwaitingCode {
		return s.invalid("request code")
	}
	if !s.query.Method.Valid() {
		return stageErr(StageCosign, errf(protocol.ERR_CHANNEL_UNSUPPORTED, "unsupported channel %q", s.query.Method))
	}
	pending := s.batches[s.cosignIndex]
	id, err := s.gate.deps.Delivery.RequestCode(ctx, s.query.Handle, s.query.Method, CodeContext{
		Message: pending.MessageBytes(),
		Seeds:   s.claim.Seeds,
	})
	if err != nil {
		return stageErr(StageCosign, err)
	}
	s.deliveryID = id
	s.state = StateAwaitingCode
	s.checkpoint()
	s.gate.log.Info("one-time code requested", zap.String("channel", string(s.query.Method)), zap.String("delivery", id))
	return nil
}

// VerifyCode exchanges code for the service signature over the pending
// message. On failure the session stays in AwaitingCode.
func (s *ClaimSession) VerifyCode(ctx context.Context, code string) error {
	if s.state != StateAwaitingCode {
		return s.invalid("verify code")
	}
	sig, err := s.gate.deps.Verifier.VerifyCode(ctx, s.deliveryID, code)
	if err != nil {
		s.gate.log.Warn("one-time code rejected", zap.Error(err))
		return stageErr(StageCosign, err)
	}
	signed, err := s.batches[s.cosignIndex].WithSignature(s.claim.Temporal, sig)
	if err != nil {
		return stageErr(StageCosign, err)
	}
	s.batches[s.cosignIndex] = signed
	s.state = StateVerified
	s.checkpoint()
	return nil
}

// Submit has the wallet sign every batch and submits them in order,
// stopping at the first failure.
func (s *ClaimSession) Submit(ctx context.Context) (*SubmitResult, error) {
	ready := s.state == StateVerified || (s.state == StateAssembled && !s.NeedsCode())
	if !ready {
		return nil, s.invalid("submit")
	}
	signed, err := s.gate.deps.Wallet.SignBatches(ctx, s.batches)
	if err != nil {
		return nil, stageErr(StageSubmit, errors.Wrap(err, "wallet signing"))
	}
	for i, b := range signed {
		if missing := b.MissingSigners(); len(missing) > 0 {
			return nil, &StageError{Stage: StageSubmit, BatchIndex: i, Err: errf(protocol.ERR_MISSING_SIGNATURE, "batch %d missing signature for %s", i, missing[0])}
		}
	}
	s.batches = signed
	s.state = StateSubmitted
	s.checkpoint()

	res, err := s.gate.deps.Submitter.Submit(ctx, s.batches, StopOnFirstFailure, func(i int, o BatchOutcome) {
		s.gate.log.Info("claim batch finished", zap.Int("batch", i), zap.Stringer("outcome", o.Outcome), zap.String("txid", o.Txid))
	})
	s.result = res
	if err != nil {
		s.state = StateRejected
		s.failedIndex = res.State.Index
		claimSessionsTotal.WithLabelValues(s.state.String()).Inc()
		s.checkpoint()
		return res, err
	}
	s.state = StateCompleted
	claimSessionsTotal.WithLabelValues(s.state.String()).Inc()
	s.checkpoint()
	s.forgetMintKey()
	return res, nil
}

// Abandon drops the session before submission. The ledger is untouched.
func (s *ClaimSession) Abandon() error {
	switch s.state {
	case StateAssembled, StateAwaitingCode, StateVerified:
	default:
		return s.invalid("abandon")
	}
	s.state = StateAbandoned
	s.batches = nil
	s.deliveryID = ""
	claimSessionsTotal.WithLabelValues(s.state.String()).Inc()
	s.checkpoint()
	s.forgetMintKey()
	return nil
}

func (s *ClaimSession) forgetMintKey() {
	if s.gate.deps.Store == nil {
		return
	}
	if err := s.gate.deps.Store.DeleteMintKey(s.key); err != nil {
		s.gate.log.Warn("failed to clear mint key", zap.Stringer("session", s.key), zap.Error(err))
	}
}

func (s *ClaimSession) checkpoint() {
	if s.gate.deps.Store == nil {
		return
	}
	rec := store.ClaimRecord{
		State:       s.state.String(),
		FailedIndex: int32(s.failedIndex), // #nosec G115 -- batch counts are tiny.
		UpdatedAt:   time.Now(),
	}
	if s.result != nil {
		for _, o := range s.result.Outcomes {
			rec.Txids = append(rec.Txids, o.Txid)
		}
	}
	if err := s.gate.deps.Store.PutClaim(s.key, rec); err != nil {
		s.gate.log.Warn("failed to checkpoint claim", zap.Stringer("session", s.key), zap.Error(err))
	}
}
