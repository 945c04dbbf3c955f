package client

import (
	"context"
	"crypto/sha256"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"redeem.dev/kit/crypto"
	"redeem.dev/kit/protocol"
)

func testKey(label string) protocol.Pubkey {
	return protocol.Pubkey(sha256.Sum256([]byte(label)))
}

func testKeypair(t *testing.T, label string) *crypto.Keypair {
	t.Helper()
	seed := sha256.Sum256([]byte("seed:" + label))
	kp, err := crypto.KeypairFromSeed(seed[:])
	require.NoError(t, err)
	return kp
}

func requireCode(t *testing.T, err error, code protocol.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	got, ok := protocol.CodeOf(err)
	require.True(t, ok, "no error code in %v", err)
	require.Equal(t, code, got, "error: %v", err)
}

type fakeLedger struct {
	mu       sync.Mutex
	accounts map[protocol.Pubkey][]byte
	calls    int
	lastKeys []protocol.Pubkey
	err      error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{accounts: map[protocol.Pubkey][]byte{}}
}

func (l *fakeLedger) GetAccounts(_ context.Context, keys []protocol.Pubkey) (map[protocol.Pubkey][]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	l.lastKeys = append([]protocol.Pubkey(nil), keys...)
	if l.err != nil {
		return nil, l.err
	}
	out := make(map[protocol.Pubkey][]byte)
	for _, k := range keys {
		if v, ok := l.accounts[k]; ok {
			out[k] = append([]byte(nil), v...)
		}
	}
	return out, nil
}

func (l *fakeLedger) set(k protocol.Pubkey, data []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts[k] = data
}

type fixedRent uint64

func (r fixedRent) MinimumBalanceForRentExemption(context.Context, uint64) (uint64, error) {
	return uint64(r), nil
}

type fixedBlockhash protocol.Hash32

func (b fixedBlockhash) LatestBlockhash(context.Context) (protocol.Hash32, error) {
	return protocol.Hash32(b), nil
}

// step scripts one Send/Confirm pair of fakeTransport.
type step struct {
	sendErr    error
	confirm    Confirmation
	confirmErr error
}

// fakeTransport answers Send and Confirm from steps, indexed by send. A
// txid listed in statuses answers its Confirm calls from that queue
// instead. Both calls fail with the context error once ctx is done.
type fakeTransport struct {
	mu        sync.Mutex
	steps     []step
	statuses  map[string][]Confirmation
	sent      [][]byte
	onSend    func(n int)
	onConfirm func(id string)
	confirm   int
}

func (f *fakeTransport) Send(ctx context.Context, signed []byte) (string, error) {
	f.mu.Lock()
	n := len(f.sent)
	f.sent = append(f.sent, append([]byte(nil), signed...))
	hook := f.onSend
	var st step
	if n < len(f.steps) {
		st = f.steps[n]
	}
	f.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if st.sendErr != nil {
		return "", st.sendErr
	}
	return txid(n), nil
}

func (f *fakeTransport) Confirm(ctx context.Context, id string, _ time.Duration) (Confirmation, error) {
	if f.onConfirm != nil {
		f.onConfirm(id)
	}
	if err := ctx.Err(); err != nil {
		return Confirmation{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirm++
	if q := f.statuses[id]; len(q) > 0 {
		f.statuses[id] = q[1:]
		return q[0], nil
	}
	n := len(f.sent) - 1
	var st step
	if n < len(f.steps) {
		st = f.steps[n]
	}
	if st.confirmErr != nil {
		return Confirmation{}, st.confirmErr
	}
	return st.confirm, nil
}

func (f *fakeTransport) sends() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func txid(n int) string {
	return "tx" + string(rune('a'+n))
}

func noSleep(context.Context, time.Duration) error { return nil }

func newTestSubmitter(tr Transport, retries int) *Submitter {
	s := NewSubmitter(tr, SubmitterOptions{
		ConfirmTimeout: time.Second,
		Retry:          RetryPolicy{MaxRetries: retries, InitialBackoff: time.Millisecond, MaxBackoff: 4 * time.Millisecond},
	})
	s.sleep = noSleep
	return s
}
