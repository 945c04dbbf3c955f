// Package rpc talks to a ledger node over its JSON-RPC HTTP interface.
package rpc

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"redeem.dev/kit/client"
	"redeem.dev/kit/protocol"
)

const (
	// maxAccountsPerCall is the node's getMultipleAccounts key limit.
	maxAccountsPerCall  = 100
	defaultPollInterval = 500 * time.Millisecond
	maxResponseBytes    = 8 << 20
)

// Node error codes that mean the node could not serve the request right now.
const (
	codeNodeBehind       = -32004
	codeNodeUnhealthy    = -32005
	codeSlotSkipped      = -32007
	codePreflightFailure = -32002
	codeSigVerifyFailure = -32003
)

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type response struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *Error          `json:"error"`
}

// Error is an error object returned by the node.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string { return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message) }

type Options struct {
	Commitment   string
	HTTPClient   *http.Client
	PollInterval time.Duration
	Logger       *zap.Logger
}

// Client implements the ledger reader, rent oracle, blockhash source and
// transport over one node endpoint. It is safe for concurrent use.
type Client struct {
	url        string
	http       *http.Client
	commitment string
	poll       time.Duration
	log        *zap.Logger
	nextID     atomic.Uint64
}

var (
	_ client.LedgerSnapshotReader = (*Client)(nil)
	_ client.TokenAccountLister   = (*Client)(nil)
	_ client.RentOracle           = (*Client)(nil)
	_ client.BlockhashSource      = (*Client)(nil)
	_ client.Transport            = (*Client)(nil)
)

func New(url string, opts Options) *Client {
	c := &Client{
		url:        url,
		http:       opts.HTTPClient,
		commitment: opts.Commitment,
		poll:       opts.PollInterval,
		log:        opts.Logger,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 30 * time.Second}
	}
	if c.commitment == "" {
		c.commitment = "confirmed"
	}
	if c.poll <= 0 {
		c.poll = defaultPollInterval
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	return c
}

func transient(format string, args ...any) error {
	return protocol.Errorf(protocol.ERR_TRANSIENT, format, args...)
}

func (c *Client) call(ctx context.Context, method string, params []any, out any) error {
	body, err := json.Marshal(request{JSONRPC: "2.0", ID: c.nextID.Add(1), Method: method, Params: params})
	if err != nil {
		return errors.Wrapf(err, "encode %s", method)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrapf(err, "build %s request", method)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return transient("%s: %v", method, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return transient("%s: read response: %v", method, err)
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return transient("%s: http %d", method, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%s: http %d: %s", method, resp.StatusCode, bytes.TrimSpace(raw))
	}

	var r response
	if err := json.Unmarshal(raw, &r); err != nil {
		return errors.Wrapf(err, "decode %s response", method)
	}
	if r.Error != nil {
		return classify(method, r.Error)
	}
	if out == nil {
		return nil
	}
	return errors.Wrapf(json.Unmarshal(r.Result, out), "decode %s result", method)
}

// errAlreadyProcessed marks a resend of a transaction the node has already
// executed.
var errAlreadyProcessed = errors.New("transaction already processed")

func alreadyProcessed(e *Error) bool {
	return e.Code == codePreflightFailure && strings.Contains(strings.ToLower(e.Message), "already been processed")
}

func classify(method string, e *Error) error {
	if alreadyProcessed(e) {
		return fmt.Errorf("%s: %w: %v", method, errAlreadyProcessed, e)
	}
	switch e.Code {
	case codeNodeBehind, codeNodeUnhealthy, codeSlotSkipped:
		return fmt.Errorf("%s: %w", method, transient("%v", e))
	case codePreflightFailure:
		return fmt.Errorf("%s: %w", method, protocol.Errorf(protocol.ERR_TRANSACTION_REJECTED, "%v", e))
	case codeSigVerifyFailure:
		return fmt.Errorf("%s: %w", method, protocol.Errorf(protocol.ERR_SIGNATURE_INVALID, "%v", e))
	default:
		return fmt.Errorf("%s: %w", method, e)
	}
}

type accountInfo struct {
	Data  []string `json:"data"`
	Owner string   `json:"owner"`
}

func (a *accountInfo) bytes() ([]byte, error) {
	if len(a.Data) != 2 || a.Data[1] != "base64" {
		return nil, errors.New("account data is not base64 encoded")
	}
	return base64.StdEncoding.DecodeString(a.Data[0])
}

type multipleAccounts struct {
	Value []*accountInfo `json:"value"`
}

// GetAccounts fetches keys in chunks the node accepts. Chunks are read in
// parallel; any failure fails the whole snapshot.
func (c *Client) GetAccounts(ctx context.Context, keys []protocol.Pubkey) (map[protocol.Pubkey][]byte, error) {
	out := make(map[protocol.Pubkey][]byte, len(keys))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(keys); start += maxAccountsPerCall {
		chunk := keys[start:min(start+maxAccountsPerCall, len(keys))]
		g.Go(func() error {
			params := make([]string, len(chunk))
			for i, k := range chunk {
				params[i] = k.String()
			}
			var res multipleAccounts
			if err := c.call(gctx, "getMultipleAccounts", []any{params, map[string]any{
				"encoding":   "base64",
				"commitment": c.commitment,
			}}, &res); err != nil {
				return err
			}
			if len(res.Value) != len(chunk) {
				return fmt.Errorf("getMultipleAccounts: %d values for %d keys", len(res.Value), len(chunk))
			}
			mu.Lock()
			defer mu.Unlock()
			for i, acct := range res.Value {
				if acct == nil {
					continue
				}
				data, err := acct.bytes()
				if err != nil {
					return errors.Wrapf(err, "account %s", chunk[i])
				}
				out[chunk[i]] = data
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

type keyedAccount struct {
	Pubkey  string      `json:"pubkey"`
	Account accountInfo `json:"account"`
}

func (c *Client) TokenAccountsByOwner(ctx context.Context, owner protocol.Pubkey) (map[protocol.Pubkey]protocol.TokenAccount, error) {
	var res struct {
		Value []keyedAccount `json:"value"`
	}
	err := c.call(ctx, "getTokenAccountsByOwner", []any{
		owner.String(),
		map[string]any{"programId": protocol.TokenProgramID.String()},
		map[string]any{"encoding": "base64", "commitment": c.commitment},
	}, &res)
	if err != nil {
		return nil, err
	}
	out := make(map[protocol.Pubkey]protocol.TokenAccount, len(res.Value))
	for _, ka := range res.Value {
		addr, err := protocol.ParsePubkey(ka.Pubkey)
		if err != nil {
			return nil, errors.Wrap(err, "token account address")
		}
		data, err := ka.Account.bytes()
		if err != nil {
			return nil, errors.Wrapf(err, "token account %s", addr)
		}
		acct, err := protocol.DecodeTokenAccount(data)
		if err != nil {
			return nil, errors.Wrapf(err, "token account %s", addr)
		}
		out[addr] = acct
	}
	return out, nil
}

func (c *Client) MinimumBalanceForRentExemption(ctx context.Context, size uint64) (uint64, error) {
	var lamports uint64
	err := c.call(ctx, "getMinimumBalanceForRentExemption", []any{size}, &lamports)
	return lamports, err
}

func (c *Client) LatestBlockhash(ctx context.Context) (protocol.Hash32, error) {
	var res struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}
	if err := c.call(ctx, "getLatestBlockhash", []any{map[string]any{"commitment": c.commitment}}, &res); err != nil {
		return protocol.Hash32{}, err
	}
	return protocol.ParseHash32(res.Value.Blockhash)
}

// Send broadcasts signed. A resend the node reports as already processed
// returns the transaction's own signature so the caller keeps confirming it.
func (c *Client) Send(ctx context.Context, signed []byte) (string, error) {
	var sig string
	err := c.call(ctx, "sendTransaction", []any{
		base64.StdEncoding.EncodeToString(signed),
		map[string]any{"encoding": "base64", "preflightCommitment": c.commitment},
	}, &sig)
	if errors.Is(err, errAlreadyProcessed) {
		id, ierr := firstSignature(signed)
		if ierr != nil {
			return "", err
		}
		c.log.Info("transaction already processed", zap.String("txid", id))
		return id, nil
	}
	return sig, err
}

// firstSignature is the fee payer signature, which names the transaction.
func firstSignature(signed []byte) (string, error) {
	n, off, err := protocol.DecodeCompactU16(signed)
	if err != nil {
		return "", err
	}
	if n == 0 || len(signed) < off+protocol.SignatureBytes {
		return "", errors.New("transaction carries no signature")
	}
	return base58.Encode(signed[off : off+protocol.SignatureBytes]), nil
}

type signatureStatus struct {
	ConfirmationStatus string          `json:"confirmationStatus"`
	Err                json.RawMessage `json:"err"`
}

var commitmentRank = map[string]int{"processed": 0, "confirmed": 1, "finalized": 2}

func (c *Client) reached(status string) bool {
	got, ok := commitmentRank[status]
	return ok && got >= commitmentRank[c.commitment]
}

// Confirm polls the signature status until it reaches the configured
// commitment, fails, or timeout elapses. Transient poll failures are
// logged and retried until the deadline.
func (c *Client) Confirm(ctx context.Context, txid string, timeout time.Duration) (client.Confirmation, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	for {
		var res struct {
			Value []*signatureStatus `json:"value"`
		}
		err := c.call(ctx, "getSignatureStatuses", []any{[]string{txid}, map[string]any{"searchTransactionHistory": false}}, &res)
		switch {
		case err == nil:
			if len(res.Value) == 1 && res.Value[0] != nil {
				st := res.Value[0]
				if len(st.Err) > 0 && string(st.Err) != "null" {
					return client.Confirmation{Status: client.Rejected, Reason: string(st.Err)}, nil
				}
				if c.reached(st.ConfirmationStatus) {
					return client.Confirmation{Status: client.Confirmed}, nil
				}
			}
		case ctx.Err() != nil:
		case protocol.IsRetryable(err):
			c.log.Debug("signature status poll failed", zap.String("txid", txid), zap.Error(err))
		default:
			return client.Confirmation{}, err
		}

		select {
		case <-ctx.Done():
			return client.Confirmation{Status: client.TimedOut}, nil
		case <-ticker.C:
		}
	}
}
