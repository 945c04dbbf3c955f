// Package otp is the HTTP client of the one-time-code co-signing service.
package otp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"redeem.dev/kit/client"
	"redeem.dev/kit/protocol"
)

const maxResponseBytes = 1 << 16

// buffer is the service's JSON form of a byte seed.
type buffer []byte

func (b buffer) MarshalJSON() ([]byte, error) {
	data := make([]int, len(b))
	for i, v := range b {
		data[i] = int(v)
	}
	return json.Marshal(struct {
		Type string `json:"type"`
		Data []int  `json:"data"`
	}{"Buffer", data})
}

type sendRequest struct {
	Method      string   `json:"method"`
	Transaction string   `json:"transaction"`
	Seeds       []buffer `json:"seeds"`
	Comm        string   `json:"comm"`
}

type sendResponse struct {
	MessageID string `json:"MessageId"`
	ID        string `json:"id"`
}

type verifyRequest struct {
	Method string `json:"method"`
	OTP    uint64 `json:"otp"`
	Handle string `json:"handle"`
}

// Client implements both code delivery and verification against one
// service endpoint. Verification is keyed by handle on the wire, so the
// client remembers which handle each delivery went to.
type Client struct {
	endpoint string
	http     *http.Client
	log      *zap.Logger

	mu      sync.Mutex
	handles map[string]string
}

var (
	_ client.CodeDelivery = (*Client)(nil)
	_ client.CodeVerifier = (*Client)(nil)
)

func New(endpoint string, hc *http.Client, log *zap.Logger) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{endpoint: endpoint, http: hc, log: log, handles: map[string]string{}}
}

func (c *Client) post(ctx context.Context, body any) (int, []byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return 0, nil, errors.Wrap(err, "encode otp request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(raw))
	if err != nil {
		return 0, nil, errors.Wrap(err, "build otp request")
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, nil, ctx.Err()
		}
		return 0, nil, protocol.Errorf(protocol.ERR_TRANSIENT, "otp service: %v", err)
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, protocol.Errorf(protocol.ERR_TRANSIENT, "otp service: read response: %v", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return 0, nil, protocol.Errorf(protocol.ERR_TRANSIENT, "otp service: http %d", resp.StatusCode)
	}
	return resp.StatusCode, out, nil
}

// RequestCode asks the service to deliver a code to handle over ch. The
// returned delivery id is the provider's message id.
func (c *Client) RequestCode(ctx context.Context, handle string, ch client.Channel, cc client.CodeContext) (string, error) {
	if !ch.Valid() {
		return "", protocol.Errorf(protocol.ERR_CHANNEL_UNSUPPORTED, "unsupported channel %q", ch)
	}
	seeds := make([]buffer, len(cc.Seeds))
	for i, s := range cc.Seeds {
		seeds[i] = buffer(s)
	}
	status, body, err := c.post(ctx, sendRequest{
		Method:      "send",
		Transaction: base58.Encode(cc.Message),
		Seeds:       seeds,
		Comm:        string(ch),
	})
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("otp send: http %d: %s", status, bytes.TrimSpace(body))
	}
	var resp sendResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", errors.Wrap(err, "decode otp send response")
	}
	id := resp.MessageID
	if ch == client.ChannelDiscord {
		id = resp.ID
	}
	if id == "" {
		return "", fmt.Errorf("otp send: no delivery id for %s", ch)
	}

	c.mu.Lock()
	c.handles[id] = handle
	c.mu.Unlock()
	c.log.Debug("otp delivered", zap.String("channel", string(ch)), zap.String("delivery", id))
	return id, nil
}

// VerifyCode exchanges code for the co-signer's signature over the message
// sent with the delivery.
func (c *Client) VerifyCode(ctx context.Context, deliveryID, code string) ([]byte, error) {
	c.mu.Lock()
	handle, ok := c.handles[deliveryID]
	c.mu.Unlock()
	if !ok {
		return nil, protocol.Errorf(protocol.ERR_CODE_INVALID, "unknown delivery %q", deliveryID)
	}
	n, err := strconv.ParseUint(strings.TrimSpace(code), 10, 64)
	if err != nil {
		return nil, protocol.Errorf(protocol.ERR_CODE_INVALID, "could not parse code %q", code)
	}

	status, body, err := c.post(ctx, verifyRequest{Method: "verify", OTP: n, Handle: handle})
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, protocol.Errorf(protocol.ERR_CODE_INVALID, "code rejected")
	case http.StatusGone:
		return nil, protocol.Errorf(protocol.ERR_CODE_EXPIRED, "code expired")
	default:
		return nil, fmt.Errorf("otp verify: http %d: %s", status, bytes.TrimSpace(body))
	}

	var encoded string
	if err := json.Unmarshal(body, &encoded); err != nil {
		return nil, errors.Wrap(err, "decode otp verify response")
	}
	sig, err := base58.Decode(encoded)
	if err != nil || len(sig) != protocol.SignatureBytes {
		return nil, protocol.Errorf(protocol.ERR_SIGNATURE_INVALID, "could not decode co-signature")
	}

	c.mu.Lock()
	delete(c.handles, deliveryID)
	c.mu.Unlock()
	return sig, nil
}
