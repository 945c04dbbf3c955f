package client

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/mr-tron/base58"

	"redeem.dev/kit/protocol"
)

type ClaimType string

const (
	ClaimEdition  ClaimType = "edition"
	ClaimTransfer ClaimType = "transfer"
	ClaimCandy    ClaimType = "candy"
)

// PinNotApplicable marks a wallet-gated distribution in claim links.
const PinNotApplicable = "NA"

// ClaimQuery is a validated claim link.
type ClaimQuery struct {
	Distributor protocol.Pubkey
	Type        ClaimType
	Master      protocol.Pubkey
	Edition     uint64
	Handle      string
	Amount      uint64
	Index       uint64
	// PinGated is false for wallet-gated links, where Handle is the
	// claimant's wallet address.
	PinGated bool
	Pin      uint32
	Proof    [][32]byte
	Method   Channel

	raw string
}

// Raw is the query string the claim was parsed from.
func (q *ClaimQuery) Raw() string { return q.raw }

// ParseClaimQuery parses a claim link query (with or without the leading
// '?'). Only edition claims are supported.
func ParseClaimQuery(raw string) (*ClaimQuery, error) {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "?")
	vals, err := url.ParseQuery(raw)
	if err != nil {
		return nil, errf(protocol.ERR_PARSE, "claim query: %v", err)
	}
	q := &ClaimQuery{raw: raw}

	switch {
	case vals.Get("tokenAcc") != "":
		q.Type = ClaimTransfer
	case vals.Get("config") != "":
		q.Type = ClaimCandy
	case vals.Get("master") != "":
		q.Type = ClaimEdition
	default:
		return nil, errf(protocol.ERR_PARSE, "claim query: no claim type (expected master, tokenAcc or config)")
	}
	if q.Type != ClaimEdition {
		return nil, errf(protocol.ERR_UNSUPPORTED_CLAIM, "unsupported claim type %s", q.Type)
	}

	if q.Distributor, err = parseKeyParam(vals, "distributor"); err != nil {
		return nil, err
	}
	if q.Master, err = parseKeyParam(vals, "master"); err != nil {
		return nil, err
	}
	if q.Edition, err = parseUintParam(vals, "edition"); err != nil {
		return nil, err
	}
	if q.Amount, err = parseUintParam(vals, "amount"); err != nil {
		return nil, err
	}
	if q.Index, err = parseUintParam(vals, "index"); err != nil {
		return nil, err
	}
	q.Handle = vals.Get("handle")
	if q.Handle == "" {
		return nil, errf(protocol.ERR_PARSE, "claim query: handle is required")
	}

	switch pin := vals.Get("pin"); pin {
	case "", PinNotApplicable:
	default:
		v, err := strconv.ParseUint(pin, 10, 32)
		if err != nil {
			return nil, errf(protocol.ERR_PARSE, "claim query: could not parse pin %q", pin)
		}
		q.PinGated = true
		q.Pin = uint32(v)
	}

	if q.Proof, err = parseProof(vals.Get("proof")); err != nil {
		return nil, err
	}

	q.Method = ChannelEmail
	if m := vals.Get("method"); m != "" {
		q.Method = Channel(m)
	}
	if !q.Method.Valid() {
		return nil, errf(protocol.ERR_CHANNEL_UNSUPPORTED, "claim query: unsupported method %q", q.Method)
	}
	return q, nil
}

func parseKeyParam(vals url.Values, name string) (protocol.Pubkey, error) {
	s := vals.Get(name)
	if s == "" {
		return protocol.Pubkey{}, errf(protocol.ERR_PARSE, "claim query: %s is required", name)
	}
	k, err := protocol.ParsePubkey(s)
	if err != nil {
		return protocol.Pubkey{}, errf(protocol.ERR_PARSE, "claim query: invalid %s key %q", name, s)
	}
	return k, nil
}

func parseUintParam(vals url.Values, name string) (uint64, error) {
	s := vals.Get(name)
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, errf(protocol.ERR_PARSE, "claim query: could not parse %s %q", name, s)
	}
	return v, nil
}

func parseProof(s string) ([][32]byte, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([][32]byte, len(parts))
	for i, p := range parts {
		b, err := base58.Decode(strings.TrimSpace(p))
		if err != nil || len(b) != 32 {
			return nil, errf(protocol.ERR_PARSE, "claim query: invalid proof hash %d", i)
		}
		out[i] = [32]byte(b)
	}
	return out, nil
}
