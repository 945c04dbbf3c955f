package client

import (
	"context"
	"time"

	"redeem.dev/kit/protocol"
)

// LedgerSnapshotReader fetches raw account data. Keys with no account are
// absent from the result; the call itself fails only on transport errors.
type LedgerSnapshotReader interface {
	GetAccounts(ctx context.Context, keys []protocol.Pubkey) (map[protocol.Pubkey][]byte, error)
}

type ConfirmStatus int

const (
	Confirmed ConfirmStatus = iota
	TimedOut
	Rejected
)

func (s ConfirmStatus) String() string {
	switch s {
	case Confirmed:
		return "confirmed"
	case TimedOut:
		return "timed_out"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

type Confirmation struct {
	Status ConfirmStatus
	Reason string
}

// Transport broadcasts signed transactions and waits for their outcome.
type Transport interface {
	Send(ctx context.Context, signed []byte) (string, error)
	Confirm(ctx context.Context, txid string, timeout time.Duration) (Confirmation, error)
}

type RentOracle interface {
	MinimumBalanceForRentExemption(ctx context.Context, size uint64) (uint64, error)
}

type BlockhashSource interface {
	LatestBlockhash(ctx context.Context) (protocol.Hash32, error)
}

// Channel names an OTP delivery route.
type Channel string

const (
	ChannelEmail   Channel = "aws-email"
	ChannelSMS     Channel = "aws-sms"
	ChannelDiscord Channel = "discord"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelDiscord:
		return true
	}
	return false
}

// CodeContext is what the co-signing service needs to decide whether to
// release a signature: the exact message it will sign and the seeds that
// bind the claimant identity to the handle.
type CodeContext struct {
	Message []byte
	Seeds   [][]byte
}

type CodeDelivery interface {
	RequestCode(ctx context.Context, handle string, channel Channel, cc CodeContext) (string, error)
}

// CodeVerifier returns the service signature over the pending message.
type CodeVerifier interface {
	VerifyCode(ctx context.Context, deliveryID, code string) ([]byte, error)
}

// WalletSigner is the custody collaborator that adds the connected
// wallet's signature to each batch.
type WalletSigner interface {
	Pubkey() protocol.Pubkey
	SignBatches(ctx context.Context, batches []*Batch) ([]*Batch, error)
}
