package main

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"redeem.dev/kit/client"
	"redeem.dev/kit/client/rpc"
	"redeem.dev/kit/crypto"
)

const mintKeySalt = "redeem/mint-key"

// runtime is everything a ledger-facing command needs.
type runtime struct {
	cfg      client.Config
	log      *zap.Logger
	programs client.Programs
	node     *rpc.Client
	wallet   *crypto.Keypair
}

func (a *app) runtime() (*runtime, error) {
	log, err := client.NewLogger(a.cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	programs, err := a.cfg.Programs()
	if err != nil {
		return nil, err
	}
	if a.cfg.Keypair == "" {
		return nil, usageErr("a wallet keypair is required (--keypair)")
	}
	wallet, err := crypto.LoadKeypairFile(a.cfg.Keypair)
	if err != nil {
		return nil, err
	}
	node := rpc.New(a.cfg.RPCURL, rpc.Options{Commitment: a.cfg.Commitment, Logger: log.Named("rpc")})
	return &runtime{cfg: a.cfg, log: log, programs: programs, node: node, wallet: wallet}, nil
}

func (rt *runtime) submitter() *client.Submitter {
	return client.NewSubmitter(rt.node, client.SubmitterOptions{
		ConfirmTimeout: rt.cfg.ConfirmTimeout,
		Retry:          rt.cfg.RetryPolicy(),
		Logger:         rt.log.Named("submit"),
	})
}

// mintKEK wraps in-flight mint keys under a key only this wallet can
// rederive.
func (rt *runtime) mintKEK() ([]byte, error) {
	kek, err := crypto.DeriveKEK(rt.wallet.Seed(), []byte(mintKeySalt), rt.cfg.Network)
	return kek, errors.Wrap(err, "derive mint key wrapping key")
}

func (rt *runtime) close() {
	_ = rt.log.Sync()
}
