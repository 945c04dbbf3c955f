package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"redeem.dev/kit/client"
	"redeem.dev/kit/client/otp"
	"redeem.dev/kit/client/store"
	"redeem.dev/kit/protocol"
)

const maxCodeAttempts = 3

func (a *app) claimCmd() *cobra.Command {
	var (
		resume bool
		code   string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "claim [query]",
		Short: "Claim a gumdrop edition from a claim link query",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if resume == (len(args) == 1) {
				return usageErr("pass a claim query or --resume")
			}
			rt, err := a.runtime()
			if err != nil {
				return err
			}
			defer rt.close()

			db, err := store.Open(rt.cfg.DataDir, rt.cfg.Network)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			raw := ""
			if resume {
				var ok bool
				if raw, ok, err = db.LastQuery(); err != nil {
					return err
				} else if !ok {
					return usageErr("no claim to resume")
				}
			} else {
				raw = args[0]
			}
			q, err := client.ParseClaimQuery(raw)
			if err != nil {
				return err
			}

			kek, err := rt.mintKEK()
			if err != nil {
				return err
			}
			service := otp.New(rt.cfg.OTPEndpoint, nil, rt.log.Named("otp"))
			gate := client.NewGate(client.GateDeps{
				Programs:  rt.programs,
				Ledger:    rt.node,
				Rent:      rt.node,
				Blockhash: rt.node,
				Wallet:    client.NewLocalWallet(rt.wallet),
				Delivery:  service,
				Verifier:  service,
				Submitter: rt.submitter(),
				Store:     db,
				KEK:       kek,
				Logger:    rt.log.Named("claim"),
			})

			ctx := cmd.Context()
			session, err := gate.Assemble(ctx, q)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(a.out, "claimant %s mode %s edition %d new mint %s\n",
				session.Claim().Claimant, session.Mode(), q.Edition, session.Claim().NewMint)
			if dryRun {
				return a.printJSON(map[string]any{
					"session": session.Key().String(),
					"batches": len(session.Batches()),
					"cosign":  session.NeedsCode(),
				})
			}

			if session.NeedsCode() {
				if rt.cfg.OTPEndpoint == "" {
					return usageErr("this claim needs a one-time code; set --otp-endpoint")
				}
				if err := a.cosign(ctx, session, code, rt.log); err != nil {
					return err
				}
			}

			res, err := session.Submit(ctx)
			if res != nil {
				for _, o := range res.Outcomes {
					_, _ = fmt.Fprintf(a.out, "batch %d: %s %s\n", o.Index+1, o.Outcome, o.Txid)
				}
			}
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(a.out, "claimed edition %d into %s\n", q.Edition, session.Claim().NewMint)
			return nil
		},
	}
	cmd.Flags().BoolVar(&resume, "resume", false, "resume the last claim started in this data directory")
	cmd.Flags().StringVar(&code, "code", "", "one-time code (prompted for when omitted)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "assemble the claim without requesting a code or submitting")
	return cmd
}

// cosign requests a code and verifies it. An expired code triggers a new
// request; a wrong code is prompted for again.
func (a *app) cosign(ctx context.Context, s *client.ClaimSession, code string, log *zap.Logger) error {
	if err := s.RequestCode(ctx); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(a.out, "code sent via %s to %s\n", s.Query().Method, s.Query().Handle)
	prompt := bufio.NewReader(a.in)
	for attempt := 1; ; attempt++ {
		if code == "" {
			_, _ = fmt.Fprint(a.out, "code: ")
			line, err := prompt.ReadString('\n')
			if err != nil && (err != io.EOF || line == "") {
				return errors.Wrap(err, "read code")
			}
			code = strings.TrimSpace(line)
		}
		err := s.VerifyCode(ctx, code)
		if err == nil {
			return nil
		}
		if attempt >= maxCodeAttempts {
			return err
		}
		switch {
		case protocol.HasCode(err, protocol.ERR_CODE_EXPIRED):
			log.Info("code expired, requesting another")
			if err := s.RequestCode(ctx); err != nil {
				return err
			}
		case protocol.HasCode(err, protocol.ERR_CODE_INVALID):
		default:
			return err
		}
		_, _ = fmt.Fprintln(a.out, err.Error())
		code = ""
	}
}
