package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"redeem.dev/kit/client"
)

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func usageErr(format string, args ...any) error {
	return &exitError{code: 2, err: fmt.Errorf(format, args...)}
}

type app struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	configPath string
	flags      client.Config
	cfg        client.Config
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, in io.Reader, out, errOut io.Writer) int {
	a := &app{in: in, out: out, errOut: errOut}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintf(errOut, "error: %v\n", err)
		if ee, ok := err.(*exitError); ok {
			return ee.code
		}
		return 1
	}
	return 0
}

func (a *app) rootCmd() *cobra.Command {
	defaults := client.DefaultConfig()
	root := &cobra.Command{
		Use:           "redeem",
		Short:         "Redeem recipe dishes and gumdrop claims",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.loadConfig(cmd)
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "YAML config file")
	pf.StringVar(&a.flags.Network, "network", defaults.Network, "network name (devnet/testnet/mainnet-beta/localnet)")
	pf.StringVar(&a.flags.RPCURL, "rpc-url", "", "node JSON-RPC url (defaults to the network endpoint)")
	pf.StringVar(&a.flags.DataDir, "datadir", defaults.DataDir, "client data directory")
	pf.StringVar(&a.flags.Keypair, "keypair", defaults.Keypair, "wallet keypair file")
	pf.StringVar(&a.flags.LogLevel, "log-level", defaults.LogLevel, "log level: debug|info|warn|error")
	pf.StringVar(&a.flags.OTPEndpoint, "otp-endpoint", defaults.OTPEndpoint, "one-time-code service url")
	pf.IntVar(&a.flags.MaxInstructionsPerBatch, "max-instructions", defaults.MaxInstructionsPerBatch, "max instructions per dish transaction")

	root.AddCommand(a.configCmd(), a.keygenCmd(), a.merkleCmd(), a.deriveCmd(), a.dishCmd(), a.claimCmd())
	return root
}

func (a *app) loadConfig(cmd *cobra.Command) error {
	cfg := client.DefaultConfig()
	if a.configPath != "" {
		loaded, err := client.LoadConfig(a.configPath)
		if err != nil {
			return usageErr("%v", err)
		}
		cfg = loaded
	}
	pf := cmd.Flags()
	if pf.Changed("network") {
		cfg.Network = a.flags.Network
		if u, ok := client.NetworkRPCURL(cfg.Network); ok {
			cfg.RPCURL = u
		}
	}
	if pf.Changed("rpc-url") {
		cfg.RPCURL = a.flags.RPCURL
	}
	if pf.Changed("datadir") {
		cfg.DataDir = a.flags.DataDir
	}
	if pf.Changed("keypair") {
		cfg.Keypair = a.flags.Keypair
	}
	if pf.Changed("log-level") {
		cfg.LogLevel = a.flags.LogLevel
	}
	if pf.Changed("otp-endpoint") {
		cfg.OTPEndpoint = a.flags.OTPEndpoint
	}
	if pf.Changed("max-instructions") {
		cfg.MaxInstructionsPerBatch = a.flags.MaxInstructionsPerBatch
	}
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if err := client.ValidateConfig(cfg); err != nil {
		return usageErr("invalid config: %v", err)
	}
	a.cfg = cfg
	return nil
}

func (a *app) configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return a.printJSON(a.cfg)
		},
	}
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
