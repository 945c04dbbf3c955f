package client

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"redeem.dev/kit/protocol"
)

type Config struct {
	Network     string `yaml:"network" json:"network"`
	RPCURL      string `yaml:"rpc_url" json:"rpc_url"`
	DataDir     string `yaml:"data_dir" json:"data_dir"`
	Keypair     string `yaml:"keypair" json:"keypair"`
	LogLevel    string `yaml:"log_level" json:"log_level"`
	Commitment  string `yaml:"commitment" json:"commitment"`
	OTPEndpoint string `yaml:"otp_endpoint" json:"otp_endpoint"`

	FireballProgram string `yaml:"fireball_program" json:"fireball_program"`
	GumdropProgram  string `yaml:"gumdrop_program" json:"gumdrop_program"`
	TemporalSigner  string `yaml:"temporal_signer" json:"temporal_signer"`

	MaxInstructionsPerBatch int           `yaml:"max_instructions_per_batch" json:"max_instructions_per_batch"`
	ConfirmTimeout          time.Duration `yaml:"confirm_timeout" json:"confirm_timeout"`
	MaxRetries              int           `yaml:"max_retries" json:"max_retries"`
	RetryBackoff            time.Duration `yaml:"retry_backoff" json:"retry_backoff"`
}

// Programs are the resolved program and co-signer keys a client talks to.
type Programs struct {
	Fireball protocol.Pubkey
	Gumdrop  protocol.Pubkey
	Temporal protocol.Pubkey
}

var allowedLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

var allowedCommitments = map[string]struct{}{
	"processed": {},
	"confirmed": {},
	"finalized": {},
}

var networkRPC = map[string]string{
	"devnet":       "https://api.devnet.solana.com",
	"testnet":      "https://api.testnet.solana.com",
	"mainnet-beta": "https://api.mainnet-beta.solana.com",
	"localnet":     "http://127.0.0.1:8899",
}

func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".redeem"
	}
	return filepath.Join(home, ".redeem")
}

func DefaultConfig() Config {
	return Config{
		Network:                 "devnet",
		RPCURL:                  networkRPC["devnet"],
		DataDir:                 DefaultDataDir(),
		LogLevel:                "info",
		Commitment:              "confirmed",
		OTPEndpoint:             "",
		FireballProgram:         protocol.FireballProgramID.String(),
		GumdropProgram:          protocol.GumdropProgramID.String(),
		TemporalSigner:          protocol.GumdropTemporalSigner.String(),
		MaxInstructionsPerBatch: 2,
		ConfirmTimeout:          60 * time.Second,
		MaxRetries:              3,
		RetryBackoff:            500 * time.Millisecond,
	}
}

// LoadConfig reads YAML from path over DefaultConfig. An rpc_url left empty
// follows the network.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "load config")
	}
	cfg.RPCURL = ""
	if err := yaml.UnmarshalStrict(raw, &cfg); err != nil {
		return cfg, errors.Wrap(err, "parse config")
	}
	if cfg.RPCURL == "" {
		cfg.RPCURL = networkRPC[cfg.Network]
	}
	return cfg, nil
}

// NetworkRPCURL returns the public endpoint of a known network.
func NetworkRPCURL(network string) (string, bool) {
	u, ok := networkRPC[network]
	return u, ok
}

func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.Network) == "" {
		return errors.New("network is required")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return errors.New("data_dir is required")
	}
	if err := validateURL(cfg.RPCURL); err != nil {
		return fmt.Errorf("invalid rpc_url: %w", err)
	}
	if cfg.OTPEndpoint != "" {
		if err := validateURL(cfg.OTPEndpoint); err != nil {
			return fmt.Errorf("invalid otp_endpoint: %w", err)
		}
	}
	logLevel := strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if _, ok := allowedLogLevels[logLevel]; !ok {
		return fmt.Errorf("invalid log_level %q", cfg.LogLevel)
	}
	if _, ok := allowedCommitments[cfg.Commitment]; !ok {
		return fmt.Errorf("invalid commitment %q", cfg.Commitment)
	}
	if _, err := cfg.Programs(); err != nil {
		return err
	}
	if cfg.MaxInstructionsPerBatch <= 0 {
		return errors.New("max_instructions_per_batch must be > 0")
	}
	if cfg.ConfirmTimeout <= 0 {
		return errors.New("confirm_timeout must be > 0")
	}
	if cfg.MaxRetries < 0 {
		return errors.New("max_retries must be >= 0")
	}
	if cfg.MaxRetries > 32 {
		return errors.New("max_retries must be <= 32")
	}
	if cfg.RetryBackoff < 0 {
		return errors.New("retry_backoff must be >= 0")
	}
	return nil
}

func (cfg Config) Programs() (Programs, error) {
	var p Programs
	var err error
	if p.Fireball, err = protocol.ParsePubkey(cfg.FireballProgram); err != nil {
		return p, fmt.Errorf("invalid fireball_program: %w", err)
	}
	if p.Gumdrop, err = protocol.ParsePubkey(cfg.GumdropProgram); err != nil {
		return p, fmt.Errorf("invalid gumdrop_program: %w", err)
	}
	if p.Temporal, err = protocol.ParsePubkey(cfg.TemporalSigner); err != nil {
		return p, fmt.Errorf("invalid temporal_signer: %w", err)
	}
	return p, nil
}

// RetryPolicy is the submission retry policy the config describes.
func (cfg Config) RetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.RetryBackoff,
		MaxBackoff:     16 * cfg.RetryBackoff,
	}
}

func validateURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return errors.New("empty url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}
