package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config contains all configuration parameters for the service.
// The fee payer private key is loaded once at startup and handed to the
// transfer layer as a capability; it is never re-read from the environment.
type Config struct {
	Port         string `envconfig:"PORT" default:"8080"`
	SolanaRPCURL string `envconfig:"SOLANA_RPC_URL" default:"https://api.mainnet-beta.solana.com"`
	DatabaseURL  string `envconfig:"DATABASE_URL" required:"true"`
	AMQPURL      string `envconfig:"AMQP_URL"`

	NotifyExchange string `envconfig:"NOTIFY_EXCHANGE" default:"transfer.events"`

	FeePayerPrivateKey string `envconfig:"FEE_PAYER_PRIVATE_KEY" required:"true"`
	// FeeReserveLamports is the minimum native balance the fee payer must
	// retain so the next few operations can still be paid for.
	FeeReserveLamports uint64 `envconfig:"FEE_RESERVE_LAMPORTS" default:"10000000"`

	// Assets is a comma separated SYMBOL:MINT:DECIMALS list.
	Assets string `envconfig:"ASSETS" default:"USDC:EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v:6"`

	// MaxTransferAmount is the per-transaction cap, in decimal asset units.
	MaxTransferAmount string `envconfig:"MAX_TRANSFER_AMOUNT" default:"10000"`

	// EnvelopeTTLSeconds bounds how long an issued envelope stays valid;
	// Solana blockhashes expire after roughly 60-120s, so stay under that.
	EnvelopeTTLSeconds int `envconfig:"ENVELOPE_TTL_SECONDS" default:"60"`

	ConfirmTimeoutSeconds    int `envconfig:"CONFIRM_TIMEOUT_SECONDS" default:"45"`
	ReconcileIntervalSeconds int `envconfig:"RECONCILE_INTERVAL_SECONDS" default:"30"`
}

// cfg is the global configuration instance
var cfg *Config

// Init loads configuration from environment variables.
func Init() error {
	cfg = &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return fmt.Errorf("failed to process config: %w", err)
	}
	return nil
}

// Get returns the global configuration instance.
// Panics if Init() was not called.
func Get() *Config {
	if cfg == nil {
		panic("config not initialized, call Init() first")
	}
	return cfg
}

// Set replaces the global configuration. Intended for tests.
func Set(c *Config) {
	cfg = c
}
