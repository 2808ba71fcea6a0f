package main

import (
	"fmt"
	"os"

	cli "github.com/urfave/cli/v2"
	"github.com/vitwit/x402pay"
	"github.com/vitwit/x402pay/logger"
	"github.com/vitwit/x402pay/signer"
	"github.com/vitwit/x402pay/types"
	"github.com/vitwit/x402pay/utils"
)

var connectionFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "config",
		Usage:   "JSON payer config file; flags override its values",
		EnvVars: []string{"X402PAY_CONFIG"},
	},
	&cli.StringFlag{
		Name:    "rpc-url",
		Usage:   "Solana JSON-RPC endpoint",
		EnvVars: []string{"X402PAY_RPC_URL"},
	},
	&cli.StringFlag{
		Name:    "network",
		Usage:   "solana network to pay on; picks the public RPC endpoint when --rpc-url is unset",
		EnvVars: []string{"X402PAY_NETWORK"},
		Value:   string(types.NetworkDevnet),
	},
	&cli.StringFlag{
		Name:    "gateway-url",
		Usage:   "x402 gateway base URL",
		EnvVars: []string{"X402PAY_GATEWAY_URL"},
	},
	&cli.StringFlag{
		Name:     "keypair",
		Usage:    "solana-keygen JSON keypair file of the payer",
		EnvVars:  []string{"X402PAY_KEYPAIR"},
		Required: true,
	},
	&cli.StringFlag{
		Name:    "redis-url",
		Usage:   "redis URL for session persistence",
		EnvVars: []string{"X402PAY_REDIS_URL"},
	},
	&cli.StringFlag{
		Name:  "log-level",
		Usage: "debug, info, warn or error",
		Value: "warn",
	},
}

func loadConfig(c *cli.Context) (types.PayerConfig, error) {
	var cfg types.PayerConfig
	if path := c.String("config"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		parsed, err := utils.ParsePayerConfig(raw)
		if err != nil {
			return cfg, err
		}
		cfg = *parsed
	}
	if v := c.String("rpc-url"); v != "" {
		cfg.RPCURL = v
	}
	if v := c.String("gateway-url"); v != "" {
		cfg.GatewayURL = v
	}
	if v := c.String("redis-url"); v != "" {
		cfg.RedisURL = v
	}
	if c.IsSet("log-level") || cfg.LogLevel == "" {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("network") && len(cfg.Networks) == 0 {
		cfg.Networks = []string{c.String("network")}
	}
	if cfg.RPCURL == "" {
		url, err := defaultRPCURL(cfg.Networks, c.String("network"))
		if err != nil {
			return cfg, err
		}
		cfg.RPCURL = url
	}
	return cfg, nil
}

// defaultRPCURL picks the public endpoint of the first configured network, or of fallback.
func defaultRPCURL(networks []string, fallback string) (string, error) {
	network := fallback
	if len(networks) > 0 {
		network = networks[0]
	}
	url := types.ClusterRPCURL(types.Network(network).Cluster())
	if url == "" {
		return "", fmt.Errorf("no public rpc endpoint for network %q, set --rpc-url", network)
	}
	return url, nil
}

func newPayer(c *cli.Context, opts ...x402pay.Option) (*x402pay.Payer, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	s, err := signer.FromKeygenFile(c.String("keypair"))
	if err != nil {
		return nil, err
	}
	opts = append([]x402pay.Option{x402pay.WithLogger(logger.NewZapLogger(cfg.LogLevel))}, opts...)
	return x402pay.New(cfg, s, opts...)
}
