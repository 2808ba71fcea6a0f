package main

import (
	"fmt"
	"os"

	cli "github.com/urfave/cli/v2"
	"github.com/vitwit/x402pay"
)

const appName = "x402pay"

func newApp() *cli.App {
	return &cli.App{
		Name:        appName,
		Usage:       "pay for x402 priced resources with SPL tokens on Solana",
		Version:     x402pay.Version,
		Description: fmt.Sprintf("For help on any individual command run <%v COMMAND -h>", appName),
		Commands: cli.Commands{
			payCmd,
			resolveCmd,
			decodeProofCmd,
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%v: %v\n", appName, err)
		os.Exit(1)
	}
}
