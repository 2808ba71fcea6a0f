package main

import (
	"encoding/json"
	"errors"
	"fmt"

	cli "github.com/urfave/cli/v2"
	"github.com/vitwit/x402pay/proof"
)

var decodeProofCmd = &cli.Command{
	Name:      "decode-proof",
	Usage:     "Decode an X-PAYMENT header value",
	ArgsUsage: "<header>",
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return errors.New("expected exactly one header value")
		}
		env, err := proof.Decode(c.Args().First())
		if err != nil {
			return err
		}
		raw, err := json.MarshalIndent(env, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, string(raw))
		return nil
	},
}
