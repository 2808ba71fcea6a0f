package main

import (
	"encoding/json"
	"fmt"

	cli "github.com/urfave/cli/v2"
)

var resolveCmd = &cli.Command{
	Name:  "resolve",
	Usage: "Show which token account a payment would be sent to",
	Flags: append([]cli.Flag{
		&cli.StringFlag{
			Name:     "mint",
			Usage:    "SPL token mint",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "recipient",
			Usage:    "wallet or token account to pay",
			Required: true,
		},
	}, connectionFlags...),
	Action: func(c *cli.Context) error {
		payer, err := newPayer(c)
		if err != nil {
			return err
		}
		defer payer.Close()

		dest, err := payer.Resolve(c.Context, c.String("mint"), c.String("recipient"))
		if err != nil {
			return err
		}
		raw, err := json.MarshalIndent(dest, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, string(raw))
		return nil
	},
}
