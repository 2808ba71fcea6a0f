package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	cli "github.com/urfave/cli/v2"
	"github.com/vitwit/x402pay"
	"github.com/vitwit/x402pay/session"
	"github.com/vitwit/x402pay/types"
)

var payCmd = &cli.Command{
	Name:  "pay",
	Usage: "Request a resource and pay for it",
	Flags: append([]cli.Flag{
		&cli.IntFlag{
			Name:  "option",
			Usage: "index of the payment option to use; prompts when unset",
			Value: -1,
		},
		&cli.StringFlag{
			Name:  "amount",
			Usage: "amount to pay, e.g. 0.2; prompts when unset",
		},
		&cli.BoolFlag{
			Name:  "recover",
			Usage: "resume the last stored session instead of starting a new one",
		},
	}, connectionFlags...),
	Action: func(c *cli.Context) error {
		out := c.App.Writer
		payer, err := newPayer(c, x402pay.WithObserver(func(ev session.Event) {
			if ev.Kind == session.EventTransitioned {
				fmt.Fprintf(out, "[%s] %s\n", ev.State, ev.Message)
			}
		}))
		if err != nil {
			return err
		}
		defer payer.Close()

		var ev session.Event
		if c.Bool("recover") {
			ev, err = payer.Recover(c.Context)
		} else {
			in := bufio.NewReader(c.App.Reader)
			ev, err = payer.Pay(c.Context, chooser(in, out, c.Int("option"), c.String("amount")))
		}
		if s := ev.Session; s != nil {
			printSession(out, s)
		}
		return err
	},
}

func chooser(in *bufio.Reader, out io.Writer, option int, amount string) x402pay.Chooser {
	return func(options []types.PaymentOption) (int, string, error) {
		if option < 0 {
			for i, opt := range options {
				fmt.Fprintf(out, "  %d) %s on %s to %s\n", i, opt.Symbol, opt.Network, opt.PayTo)
			}
			line, err := prompt(in, out, "option")
			if err != nil {
				return 0, "", err
			}
			if option, err = strconv.Atoi(line); err != nil {
				return 0, "", fmt.Errorf("invalid option %q", line)
			}
		}
		if amount == "" {
			line, err := prompt(in, out, "amount")
			if err != nil {
				return 0, "", err
			}
			amount = line
		}
		return option, amount, nil
	}
}

func prompt(in *bufio.Reader, out io.Writer, what string) (string, error) {
	fmt.Fprintf(out, "%s: ", what)
	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read %s: %w", what, err)
	}
	return strings.TrimSpace(line), nil
}

func printSession(out io.Writer, s *session.Session) {
	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return
	}
	fmt.Fprintln(out, string(raw))
}
