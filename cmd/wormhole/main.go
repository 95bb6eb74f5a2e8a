// Command wormhole is the reference client for the rendezvous mailbox and
// transit relay: send a text message or a file, or receive by code.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli"

	"github.com/rotunda-labs/wormhole-relay/client"
)

// Version holds the CLI application version.
const Version = "0.1.0"

func main() {
	app := cli.NewApp()
	app.Name = "wormhole"
	app.Usage = "send or receive a text message or file through a wormhole relay"
	app.Version = Version

	relayFlag := cli.StringFlag{
		Name:  "relay-url, r",
		Usage: "`URL` of the mailbox relay's websocket endpoint",
		Value: "ws://127.0.0.1:4000/",
	}
	transitFlag := cli.StringFlag{
		Name:  "transit-url, t",
		Usage: "`HOST:PORT` of the transit relay (required for --file)",
		Value: "127.0.0.1:4001",
	}
	appIDFlag := cli.StringFlag{
		Name:  "app-id, a",
		Usage: "application `ID` both sides must agree on",
		Value: "wormhole-relay/transfer",
	}

	app.Commands = []cli.Command{
		{
			Name:      "send",
			Usage:     "allocate a code and send a message or file",
			ArgsUsage: " ",
			Flags: []cli.Flag{
				relayFlag,
				transitFlag,
				appIDFlag,
				cli.StringFlag{
					Name:  "text",
					Usage: "send this `TEXT` message",
				},
				cli.StringFlag{
					Name:  "file",
					Usage: "send the file at `PATH`",
				},
			},
			Action: runSend,
		},
		{
			Name:      "receive",
			Usage:     "claim a code and receive its message or file",
			ArgsUsage: "CODE",
			Flags: []cli.Flag{
				relayFlag,
				transitFlag,
				appIDFlag,
				cli.StringFlag{
					Name:  "out, o",
					Usage: "write an incoming file to `PATH` (default: wormhole-download in the current directory)",
				},
			},
			Action: runReceive,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func runSend(c *cli.Context) error {
	text := c.String("text")
	file := c.String("file")

	if text == "" && file == "" {
		return cli.NewExitError("one of --text or --file is required", 1)
	}
	if text != "" && file != "" {
		return cli.NewExitError("--text and --file are mutually exclusive", 1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	code, err := client.Send(ctx, client.SendOptions{
		RelayURL:   c.String("relay-url"),
		TransitURL: c.String("transit-url"),
		AppID:      c.String("app-id"),
		Text:       text,
		FilePath:   file,
	})
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("send failed: %s", err.Error()), 1)
	}

	fmt.Printf("Wormhole code is: %s\n", code)
	fmt.Println("On the other machine, run: wormhole receive", code)
	return nil
}

func runReceive(c *cli.Context) error {
	code := c.Args().First()
	if code == "" {
		return cli.NewExitError("a wormhole code is required", 1)
	}

	out := c.String("out")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	result, err := client.Receive(ctx, client.ReceiveOptions{
		RelayURL:   c.String("relay-url"),
		TransitURL: c.String("transit-url"),
		AppID:      c.String("app-id"),
		Code:       code,
		OutputPath: resolveOutputPath(out),
	})
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("receive failed: %s", err.Error()), 1)
	}

	fmt.Println(result)
	return nil
}

func resolveOutputPath(out string) string {
	if out != "" {
		return out
	}
	wd, err := os.Getwd()
	if err != nil {
		return "wormhole-download"
	}
	return filepath.Join(wd, "wormhole-download")
}
