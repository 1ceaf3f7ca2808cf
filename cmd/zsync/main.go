package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/shielded-wallet/zsyncd/config"
	"github.com/urfave/cli/v2"
)

var (
	version = "dev"

	datadirFlag = cli.StringFlag{
		Name:  "datadir",
		Usage: "the data directory of zsyncd",
		Value: config.GetString(config.DatadirKey),
	}
	networkFlag = cli.StringFlag{
		Name:    "network",
		Aliases: []string{"n"},
		Usage:   "the network zsyncd is running on: mainnet or testnet",
		Value:   config.GetString(config.NetworkKey),
	}
	passwordFileFlag = cli.StringFlag{
		Name:  "password-file",
		Usage: "file containing the password of the secret store",
		Value: config.GetString(config.PasswordFileKey),
	}
	endpointFlag = cli.StringFlag{
		Name:  "endpoint",
		Usage: "host:port of the lightwalletd server",
		Value: config.GetString(config.EndpointAddrKey),
	}
	rpcFlag = cli.StringFlag{
		Name:  "rpcserver",
		Usage: "zsyncd HTTP interface address host:port",
		Value: config.GetString(config.HTTPListenAddrKey),
	}
	accountFlag = cli.StringFlag{
		Name:    "account",
		Aliases: []string{"a"},
		Usage:   "the id of the account",
		Value:   "0",
	}
)

func main() {
	app := cli.NewApp()

	app.Version = version
	app.Name = "zsync"
	app.Usage = "Command line interface for zsyncd daemon operators"
	app.Commands = append(
		app.Commands,
		&genseed,
		&keys,
		&initwallet,
		&changepassword,
		&pin,
		&accounts,
		&status,
		&balance,
		&address,
		&refresh,
		&resync,
		&remove,
		&send,
	)

	err := app.Run(os.Args)
	if err != nil {
		fatal(err)
	}
}

func printRespJSON(resp interface{}) {
	buf, err := json.MarshalIndent(resp, "", "\t")
	if err != nil {
		fmt.Println("unable to decode response: ", err)
		return
	}
	fmt.Println(string(buf))
}

type invalidUsageError struct {
	ctx     *cli.Context
	command string
}

func (e *invalidUsageError) Error() string {
	return fmt.Sprintf("invalid usage of command %s", e.command)
}

func fatal(err error) {
	var e *invalidUsageError
	if errors.As(err, &e) {
		_ = cli.ShowCommandHelp(e.ctx, e.command)
	} else {
		_, _ = fmt.Fprintf(os.Stderr, "[zsync] %v\n", err)
	}
	os.Exit(1)
}
