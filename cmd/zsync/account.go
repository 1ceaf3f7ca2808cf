package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
)

const requestTimeout = 30 * time.Second

var accounts = cli.Command{
	Name:   "accounts",
	Usage:  "list the accounts synced by zsyncd",
	Action: accountsAction,
	Flags:  []cli.Flag{&rpcFlag},
}

var status = cli.Command{
	Name:   "status",
	Usage:  "get the sync status of an account",
	Action: statusAction,
	Flags:  []cli.Flag{&rpcFlag, &accountFlag},
}

var balance = cli.Command{
	Name:   "balance",
	Usage:  "get the balance of an account",
	Action: balanceAction,
	Flags:  []cli.Flag{&rpcFlag, &accountFlag},
}

var address = cli.Command{
	Name:   "address",
	Usage:  "get the shielded address of an account",
	Action: addressAction,
	Flags: []cli.Flag{
		&rpcFlag,
		&accountFlag,
		&cli.UintFlag{
			Name:  "index",
			Usage: "derive the address of another account index of the same seed",
		},
	},
}

var refresh = cli.Command{
	Name:   "refresh",
	Usage:  "make an account sync with the chain tip right away",
	Action: refreshAction,
	Flags:  []cli.Flag{&rpcFlag, &accountFlag},
}

var resync = cli.Command{
	Name:   "resync",
	Usage:  "drop the chain cache of an account and sync it again from its birthday",
	Action: resyncAction,
	Flags:  []cli.Flag{&rpcFlag, &accountFlag},
}

var remove = cli.Command{
	Name:   "remove",
	Usage:  "stop syncing an account and delete its chain cache",
	Action: removeAction,
	Flags:  []cli.Flag{&rpcFlag, &accountFlag},
}

var send = cli.Command{
	Name:   "send",
	Usage:  "broadcast a signed transaction, or list the pending ones if none is given",
	Action: sendAction,
	Flags: []cli.Flag{
		&rpcFlag,
		&accountFlag,
		&cli.StringFlag{
			Name:  "raw",
			Usage: "hex encoded signed transaction",
		},
	},
}

func accountsAction(ctx *cli.Context) error {
	return doRequest(ctx, http.MethodGet, "/v1/accounts", nil)
}

func statusAction(ctx *cli.Context) error {
	return doRequest(ctx, http.MethodGet, accountPath(ctx, "status"), nil)
}

func balanceAction(ctx *cli.Context) error {
	return doRequest(ctx, http.MethodGet, accountPath(ctx, "balance"), nil)
}

func addressAction(ctx *cli.Context) error {
	path := accountPath(ctx, "address")
	if ctx.IsSet("index") {
		path += fmt.Sprintf("?index=%d", ctx.Uint("index"))
	}
	return doRequest(ctx, http.MethodGet, path, nil)
}

func refreshAction(ctx *cli.Context) error {
	return doRequest(ctx, http.MethodPost, accountPath(ctx, "refresh"), nil)
}

func resyncAction(ctx *cli.Context) error {
	return doRequest(ctx, http.MethodPost, accountPath(ctx, "resync"), nil)
}

func removeAction(ctx *cli.Context) error {
	path := fmt.Sprintf("/v1/accounts/%s", url.PathEscape(ctx.String("account")))
	return doRequest(ctx, http.MethodDelete, path, nil)
}

func sendAction(ctx *cli.Context) error {
	path := accountPath(ctx, "transactions")

	raw := strings.TrimSpace(ctx.String("raw"))
	if raw == "" {
		return doRequest(ctx, http.MethodGet, path, nil)
	}

	body, err := json.Marshal(map[string]string{"raw": raw})
	if err != nil {
		return err
	}
	return doRequest(ctx, http.MethodPost, path, body)
}

func accountPath(ctx *cli.Context, resource string) string {
	return fmt.Sprintf(
		"/v1/accounts/%s/%s", url.PathEscape(ctx.String("account")), resource,
	)
}

func doRequest(ctx *cli.Context, method, path string, body []byte) error {
	client := &http.Client{Timeout: requestTimeout}

	endpoint := fmt.Sprintf("http://%s%s", ctx.String("rpcserver"), path)
	req, err := http.NewRequestWithContext(
		ctx.Context, method, endpoint, bytes.NewReader(body),
	)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("unable to connect to zsyncd: %w", err)
	}
	defer res.Body.Close()

	buf, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}

	var resp interface{}
	if err := json.Unmarshal(buf, &resp); err != nil {
		return fmt.Errorf("unexpected response from zsyncd: %s", buf)
	}
	if res.StatusCode >= http.StatusBadRequest {
		if m, ok := resp.(map[string]interface{}); ok {
			return fmt.Errorf("%v", m["error"])
		}
		return fmt.Errorf("request failed with status %d", res.StatusCode)
	}

	printRespJSON(resp)
	return nil
}
