package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shielded-wallet/zsyncd/config"
	"github.com/shielded-wallet/zsyncd/internal/core/application/keystore"
	"github.com/shielded-wallet/zsyncd/internal/infrastructure/lightwalletd"
	"github.com/shielded-wallet/zsyncd/internal/infrastructure/secretstore"
	"github.com/shielded-wallet/zsyncd/pkg/wallet"
	"github.com/urfave/cli/v2"
)

const tipTimeout = 30 * time.Second

var (
	mnemonicFlag = cli.StringFlag{
		Name:    "mnemonic",
		Usage:   "space separated words of the mnemonic",
		EnvVars: []string{"ZSYNC_" + config.MnemonicKey},
	}
	birthdayFlag = cli.Uint64Flag{
		Name:  "birthday",
		Usage: "the height to start scanning from, defaults to the current tip for new wallets",
	}
)

var genseed = cli.Command{
	Name:   "genseed",
	Usage:  "generate a mnemonic seed",
	Action: genSeedAction,
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "entropy",
			Usage: "entropy size in bits, multiple of 32 in [128, 256]",
			Value: 256,
		},
	},
}

var keys = cli.Command{
	Name:   "keys",
	Usage:  "derive the address and viewing key of an account from its mnemonic",
	Action: keysAction,
	Flags: []cli.Flag{
		&mnemonicFlag,
		&networkFlag,
		&cli.UintFlag{
			Name:  "index",
			Usage: "the index of the account",
		},
	},
}

var initwallet = cli.Command{
	Name:   "init",
	Usage:  "store the mnemonic of the wallet into the secret store of zsyncd, zsyncd must not be running",
	Action: initWalletAction,
	Flags: []cli.Flag{
		&datadirFlag,
		&networkFlag,
		&passwordFileFlag,
		&endpointFlag,
		&mnemonicFlag,
		&birthdayFlag,
	},
}

var changepassword = cli.Command{
	Name:   "changepassword",
	Usage:  "change the password of the secret store, zsyncd must not be running",
	Action: changePasswordAction,
	Flags: []cli.Flag{
		&datadirFlag,
		&networkFlag,
		&passwordFileFlag,
		&cli.StringFlag{
			Name:     "new-password-file",
			Usage:    "file containing the new password",
			Required: true,
		},
	},
}

var pin = cli.Command{
	Name:  "pin",
	Usage: "manage the pin guarding the wallet, zsyncd must not be running",
	Subcommands: []*cli.Command{
		{
			Name:   "set",
			Usage:  "set or replace the pin",
			Action: pinSetAction,
			Flags: []cli.Flag{
				&datadirFlag, &networkFlag, &passwordFileFlag,
				&cli.StringFlag{Name: "pin", Required: true},
			},
		},
		{
			Name:   "check",
			Usage:  "check the given pin",
			Action: pinCheckAction,
			Flags: []cli.Flag{
				&datadirFlag, &networkFlag, &passwordFileFlag,
				&cli.StringFlag{Name: "pin", Required: true},
			},
		},
		{
			Name:   "clear",
			Usage:  "remove the pin",
			Action: pinClearAction,
			Flags: []cli.Flag{
				&datadirFlag, &networkFlag, &passwordFileFlag,
			},
		},
	},
}

func genSeedAction(ctx *cli.Context) error {
	mnemonic, err := wallet.NewMnemonic(wallet.NewMnemonicOpts{
		EntropySize: ctx.Int("entropy"),
	})
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(strings.Join(mnemonic, " "))
	return nil
}

func keysAction(ctx *cli.Context) error {
	mnemonic := strings.Fields(ctx.String("mnemonic"))
	if len(mnemonic) <= 0 {
		return &invalidUsageError{ctx, ctx.Command.Name}
	}
	network, err := wallet.NetworkByName(ctx.String("network"))
	if err != nil {
		return err
	}

	kb, err := wallet.Derive(mnemonic, "", uint32(ctx.Uint("index")), network)
	if err != nil {
		return err
	}

	printRespJSON(map[string]interface{}{
		"accountIndex":   kb.AccountIndex,
		"derivationPath": kb.DerivationPath,
		"fingerprint":    kb.Fingerprint,
		"address":        kb.Address(),
		"viewingKey":     kb.ViewingKey,
	})
	return nil
}

func initWalletAction(ctx *cli.Context) error {
	store, err := openSecretStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	wm, err := keystore.NewWordsManager(store)
	if err != nil {
		return err
	}
	if words, err := wm.Words(); err != nil {
		return err
	} else if words != nil {
		return fmt.Errorf("wallet is already initialized")
	}

	mnemonic := strings.Fields(ctx.String("mnemonic"))
	generated := len(mnemonic) <= 0
	if generated {
		if mnemonic, err = wallet.NewMnemonic(wallet.NewMnemonicOpts{}); err != nil {
			return err
		}
	}

	birthday := ctx.Uint64("birthday")
	if !ctx.IsSet("birthday") {
		if generated {
			if birthday, err = getChainTip(ctx); err != nil {
				return err
			}
		} else {
			fmt.Fprintln(
				os.Stderr,
				"no birthday given for restored wallet, it will be scanned from sapling activation",
			)
		}
	}

	if err := wm.Save(mnemonic, birthday); err != nil {
		return err
	}

	resp := map[string]interface{}{"birthday": birthday}
	if generated {
		resp["mnemonic"] = strings.Join(mnemonic, " ")
	}
	printRespJSON(resp)
	return nil
}

func changePasswordAction(ctx *cli.Context) error {
	store, err := openSecretStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	oldPwd, err := config.GetPassword()
	if err != nil {
		return err
	}
	config.Set(config.PasswordFileKey, ctx.String("new-password-file"))
	newPwd, err := config.GetPassword()
	if err != nil {
		return err
	}

	if err := store.ChangePassword(oldPwd, newPwd); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("password changed")
	return nil
}

func pinSetAction(ctx *cli.Context) error {
	pm, cleanup, err := getPinManager(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	p := ctx.String("pin")
	if err := pm.Store(&p); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("pin set")
	return nil
}

func pinCheckAction(ctx *cli.Context) error {
	pm, cleanup, err := getPinManager(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	pinned, err := pm.IsPinned()
	if err != nil {
		return err
	}
	if !pinned {
		return fmt.Errorf("pin is not set")
	}

	ok, err := pm.Validate(ctx.String("pin"))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("wrong pin")
	}

	fmt.Println()
	fmt.Println("pin is valid")
	return nil
}

func pinClearAction(ctx *cli.Context) error {
	pm, cleanup, err := getPinManager(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := pm.Store(nil); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("pin removed")
	return nil
}

func getPinManager(ctx *cli.Context) (*keystore.PinManager, func(), error) {
	store, err := openSecretStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() { _ = store.Close() }

	pm, err := keystore.NewPinManager(store)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return pm, cleanup, nil
}

// openSecretStore opens the secret store of the daemon through the same
// config layer, so that flags and env vars resolve to the same paths.
func openSecretStore(ctx *cli.Context) (*secretstore.Store, error) {
	config.Set(config.DatadirKey, ctx.String("datadir"))
	config.Set(config.NetworkKey, ctx.String("network"))
	config.Set(config.PasswordFileKey, ctx.String("password-file"))
	if err := config.Init(); err != nil {
		return nil, err
	}

	password, err := config.GetPassword()
	if err != nil {
		return nil, err
	}

	store, err := secretstore.NewStore(config.GetSecretsDir())
	if err != nil {
		return nil, fmt.Errorf(
			"failed to open secret store, make sure zsyncd is not running: %w", err,
		)
	}
	if err := store.Unlock(password); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to unlock secret store: %w", err)
	}
	return store, nil
}

func getChainTip(ctx *cli.Context) (uint64, error) {
	opts := config.GetEndpointOpts()
	opts.Addr = ctx.String("endpoint")

	source, err := lightwalletd.NewService(opts)
	if err != nil {
		return 0, err
	}
	defer source.Close()

	c, cancel := context.WithTimeout(ctx.Context, tipTimeout)
	defer cancel()
	return source.GetLatestHeight(c)
}
